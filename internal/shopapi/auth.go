package shopapi

import (
	"context"
	"fmt"

	"github.com/example/shopfront/internal/datamodels/identity"
	"github.com/example/shopfront/internal/gateway"
)

// 管理员与顾客使用两套独立的登录/注册接口
const (
	adminLoginPath       = "auth/admin/login"
	customerLoginPath    = "auth/customer/login"
	adminRegisterPath    = "/auth/admin/register"
	customerRegisterPath = "auth/customer/register"
)

// Credentials 登录凭证
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration 注册参数
type Registration struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// LoginResult 登录接口返回的数据
type LoginResult struct {
	Token    string `json:"token"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	UserType string `json:"userType"`
}

// Account 注册成功后返回的账号信息
type Account struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
}

// AuthAPI 登录/注册接口封装，全部标记为公开请求
type AuthAPI struct {
	gw *gateway.Gateway
}

func NewAuthAPI(gw *gateway.Gateway) *AuthAPI {
	return &AuthAPI{gw: gw}
}

// Login 按角色调用对应登录接口
func (a *AuthAPI) Login(ctx context.Context, role identity.Role, creds Credentials) (*LoginResult, error) {
	path, err := pick(role, adminLoginPath, customerLoginPath)
	if err != nil {
		return nil, err
	}
	var res LoginResult
	if err := a.gw.Post(gateway.Public(ctx), path, nil, creds, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Register 按角色调用对应注册接口
func (a *AuthAPI) Register(ctx context.Context, role identity.Role, reg Registration) (*Account, error) {
	path, err := pick(role, adminRegisterPath, customerRegisterPath)
	if err != nil {
		return nil, err
	}
	var acc Account
	if err := a.gw.Post(gateway.Public(ctx), path, nil, reg, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func pick(role identity.Role, admin, customer string) (string, error) {
	switch role {
	case identity.RoleAdmin:
		return admin, nil
	case identity.RoleCustomer:
		return customer, nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}
