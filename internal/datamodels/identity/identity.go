package identity

import "strings"

// Role 登录角色，只有管理员和顾客两种
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// ParseRole 解析角色字符串，大小写不敏感
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleCustomer:
		return RoleCustomer, true
	}
	return "", false
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

// LoginRoute 该角色对应的登录页，未知角色按顾客处理
func (r Role) LoginRoute() string {
	if r == RoleAdmin {
		return "/admin/login"
	}
	return "/login"
}

// HomeRoute 登录后的首页
func (r Role) HomeRoute() string {
	if r == RoleAdmin {
		return "/admin"
	}
	return "/"
}

// Identity 当前登录的操作者。Token 单独持久化，不随 user 条目序列化。
type Identity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	ActorKind string `json:"userType"`
	Token     string `json:"-"`
}

// IsCustomer 是否为已登录顾客（聊天窗口只对顾客开放）
func (i *Identity) IsCustomer() bool {
	return i != nil && i.Role == RoleCustomer && i.ID != "" && i.Token != ""
}
