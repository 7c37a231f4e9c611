package user

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrNotFound 用户不存在
	ErrNotFound = errors.New("user not found")
	// ErrExists 同角色下用户名已被占用
	ErrExists = errors.New("username already taken")
)

// User 用户模型，管理员与顾客共用一张表，以 Role 区分
type User struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	Username    string    `json:"username" gorm:"size:64;not null;uniqueIndex:idx_role_username"`
	Role        string    `json:"role" gorm:"size:16;not null;uniqueIndex:idx_role_username"`
	DisplayName string    `json:"displayName" gorm:"size:64"`
	Password    string    `json:"-" gorm:"size:255;not null"` // 已加密密码
	Salt        string    `json:"-" gorm:"size:64"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// StringID 聊天与会话里使用的字符串 ID
func (u *User) StringID() string {
	return strconv.FormatInt(u.ID, 10)
}

// ActorKind 返回给前端的身份类型
func (u *User) ActorKind() string {
	if u.Role == "admin" {
		return "ADMIN"
	}
	return "CUSTOMER"
}

// Repository 用户仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, role, username string) (*User, error)
	Create(ctx context.Context, u *User) error
}
