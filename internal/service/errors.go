package service

import (
	"errors"

	"github.com/example/shopfront/internal/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidInput       = errors.New("invalid input")
	ErrForbidden          = errors.New("forbidden")
)

// Actor 当前请求的操作者，由鉴权中间件从 token 构造
type Actor struct {
	ID    string
	Name  string
	Admin bool
}

// canAccess 管理员可以访问任意顾客的数据，顾客只能访问自己的
func (a Actor) canAccess(customerID string) bool {
	return a.Admin || (a.ID != "" && a.ID == customerID)
}

func ActorFromClaims(c *auth.Claims) Actor {
	return Actor{ID: c.ID(), Name: c.Username, Admin: c.IsAdmin()}
}
