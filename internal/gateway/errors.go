package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized 401：会话已失效，网关已清空本地会话
	ErrUnauthorized = errors.New("gateway: unauthorized")
	// ErrForbidden 403：无权限，本地会话保持不变
	ErrForbidden = errors.New("gateway: forbidden")
	// ErrNetwork 连接失败或超时
	ErrNetwork = errors.New("gateway: network error")
)

// StatusError 非 2xx 响应
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

// APIError 2xx 响应但业务码非 0
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}
