package session

import (
	"encoding/json"
	"errors"

	"github.com/example/shopfront/internal/datamodels/identity"
)

// 本地持久化的两个条目，必须同时写入、同时清除
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// ErrIncomplete 身份或 token 缺失，拒绝写入半截会话
var ErrIncomplete = errors.New("session: identity and token are both required")

// Store 会话存储：保存当前登录身份和凭证
type Store interface {
	// Load 两个条目都存在且可解析时返回身份，否则视为未登录，不返回错误
	Load() (*identity.Identity, bool)
	Save(id *identity.Identity) error
	Clear() error
}

func encode(id *identity.Identity) (token, user string, err error) {
	if id == nil || id.Token == "" {
		return "", "", ErrIncomplete
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return "", "", err
	}
	return id.Token, string(raw), nil
}

func decode(token, user string) (*identity.Identity, bool) {
	if token == "" || user == "" {
		return nil, false
	}
	var id identity.Identity
	if err := json.Unmarshal([]byte(user), &id); err != nil {
		return nil, false
	}
	if !id.Role.Valid() {
		return nil, false
	}
	id.Token = token
	return &id, true
}
