package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/example/shopfront/internal/auth"
	"github.com/example/shopfront/internal/datamodels/identity"
	"github.com/example/shopfront/internal/datamodels/user"
	"github.com/example/shopfront/internal/logging"
)

// LoginResult 登录接口返回给前端的内容
type LoginResult struct {
	Token    string `json:"token"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	UserType string `json:"userType"`
}

type UserService struct {
	repo     user.Repository
	verifier *auth.Verifier
	monitor  *Monitor
	logger   *zap.Logger
}

func NewUserService(repo user.Repository, verifier *auth.Verifier, monitor *Monitor, logger *zap.Logger) *UserService {
	if monitor == nil {
		monitor = NewMonitor()
	}
	return &UserService{
		repo:     repo,
		verifier: verifier,
		monitor:  monitor,
		logger:   logging.OrNop(logger).Named("user"),
	}
}

func hashPassword(raw, salt string) string {
	h := sha256.Sum256([]byte(raw + salt))
	return hex.EncodeToString(h[:])
}

func newSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Register 注册管理员或顾客，同一角色内用户名唯一
func (s *UserService) Register(ctx context.Context, role identity.Role, username, password, displayName string) (*user.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < 3 || n > 64 {
		return nil, fmt.Errorf("%w: username must be 3-64 characters", ErrInvalidInput)
	}
	if utf8.RuneCountInString(password) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", ErrInvalidInput)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = username
	}
	salt, err := newSalt()
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	u := &user.User{
		Username:    username,
		Role:        string(role),
		DisplayName: displayName,
		Salt:        salt,
		Password:    hashPassword(password, salt),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if !errors.Is(err, user.ErrExists) {
			s.monitor.RecordDBError()
		}
		return nil, err
	}
	s.logger.Info("user registered", zap.String("role", u.Role), zap.Int64("id", u.ID))
	return u, nil
}

// Login 校验密码并签发 JWT。用户不存在与密码错误返回同一个错误。
func (s *UserService) Login(ctx context.Context, role identity.Role, username, password string) (*LoginResult, error) {
	u, err := s.repo.GetByUsername(ctx, string(role), strings.TrimSpace(username))
	if err != nil {
		s.monitor.RecordLogin(false)
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.monitor.RecordDBError()
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(hashPassword(password, u.Salt)), []byte(u.Password)) != 1 {
		s.monitor.RecordLogin(false)
		return nil, ErrInvalidCredentials
	}
	token, err := s.verifier.Issue(u.ID, u.Username, u.Role, u.ActorKind())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.monitor.RecordLogin(true)
	return &LoginResult{
		Token:    token,
		ID:       u.StringID(),
		Name:     u.DisplayName,
		Role:     u.Role,
		UserType: u.ActorKind(),
	}, nil
}
