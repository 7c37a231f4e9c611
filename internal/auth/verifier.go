package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/shopfront/internal/config"
	"github.com/example/shopfront/internal/logging"
)

var (
	ErrEmptyToken   = errors.New("empty token")
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier 校验 bearer token，HTTP 中间件和 STOMP 握手共用
type Verifier struct {
	cfg    *config.JWTConfig
	cache  *TokenCache
	logger *zap.Logger
	now    func() time.Time

	onCacheError func(error)
}

func NewVerifier(cfg *config.JWTConfig, cache *TokenCache, logger *zap.Logger) *Verifier {
	if cache == nil {
		cache = NewTokenCache(nil, nil, 0)
	}
	return &Verifier{
		cfg:    cfg,
		cache:  cache,
		logger: logging.OrNop(logger).Named("auth"),
		now:    time.Now,
	}
}

// OnCacheError 缓存读写失败时回调（用于监控计数），不影响校验结果
func (v *Verifier) OnCacheError(fn func(error)) {
	v.onCacheError = fn
}

// Verify 先查缓存，未命中再解析签名
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}
	claims, ok, err := v.cache.Get(ctx, token)
	if err != nil {
		v.cacheFailed("get", err)
	}
	if ok && !claims.expired(v.now()) {
		return claims, nil
	}

	claims, err = ParseToken(v.cfg, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := v.cache.Set(ctx, token, claims); err != nil {
		v.cacheFailed("set", err)
	}
	return claims, nil
}

// Issue 签发 token
func (v *Verifier) Issue(userID int64, username, role, actorKind string) (string, error) {
	return GenerateToken(v.cfg, userID, username, role, actorKind)
}

func (v *Verifier) cacheFailed(op string, err error) {
	v.logger.Warn("token cache unavailable", zap.String("op", op), zap.Error(err))
	if v.onCacheError != nil {
		v.onCacheError(err)
	}
}
