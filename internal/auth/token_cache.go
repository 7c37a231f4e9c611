package auth

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	radix "github.com/mediocregopher/radix/v3"
)

// TokenCache JWT 解析结果缓存。key 先经一致性哈希选出节点命名空间，
// 多个鉴权节点共用一个 Redis 时互不干扰。redis 为 nil 时整个缓存失效。
type TokenCache struct {
	redis radix.Client
	ring  *ConsistentHashRing
	ttl   time.Duration
}

func NewTokenCache(redis radix.Client, ring *ConsistentHashRing, ttl time.Duration) *TokenCache {
	if ring == nil {
		ring = NewConsistentHashRing(nil, 0)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenCache{redis: redis, ring: ring, ttl: ttl}
}

// Enabled 是否接了 Redis
func (c *TokenCache) Enabled() bool {
	return c != nil && c.redis != nil
}

func (c *TokenCache) key(token string) string {
	sum := sha1.Sum([]byte(token))
	return fmt.Sprintf("shopfront:jwt:%s:%s", c.ring.GetNode(token), hex.EncodeToString(sum[:]))
}

// Get 命中返回缓存的 claims；数据损坏时删掉并按未命中处理
func (c *TokenCache) Get(ctx context.Context, token string) (*Claims, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}
	key := c.key(token)
	var raw string
	mn := radix.MaybeNil{Rcv: &raw}
	if err := c.redis.Do(radix.Cmd(&mn, "GET", key)); err != nil {
		return nil, false, err
	}
	if mn.Nil || raw == "" {
		return nil, false, nil
	}
	var claims Claims
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		_ = c.redis.Do(radix.Cmd(nil, "DEL", key))
		return nil, false, nil
	}
	return &claims, true, nil
}

// Set 缓存时间不超过 token 剩余有效期
func (c *TokenCache) Set(ctx context.Context, token string, claims *Claims) error {
	if !c.Enabled() || claims == nil {
		return nil
	}
	ttl := c.ttl
	if claims.ExpiresAt != nil {
		if left := time.Until(claims.ExpiresAt.Time); left < ttl {
			ttl = left
		}
	}
	secs := int64(ttl / time.Second)
	if secs <= 0 {
		return nil
	}
	body, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	return c.redis.Do(radix.FlatCmd(nil, "SETEX", c.key(token), secs, body))
}

// Invalidate 删除缓存，用于主动吊销
func (c *TokenCache) Invalidate(ctx context.Context, token string) error {
	if !c.Enabled() {
		return nil
	}
	return c.redis.Do(radix.Cmd(nil, "DEL", c.key(token)))
}
