package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	radix "github.com/mediocregopher/radix/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shopfront/internal/config"
)

func testJWT() *config.JWTConfig {
	return &config.JWTConfig{Secret: "test-secret", TTL: time.Hour}
}

func TestGenerateAndParseToken(t *testing.T) {
	cfg := testJWT()
	tok, err := GenerateToken(cfg, 42, "carol", "customer", "CUSTOMER")
	require.NoError(t, err)

	claims, err := ParseToken(cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "42", claims.ID())
	assert.Equal(t, "carol", claims.Username)
	assert.False(t, claims.IsAdmin())

	_, err = ParseToken(&config.JWTConfig{Secret: "other"}, tok)
	assert.Error(t, err)
}

func TestNonPositiveTTLFallsBackToDefault(t *testing.T) {
	cfg := &config.JWTConfig{Secret: "s", TTL: -time.Minute}
	// TTL<=0 按默认 2h 签发
	tok, err := GenerateToken(cfg, 1, "root", "admin", "ADMIN")
	require.NoError(t, err)
	claims, err := ParseToken(cfg, tok)
	require.NoError(t, err)
	assert.True(t, claims.expired(time.Now().Add(3*time.Hour)))
}

func TestRingIsStableAndBalanced(t *testing.T) {
	ring := NewConsistentHashRing([]string{"a", "b", "c"}, 100)
	counts := map[string]int{}
	owners := map[string]string{}
	for i := 0; i < 3000; i++ {
		key := fmt.Sprintf("token-%d", i)
		n := ring.GetNode(key)
		counts[n]++
		owners[key] = n
		assert.Equal(t, n, ring.GetNode(key))
	}
	require.Len(t, counts, 3)
	for node, n := range counts {
		assert.Greater(t, n, 500, node)
	}

	ring.Remove("b")
	for key, before := range owners {
		if before != "b" {
			assert.Equal(t, before, ring.GetNode(key), key)
		} else {
			assert.NotEqual(t, "b", ring.GetNode(key))
		}
	}
}

func TestEmptyRingGetsDefaultNode(t *testing.T) {
	assert.Equal(t, "auth-node-default", NewConsistentHashRing(nil, 0).GetNode("x"))
}

// stubRedis 用 radix.Stub 模拟 GET/SETEX/DEL
func stubRedis() (radix.Client, *sync.Map, *int) {
	data := &sync.Map{}
	sets := new(int)
	var mu sync.Mutex
	conn := radix.Stub("tcp", "127.0.0.1:6379", func(args []string) interface{} {
		switch args[0] {
		case "GET":
			if v, ok := data.Load(args[1]); ok {
				return v.(string)
			}
			return nil
		case "SETEX":
			mu.Lock()
			*sets++
			mu.Unlock()
			data.Store(args[1], args[3])
			return "OK"
		case "DEL":
			data.Delete(args[1])
			return 1
		}
		return fmt.Errorf("unexpected command %v", args)
	})
	return conn, data, sets
}

func TestVerifierCachesClaims(t *testing.T) {
	client, data, sets := stubRedis()
	cache := NewTokenCache(client, NewConsistentHashRing([]string{"n1", "n2"}, 10), time.Minute)
	v := NewVerifier(testJWT(), cache, nil)

	tok, err := v.Issue(7, "dave", "customer", "CUSTOMER")
	require.NoError(t, err)

	c1, err := v.Verify(context.Background(), "  "+tok+" ")
	require.NoError(t, err)
	assert.Equal(t, int64(7), c1.UserID)
	assert.Equal(t, 1, *sets)

	c2, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, c1.Username, c2.Username)
	assert.Equal(t, 1, *sets, "second verify served from cache")

	require.NoError(t, cache.Invalidate(context.Background(), tok))
	empty := true
	data.Range(func(_, _ any) bool { empty = false; return false })
	assert.True(t, empty)
}

func TestVerifierRejectsBadTokens(t *testing.T) {
	v := NewVerifier(testJWT(), nil, nil)

	_, err := v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyToken)

	_, err = v.Verify(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := GenerateToken(&config.JWTConfig{Secret: "other"}, 1, "x", "customer", "CUSTOMER")
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), other)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCorruptCacheEntryFallsBackToParse(t *testing.T) {
	client, data, _ := stubRedis()
	cache := NewTokenCache(client, nil, time.Minute)
	v := NewVerifier(testJWT(), cache, nil)
	tok, err := v.Issue(3, "erin", "admin", "ADMIN")
	require.NoError(t, err)

	data.Store(cache.key(tok), "{broken")
	claims, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
}
