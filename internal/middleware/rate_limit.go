package middleware

import (
	"sync"
	"time"

	"github.com/kataras/iris/v12"
)

// TokenBucket 令牌桶
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // 每秒补充的令牌数
	lastRefill time.Time
}

func NewTokenBucket(capacity, refillRate int64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastRefill: now,
	}
}

// Allow 按经过的时间补充令牌后尝试取一个
func (tb *TokenBucket) Allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill(now)
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) refill(now time.Time) {
	if elapsed := now.Sub(tb.lastRefill).Seconds(); elapsed > 0 {
		tb.tokens += elapsed * tb.refillRate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

func (tb *TokenBucket) full(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill(now)
	return tb.tokens >= tb.capacity
}

// sweepThreshold 超过这么多个 key 时清掉已经回满的桶
const sweepThreshold = 4096

// KeyedLimiter 每个 key（客户端 IP）一个令牌桶
type KeyedLimiter struct {
	capacity   int64
	refillRate int64
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

func NewKeyedLimiter(capacity, refillRate int64) *KeyedLimiter {
	if capacity <= 0 {
		capacity = 10
	}
	if refillRate <= 0 {
		refillRate = 1
	}
	return &KeyedLimiter{
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
		buckets:    make(map[string]*TokenBucket),
	}
}

func (l *KeyedLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= sweepThreshold {
			for k, old := range l.buckets {
				if old.full(now) {
					delete(l.buckets, k)
				}
			}
		}
		b = NewTokenBucket(l.capacity, l.refillRate, now)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow(now)
}

// RateLimit 限流中间件，按客户端 IP 分桶
func RateLimit(l *KeyedLimiter) iris.Handler {
	return func(ctx iris.Context) {
		if !l.Allow(ctx.RemoteAddr()) {
			ctx.StopWithJSON(iris.StatusTooManyRequests, iris.Map{
				"code": iris.StatusTooManyRequests,
				"msg":  "too many requests, try again later",
			})
			return
		}
		ctx.Next()
	}
}
