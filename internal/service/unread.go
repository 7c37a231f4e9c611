package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	radix "github.com/mediocregopher/radix/v3"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/datamodels/chat"
	"github.com/example/shopfront/internal/infra/mq"
	"github.com/example/shopfront/internal/logging"
)

const (
	unreadKey = "shopfront:chat:unread:%s" // customerID
	unreadTTL = 7 * 24 * time.Hour
)

// UnreadTracker 统计顾客发来、客服尚未回复的消息数。
// 数据来自 MQ 上的聊天事件：顾客发言 +1，客服回复清零。
type UnreadTracker struct {
	redis   radix.Client
	monitor *Monitor
	logger  *zap.Logger
}

func NewUnreadTracker(redis radix.Client, monitor *Monitor, logger *zap.Logger) *UnreadTracker {
	if monitor == nil {
		monitor = NewMonitor()
	}
	return &UnreadTracker{redis: redis, monitor: monitor, logger: logging.OrNop(logger).Named("unread")}
}

// Handle 消费一条聊天事件，签名与 mq.Handler 一致
func (u *UnreadTracker) Handle(ctx context.Context, routingKey string, body []byte) error {
	var m chat.Message
	if err := json.Unmarshal(body, &m); err != nil {
		return fmt.Errorf("decode chat event: %v: %w", err, mq.ErrDiscard)
	}
	if m.CustomerID == "" {
		return fmt.Errorf("chat event %q without customer: %w", routingKey, mq.ErrDiscard)
	}
	key := fmt.Sprintf(unreadKey, m.CustomerID)

	if m.SenderID != m.CustomerID {
		if err := u.redis.Do(radix.Cmd(nil, "DEL", key)); err != nil {
			u.monitor.RecordRedisError()
			return err
		}
		return nil
	}

	var n int64
	if err := u.redis.Do(radix.Cmd(&n, "INCR", key)); err != nil {
		u.monitor.RecordRedisError()
		return err
	}
	// 首条未读时设置过期，避免长期占用 Redis
	if n == 1 {
		if err := u.redis.Do(radix.FlatCmd(nil, "EXPIRE", key, int64(unreadTTL/time.Second))); err != nil {
			u.logger.Warn("set unread expiry failed", zap.String("key", key), zap.Error(err))
		}
	}
	u.logger.Debug("unread", zap.String("customer", m.CustomerID), zap.Int64("count", n))
	return nil
}

// Unread 顾客会话的未读数，仅管理员可查
func (u *UnreadTracker) Unread(ctx context.Context, actor Actor, customerID string) (int64, error) {
	if !actor.Admin {
		return 0, ErrForbidden
	}
	var n int64
	mn := radix.MaybeNil{Rcv: &n}
	if err := u.redis.Do(radix.Cmd(&mn, "GET", fmt.Sprintf(unreadKey, customerID))); err != nil {
		u.monitor.RecordRedisError()
		return 0, err
	}
	return n, nil
}
