package livechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/datamodels/chat"
	"github.com/example/shopfront/internal/logging"
)

// DefaultReconnectDelay 断线后固定间隔重连
const DefaultReconnectDelay = 5 * time.Second

// State 通道连接状态
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var errConnectionLost = errors.New("chat connection lost")

// Transport 建立到聊天后端的连接
type Transport interface {
	Connect(ctx context.Context) (Conn, error)
}

// Conn 一条已建立的发布/订阅连接
type Conn interface {
	// Subscribe 订阅目的地，连接断开时返回的 channel 被关闭
	Subscribe(destination string) (<-chan []byte, error)
	Publish(destination string, body []byte) error
	Close() error
}

// Sink 接收推送消息的一方（通常是 Conversation）
type Sink interface {
	Receive(m chat.Message) bool
}

// Channel 聊天连接管理：每个窗口实例最多一条活动连接，断线后固定间隔无限重连，直到 Close。
type Channel struct {
	transport Transport
	delay     time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	state  State
	conn   Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func NewChannel(transport Transport, reconnectDelay time.Duration, logger *zap.Logger) *Channel {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &Channel{
		transport: transport,
		delay:     reconnectDelay,
		logger:    logging.OrNop(logger).Named("livechat"),
	}
}

// Open 订阅顾客会话。已有连接时什么也不做。
func (c *Channel) Open(customerID string, sink Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	c.state = Connecting
	go c.run(ctx, customerID, sink, done)
}

// Close 关闭并丢弃连接，可重复调用
func (c *Channel) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	c.mu.Lock()
	// 等待期间可能已经重新 Open，此时不能覆盖新连接的状态
	if c.cancel == nil {
		c.state = Disconnected
		c.conn = nil
	}
	c.mu.Unlock()
	return nil
}

// Send 仅在已连接时发送，未连接时静默丢弃。发送前清除消息 ID，最终 ID 以服务端为准。
func (c *Channel) Send(m chat.Message) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != Connected || conn == nil {
		c.logger.Debug("not connected, message dropped")
		return nil
	}
	m.ID = ""
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	if err := conn.Publish(chat.SendDestination, body); err != nil {
		return fmt.Errorf("send chat message: %w", err)
	}
	return nil
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Connected() bool {
	return c.State() == Connected
}

func (c *Channel) run(ctx context.Context, customerID string, sink Sink, done chan struct{}) {
	defer close(done)
	policy := backoff.WithContext(backoff.NewConstantBackOff(c.delay), ctx)
	err := backoff.RetryNotify(func() error {
		return c.serve(ctx, customerID, sink, done)
	}, policy, func(err error, wait time.Duration) {
		c.logger.Warn("chat channel unavailable, reconnecting",
			zap.String("customer", customerID), zap.Duration("in", wait), zap.Error(err))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("chat channel stopped", zap.Error(err))
	}
}

// serve 建立一次连接并持续分发消息，直到连接断开或被关闭。
// done 标识本轮运行，只有仍是当前运行时才更新状态。
func (c *Channel) serve(ctx context.Context, customerID string, sink Sink, done chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return backoff.Permanent(err)
	}
	c.setState(done, Connecting, nil)

	conn, err := c.transport.Connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	defer conn.Close()

	frames, err := conn.Subscribe(chat.Topic(customerID))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", chat.Topic(customerID), err)
	}
	c.setState(done, Connected, conn)
	defer c.setState(done, Connecting, nil)
	c.logger.Info("chat channel connected", zap.String("customer", customerID))

	for {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		case body, ok := <-frames:
			if !ok {
				if ctx.Err() != nil {
					return backoff.Permanent(ctx.Err())
				}
				return errConnectionLost
			}
			var m chat.Message
			if err := json.Unmarshal(body, &m); err != nil {
				c.logger.Warn("discarding malformed chat frame", zap.Error(err))
				continue
			}
			sink.Receive(m)
		}
	}
}

func (c *Channel) setState(done chan struct{}, s State, conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Close 之后或已被新的 Open 取代
	if c.done != done {
		return
	}
	c.state = s
	c.conn = conn
}
