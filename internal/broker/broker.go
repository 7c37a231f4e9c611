// Package broker 后端的 STOMP 消息代理：go-stomp 服务端挂在 /ws 上，
// 进程内转发器消费聊天入口的消息，落库后推送到顾客会话主题。
package broker

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/server"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/auth"
	"github.com/example/shopfront/internal/datamodels/chat"
	"github.com/example/shopfront/internal/logging"
	"github.com/example/shopfront/internal/service"
)

const relayLogin = "shopfront-relay"

type Options struct {
	Verifier *auth.Verifier
	Chat     *service.ChatService
	Monitor  *service.Monitor
	// HeartBeat 为 0 时使用 go-stomp 默认值
	HeartBeat time.Duration
	Logger    *zap.Logger
}

type Broker struct {
	verifier *auth.Verifier
	chat     *service.ChatService
	monitor  *service.Monitor
	logger   *zap.Logger

	listener *Listener
	server   *server.Server
	secret   string

	mu     sync.Mutex
	relay  *stomp.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) (*Broker, error) {
	secret, err := randomSecret()
	if err != nil {
		return nil, fmt.Errorf("generate relay secret: %w", err)
	}
	monitor := opts.Monitor
	if monitor == nil {
		monitor = service.NewMonitor()
	}
	logger := logging.OrNop(opts.Logger).Named("broker")
	b := &Broker{
		verifier: opts.Verifier,
		chat:     opts.Chat,
		monitor:  monitor,
		logger:   logger,
		listener: NewListener(opts.Verifier, logger),
		secret:   secret,
	}
	b.server = &server.Server{
		Authenticator: b,
		HeartBeat:     opts.HeartBeat,
	}
	return b, nil
}

// Handler 挂到 /ws 路由
func (b *Broker) Handler() http.Handler {
	return b.listener
}

// Authenticate 转发器用随机口令登录，其他连接用 JWT 登录且 login 必须等于用户 ID
func (b *Broker) Authenticate(login, passcode string) bool {
	if login == relayLogin {
		return subtle.ConstantTimeCompare([]byte(passcode), []byte(b.secret)) == 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()
	claims, err := b.verifier.Verify(ctx, passcode)
	if err != nil {
		b.logger.Debug("stomp login rejected", zap.String("login", login), zap.Error(err))
		return false
	}
	return claims.ID() == login
}

// Start 启动 STOMP 服务端和转发器
func (b *Broker) Start(ctx context.Context) error {
	go func() {
		if err := b.server.Serve(b.listener); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Debug("stomp server stopped", zap.Error(err))
		}
	}()

	conn, err := b.listener.Pipe()
	if err != nil {
		return err
	}
	relay, err := stomp.Connect(conn, stomp.ConnOpt.Login(relayLogin, b.secret), stomp.ConnOpt.HeartBeat(0, 0))
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("relay connect: %w", err)
	}
	sub, err := relay.Subscribe(chat.SendDestination, stomp.AckAuto)
	if err != nil {
		_ = relay.MustDisconnect()
		return fmt.Errorf("relay subscribe: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.mu.Lock()
	b.relay, b.cancel, b.done = relay, cancel, done
	b.mu.Unlock()

	go b.runRelay(ctx, relay, sub, done)
	b.logger.Info("chat broker started")
	return nil
}

// Close 停止转发器并拒绝新的连接
func (b *Broker) Close() error {
	b.mu.Lock()
	relay, cancel, done := b.relay, b.cancel, b.done
	b.relay, b.cancel, b.done = nil, nil, nil
	b.mu.Unlock()

	_ = b.listener.Close()
	if cancel == nil {
		return nil
	}
	cancel()
	_ = relay.MustDisconnect()
	<-done
	return nil
}

func (b *Broker) runRelay(ctx context.Context, relay *stomp.Conn, sub *stomp.Subscription, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if msg.Err != nil {
				if ctx.Err() == nil {
					b.monitor.RecordRelayError()
					b.logger.Error("relay subscription failed", zap.Error(msg.Err))
				}
				return
			}
			b.relayMessage(ctx, relay, msg)
		}
	}
}

// relayMessage 落库并推送到顾客会话主题，单条失败不影响后续消息
func (b *Broker) relayMessage(ctx context.Context, relay *stomp.Conn, msg *stomp.Message) {
	actor := service.Actor{
		ID:    msg.Header.Get(HeaderSenderID),
		Name:  msg.Header.Get(HeaderSenderName),
		Admin: msg.Header.Get(HeaderSenderRole) == "admin",
	}
	if actor.ID == "" {
		b.monitor.RecordRelayError()
		b.logger.Warn("dropping chat message without sender")
		return
	}
	var in chat.Message
	if err := json.Unmarshal(msg.Body, &in); err != nil {
		b.monitor.RecordRelayError()
		b.logger.Warn("dropping malformed chat message", zap.String("sender", actor.ID), zap.Error(err))
		return
	}
	saved, err := b.chat.Send(ctx, actor, in)
	if err != nil {
		b.monitor.RecordRelayError()
		b.logger.Warn("chat message rejected", zap.String("sender", actor.ID), zap.Error(err))
		return
	}
	body, err := json.Marshal(saved)
	if err != nil {
		return
	}
	if err := relay.Send(chat.Topic(saved.CustomerID), "application/json", body); err != nil {
		b.monitor.RecordRelayError()
		b.logger.Error("push chat message failed", zap.String("id", saved.ID), zap.Error(err))
	}
}

func randomSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
