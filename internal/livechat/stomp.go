package livechat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/infra/wsconn"
	"github.com/example/shopfront/internal/logging"
)

const disconnectTimeout = 2 * time.Second

// CredentialsFunc 每次建连时取当前登录凭据，ok=false 表示以匿名身份连接
type CredentialsFunc func() (login, passcode string, ok bool)

// StompTransport 通过 websocket 承载 STOMP 的聊天传输
type StompTransport struct {
	URL         string
	Credentials CredentialsFunc
	// HeartBeat 为 0 时使用 go-stomp 的默认心跳
	HeartBeat time.Duration
	Dialer    *websocket.Dialer
	Logger    *zap.Logger
}

func (t *StompTransport) Connect(ctx context.Context) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	d := *dialer
	d.Subprotocols = wsconn.Subprotocols

	ws, _, err := d.DialContext(ctx, t.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.URL, err)
	}
	rw := wsconn.New(ws)

	// STOMP 握手本身不看 ctx，取消时直接断开底层连接
	stop := context.AfterFunc(ctx, func() { _ = rw.Close() })
	defer stop()

	opts := []func(*stomp.Conn) error{stomp.ConnOpt.Host("/")}
	if t.HeartBeat > 0 {
		opts = append(opts, stomp.ConnOpt.HeartBeat(t.HeartBeat, t.HeartBeat))
	}
	if t.Credentials != nil {
		if login, pass, ok := t.Credentials(); ok {
			opts = append(opts, stomp.ConnOpt.Login(login, pass))
		}
	}
	sc, err := stomp.Connect(rw, opts...)
	if err != nil {
		_ = rw.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	return &stompConn{
		conn:   sc,
		rw:     rw,
		closed: make(chan struct{}),
		logger: logging.OrNop(t.Logger).Named("stomp"),
	}, nil
}

type stompConn struct {
	conn   *stomp.Conn
	rw     *wsconn.Conn
	logger *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

func (c *stompConn) Subscribe(destination string) (<-chan []byte, error) {
	sub, err := c.conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, err
	}
	out := make(chan []byte)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(out)
		for {
			select {
			case <-c.closed:
				return
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				if msg.Err != nil {
					c.logger.Debug("subscription ended", zap.String("destination", destination), zap.Error(msg.Err))
					return
				}
				select {
				case out <- msg.Body:
				case <-c.closed:
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *stompConn) Publish(destination string, body []byte) error {
	return c.conn.Send(destination, "application/json", body)
}

// Close 先尝试正常 DISCONNECT，对端无响应时直接断开
func (c *stompConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		done := make(chan error, 1)
		go func() { done <- c.conn.Disconnect() }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, stomp.ErrAlreadyClosed) {
				c.logger.Debug("stomp disconnect", zap.Error(err))
			}
		case <-time.After(disconnectTimeout):
			_ = c.conn.MustDisconnect()
		}
		_ = c.rw.Close()
	})
	c.wg.Wait()
	return nil
}
