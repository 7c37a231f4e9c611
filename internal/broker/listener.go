package broker

import (
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/auth"
	"github.com/example/shopfront/internal/infra/wsconn"
	"github.com/example/shopfront/internal/logging"
)

type wsAddr struct{}

func (wsAddr) Network() string { return "websocket" }
func (wsAddr) String() string  { return "/ws" }

// Listener 把 HTTP 升级来的 websocket 连接交给 STOMP 服务端的 Accept。
// 外部连接都要经过 guard；进程内的转发器走 Pipe。
type Listener struct {
	upgrader websocket.Upgrader
	verifier *auth.Verifier
	logger   *zap.Logger

	conns     chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

var _ net.Listener = (*Listener)(nil)

func NewListener(verifier *auth.Verifier, logger *zap.Logger) *Listener {
	return &Listener{
		upgrader: websocket.Upgrader{
			Subprotocols:    wsconn.Subprotocols,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		verifier: verifier,
		logger:   logging.OrNop(logger).Named("ws"),
		conns:    make(chan net.Conn),
		closed:   make(chan struct{}),
	}
}

// ServeHTTP 处理 /ws 升级请求
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.closed:
		http.Error(w, "broker closed", http.StatusServiceUnavailable)
		return
	default:
	}
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := wsconn.New(ws)
	inner, outer := net.Pipe()
	if !l.offer(inner) {
		_ = client.Close()
		_ = outer.Close()
		return
	}
	g := &guard{client: client, upstream: outer, verifier: l.verifier, logger: l.logger}
	go g.run()
}

// Pipe 进程内连接，不经过 guard
func (l *Listener) Pipe() (net.Conn, error) {
	inner, outer := net.Pipe()
	if !l.offer(inner) {
		_ = outer.Close()
		return nil, net.ErrClosed
	}
	return outer, nil
}

func (l *Listener) offer(c net.Conn) bool {
	select {
	case l.conns <- c:
		return true
	case <-l.closed:
		_ = c.Close()
		return false
	}
}

func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *Listener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *Listener) Addr() net.Addr { return wsAddr{} }
