package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/auth"
	"github.com/example/shopfront/internal/datamodels/chat"
)

// 转发器只信任这几个由 guard 写入的头
const (
	HeaderSenderID   = "x-sender-id"
	HeaderSenderName = "x-sender-name"
	HeaderSenderRole = "x-sender-role"
)

const (
	cmdConnect   = "CONNECT"
	cmdStomp     = "STOMP"
	cmdSend      = "SEND"
	cmdSubscribe = "SUBSCRIBE"

	hdrDestination = "destination"
	hdrLogin       = "login"
	hdrPasscode    = "passcode"
)

const verifyTimeout = 5 * time.Second

var errNotConnected = errors.New("frame before CONNECT")

// guard 逐帧检查客户端发往服务端的 STOMP 帧：
// 顾客只能订阅自己的会话，管理员可以订阅任意会话；
// SEND 只能发往聊天入口，并盖上 CONNECT 时验证过的身份。
type guard struct {
	client   net.Conn
	upstream net.Conn
	verifier *auth.Verifier
	logger   *zap.Logger

	claims *auth.Claims
}

func (g *guard) run() {
	defer g.client.Close()
	defer g.upstream.Close()

	go func() {
		_, _ = io.Copy(g.client, g.upstream)
		_ = g.client.Close()
		_ = g.upstream.Close()
	}()

	r := frame.NewReader(g.client)
	w := frame.NewWriter(g.upstream)
	for {
		f, err := r.Read()
		if err != nil {
			return
		}
		// nil 为心跳
		if f != nil {
			if err := g.check(f); err != nil {
				g.logger.Warn("stomp frame rejected", zap.String("command", f.Command), zap.Error(err))
				return
			}
		}
		if err := w.Write(f); err != nil {
			return
		}
	}
}

func (g *guard) check(f *frame.Frame) error {
	switch f.Command {
	case cmdConnect, cmdStomp:
		if g.claims != nil {
			return errors.New("duplicate CONNECT")
		}
		// 凭据无效时原样放行，由服务端鉴权回 ERROR 帧
		ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
		defer cancel()
		claims, err := g.verifier.Verify(ctx, f.Header.Get(hdrPasscode))
		if err == nil && f.Header.Get(hdrLogin) == claims.ID() {
			g.claims = claims
		}
		return nil
	}
	if g.claims == nil {
		return errNotConnected
	}
	switch f.Command {
	case cmdSubscribe:
		dest := f.Header.Get(hdrDestination)
		if !g.maySubscribe(dest) {
			return fmt.Errorf("subscribe to %q not allowed", dest)
		}
	case cmdSend:
		dest := f.Header.Get(hdrDestination)
		if dest != chat.SendDestination {
			return fmt.Errorf("send to %q not allowed", dest)
		}
		f.Header.Del(HeaderSenderID)
		f.Header.Del(HeaderSenderName)
		f.Header.Del(HeaderSenderRole)
		f.Header.Set(HeaderSenderID, g.claims.ID())
		f.Header.Set(HeaderSenderName, g.claims.Username)
		f.Header.Set(HeaderSenderRole, g.claims.Role)
	}
	return nil
}

func (g *guard) maySubscribe(dest string) bool {
	if dest == chat.Topic(g.claims.ID()) {
		return true
	}
	prefix := chat.Topic("")
	return g.claims.IsAdmin() && strings.HasPrefix(dest, prefix) && len(dest) > len(prefix)
}
