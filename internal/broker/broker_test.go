package broker

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shopfront/internal/auth"
	"github.com/example/shopfront/internal/config"
	"github.com/example/shopfront/internal/datamodels/chat"
	"github.com/example/shopfront/internal/datamodels/identity"
	"github.com/example/shopfront/internal/livechat"
	"github.com/example/shopfront/internal/repository/memory"
	"github.com/example/shopfront/internal/service"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

type fixture struct {
	url     string
	users   *service.UserService
	chat    *service.ChatService
	monitor *service.Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	verifier := auth.NewVerifier(&config.JWTConfig{Secret: "broker-test", TTL: time.Hour}, nil, nil)
	mon := service.NewMonitor()
	f := &fixture{
		users:   service.NewUserService(memory.NewUserRepository(), verifier, mon, nil),
		chat:    service.NewChatService(memory.NewChatRepository(), nil, mon, "1", nil),
		monitor: mon,
	}
	b, err := New(Options{Verifier: verifier, Chat: f.chat, Monitor: mon})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(func() {
		_ = b.Close()
		srv.Close()
	})
	f.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return f
}

func (f *fixture) login(t *testing.T, role identity.Role, name string) *service.LoginResult {
	t.Helper()
	ctx := context.Background()
	_, err := f.users.Register(ctx, role, name, "secret1", "")
	require.NoError(t, err)
	res, err := f.users.Login(ctx, role, name, "secret1")
	require.NoError(t, err)
	return res
}

func (f *fixture) transport(id, token string) *livechat.StompTransport {
	return &livechat.StompTransport{
		URL: f.url,
		Credentials: func() (string, string, bool) {
			return id, token, true
		},
	}
}

func TestCustomerMessageIsPersistedAndEchoed(t *testing.T) {
	f := newFixture(t)
	carol := f.login(t, identity.RoleCustomer, "carol")

	ch := livechat.NewChannel(f.transport(carol.ID, carol.Token), 50*time.Millisecond, nil)
	conv := livechat.NewConversation(0)
	ch.Open(carol.ID, conv)
	t.Cleanup(func() { _ = ch.Close() })
	require.Eventually(t, ch.Connected, waitFor, tick)

	local := chat.Message{
		ID:         chat.LocalIDPrefix + "1",
		SenderID:   carol.ID,
		SenderName: carol.Name,
		Content:    "where is my order?",
		CreatedAt:  time.Now(),
	}
	conv.AppendLocal(local)
	require.NoError(t, ch.Send(local))

	require.Eventually(t, func() bool { return conv.Pending() == 0 }, waitFor, tick)
	got := conv.Messages()
	require.Len(t, got, 1)
	assert.False(t, got[0].IsLocal())
	assert.Equal(t, carol.ID, got[0].CustomerID)
	assert.Equal(t, "1", got[0].RecipientID)

	history, err := f.chat.History(context.Background(), service.Actor{ID: carol.ID}, carol.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, got[0].ID, history[0].ID)
}

func TestAdminReplyReachesCustomer(t *testing.T) {
	f := newFixture(t)
	carol := f.login(t, identity.RoleCustomer, "carol")
	root := f.login(t, identity.RoleAdmin, "root")

	customer := livechat.NewChannel(f.transport(carol.ID, carol.Token), 50*time.Millisecond, nil)
	conv := livechat.NewConversation(0)
	customer.Open(carol.ID, conv)
	t.Cleanup(func() { _ = customer.Close() })

	support := livechat.NewChannel(f.transport(root.ID, root.Token), 50*time.Millisecond, nil)
	supportView := livechat.NewConversation(0)
	support.Open(carol.ID, supportView)
	t.Cleanup(func() { _ = support.Close() })

	require.Eventually(t, customer.Connected, waitFor, tick)
	require.Eventually(t, support.Connected, waitFor, tick)

	require.NoError(t, support.Send(chat.Message{RecipientID: carol.ID, Content: "hello from support"}))

	require.Eventually(t, func() bool { return conv.Len() == 1 && supportView.Len() == 1 }, waitFor, tick)
	m := conv.Messages()[0]
	assert.Equal(t, root.ID, m.SenderID)
	assert.Equal(t, carol.ID, m.CustomerID)
}

func TestRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	carol := f.login(t, identity.RoleCustomer, "carol")

	_, err := f.transport(carol.ID, "forged").Connect(context.Background())
	assert.Error(t, err)

	// token 有效但 login 对不上
	_, err = f.transport("999", carol.Token).Connect(context.Background())
	assert.Error(t, err)
}

func TestCustomerCannotSubscribeToOthers(t *testing.T) {
	f := newFixture(t)
	carol := f.login(t, identity.RoleCustomer, "carol")

	conn, err := f.transport(carol.ID, carol.Token).Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	frames, err := conn.Subscribe(chat.Topic("424242"))
	require.NoError(t, err)
	select {
	case _, ok := <-frames:
		assert.False(t, ok, "connection should be dropped")
	case <-time.After(waitFor):
		t.Fatal("forbidden subscription was not rejected")
	}
}
