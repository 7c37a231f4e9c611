package shopapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shopfront/internal/datamodels/identity"
	"github.com/example/shopfront/internal/gateway"
	"github.com/example/shopfront/internal/session"
)

type hit struct {
	method, path, auth string
	body               map[string]any
}

func newAPI(t *testing.T, respond func(path string) string) (*gateway.Gateway, *session.MemoryStore, func() []hit) {
	t.Helper()
	var mu sync.Mutex
	var hits []hit
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := hit{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&h.body)
		mu.Lock()
		hits = append(hits, h)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respond(r.URL.Path)))
	}))
	t.Cleanup(srv.Close)

	store := session.NewMemoryStore()
	gw := gateway.New(store, gateway.Options{BaseURL: srv.URL, Timeout: time.Second})
	return gw, store, func() []hit {
		mu.Lock()
		defer mu.Unlock()
		return append([]hit(nil), hits...)
	}
}

func TestLoginUsesRoleSpecificEndpoint(t *testing.T) {
	gw, store, hits := newAPI(t, func(string) string {
		return `{"code":0,"data":{"token":"jwt","id":"1","name":"Root","role":"admin","userType":"ADMIN"}}`
	})
	require.NoError(t, store.Save(&identity.Identity{ID: "9", Role: identity.RoleCustomer, Token: "old"}))
	api := NewAuthAPI(gw)

	res, err := api.Login(context.Background(), identity.RoleAdmin, Credentials{Username: "root", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "jwt", res.Token)

	_, err = api.Login(context.Background(), identity.RoleCustomer, Credentials{Username: "c"})
	require.NoError(t, err)

	got := hits()
	require.Len(t, got, 2)
	assert.Equal(t, "/auth/admin/login", got[0].path)
	assert.Equal(t, "root", got[0].body["username"])
	assert.Empty(t, got[0].auth, "login is public and must not carry the stored token")
	assert.Equal(t, "/auth/customer/login", got[1].path)

	_, err = api.Login(context.Background(), identity.Role("root"), Credentials{})
	assert.Error(t, err)
}

func TestRegisterEndpoints(t *testing.T) {
	gw, _, hits := newAPI(t, func(string) string {
		return `{"code":0,"data":{"id":5,"username":"bob","role":"customer"}}`
	})
	api := NewAuthAPI(gw)

	acc, err := api.Register(context.Background(), identity.RoleCustomer, Registration{Username: "bob", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), acc.ID)
	_, err = api.Register(context.Background(), identity.RoleAdmin, Registration{Username: "ann", Password: "pw"})
	require.NoError(t, err)

	got := hits()
	assert.Equal(t, "/auth/customer/register", got[0].path)
	assert.Equal(t, "/auth/admin/register", got[1].path)
}

func TestHistoryAndCart(t *testing.T) {
	gw, store, hits := newAPI(t, func(path string) string {
		switch path {
		case "/api/chat/history/C1":
			return `{"code":0,"data":[{"id":"m1","senderId":"C1","content":"hi","timestamp":"2024-05-01T10:00:00Z"}]}`
		case "/api/customer/cart/getCustomer/C1":
			return `{"code":0,"data":{"id":42,"customerId":"C1"}}`
		case "/api/customer/cart/42/item-count":
			return `{"code":0,"data":{"count":3}}`
		case "/api/customer/cart/42/items":
			return `{"code":0,"data":{"id":1,"cartId":42,"productId":7,"quantity":2}}`
		}
		return `{"code":404,"msg":"unknown"}`
	})
	require.NoError(t, store.Save(&identity.Identity{ID: "C1", Role: identity.RoleCustomer, Token: "tok"}))
	ctx := context.Background()

	msgs, err := NewChatAPI(gw).History(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)

	carts := NewCartAPI(gw)
	c, err := carts.ByCustomer(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.ID)

	n, err := carts.ItemCount(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	item, err := carts.AddItem(ctx, c.ID, 7, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), item.Quantity)

	for _, h := range hits() {
		assert.Equal(t, "Bearer tok", h.auth, h.path)
	}
}
