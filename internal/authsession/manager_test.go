package authsession

import (
	"context"
	"errors"
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
	"github.com/example/shopfront/internal/shopapi"
)

type fakeAuth struct {
	mu    sync.Mutex
	calls []identity.Role
	res   *shopapi.LoginResult
	err   error
	block chan struct{}
}

func (f *fakeAuth) Login(ctx context.Context, role identity.Role, creds shopapi.Credentials) (*shopapi.LoginResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, role)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.res, f.err
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

func TestInitRestoresOrStaysAnonymous(t *testing.T) {
	store := session.NewMemoryStore()
	m := New(store, &fakeAuth{}, identity.RoleAdmin, nil)
	assert.Equal(t, Uninitialized, m.State())

	var seen []State
	m.Subscribe(func(s Snapshot) { seen = append(seen, s.State) })

	snap := m.Init()
	assert.Equal(t, Anonymous, snap.State)
	assert.Equal(t, []State{Loading, Anonymous}, seen)
	assert.Equal(t, "/admin/login", m.EntryRoute())

	require.NoError(t, store.Save(&identity.Identity{ID: "C1", Name: "Carol", Role: identity.RoleCustomer, Token: "t"}))
	snap = m.Init()
	assert.Equal(t, Authenticated, snap.State)
	assert.Equal(t, "C1", m.Current().ID)
	assert.Equal(t, "/", m.EntryRoute())
}

func TestLoginAdminPersistsIdentity(t *testing.T) {
	store := session.NewMemoryStore()
	auth := &fakeAuth{res: &shopapi.LoginResult{Token: "jwt", ID: "1", Name: "Root", Role: "admin", UserType: "ADMIN"}}
	m := New(store, auth, identity.RoleCustomer, nil)
	m.Init()

	id, err := m.Login(context.Background(), shopapi.Credentials{Username: "root", Password: "pw"}, identity.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleAdmin, id.Role)
	assert.NotEmpty(t, id.Token)
	assert.Equal(t, Authenticated, m.State())
	assert.Equal(t, []identity.Role{identity.RoleAdmin}, auth.calls)

	saved, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, "jwt", saved.Token)
	assert.Equal(t, identity.RoleAdmin, saved.Role)
	assert.Equal(t, "ADMIN", saved.ActorKind)
}

func TestLoginFailureKeepsPreviousState(t *testing.T) {
	store := session.NewMemoryStore()
	prev := &identity.Identity{ID: "C1", Name: "Carol", Role: identity.RoleCustomer, Token: "old"}
	require.NoError(t, store.Save(prev))

	auth := &fakeAuth{err: errors.New("bad credentials")}
	m := New(store, auth, identity.RoleCustomer, nil)
	m.Init()

	_, err := m.Login(context.Background(), shopapi.Credentials{Username: "x"}, identity.RoleAdmin)
	var lerr *LoginError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, identity.RoleAdmin, lerr.Role)
	assert.Contains(t, err.Error(), "admin login failed")

	assert.Equal(t, Authenticated, m.State())
	assert.Equal(t, "old", m.Current().Token)
	saved, _ := store.Load()
	assert.Equal(t, "old", saved.Token)

	_, err = m.Login(context.Background(), shopapi.Credentials{}, identity.Role("root"))
	assert.Error(t, err)
}

func TestLoginRejectsRoleFromOtherSurface(t *testing.T) {
	store := session.NewMemoryStore()
	auth := &fakeAuth{res: &shopapi.LoginResult{Token: "jwt", ID: "1", Role: "admin", UserType: "ADMIN"}}
	m := New(store, auth, identity.RoleCustomer, nil)
	m.Init()

	_, err := m.Login(context.Background(), shopapi.Credentials{Username: "root"}, identity.RoleCustomer)
	var lerr *LoginError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, identity.RoleCustomer, lerr.Role)
	assert.Equal(t, Anonymous, m.State())
	_, ok := store.Load()
	assert.False(t, ok)

	// 未返回角色时沿用调用的接口
	auth.res = &shopapi.LoginResult{Token: "jwt", ID: "C1", UserType: "CUSTOMER"}
	id, err := m.Login(context.Background(), shopapi.Credentials{Username: "carol"}, identity.RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleCustomer, id.Role)
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	m := New(session.NewMemoryStore(), &fakeAuth{res: &shopapi.LoginResult{ID: "1"}}, identity.RoleCustomer, nil)
	m.Init()

	_, err := m.Login(context.Background(), shopapi.Credentials{}, identity.RoleCustomer)
	assert.Error(t, err)
	assert.Equal(t, Anonymous, m.State())
}

func TestBusyWhileLoginInFlight(t *testing.T) {
	auth := &fakeAuth{res: &shopapi.LoginResult{Token: "t", ID: "C1"}, block: make(chan struct{})}
	m := New(session.NewMemoryStore(), auth, identity.RoleCustomer, nil)
	m.Init()

	done := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), shopapi.Credentials{}, identity.RoleCustomer)
		done <- err
	}()

	require.Eventually(t, m.Busy, time.Second, 5*time.Millisecond)
	close(auth.block)
	require.NoError(t, <-done)
	assert.False(t, m.Busy())
}

func TestLogoutClosesChannelsAndClearsStore(t *testing.T) {
	store := session.NewMemoryStore()
	m := New(store, &fakeAuth{res: &shopapi.LoginResult{Token: "t", ID: "C1", Role: "customer"}}, identity.RoleCustomer, nil)
	m.Init()
	_, err := m.Login(context.Background(), shopapi.Credentials{}, identity.RoleCustomer)
	require.NoError(t, err)

	closed := 0
	detached := closerFunc(func() error { closed += 100; return nil })
	m.Attach(closerFunc(func() error { closed++; return nil }))
	detach := m.Attach(detached)
	assert.NotPanics(t, detach)

	require.NoError(t, m.Logout())
	assert.Equal(t, 1, closed)
	assert.Equal(t, Anonymous, m.State())
	assert.Nil(t, m.Current())
	_, ok := store.Load()
	assert.False(t, ok)
}

func TestGatewayUnauthorizedMovesToAnonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":401,"msg":"expired"}`))
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	require.NoError(t, store.Save(&identity.Identity{ID: "C1", Role: identity.RoleCustomer, Token: "t"}))
	gw := gateway.New(store, gateway.Options{BaseURL: srv.URL, Timeout: time.Second})

	m := New(store, shopapi.NewAuthAPI(gw), identity.RoleCustomer, nil)
	unbind := m.BindGateway(gw)
	defer unbind()
	m.Init()
	require.Equal(t, Authenticated, m.State())

	closed := false
	m.Attach(closerFunc(func() error { closed = true; return nil }))

	_, err := shopapi.NewCartAPI(gw).ByCustomer(context.Background(), "C1")
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
	assert.Equal(t, Anonymous, m.State())
	assert.True(t, closed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestFailedLoginWithExistingSessionKeepsIt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":401,"msg":"invalid username or password"}`))
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	require.NoError(t, store.Save(&identity.Identity{ID: "C1", Role: identity.RoleCustomer, Token: "t"}))
	gw := gateway.New(store, gateway.Options{BaseURL: srv.URL, Timeout: time.Second})
	unauthorized := 0
	gw.OnUnauthorized(func(gateway.UnauthorizedEvent) { unauthorized++ })

	m := New(store, shopapi.NewAuthAPI(gw), identity.RoleCustomer, nil)
	defer m.BindGateway(gw)()
	m.Init()

	closed := false
	m.Attach(closerFunc(func() error { closed = true; return nil }))

	_, err := m.Login(context.Background(), shopapi.Credentials{Username: "carol", Password: "wrong"}, identity.RoleCustomer)
	require.ErrorIs(t, err, gateway.ErrUnauthorized)

	assert.Equal(t, Authenticated, m.State())
	assert.Equal(t, "t", m.Current().Token)
	_, ok := store.Load()
	assert.True(t, ok)
	assert.Zero(t, unauthorized)
	assert.False(t, closed)
}
