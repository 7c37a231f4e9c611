package authsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/example/shopfront/internal/datamodels/identity"
	"github.com/example/shopfront/internal/gateway"
	"github.com/example/shopfront/internal/logging"
	"github.com/example/shopfront/internal/session"
	"github.com/example/shopfront/internal/shopapi"
)

// State 会话状态机：Uninitialized → Loading → {Authenticated, Anonymous}
type State int

const (
	Uninitialized State = iota
	Loading
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// LoginError 带角色的登录失败
type LoginError struct {
	Role identity.Role
	Err  error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("%s login failed: %v", e.Role, e.Err)
}

func (e *LoginError) Unwrap() error { return e.Err }

// Authenticator 按角色调用后端登录接口
type Authenticator interface {
	Login(ctx context.Context, role identity.Role, creds shopapi.Credentials) (*shopapi.LoginResult, error)
}

// Closer 登出时需要一起关闭的资源（聊天通道）
type Closer interface {
	Close() error
}

// Snapshot 订阅者收到的状态快照
type Snapshot struct {
	State    State
	Identity *identity.Identity
}

// Manager 登录态管理：唯一可以写会话存储的地方（401 清理除外）
type Manager struct {
	store       session.Store
	auth        Authenticator
	defaultRole identity.Role
	logger      *zap.Logger

	mu          sync.RWMutex
	state       State
	current     *identity.Identity
	closers     map[int]Closer
	nextCloser  int
	subscribers map[int]func(Snapshot)
	nextSub     int

	inflight atomic.Int32
}

// New 创建管理器，defaultRole 用于无身份时的首屏跳转
func New(store session.Store, auth Authenticator, defaultRole identity.Role, logger *zap.Logger) *Manager {
	if !defaultRole.Valid() {
		defaultRole = identity.RoleCustomer
	}
	return &Manager{
		store:       store,
		auth:        auth,
		defaultRole: defaultRole,
		logger:      logging.OrNop(logger).Named("authsession"),
		closers:     make(map[int]Closer),
		subscribers: make(map[int]func(Snapshot)),
	}
}

// Init 启动时从本地存储恢复身份
func (m *Manager) Init() Snapshot {
	m.set(Loading, nil)
	if id, ok := m.store.Load(); ok {
		m.logger.Debug("session restored", zap.String("role", string(id.Role)), zap.String("id", id.ID))
		return m.set(Authenticated, id)
	}
	return m.set(Anonymous, nil)
}

// BindGateway 订阅网关的 401 事件；网关已清空存储，这里只同步内存状态
func (m *Manager) BindGateway(gw *gateway.Gateway) func() {
	return gw.OnUnauthorized(func(ev gateway.UnauthorizedEvent) {
		m.logger.Info("session invalidated by backend", zap.String("path", ev.Path))
		m.closeChannels()
		m.set(Anonymous, nil)
	})
}

// Login 调用对应角色的登录接口。失败时状态不变。
func (m *Manager) Login(ctx context.Context, creds shopapi.Credentials, role identity.Role) (*identity.Identity, error) {
	if !role.Valid() {
		return nil, &LoginError{Role: role, Err: errors.New("unknown role")}
	}
	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	res, err := m.auth.Login(ctx, role, creds)
	if err != nil {
		return nil, &LoginError{Role: role, Err: err}
	}
	if res.Token == "" {
		return nil, &LoginError{Role: role, Err: errors.New("empty token in login response")}
	}

	id := &identity.Identity{
		ID:        res.ID,
		Name:      res.Name,
		Role:      role,
		ActorKind: res.UserType,
		Token:     res.Token,
	}
	// 角色以调用的登录接口为准，后端返回的角色不一致时拒绝
	if res.Role != "" {
		if r, ok := identity.ParseRole(res.Role); !ok || r != role {
			return nil, &LoginError{Role: role, Err: fmt.Errorf("login response role %q does not match", res.Role)}
		}
	}
	if err := m.store.Save(id); err != nil {
		return nil, &LoginError{Role: role, Err: fmt.Errorf("persist session: %w", err)}
	}
	m.set(Authenticated, id)
	m.logger.Info("logged in", zap.String("role", string(id.Role)), zap.String("id", id.ID))
	return id, nil
}

// Logout 关闭聊天通道、清空存储、回到匿名态
func (m *Manager) Logout() error {
	m.closeChannels()
	err := m.store.Clear()
	m.set(Anonymous, nil)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Attach 注册登出时需要关闭的通道，返回取消注册函数
func (m *Manager) Attach(c Closer) func() {
	m.mu.Lock()
	id := m.nextCloser
	m.nextCloser++
	m.closers[id] = c
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.closers, id)
		m.mu.Unlock()
	}
}

// Subscribe 订阅身份变化，返回取消函数
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Current 当前身份，匿名时为 nil
func (m *Manager) Current() *identity.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Busy 是否有登录请求在途，界面据此禁用重复提交
func (m *Manager) Busy() bool {
	return m.inflight.Load() > 0
}

// EntryRoute 首屏跳转：已登录去角色首页，否则去默认角色的登录页
func (m *Manager) EntryRoute() string {
	if id := m.Current(); id != nil {
		return id.Role.HomeRoute()
	}
	return m.defaultRole.LoginRoute()
}

func (m *Manager) closeChannels() {
	m.mu.RLock()
	closers := make([]Closer, 0, len(m.closers))
	for _, c := range m.closers {
		closers = append(closers, c)
	}
	m.mu.RUnlock()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			m.logger.Warn("close channel on logout failed", zap.Error(err))
		}
	}
}

func (m *Manager) set(state State, id *identity.Identity) Snapshot {
	m.mu.Lock()
	m.state = state
	m.current = id
	subs := make([]func(Snapshot), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	snap := Snapshot{State: state}
	if id != nil {
		cp := *id
		snap.Identity = &cp
	}
	for _, fn := range subs {
		fn(snap)
	}
	return snap
}
