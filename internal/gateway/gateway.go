package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/datamodels/identity"
	"github.com/example/shopfront/internal/logging"
	"github.com/example/shopfront/internal/session"
)

// UnauthorizedEvent 收到 401 后发出的信号，由应用外壳转换为跳转
type UnauthorizedEvent struct {
	// Role 清空会话之前本地保存的角色，读取失败时为空
	Role identity.Role
	// LoginRoute 应跳转的登录页，角色未知时回落到顾客登录页
	LoginRoute string
	// Path 触发 401 的请求路径
	Path string
}

// Options 网关配置
type Options struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
	// Transport 可选，测试时替换底层 RoundTripper
	Transport http.RoundTripper
}

// Gateway 所有后端请求的唯一出口：附加凭证、统一处理 401/403
type Gateway struct {
	client *resty.Client
	store  session.Store
	logger *zap.Logger

	mu        sync.RWMutex
	listeners []func(UnauthorizedEvent)
}

type publicKey struct{}

// Public 标记请求为公开接口（登录/注册）：不附加凭证，401 也不触发全局清理
func Public(ctx context.Context) context.Context {
	return context.WithValue(ctx, publicKey{}, true)
}

func isPublic(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(publicKey{}).(bool)
	return v
}

// New 创建网关
func New(store session.Store, opts Options) *Gateway {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	if opts.Transport != nil {
		client.SetTransport(opts.Transport)
	}

	g := &Gateway{
		client: client,
		store:  store,
		logger: logging.OrNop(opts.Logger).Named("gateway"),
	}
	client.OnBeforeRequest(g.attachCredential)
	client.OnAfterResponse(g.inspectResponse)
	return g
}

// OnUnauthorized 订阅 401 事件，返回取消订阅函数
func (g *Gateway) OnUnauthorized(fn func(UnauthorizedEvent)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
	idx := len(g.listeners) - 1
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.listeners[idx] = nil
	}
}

func (g *Gateway) attachCredential(_ *resty.Client, r *resty.Request) error {
	if isPublic(r.Context()) {
		return nil
	}
	id, ok := g.store.Load()
	if !ok {
		return nil
	}
	// resty 在用户钩子之后用 Token 覆盖 Authorization 头，这里直接设置 Token 保证覆盖已有值
	r.SetAuthScheme("Bearer")
	r.SetAuthToken(id.Token)
	return nil
}

func (g *Gateway) inspectResponse(_ *resty.Client, resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	req := resp.Request
	serr := &StatusError{
		Method:     req.Method,
		Path:       req.URL,
		StatusCode: resp.StatusCode(),
		Message:    messageOf(resp.Body()),
	}
	if resp.StatusCode() == http.StatusUnauthorized && !isPublic(req.Context()) {
		g.expire(req.URL)
	}
	return serr
}

// expire 先读角色再清空会话，保证跳转到正确的登录页
func (g *Gateway) expire(path string) {
	ev := UnauthorizedEvent{Path: path}
	if id, ok := g.store.Load(); ok {
		ev.Role = id.Role
	}
	ev.LoginRoute = ev.Role.LoginRoute()

	if err := g.store.Clear(); err != nil {
		g.logger.Error("clear session after 401 failed", zap.Error(err))
	}
	g.logger.Info("session expired", zap.String("path", path), zap.String("redirect", ev.LoginRoute))

	g.mu.RLock()
	listeners := make([]func(UnauthorizedEvent), 0, len(g.listeners))
	for _, fn := range g.listeners {
		if fn != nil {
			listeners = append(listeners, fn)
		}
	}
	g.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// envelope 后端统一响应格式 {"code":0,"msg":"","data":...}
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func messageOf(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Msg != "" {
		return env.Msg
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// Get 发起 GET 请求，pathParams 替换路径中的 {name}
func (g *Gateway) Get(ctx context.Context, path string, pathParams map[string]string, out any) error {
	return g.do(ctx, http.MethodGet, path, pathParams, nil, out)
}

// Post 发起 POST 请求，body 以 JSON 编码
func (g *Gateway) Post(ctx context.Context, path string, pathParams map[string]string, body, out any) error {
	return g.do(ctx, http.MethodPost, path, pathParams, body, out)
}

func (g *Gateway) do(ctx context.Context, method, path string, pathParams map[string]string, body, out any) error {
	req := g.client.R().SetContext(ctx)
	if len(pathParams) > 0 {
		req.SetPathParams(pathParams)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		var serr *StatusError
		if errors.As(err, &serr) {
			return serr
		}
		g.logger.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	if env.Code != 0 {
		return &APIError{Code: env.Code, Message: env.Msg}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}
