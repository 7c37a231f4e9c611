package livechat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/authsession"
	"github.com/example/shopfront/internal/datamodels/chat"
	"github.com/example/shopfront/internal/datamodels/identity"
	"github.com/example/shopfront/internal/logging"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNotSignedIn  = errors.New("chat requires a signed-in customer")
	ErrNotConnected = errors.New("chat is not connected")
	ErrUnmounted    = errors.New("chat widget is unmounted")
)

// HistoryFetcher 拉取会话历史
type HistoryFetcher interface {
	History(ctx context.Context, customerID string) ([]chat.Message, error)
}

// Sessions 窗口关心的登录态视图，由 authsession.Manager 实现
type Sessions interface {
	Current() *identity.Identity
	Subscribe(fn func(authsession.Snapshot)) func()
}

// Widget 聊天窗口：可见且有已登录顾客时保持连接，合并历史、乐观发送与服务端推送。
// Conversation 的变化回调里不要调用 Show/Hide/Unmount。
type Widget struct {
	history   HistoryFetcher
	sessions  Sessions
	channel   *Channel
	conv      *Conversation
	supportID string
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	visible   bool
	unmounted bool
	epoch     uint64
	customer  string // 当前连接（或正在加载）的顾客
	draft     string
	ctx       context.Context
	cancel    context.CancelFunc
	unsub     func()
	wg        sync.WaitGroup
}

func NewWidget(history HistoryFetcher, sessions Sessions, channel *Channel, supportID string, logger *zap.Logger) *Widget {
	return &Widget{
		history:   history,
		sessions:  sessions,
		channel:   channel,
		conv:      NewConversation(DefaultReconcileWindow),
		supportID: supportID,
		logger:    logging.OrNop(logger).Named("widget"),
		now:       time.Now,
	}
}

// Mount 开始跟随登录态变化；ctx 结束等同于 Unmount 前的后台加载全部作废
func (w *Widget) Mount(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unsub != nil || w.unmounted {
		return
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.unsub = w.sessions.Subscribe(w.onSession)
}

// Show 打开窗口。已登录顾客时先拉历史（整体替换），再建立连接。
// 历史拉取失败时仍然建立连接，错误返回给调用方做提示。
func (w *Widget) Show(ctx context.Context) error {
	w.mu.Lock()
	if w.unmounted {
		w.mu.Unlock()
		return ErrUnmounted
	}
	w.visible = true
	id := w.sessions.Current()
	if !id.IsCustomer() || w.customer == id.ID {
		w.mu.Unlock()
		return nil
	}
	w.epoch++
	epoch := w.epoch
	w.customer = id.ID
	w.mu.Unlock()

	return w.load(ctx, epoch, id.ID)
}

// Hide 关闭窗口：断开连接并丢弃未发送的输入
func (w *Widget) Hide() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = false
	w.disconnectLocked()
}

// Unmount 永久关闭，等待后台加载退出
func (w *Widget) Unmount() {
	w.mu.Lock()
	if w.unmounted {
		w.mu.Unlock()
		return
	}
	w.unmounted = true
	w.visible = false
	w.disconnectLocked()
	unsub, cancel := w.unsub, w.cancel
	w.unsub, w.cancel = nil, nil
	w.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

// Submit 乐观追加一条本地消息（临时 ID）后发送，发送时去掉 ID。
// 未连接时拒绝输入，避免消息被静默丢弃。
func (w *Widget) Submit(text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	id := w.sessions.Current()
	if !id.IsCustomer() {
		return chat.Message{}, ErrNotSignedIn
	}
	if !w.channel.Connected() {
		return chat.Message{}, ErrNotConnected
	}

	m := chat.Message{
		ID:          chat.LocalIDPrefix + uuid.NewString(),
		CustomerID:  id.ID,
		SenderID:    id.ID,
		SenderName:  id.Name,
		RecipientID: w.supportID,
		Content:     text,
		CreatedAt:   w.now(),
	}
	w.conv.AppendLocal(m)
	if err := w.channel.Send(m); err != nil {
		return m, err
	}

	w.mu.Lock()
	w.draft = ""
	w.mu.Unlock()
	return m, nil
}

func (w *Widget) SetDraft(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft = text
}

func (w *Widget) Draft() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

func (w *Widget) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// Conversation 显示序列，可注册 OnChange
func (w *Widget) Conversation() *Conversation {
	return w.conv
}

func (w *Widget) Messages() []chat.Message {
	return w.conv.Messages()
}

func (w *Widget) Connected() bool {
	return w.channel.Connected()
}

func (w *Widget) load(ctx context.Context, epoch uint64, customerID string) error {
	history, fetchErr := w.history.History(ctx, customerID)
	if fetchErr != nil {
		w.logger.Warn("load chat history failed", zap.String("customer", customerID), zap.Error(fetchErr))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// 拉取期间窗口被关闭、卸载或换了顾客，结果作废
	if w.epoch != epoch || !w.visible || w.unmounted {
		w.logger.Debug("discarding stale history", zap.String("customer", customerID))
		return nil
	}
	if fetchErr == nil {
		w.conv.Replace(history)
	}
	w.channel.Open(customerID, w.conv)
	if fetchErr != nil {
		return fmt.Errorf("load chat history: %w", fetchErr)
	}
	return nil
}

func (w *Widget) onSession(snap authsession.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unmounted {
		return
	}
	id := snap.Identity
	if !id.IsCustomer() {
		if w.customer != "" {
			w.disconnectLocked()
			w.conv.Replace(nil)
		}
		return
	}
	if id.ID == w.customer || !w.visible {
		return
	}
	// 换了顾客：旧连接先断开
	if w.customer != "" {
		w.disconnectLocked()
		w.conv.Replace(nil)
	}
	w.epoch++
	epoch := w.epoch
	w.customer = id.ID
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		_ = w.load(ctx, epoch, id.ID)
	}()
}

func (w *Widget) disconnectLocked() {
	w.epoch++
	w.customer = ""
	w.draft = ""
	_ = w.channel.Close()
}
