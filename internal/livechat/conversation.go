package livechat

import (
	"sync"
	"time"

	"github.com/example/shopfront/internal/datamodels/chat"
)

// DefaultReconcileWindow 本地乐观消息与服务端回显的最大时间差
const DefaultReconcileWindow = 2 * time.Minute

// EventKind 会话视图的变化类型
type EventKind int

const (
	// Appended 追加一条消息
	Appended EventKind = iota
	// Replaced 服务端回显替换了本地乐观消息
	Replaced
	// Reset 历史记录整体替换
	Reset
)

// Event 视图变化通知
type Event struct {
	Kind    EventKind
	Index   int
	Message chat.Message
}

// Conversation 聊天窗口的显示序列：按到达顺序排列，非空 ID 不重复
type Conversation struct {
	window time.Duration

	mu       sync.Mutex
	messages []chat.Message
	index    map[string]int
	pending  map[string]struct{}
	onChange func(Event)
	queue    []Event

	emitMu sync.Mutex
}

func NewConversation(window time.Duration) *Conversation {
	if window <= 0 {
		window = DefaultReconcileWindow
	}
	return &Conversation{
		window:  window,
		index:   make(map[string]int),
		pending: make(map[string]struct{}),
	}
}

// OnChange 注册变化回调，回调按变化发生的顺序串行执行
func (c *Conversation) OnChange(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Replace 用历史记录整体替换当前序列，历史内部重复的 ID 只保留第一条
func (c *Conversation) Replace(history []chat.Message) {
	c.mu.Lock()
	c.messages = make([]chat.Message, 0, len(history))
	c.index = make(map[string]int, len(history))
	c.pending = make(map[string]struct{})
	for _, m := range history {
		if m.ID != "" {
			if _, dup := c.index[m.ID]; dup {
				continue
			}
			c.index[m.ID] = len(c.messages)
		}
		c.messages = append(c.messages, m)
	}
	c.emit(Event{Kind: Reset, Index: -1})
}

// AppendLocal 追加本地乐观消息，等待服务端确认
func (c *Conversation) AppendLocal(m chat.Message) {
	c.mu.Lock()
	idx := len(c.messages)
	c.messages = append(c.messages, m)
	if m.ID != "" {
		c.index[m.ID] = idx
		c.pending[m.ID] = struct{}{}
	}
	c.emit(Event{Kind: Appended, Index: idx, Message: m})
}

// Receive 处理服务端推送：重复 ID 丢弃；与待确认的本地消息匹配则原位替换；否则追加。
// 返回消息是否进入了序列。
func (c *Conversation) Receive(m chat.Message) bool {
	c.mu.Lock()
	if m.ID != "" {
		if _, dup := c.index[m.ID]; dup {
			c.mu.Unlock()
			return false
		}
	}
	if i, ok := c.matchPending(m); ok {
		local := c.messages[i]
		delete(c.index, local.ID)
		delete(c.pending, local.ID)
		c.messages[i] = m
		if m.ID != "" {
			c.index[m.ID] = i
		}
		c.emit(Event{Kind: Replaced, Index: i, Message: m})
		return true
	}
	idx := len(c.messages)
	c.messages = append(c.messages, m)
	if m.ID != "" {
		c.index[m.ID] = idx
	}
	c.emit(Event{Kind: Appended, Index: idx, Message: m})
	return true
}

// 最早的、发送者与内容相同且时间在窗口内的待确认消息
func (c *Conversation) matchPending(m chat.Message) (int, bool) {
	if len(c.pending) == 0 {
		return 0, false
	}
	for i, local := range c.messages {
		if _, ok := c.pending[local.ID]; !ok {
			continue
		}
		if local.SenderID != m.SenderID || local.Content != m.Content {
			continue
		}
		if !local.CreatedAt.IsZero() && !m.CreatedAt.IsZero() {
			d := m.CreatedAt.Sub(local.CreatedAt)
			if d < 0 {
				d = -d
			}
			if d > c.window {
				continue
			}
		}
		return i, true
	}
	return 0, false
}

// emit 在持有 mu 时调用并负责释放 mu。事件先入队，再在 emitMu 下按序派发，
// 回调执行期间不持有 mu，可以安全读取 Messages。
func (c *Conversation) emit(ev Event) {
	if c.onChange != nil {
		c.queue = append(c.queue, ev)
	}
	c.mu.Unlock()

	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	for {
		c.mu.Lock()
		if len(c.queue) == 0 || c.onChange == nil {
			c.queue = nil
			c.mu.Unlock()
			return
		}
		next, fn := c.queue[0], c.onChange
		c.queue = c.queue[1:]
		c.mu.Unlock()
		fn(next)
	}
}

// Messages 当前序列的快照
func (c *Conversation) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Message(nil), c.messages...)
}

// Pending 仍未被确认的本地消息数
func (c *Conversation) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
