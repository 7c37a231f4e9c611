package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/datamodels/chat"
	"github.com/example/shopfront/internal/logging"
)

const maxMessageLength = 1024

// EventPublisher 聊天事件的下游投递（RabbitMQ）
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// ChatService 聊天消息的持久化与会话归属
type ChatService struct {
	repo      chat.Repository
	publisher EventPublisher
	monitor   *Monitor
	supportID string
	logger    *zap.Logger
	now       func() time.Time
}

func NewChatService(repo chat.Repository, publisher EventPublisher, monitor *Monitor, supportID string, logger *zap.Logger) *ChatService {
	if monitor == nil {
		monitor = NewMonitor()
	}
	return &ChatService{
		repo:      repo,
		publisher: publisher,
		monitor:   monitor,
		supportID: supportID,
		logger:    logging.OrNop(logger).Named("chat"),
		now:       time.Now,
	}
}

// History 会话历史，按时间正序
func (s *ChatService) History(ctx context.Context, actor Actor, customerID string, limit int) ([]*chat.Message, error) {
	if !actor.canAccess(customerID) {
		return nil, ErrForbidden
	}
	list, err := s.repo.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		s.monitor.RecordDBError()
		return nil, err
	}
	return list, nil
}

// Send 保存一条消息：服务端分配 ID 和时间，发送者以 token 为准。
// 顾客发的消息归属自己的会话；管理员发的消息归属接收方顾客的会话。
func (s *ChatService) Send(ctx context.Context, actor Actor, in chat.Message) (*chat.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, fmt.Errorf("%w: message too long", ErrInvalidInput)
	}
	if actor.ID == "" {
		return nil, ErrForbidden
	}

	m := &chat.Message{
		ID:          uuid.NewString(),
		SenderID:    actor.ID,
		SenderName:  actor.Name,
		RecipientID: in.RecipientID,
		Content:     content,
		CreatedAt:   s.now(),
	}
	if actor.Admin {
		m.CustomerID = in.CustomerID
		if m.CustomerID == "" {
			m.CustomerID = in.RecipientID
		}
		if m.CustomerID == "" {
			return nil, fmt.Errorf("%w: recipient required", ErrInvalidInput)
		}
		m.RecipientID = m.CustomerID
	} else {
		m.CustomerID = actor.ID
		if m.RecipientID == "" {
			m.RecipientID = s.supportID
		}
	}

	if err := s.repo.Create(ctx, m); err != nil {
		s.monitor.RecordDBError()
		return nil, fmt.Errorf("save message: %w", err)
	}
	s.monitor.RecordMessage()
	s.publish(ctx, m)
	return m, nil
}

// publish 投递失败只记录，不影响消息本身
func (s *ChatService) publish(ctx context.Context, m *chat.Message) {
	if s.publisher == nil {
		return
	}
	body, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, "chat."+m.CustomerID, body); err != nil {
		s.monitor.RecordMQError()
		s.logger.Warn("publish chat event failed", zap.String("id", m.ID), zap.Error(err))
	}
}
