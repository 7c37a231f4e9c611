package chat

import (
	"context"
	"strings"
	"time"
)

// LocalIDPrefix 本地乐观消息的临时 ID 前缀，发送前会被清掉
const LocalIDPrefix = "local-"

// Message 聊天消息，既是数据库模型也是 STOMP/HTTP 传输格式
type Message struct {
	ID          string    `json:"id,omitempty" gorm:"primaryKey;size:64"`
	CustomerID  string    `json:"customerId,omitempty" gorm:"size:64;index;not null"` // 会话标识：顾客 ID
	SenderID    string    `json:"senderId" gorm:"size:64;not null"`
	SenderName  string    `json:"senderName" gorm:"size:64"`
	RecipientID string    `json:"recipientId" gorm:"size:64"`
	Content     string    `json:"content" gorm:"size:1024;not null"`
	CreatedAt   time.Time `json:"timestamp" gorm:"index"`
}

// IsLocal 是否为尚未被服务端确认的本地消息
func (m *Message) IsLocal() bool {
	return strings.HasPrefix(m.ID, LocalIDPrefix)
}

// Topic 顾客会话的订阅地址
func Topic(customerID string) string {
	return "/topic/chat/" + customerID
}

// SendDestination 客户端发送消息的目的地
const SendDestination = "/app/chat.sendMessage"

// Repository 聊天消息仓储接口
type Repository interface {
	// ListByCustomer 按时间正序返回会话最近 limit 条消息
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Message, error)
	Create(ctx context.Context, m *Message) error
}
