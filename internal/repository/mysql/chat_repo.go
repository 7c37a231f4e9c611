package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/shopfront/internal/datamodels/chat"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type chatRepo struct {
	db *gorm.DB
}

// NewChatRepository 创建聊天消息仓储
func NewChatRepository(db *gorm.DB) chat.Repository {
	return &chatRepo{db: db}
}

// ListByCustomer 取最近 limit 条，再翻转成时间正序
func (r *chatRepo) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*chat.Message, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	var list []*chat.Message
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (r *chatRepo) Create(ctx context.Context, m *chat.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}
