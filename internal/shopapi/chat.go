package shopapi

import (
	"context"

	"github.com/example/shopfront/internal/datamodels/chat"
	"github.com/example/shopfront/internal/gateway"
)

// ChatAPI 聊天历史接口
type ChatAPI struct {
	gw *gateway.Gateway
}

func NewChatAPI(gw *gateway.Gateway) *ChatAPI {
	return &ChatAPI{gw: gw}
}

// History 拉取顾客会话的历史消息（按到达顺序）
func (c *ChatAPI) History(ctx context.Context, customerID string) ([]chat.Message, error) {
	var list []chat.Message
	err := c.gw.Get(ctx, "/api/chat/history/{customerId}", map[string]string{"customerId": customerID}, &list)
	if err != nil {
		return nil, err
	}
	return list, nil
}
