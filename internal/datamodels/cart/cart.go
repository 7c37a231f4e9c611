package cart

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 购物车不存在
var ErrNotFound = errors.New("cart not found")

// Cart 购物车，每个顾客一辆
type Cart struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	CustomerID string    `json:"customerId" gorm:"size:64;uniqueIndex;not null"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Item 购物车条目
type Item struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	CartID    int64     `json:"cartId" gorm:"index;not null"`
	ProductID int64     `json:"productId" gorm:"not null"`
	Quantity  int64     `json:"quantity" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository 购物车仓储接口
type Repository interface {
	// GetOrCreate 查找顾客的购物车，不存在时创建
	GetOrCreate(ctx context.Context, customerID string) (*Cart, error)
	GetByID(ctx context.Context, id int64) (*Cart, error)
	AddItem(ctx context.Context, item *Item) error
	// CountItems 购物车内商品件数（数量求和）
	CountItems(ctx context.Context, cartID int64) (int64, error)
}
