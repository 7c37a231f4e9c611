package mysql

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/shopfront/internal/datamodels/cart"
)

type cartRepo struct {
	db *gorm.DB
}

// NewCartRepository 创建购物车仓储
func NewCartRepository(db *gorm.DB) cart.Repository {
	return &cartRepo{db: db}
}

// GetOrCreate 并发首次访问时靠唯一索引兜底，冲突就忽略后再查
func (r *cartRepo) GetOrCreate(ctx context.Context, customerID string) (*cart.Cart, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&cart.Cart{CustomerID: customerID}).Error; err != nil {
		return nil, err
	}
	var c cart.Cart
	if err := db.Where("customer_id = ?", customerID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cartRepo) GetByID(ctx context.Context, id int64) (*cart.Cart, error) {
	var c cart.Cart
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, cart.ErrNotFound)
	}
	return &c, nil
}

func (r *cartRepo) AddItem(ctx context.Context, item *cart.Item) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *cartRepo) CountItems(ctx context.Context, cartID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&cart.Item{}).
		Where("cart_id = ?", cartID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return total, err
}
