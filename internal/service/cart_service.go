package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/shopfront/internal/datamodels/cart"
)

type CartService struct {
	repo    cart.Repository
	monitor *Monitor
}

func NewCartService(repo cart.Repository, monitor *Monitor) *CartService {
	if monitor == nil {
		monitor = NewMonitor()
	}
	return &CartService{repo: repo, monitor: monitor}
}

// ByCustomer 顾客的购物车，首次访问时创建
func (s *CartService) ByCustomer(ctx context.Context, actor Actor, customerID string) (*cart.Cart, error) {
	if !actor.canAccess(customerID) {
		return nil, ErrForbidden
	}
	c, err := s.repo.GetOrCreate(ctx, customerID)
	if err != nil {
		s.monitor.RecordDBError()
		return nil, err
	}
	return c, nil
}

func (s *CartService) ItemCount(ctx context.Context, actor Actor, cartID int64) (int64, error) {
	if _, err := s.owned(ctx, actor, cartID); err != nil {
		return 0, err
	}
	n, err := s.repo.CountItems(ctx, cartID)
	if err != nil {
		s.monitor.RecordDBError()
		return 0, err
	}
	return n, nil
}

func (s *CartService) AddItem(ctx context.Context, actor Actor, cartID, productID, quantity int64) (*cart.Item, error) {
	if productID <= 0 || quantity <= 0 {
		return nil, fmt.Errorf("%w: productId and quantity must be positive", ErrInvalidInput)
	}
	if _, err := s.owned(ctx, actor, cartID); err != nil {
		return nil, err
	}
	item := &cart.Item{CartID: cartID, ProductID: productID, Quantity: quantity}
	if err := s.repo.AddItem(ctx, item); err != nil {
		s.monitor.RecordDBError()
		return nil, err
	}
	return item, nil
}

func (s *CartService) owned(ctx context.Context, actor Actor, cartID int64) (*cart.Cart, error) {
	c, err := s.repo.GetByID(ctx, cartID)
	if err != nil {
		if !errors.Is(err, cart.ErrNotFound) {
			s.monitor.RecordDBError()
		}
		return nil, err
	}
	if !actor.canAccess(c.CustomerID) {
		return nil, ErrForbidden
	}
	return c, nil
}
