// Package memory 进程内仓储实现，未配置 MySQL 时和测试中使用
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/shopfront/internal/datamodels/cart"
	"github.com/example/shopfront/internal/datamodels/chat"
	"github.com/example/shopfront/internal/datamodels/user"
)

const defaultHistoryLimit = 50

type UserRepo struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]user.User
}

func NewUserRepository() *UserRepo {
	return &UserRepo{byID: make(map[int64]user.User)}
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, role, username string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.Role == role && u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.byID {
		if x.Role == u.Role && x.Username == u.Username {
			return user.ErrExists
		}
	}
	r.nextID++
	now := time.Now()
	u.ID, u.CreatedAt, u.UpdatedAt = r.nextID, now, now
	r.byID[u.ID] = *u
	return nil
}

type ChatRepo struct {
	mu         sync.RWMutex
	byCustomer map[string][]chat.Message
}

func NewChatRepository() *ChatRepo {
	return &ChatRepo{byCustomer: make(map[string][]chat.Message)}
}

func (r *ChatRepo) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*chat.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.byCustomer[customerID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*chat.Message, 0, len(all))
	for i := range all {
		m := all[i]
		out = append(out, &m)
	}
	return out, nil
}

func (r *ChatRepo) Create(ctx context.Context, m *chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.byCustomer[m.CustomerID], *m)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	r.byCustomer[m.CustomerID] = list
	return nil
}

type CartRepo struct {
	mu         sync.RWMutex
	nextCart   int64
	nextItem   int64
	carts      map[int64]cart.Cart
	byCustomer map[string]int64
	items      map[int64][]cart.Item
}

func NewCartRepository() *CartRepo {
	return &CartRepo{
		carts:      make(map[int64]cart.Cart),
		byCustomer: make(map[string]int64),
		items:      make(map[int64][]cart.Item),
	}
}

func (r *CartRepo) GetOrCreate(ctx context.Context, customerID string) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byCustomer[customerID]; ok {
		c := r.carts[id]
		return &c, nil
	}
	r.nextCart++
	now := time.Now()
	c := cart.Cart{ID: r.nextCart, CustomerID: customerID, CreatedAt: now, UpdatedAt: now}
	r.carts[c.ID] = c
	r.byCustomer[customerID] = c.ID
	return &c, nil
}

func (r *CartRepo) GetByID(ctx context.Context, id int64) (*cart.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return &c, nil
}

func (r *CartRepo) AddItem(ctx context.Context, item *cart.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[item.CartID]; !ok {
		return cart.ErrNotFound
	}
	r.nextItem++
	item.ID, item.CreatedAt = r.nextItem, time.Now()
	r.items[item.CartID] = append(r.items[item.CartID], *item)
	return nil
}

func (r *CartRepo) CountItems(ctx context.Context, cartID int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, it := range r.items[cartID] {
		total += it.Quantity
	}
	return total, nil
}
