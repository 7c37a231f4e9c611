package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shopfront/internal/datamodels/cart"
	"github.com/example/shopfront/internal/datamodels/chat"
	"github.com/example/shopfront/internal/datamodels/user"
)

func TestUsersUniquePerRole(t *testing.T) {
	ctx := context.Background()
	r := NewUserRepository()

	a := &user.User{Username: "sam", Role: "admin"}
	require.NoError(t, r.Create(ctx, a))
	require.NoError(t, r.Create(ctx, &user.User{Username: "sam", Role: "customer"}))
	assert.ErrorIs(t, r.Create(ctx, &user.User{Username: "sam", Role: "admin"}), user.ErrExists)

	got, err := r.GetByUsername(ctx, "admin", "sam")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = r.GetByID(ctx, 99)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestChatHistoryKeepsLatestInOrder(t *testing.T) {
	ctx := context.Background()
	r := NewChatRepository()
	t0 := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Create(ctx, &chat.Message{ID: id, CustomerID: "7", CreatedAt: t0.Add(time.Duration(i) * time.Second)}))
	}
	require.NoError(t, r.Create(ctx, &chat.Message{ID: "x", CustomerID: "8", CreatedAt: t0}))

	list, err := r.ListByCustomer(ctx, "7", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "c", list[1].ID)
}

func TestCartCounts(t *testing.T) {
	ctx := context.Background()
	r := NewCartRepository()

	c1, err := r.GetOrCreate(ctx, "7")
	require.NoError(t, err)
	c2, err := r.GetOrCreate(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)

	require.NoError(t, r.AddItem(ctx, &cart.Item{CartID: c1.ID, ProductID: 1, Quantity: 2}))
	require.NoError(t, r.AddItem(ctx, &cart.Item{CartID: c1.ID, ProductID: 5, Quantity: 3}))
	assert.ErrorIs(t, r.AddItem(ctx, &cart.Item{CartID: 404, Quantity: 1}), cart.ErrNotFound)

	n, err := r.CountItems(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}
