package shopapi

import (
	"context"
	"strconv"

	"github.com/example/shopfront/internal/datamodels/cart"
	"github.com/example/shopfront/internal/gateway"
)

// CartAPI 购物车接口
type CartAPI struct {
	gw *gateway.Gateway
}

func NewCartAPI(gw *gateway.Gateway) *CartAPI {
	return &CartAPI{gw: gw}
}

// ByCustomer 查询顾客的购物车
func (c *CartAPI) ByCustomer(ctx context.Context, customerID string) (*cart.Cart, error) {
	var ct cart.Cart
	err := c.gw.Get(ctx, "/api/customer/cart/getCustomer/{customerId}", map[string]string{"customerId": customerID}, &ct)
	if err != nil {
		return nil, err
	}
	return &ct, nil
}

// ItemCount 购物车内商品件数
func (c *CartAPI) ItemCount(ctx context.Context, cartID int64) (int64, error) {
	var res struct {
		Count int64 `json:"count"`
	}
	err := c.gw.Get(ctx, "/api/customer/cart/{cartId}/item-count", map[string]string{"cartId": strconv.FormatInt(cartID, 10)}, &res)
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// AddItem 向购物车加入商品
func (c *CartAPI) AddItem(ctx context.Context, cartID, productID, quantity int64) (*cart.Item, error) {
	var item cart.Item
	body := map[string]int64{"productId": productID, "quantity": quantity}
	err := c.gw.Post(ctx, "/api/customer/cart/{cartId}/items", map[string]string{"cartId": strconv.FormatInt(cartID, 10)}, body, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
