package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Inspect and fill the customer's cart",
}

var cartShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cart and its item count",
	Args:  cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, c *client, args []string) error {
		id, err := c.requireCustomer()
		if err != nil {
			return err
		}
		ct, err := c.carts.ByCustomer(cmd.Context(), id.ID)
		if err != nil {
			return err
		}
		n, err := c.carts.ItemCount(cmd.Context(), ct.ID)
		if err != nil {
			return err
		}
		fmt.Printf("cart %d: %d item(s)\n", ct.ID, n)
		return nil
	}),
}

var quantity int64

var cartAddCmd = &cobra.Command{
	Use:   "add <productId>",
	Short: "Add a product to the cart",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client, args []string) error {
		productID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}
		id, err := c.requireCustomer()
		if err != nil {
			return err
		}
		ct, err := c.carts.ByCustomer(cmd.Context(), id.ID)
		if err != nil {
			return err
		}
		item, err := c.carts.AddItem(cmd.Context(), ct.ID, productID, quantity)
		if err != nil {
			return err
		}
		fmt.Printf("added product %d x%d to cart %d\n", item.ProductID, item.Quantity, ct.ID)
		return nil
	}),
}

func init() {
	cartAddCmd.Flags().Int64VarP(&quantity, "quantity", "q", 1, "quantity")
	cartCmd.AddCommand(cartShowCmd, cartAddCmd)
}
