// Package order defines the Order record: immutable identity, mutable
// remaining quantity, as described by spec.md §3.
package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/saiputra/lobx/internal/common"
)

// cents is the granularity every price is rounded to on creation (§3).
const cents = 2

// Order is a limit order to buy or sell a quantity of a product at a price.
// ID, User, Product and Side are fixed at creation. Quantity decreases as
// the order fills and is the only field the matcher mutates in place;
// OrderBook.ModifyPriceOrGrow (via Reprice) is the one path that rewrites
// Price, Quantity and Timestamp.
type Order struct {
	ID        string
	Timestamp int64 // nanoseconds, defines time priority within a level
	User      string
	Product   common.Product
	Side      common.Side
	Quantity  uint64
	Price     decimal.Decimal
}

// New builds an order with its price rounded to the book's tick size.
func New(id string, ts int64, user string, product common.Product, side common.Side, quantity uint64, price decimal.Decimal) Order {
	return Order{
		ID:        id,
		Timestamp: ts,
		User:      user,
		Product:   product,
		Side:      side,
		Quantity:  quantity,
		Price:     price.Round(cents),
	}
}

// Notional returns Price*Quantity at the order's current remaining quantity.
func (o Order) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(int64(o.Quantity)))
}

// Reprice returns a copy of o with a new price (rounded), quantity and
// timestamp; used
// exclusively by OrderBook.ModifyPriceOrGrow, which loses time priority.
func (o Order) Reprice(newPrice decimal.Decimal, newQuantity uint64, newTimestamp int64) Order {
	o.Price = newPrice.Round(cents)
	o.Quantity = newQuantity
	o.Timestamp = newTimestamp
	return o
}

func (o Order) String() string {
	return fmt.Sprintf("Order(%s %s %s qty=%d price=%s user=%s)", o.ID, o.Product, o.Side, o.Quantity, o.Price.StringFixed(cents), o.User)
}

// View is the wire/snapshot-facing projection of an order (§6).
type View struct {
	ID       string          `json:"ID"`
	User     string          `json:"User"`
	Quantity uint64          `json:"Quantity"`
	Price    decimal.Decimal `json:"Price"`
}

// AsView projects o onto its wire representation.
func (o Order) AsView() View {
	return View{ID: o.ID, User: o.User, Quantity: o.Quantity, Price: o.Price}
}
