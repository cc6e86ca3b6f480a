// Package engine implements the price-time FIFO matching algorithm driven
// against a single product's order book, per spec.md §4.2.
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/saiputra/lobx/internal/book"
	"github.com/saiputra/lobx/internal/common"
	"github.com/saiputra/lobx/internal/order"
)

// Outcome classifies how a new order left the matching loop.
type Outcome int

const (
	// Rejected is returned only for a structurally invalid side; every
	// other rejection happens pre-match in the session dispatcher.
	Rejected Outcome = iota
	Filled
	Resting
)

func (o Outcome) String() string {
	switch o {
	case Filled:
		return "Filled"
	case Resting:
		return "Resting"
	default:
		return "Rejected"
	}
}

// Fill records one execution leg of the match, returned to the caller in
// Result.
type Fill struct {
	Price    decimal.Decimal
	Quantity uint64
	Maker    string // resting order's user
	Taker    string // aggressor's user
}

// Result is what Match returns: the final disposition of new_order plus
// every fill it generated, in execution order.
type Result struct {
	Outcome Outcome
	Fills   []Fill
}

// MatchingEngine drives incoming orders through one product's OrderBook.
// It holds no state of its own; the book is passed in by the caller
// (ProductManager), which is responsible for snapshotting before mutation.
type MatchingEngine struct {
	book *book.OrderBook
}

// New binds a matching engine to the book it will drive.
func New(b *book.OrderBook) *MatchingEngine {
	return &MatchingEngine{book: b}
}

// Match drives newOrder through the book: it sweeps price-compatible
// resting levels on the opposing side, generating fills, then rests any
// remainder on newOrder's own side.
func (e *MatchingEngine) Match(newOrder *order.Order) Result {
	if !newOrder.Side.Valid() {
		return Result{Outcome: Rejected}
	}

	opposite := newOrder.Side.Opposite()
	var fills []Fill

	for newOrder.Quantity > 0 {
		lvl, ok := e.book.BestLevel(opposite)
		if !ok {
			break
		}
		bestPx := lvl.Price
		if crosses := e.priceCompatible(newOrder, bestPx); !crosses {
			break
		}

		for newOrder.Quantity > 0 {
			head := lvl.Front()
			if head == nil {
				break
			}
			switch {
			case head.Quantity > newOrder.Quantity:
				fills = append(fills, e.execute(newOrder, head, bestPx, newOrder.Quantity))
				e.book.ModifyQty(head.ID, head.Quantity-newOrder.Quantity)
				newOrder.Quantity = 0
			case head.Quantity == newOrder.Quantity:
				fills = append(fills, e.execute(newOrder, head, bestPx, head.Quantity))
				e.book.CancelHead(opposite, bestPx)
				newOrder.Quantity = 0
			default:
				qty := head.Quantity
				fills = append(fills, e.execute(newOrder, head, bestPx, qty))
				e.book.CancelHead(opposite, bestPx)
				newOrder.Quantity -= qty
			}
		}
	}

	if newOrder.Quantity > 0 {
		e.book.Add(newOrder)
		return Result{Outcome: Resting, Fills: fills}
	}
	return Result{Outcome: Filled, Fills: fills}
}

// priceCompatible reports whether newOrder can still cross at bestPx.
func (e *MatchingEngine) priceCompatible(newOrder *order.Order, bestPx decimal.Decimal) bool {
	if newOrder.Side == common.Buy {
		return !newOrder.Price.LessThan(bestPx)
	}
	return !newOrder.Price.GreaterThan(bestPx)
}

// execute records a fill of qty at price px between newOrder (the
// aggressor) and head (the resting order), applying the buyer/seller
// balance deltas of I5 to the book's user_balance map. The resting order's
// price is always the execution price (price improvement for the
// aggressor).
func (e *MatchingEngine) execute(newOrder, head *order.Order, px decimal.Decimal, qty uint64) Fill {
	notional := px.Mul(decimal.NewFromInt(int64(qty)))

	var buyer, seller string
	if newOrder.Side == common.Buy {
		buyer, seller = newOrder.User, head.User
	} else {
		buyer, seller = head.User, newOrder.User
	}

	e.book.ApplyFill(buyer, notional.Neg(), int64(qty))
	e.book.ApplyFill(seller, notional, -int64(qty))

	return Fill{Price: px, Quantity: qty, Maker: head.User, Taker: newOrder.User}
}
