package book

import (
	"container/list"

	"github.com/shopspring/decimal"

	"github.com/saiputra/lobx/internal/common"
	"github.com/saiputra/lobx/internal/order"
)

// PriceLevel is a FIFO queue of orders resting at a single (side, price).
// Orders are kept in an intrusive doubly-linked list so OrderBook can cancel
// any order in the level in O(1) given its *list.Element, rather than
// scanning the level as the teacher's plain-slice levels do (REDESIGN
// FLAGS: "Deque-per-level → intrusive FIFO").
type PriceLevel struct {
	Price decimal.Decimal
	Side  common.Side
	queue *list.List
}

func newPriceLevel(side common.Side, price decimal.Decimal) *PriceLevel {
	return &PriceLevel{Side: side, Price: price, queue: list.New()}
}

// Len reports how many orders rest on this level.
func (l *PriceLevel) Len() int { return l.queue.Len() }

// Front returns the head order (earliest by timestamp) without removing it.
func (l *PriceLevel) Front() *order.Order {
	if e := l.queue.Front(); e != nil {
		return e.Value.(*order.Order)
	}
	return nil
}

// Orders returns the level's resting orders in FIFO (time-priority) order.
func (l *PriceLevel) Orders() []*order.Order {
	out := make([]*order.Order, 0, l.queue.Len())
	for e := l.queue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*order.Order))
	}
	return out
}

func (l *PriceLevel) pushBack(o *order.Order) *list.Element {
	return l.queue.PushBack(o)
}

func (l *PriceLevel) remove(e *list.Element) {
	l.queue.Remove(e)
}

func (l *PriceLevel) popFront() *order.Order {
	e := l.queue.Front()
	if e == nil {
		return nil
	}
	l.queue.Remove(e)
	return e.Value.(*order.Order)
}
