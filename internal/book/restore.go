package book

import (
	"github.com/shopspring/decimal"

	"github.com/saiputra/lobx/internal/common"
	"github.com/saiputra/lobx/internal/order"
)

func newRestoredOrder(v order.View, product common.Product, side common.Side, price decimal.Decimal, seq int64) *order.Order {
	o := order.New(v.ID, seq, v.User, product, side, v.Quantity, price)
	return &o
}

// Restore rebuilds a live OrderBook from a persisted Snapshot: every order
// and user balance is replayed in the order the snapshot stored it, which
// is already FIFO (time-priority) order per level, so order_index and
// level queues come back consistent (I1/I3) without needing the original
// wall-clock timestamps. Synthetic sequential timestamps are assigned
// solely to preserve that relative ordering.
func Restore(snap Snapshot) *OrderBook {
	b := New(snap.Product)
	b.Timestamp = snap.Timestamp

	var seq int64
	replay := func(side common.Side, levels []LevelView) {
		for _, lvl := range levels {
			for _, v := range lvl.Orders {
				o := newRestoredOrder(v, snap.Product, side, lvl.Price, seq)
				b.Add(o)
				seq++
			}
		}
	}
	replay(common.Buy, snap.Bids)
	replay(common.Sell, snap.Asks)

	for user, bal := range snap.UserBalance {
		b.balances[user] = &Balance{Balance: bal.Balance, Volume: bal.Volume}
	}
	return b
}
