// Package book implements the per-product order book: price-ordered
// bid/ask trees, an intrusive FIFO queue per price level, an order_index
// for O(1) lookup/cancel/modify, and the per-product user balance map,
// per spec §3/§4.1.
package book

import (
	"container/list"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/saiputra/lobx/internal/common"
	"github.com/saiputra/lobx/internal/order"
)

// Balance is a user's per-product cash/volume position. PostSellVolume is
// not stored directly; it is derived on demand (I6) from Volume and the
// user's currently-resting sell quantity.
type Balance struct {
	Balance decimal.Decimal `json:"balance"`
	Volume  int64           `json:"volume"`
}

type indexEntry struct {
	order *order.Order
	level *PriceLevel
	elem  *list.Element
}

// OrderBook is the single order book for one product. It is not
// goroutine-safe by itself and takes no internal locks: callers serialize
// access (the session dispatcher handles one message at a time).
type OrderBook struct {
	Product   common.Product
	Timestamp int64

	bids *btree.BTreeG[*PriceLevel] // best bid (highest price) is Min()
	asks *btree.BTreeG[*PriceLevel] // best ask (lowest price) is Min()

	index    map[string]*indexEntry
	balances map[string]*Balance
}

func bidLess(a, b *PriceLevel) bool { return a.Price.GreaterThan(b.Price) }
func askLess(a, b *PriceLevel) bool { return a.Price.LessThan(b.Price) }

// New creates an empty order book for a product.
func New(product common.Product) *OrderBook {
	return &OrderBook{
		Product:  product,
		bids:     btree.NewBTreeG[*PriceLevel](bidLess),
		asks:     btree.NewBTreeG[*PriceLevel](askLess),
		index:    make(map[string]*indexEntry),
		balances: make(map[string]*Balance),
	}
}

func (b *OrderBook) sideTree(side common.Side) *btree.BTreeG[*PriceLevel] {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) sideLess(side common.Side) func(a, b *PriceLevel) bool {
	if side == common.Buy {
		return bidLess
	}
	return askLess
}

func (b *OrderBook) levelFor(side common.Side, price decimal.Decimal, create bool) *PriceLevel {
	tree := b.sideTree(side)
	key := &PriceLevel{Side: side, Price: price}
	if lvl, ok := tree.Get(key); ok {
		return lvl
	}
	if !create {
		return nil
	}
	lvl := newPriceLevel(side, price)
	tree.Set(lvl)
	return lvl
}

func (b *OrderBook) dropLevelIfEmpty(lvl *PriceLevel) {
	if lvl.Len() == 0 {
		b.sideTree(lvl.Side).Delete(lvl)
	}
}

// Add appends o to the tail of the FIFO at (o.Side, o.Price), creating the
// level if needed. Returns false if o.ID is already indexed (precondition
// violation, I1).
func (b *OrderBook) Add(o *order.Order) bool {
	if _, exists := b.index[o.ID]; exists {
		return false
	}
	lvl := b.levelFor(o.Side, o.Price, true)
	elem := lvl.pushBack(o)
	b.index[o.ID] = &indexEntry{order: o, level: lvl, elem: elem}
	return true
}

// Cancel removes an order from its level and the index. Returns false if
// order_id is unknown (I1/I2).
func (b *OrderBook) Cancel(orderID string) bool {
	ent, ok := b.index[orderID]
	if !ok {
		return false
	}
	ent.level.remove(ent.elem)
	b.dropLevelIfEmpty(ent.level)
	delete(b.index, orderID)
	return true
}

// CancelHead pops the head of the level at (side, price), for exclusive
// use by the matching engine. Returns nil if the level does not exist or
// is empty.
func (b *OrderBook) CancelHead(side common.Side, price decimal.Decimal) *order.Order {
	lvl := b.levelFor(side, price, false)
	if lvl == nil {
		return nil
	}
	head := lvl.popFront()
	if head == nil {
		return nil
	}
	delete(b.index, head.ID)
	b.dropLevelIfEmpty(lvl)
	return head
}

// ModifyQty decreases a resting order's quantity in place, preserving its
// time priority. Rejects an increase, a non-positive quantity, or an
// unknown order_id.
func (b *OrderBook) ModifyQty(orderID string, newQty uint64) bool {
	ent, ok := b.index[orderID]
	if !ok || newQty == 0 || newQty > ent.order.Quantity {
		return false
	}
	ent.order.Quantity = newQty
	return true
}

// ModifyPriceOrGrow removes the order, mutates price and/or quantity, and
// reinserts at newTimestamp — the only path that can raise quantity or
// change price, and it loses time priority doing so. nil newPrice/newQty
// mean "keep current value".
func (b *OrderBook) ModifyPriceOrGrow(orderID string, newPrice *decimal.Decimal, newQty *uint64, newTimestamp int64) bool {
	ent, ok := b.index[orderID]
	if !ok {
		return false
	}
	price := ent.order.Price
	if newPrice != nil {
		price = *newPrice
	}
	qty := ent.order.Quantity
	if newQty != nil {
		if *newQty == 0 {
			return false
		}
		qty = *newQty
	}

	ent.level.remove(ent.elem)
	b.dropLevelIfEmpty(ent.level)
	delete(b.index, orderID)

	*ent.order = ent.order.Reprice(price, qty, newTimestamp)
	lvl := b.levelFor(ent.order.Side, ent.order.Price, true)
	elem := lvl.pushBack(ent.order)
	b.index[orderID] = &indexEntry{order: ent.order, level: lvl, elem: elem}
	return true
}

// BestBid returns the highest resting bid price, if any.
func (b *OrderBook) BestBid() (decimal.Decimal, bool) {
	lvl, ok := b.bids.Min()
	if !ok {
		return decimal.Decimal{}, false
	}
	return lvl.Price, true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *OrderBook) BestAsk() (decimal.Decimal, bool) {
	lvl, ok := b.asks.Min()
	if !ok {
		return decimal.Decimal{}, false
	}
	return lvl.Price, true
}

// BestLevel returns the best PriceLevel on side (the matcher passes the
// side opposing the incoming order), or ok=false if that side has no
// resting orders.
func (b *OrderBook) BestLevel(side common.Side) (*PriceLevel, bool) {
	return b.sideTree(side).Min()
}

// GetOrder returns the live order for an id, if resting.
func (b *OrderBook) GetOrder(orderID string) (*order.Order, bool) {
	ent, ok := b.index[orderID]
	if !ok {
		return nil, false
	}
	return ent.order, true
}

// Depth reports how many orders currently rest on one side of the book, for
// ambient metrics reporting (SPEC_FULL §2) — not part of the core spec's
// read surface.
func (b *OrderBook) Depth(side common.Side) int {
	var n int
	for _, ent := range b.index {
		if ent.order.Side == side {
			n++
		}
	}
	return n
}

// OrdersForUser linear-scans order_index for a user's resting orders, per
// §4.1.
func (b *OrderBook) OrdersForUser(user string) []*order.Order {
	var out []*order.Order
	for _, ent := range b.index {
		if ent.order.User == user {
			out = append(out, ent.order)
		}
	}
	return out
}

// AllOrders returns every order currently resting in the book, in no
// particular order — used by persistence to recover the order-id counter.
func (b *OrderBook) AllOrders() []*order.Order {
	out := make([]*order.Order, 0, len(b.index))
	for _, ent := range b.index {
		out = append(out, ent.order)
	}
	return out
}

// balanceFor returns (creating if necessary) the per-user balance slot.
func (b *OrderBook) balanceFor(user string) *Balance {
	bal, ok := b.balances[user]
	if !ok {
		bal = &Balance{Balance: decimal.Zero}
		b.balances[user] = bal
	}
	return bal
}

// ApplyFill mutates user_balance for one side of a fill: cashDelta is
// signed (positive for the seller receiving proceeds, negative for the
// buyer paying), volDelta is signed (+qty for the buyer, -qty for the
// seller), per I5.
func (b *OrderBook) ApplyFill(user string, cashDelta decimal.Decimal, volDelta int64) {
	bal := b.balanceFor(user)
	bal.Balance = bal.Balance.Add(cashDelta)
	bal.Volume += volDelta
}

// OpenBuyNotional sums price*qty over a user's resting buy orders, the
// Σ(open buy-order price·qty) term of I6's post_buy_budget.
func (b *OrderBook) OpenBuyNotional(user string) decimal.Decimal {
	total := decimal.Zero
	for _, ent := range b.index {
		if ent.order.User == user && ent.order.Side == common.Buy {
			total = total.Add(ent.order.Notional())
		}
	}
	return total
}

// OpenSellQuantity sums a user's resting sell-order quantity, the
// Σ(open sell-order qty) term of I6's post_sell_volume.
func (b *OrderBook) OpenSellQuantity(user string) uint64 {
	var total uint64
	for _, ent := range b.index {
		if ent.order.User == user && ent.order.Side == common.Sell {
			total += ent.order.Quantity
		}
	}
	return total
}

// Volume and CashBalance expose a user's raw, un-derived balance fields,
// used by the session dispatcher's post_buy_budget risk check (I6) and its
// UserBalanceRequest handler.
func (b *OrderBook) Volume(user string) int64 {
	bal, ok := b.balances[user]
	if !ok {
		return 0
	}
	return bal.Volume
}

func (b *OrderBook) CashBalance(user string) decimal.Decimal {
	bal, ok := b.balances[user]
	if !ok {
		return decimal.Zero
	}
	return bal.Balance
}

// PostSellVolume computes I6's post_sell_volume for a user.
func (b *OrderBook) PostSellVolume(user string) int64 {
	return b.Volume(user) - int64(b.OpenSellQuantity(user))
}

// LevelView is one truncated price level in a Snapshot.
type LevelView struct {
	Price  decimal.Decimal `json:"Price"`
	Orders []order.View    `json:"Orders"`
}

// UserBalanceView is the wire projection of a user's per-product balance.
type UserBalanceView struct {
	Balance        decimal.Decimal `json:"balance"`
	Volume         int64           `json:"volume"`
	PostSellVolume int64           `json:"post_sell_volume"`
}

// Snapshot is the dense JSON-like picture of a book at a point in time,
// per §4.1/§6.
type Snapshot struct {
	Product     common.Product             `json:"Product"`
	Bids        []LevelView                `json:"Bids"`
	Asks        []LevelView                `json:"Asks"`
	Timestamp   int64                      `json:"Timestamp"`
	UserBalance map[string]UserBalanceView `json:"UserBalance"`
}

// Snapshot renders the book. depth=-1 means the full book; a positive
// depth truncates each side by number of orders emitted, matching the
// original `jsonify_order_book(depth)` semantics.
func (b *OrderBook) Snapshot(depth int) Snapshot {
	snap := Snapshot{
		Product:     b.Product,
		Timestamp:   b.Timestamp,
		UserBalance: make(map[string]UserBalanceView, len(b.balances)),
	}
	snap.Bids = b.renderSide(b.bids, depth)
	snap.Asks = b.renderSide(b.asks, depth)
	for user, bal := range b.balances {
		snap.UserBalance[user] = UserBalanceView{
			Balance:        bal.Balance,
			Volume:         bal.Volume,
			PostSellVolume: b.PostSellVolume(user),
		}
	}
	return snap
}

func (b *OrderBook) renderSide(tree *btree.BTreeG[*PriceLevel], depth int) []LevelView {
	var out []LevelView
	remaining := depth
	tree.Scan(func(lvl *PriceLevel) bool {
		if depth >= 0 && remaining <= 0 {
			return false
		}
		orders := lvl.Orders()
		if depth >= 0 && remaining < len(orders) {
			orders = orders[:remaining]
		}
		views := make([]order.View, len(orders))
		for i, o := range orders {
			views[i] = o.AsView()
		}
		out = append(out, LevelView{Price: lvl.Price, Orders: views})
		if depth >= 0 {
			remaining -= len(orders)
		}
		return true
	})
	return out
}
