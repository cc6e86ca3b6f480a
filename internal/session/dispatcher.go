// Package session implements the SessionDispatcher: the single entry
// point that turns a decoded protocol.Message into pre-trade risk checks,
// a matching-engine call, fee assessment, and a response, per spec.md
// §4.5.
package session

import (
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/saiputra/lobx/internal/book"
	"github.com/saiputra/lobx/internal/broadcast"
	"github.com/saiputra/lobx/internal/common"
	"github.com/saiputra/lobx/internal/engine"
	"github.com/saiputra/lobx/internal/metrics"
	"github.com/saiputra/lobx/internal/order"
	"github.com/saiputra/lobx/internal/product"
	"github.com/saiputra/lobx/internal/protocol"
	"github.com/saiputra/lobx/internal/user"
)

// Clock supplies wall-clock nanoseconds; swappable in tests.
type Clock func() int64

// Dispatcher is the single decoded-message entry point shared by the
// trading and quote sessions (§4.5/§5): trading sessions drive every
// message type, quote sessions are expected to only ever send the
// read-only subset, but the dispatcher itself does not enforce that split
// — the transport layer decides which socket a client lands on.
type Dispatcher struct {
	products      *product.Manager
	users         *user.Registry
	broadcasters  map[common.Product]*broadcast.Broadcaster
	fixedFee      decimal.Decimal
	percentageFee decimal.Decimal
	now           Clock
	log           zerolog.Logger
	metrics       *metrics.Collector

	mu          sync.Mutex // serializes Dispatch: one in-flight operation at a time
	nextOrderID int64
}

// New builds a dispatcher. broadcasters must have one entry per product
// known to products. mtr may be nil, in which case metrics recording is
// skipped (used by tests that don't need a Prometheus registry).
func New(products *product.Manager, users *user.Registry, broadcasters map[common.Product]*broadcast.Broadcaster, fixedFee, percentageFee decimal.Decimal, now Clock, log zerolog.Logger, mtr *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		products:      products,
		users:         users,
		broadcasters:  broadcasters,
		fixedFee:      fixedFee,
		percentageFee: percentageFee,
		now:           now,
		log:           log,
		metrics:       mtr,
	}
}

// SetNextOrderID seeds the monotonic order-id counter, used by --load
// recovery to resume at max(existing ids)+1 (§9).
func (d *Dispatcher) SetNextOrderID(n int64) {
	atomic.StoreInt64(&d.nextOrderID, n)
}

func (d *Dispatcher) allocOrderID() string {
	id := atomic.AddInt64(&d.nextOrderID, 1) - 1
	return strconv.FormatInt(id, 10)
}

// Dispatch routes msg to its handler and returns exactly one response
// message, per the pseudocode contract in §4.5. Calls are serialized, so
// the risk check and the match it guards see the same book state even when
// several connections dispatch at once. Handlers that mutate a book
// broadcast the resulting snapshot themselves; the caller only encodes and
// sends the returned response.
func (d *Dispatcher) Dispatch(requester string, msg protocol.Message) protocol.Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch m := msg.(type) {
	case protocol.RegisterRequest:
		return d.handleRegister(m)
	}

	if !d.users.Exists(requester) {
		return d.reject("", "unknown user")
	}

	switch m := msg.(type) {
	case protocol.NewOrderSingle:
		return d.handleNewOrder(requester, m)
	case protocol.OrderCancelRequest:
		return d.handleCancel(requester, m)
	case protocol.OrderModifyRequestQty:
		return d.handleModifyQty(requester, m)
	case protocol.OrderStatusRequest:
		return d.handleStatus(m)
	case protocol.MarketDataRequest:
		return d.handleSnapshot(m)
	case protocol.UserOrderStatusRequest:
		return d.handleUserOrders(m)
	case protocol.UserBalanceRequest:
		return d.handleUserBalance(m)
	case protocol.CaptureReportRequest:
		return d.handleCapture(m)
	case protocol.InitializeLiquidityEngineRequest:
		return d.handleInitializeLiquidityEngine(m)
	default:
		return d.reject("", "unsupported message type")
	}
}

func (d *Dispatcher) reject(orderID, reason string) protocol.Message {
	return protocol.Reject{OrderID: orderID, Reason: reason}
}

func (d *Dispatcher) handleRegister(m protocol.RegisterRequest) protocol.Message {
	id := d.users.RegisterNew(m.UserName, m.Budget)
	d.log.Info().Str("user", id).Str("name", m.UserName).Msg("user registered")
	if d.metrics != nil {
		d.metrics.SetActiveUsers(d.users.Count())
	}
	return protocol.RegisterResponse{UserID: id}
}

// recordOrder reports one NewOrderSingle's outcome and processing latency,
// a no-op if the dispatcher wasn't built with a metrics collector.
func (d *Dispatcher) recordOrder(product, outcome string, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordOrder(product, outcome, float64(time.Since(start).Microseconds())/1000.0)
}

// recordBookDepth reports both sides' resting-order counts after a
// book-mutating operation, a no-op if the dispatcher wasn't built with a
// metrics collector.
func (d *Dispatcher) recordBookDepth(product common.Product, b *book.OrderBook) {
	if d.metrics == nil {
		return
	}
	d.metrics.SetBookDepth(string(product), "buy", b.Depth(common.Buy))
	d.metrics.SetBookDepth(string(product), "sell", b.Depth(common.Sell))
}

// handleNewOrder runs the pre-trade risk checks of §4.5 before calling the
// matching engine, then assesses the fee and broadcasts a snapshot on any
// non-Rejected outcome.
func (d *Dispatcher) handleNewOrder(requester string, m protocol.NewOrderSingle) protocol.Message {
	start := time.Now()
	outcome := "rejected"
	defer func() { d.recordOrder(m.Product, outcome, start) }()

	if !d.products.HasProduct(common.Product(m.Product)) {
		return protocol.ExecutionReport{ExecStatus: protocol.ExecStatusRejected}
	}
	side, ok := sideFromWire(m.Side)
	if !ok || m.Quantity == 0 || !m.Price.IsPositive() {
		return protocol.ExecutionReport{ExecStatus: protocol.ExecStatusRejected}
	}

	b, err := d.products.Book(common.Product(m.Product), false, 0)
	if err != nil {
		return protocol.ExecutionReport{ExecStatus: protocol.ExecStatusRejected}
	}
	rec, _ := d.users.Get(requester)

	postBuyBudget := rec.Budget.Add(b.CashBalance(requester)).Sub(b.OpenBuyNotional(requester))
	postSellVolume := b.PostSellVolume(requester)

	notional := m.Price.Mul(decimal.NewFromInt(int64(m.Quantity)))
	if side == common.Buy && postBuyBudget.LessThan(notional) {
		return protocol.ExecutionReport{ExecStatus: protocol.ExecStatusRejected}
	}
	if side == common.Sell && postSellVolume < int64(m.Quantity) {
		return protocol.ExecutionReport{ExecStatus: protocol.ExecStatusRejected}
	}

	ts := d.now()
	orderID := d.allocOrderID()
	o := order.New(orderID, ts, requester, common.Product(m.Product), side, m.Quantity, m.Price)

	eng, err := d.products.Engine(common.Product(m.Product), ts)
	if err != nil {
		return protocol.ExecutionReport{ExecStatus: protocol.ExecStatusRejected}
	}
	result := eng.Match(&o)
	if result.Outcome == engine.Rejected {
		return protocol.ExecutionReport{OrderID: orderID, ExecStatus: protocol.ExecStatusRejected}
	}

	fee := d.fixedFee.Add(notional.Mul(d.percentageFee))
	rec.Budget = rec.Budget.Sub(fee)
	d.users.SetBudget(requester, rec.Budget)
	d.users.IncrementOrders(requester)

	d.broadcastSnapshot(common.Product(m.Product), b)
	d.recordBookDepth(common.Product(m.Product), b)

	status := protocol.ExecStatusFilled
	outcome = "filled"
	if result.Outcome == engine.Resting {
		status = protocol.ExecStatusResting
		outcome = "resting"
	}
	sideWire := m.Side
	qty := o.Quantity
	price := o.Price
	return protocol.ExecutionReport{OrderID: orderID, ExecStatus: status, Side: &sideWire, Quantity: &qty, Price: &price}
}

func (d *Dispatcher) handleCancel(requester string, m protocol.OrderCancelRequest) protocol.Message {
	b, err := d.products.Book(common.Product(m.Product), true, d.now())
	if err != nil {
		return protocol.ExecutionReport{OrderID: m.OrderID, ExecStatus: protocol.ExecStatusRejected}
	}
	if resting, ok := b.GetOrder(m.OrderID); !ok || resting.User != requester {
		return protocol.ExecutionReport{OrderID: m.OrderID, ExecStatus: protocol.ExecStatusRejected}
	}
	ok := b.Cancel(m.OrderID)
	if !ok {
		return protocol.ExecutionReport{OrderID: m.OrderID, ExecStatus: protocol.ExecStatusRejected}
	}
	d.broadcastSnapshot(common.Product(m.Product), b)
	d.recordBookDepth(common.Product(m.Product), b)
	return protocol.ExecutionReport{OrderID: m.OrderID, ExecStatus: protocol.ExecStatusCanceled}
}

func (d *Dispatcher) handleModifyQty(requester string, m protocol.OrderModifyRequestQty) protocol.Message {
	b, err := d.products.Book(common.Product(m.Product), true, d.now())
	if err != nil {
		return protocol.ExecutionReport{OrderID: m.OrderID, ExecStatus: protocol.ExecStatusRejected}
	}
	resting, ok := b.GetOrder(m.OrderID)
	if !ok || resting.User != requester {
		return protocol.ExecutionReport{OrderID: m.OrderID, ExecStatus: protocol.ExecStatusRejected}
	}
	if !b.ModifyQty(m.OrderID, m.NewQuantity) {
		return protocol.ExecutionReport{OrderID: m.OrderID, ExecStatus: protocol.ExecStatusRejected}
	}
	d.broadcastSnapshot(common.Product(m.Product), b)
	d.recordBookDepth(common.Product(m.Product), b)
	qty := m.NewQuantity
	return protocol.ExecutionReport{OrderID: m.OrderID, ExecStatus: protocol.ExecStatusReplaced, Quantity: &qty}
}

func (d *Dispatcher) handleStatus(m protocol.OrderStatusRequest) protocol.Message {
	b, err := d.products.Book(common.Product(m.Product), false, 0)
	if err != nil {
		return protocol.ExecutionReport{OrderID: m.OrderID, ExecStatus: protocol.ExecStatusRejected}
	}
	resting, ok := b.GetOrder(m.OrderID)
	if !ok {
		return protocol.ExecutionReport{OrderID: m.OrderID, ExecStatus: protocol.ExecStatusRejected}
	}
	sideWire := sideToWire(resting.Side)
	qty := resting.Quantity
	price := resting.Price
	return protocol.ExecutionReport{OrderID: m.OrderID, ExecStatus: protocol.ExecStatusResting, Side: &sideWire, Quantity: &qty, Price: &price}
}

func (d *Dispatcher) handleSnapshot(m protocol.MarketDataRequest) protocol.Message {
	b, err := d.products.Book(common.Product(m.Product), false, 0)
	if err != nil {
		return protocol.MarketDataSnapshot{Product: m.Product, Payload: json.RawMessage("{}")}
	}
	payload, _ := json.Marshal(b.Snapshot(m.Depth))
	return protocol.MarketDataSnapshot{Product: m.Product, Payload: payload}
}

func (d *Dispatcher) handleUserOrders(m protocol.UserOrderStatusRequest) protocol.Message {
	b, err := d.products.Book(common.Product(m.Product), false, 0)
	if err != nil {
		return protocol.UserOrderStatus{Product: m.Product, Payload: json.RawMessage("[]")}
	}
	orders := b.OrdersForUser(m.User)
	views := make([]order.View, len(orders))
	for i, o := range orders {
		views[i] = o.AsView()
	}
	payload, _ := json.Marshal(views)
	return protocol.UserOrderStatus{Product: m.Product, Payload: payload}
}

func (d *Dispatcher) handleUserBalance(m protocol.UserBalanceRequest) protocol.Message {
	b, err := d.products.Book(common.Product(m.Product), false, 0)
	if err != nil {
		return protocol.CollateralReport{Payload: json.RawMessage("{}")}
	}
	view := book.UserBalanceView{
		Balance:        b.CashBalance(m.User),
		Volume:         b.Volume(m.User),
		PostSellVolume: b.PostSellVolume(m.User),
	}
	payload, _ := json.Marshal(view)
	return protocol.CollateralReport{Payload: payload}
}

func (d *Dispatcher) handleCapture(m protocol.CaptureReportRequest) protocol.Message {
	hist, err := d.products.History(common.Product(m.Product), m.HistoryLen)
	if err != nil {
		return protocol.TradeCaptureReport{Payload: json.RawMessage("[]")}
	}
	payload, _ := json.Marshal(hist)
	return protocol.TradeCaptureReport{Payload: payload}
}

// handleInitializeLiquidityEngine seeds a product's book with deterministic
// two-sided quotes from the reserved liquidity_generator identity. Unlike
// handleNewOrder this skips pre-trade risk checks and fees entirely: it is
// an admin-style operation run before any real user trades, not a trade
// itself, and liquidity_generator always carries a zero budget.
func (d *Dispatcher) handleInitializeLiquidityEngine(m protocol.InitializeLiquidityEngineRequest) protocol.Message {
	product := common.Product(m.Product)
	if !d.products.HasProduct(product) || m.NumOrders <= 0 || m.OrderSize == 0 {
		return protocol.MarketDataSnapshot{Product: m.Product, Payload: json.RawMessage("{}")}
	}

	b, err := d.products.Book(product, false, 0)
	if err != nil {
		return protocol.MarketDataSnapshot{Product: m.Product, Payload: json.RawMessage("{}")}
	}

	for i := 1; i <= m.NumOrders; i++ {
		step := m.Spread.Mul(decimal.NewFromInt(int64(i)))
		ts := d.now()
		orderID := d.allocOrderID()
		bid := order.New(orderID, ts, user.LiquidityGenerator, product, common.Buy, m.OrderSize, m.StartingPrice.Sub(step))
		eng, err := d.products.Engine(product, ts)
		if err != nil {
			break
		}
		eng.Match(&bid)

		ts = d.now()
		orderID = d.allocOrderID()
		ask := order.New(orderID, ts, user.LiquidityGenerator, product, common.Sell, m.OrderSize, m.StartingPrice.Add(step))
		eng, err = d.products.Engine(product, ts)
		if err != nil {
			break
		}
		eng.Match(&ask)
	}

	d.log.Info().Str("product", m.Product).Int("num_orders", m.NumOrders).Msg("liquidity engine initialized")
	d.broadcastSnapshot(product, b)
	d.recordBookDepth(product, b)
	payload, _ := json.Marshal(b.Snapshot(-1))
	return protocol.MarketDataSnapshot{Product: m.Product, Payload: payload}
}

func (d *Dispatcher) broadcastSnapshot(product common.Product, b *book.OrderBook) {
	bc, ok := d.broadcasters[product]
	if !ok {
		return
	}
	payload, err := json.Marshal(b.Snapshot(-1))
	if err != nil {
		d.log.Error().Err(err).Msg("failed to marshal snapshot for broadcast")
		return
	}
	bc.Broadcast(payload)
}

func sideFromWire(v int) (common.Side, bool) {
	switch v {
	case 1:
		return common.Buy, true
	case 2:
		return common.Sell, true
	default:
		return 0, false
	}
}

func sideToWire(s common.Side) int {
	if s == common.Buy {
		return 1
	}
	return 2
}
