package protocol

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	enc := NewCodec("server", "client-1")
	frame, err := enc.Encode(msg, 1700000000000000)
	require.NoError(t, err)

	dec := NewCodec("client-1", "server")
	got, ok, err := dec.Push(frame)
	require.NoError(t, err)
	require.True(t, ok)
	return got
}

func TestCodec_NewOrderSingleRoundTrip(t *testing.T) {
	price := decimal.RequireFromString("100.50")
	msg := NewOrderSingle{Product: "BTC-USD", Side: 1, Quantity: 10, Price: price}

	got := roundTrip(t, msg)
	order, ok := got.(NewOrderSingle)
	require.True(t, ok)
	assert.Equal(t, "BTC-USD", order.Product)
	assert.Equal(t, 1, order.Side)
	assert.Equal(t, uint64(10), order.Quantity)
	assert.True(t, price.Equal(order.Price))
	assert.Equal(t, TypeNewOrderSingle, order.Header().MsgType)
}

func TestCodec_ExecutionReportWithOptionalFields(t *testing.T) {
	side := 2
	qty := uint64(5)
	price := decimal.RequireFromString("42.00")
	msg := ExecutionReport{OrderID: "7", ExecStatus: ExecStatusResting, Side: &side, Quantity: &qty, Price: &price}

	got := roundTrip(t, msg)
	er, ok := got.(ExecutionReport)
	require.True(t, ok)
	assert.Equal(t, "7", er.OrderID)
	assert.Equal(t, ExecStatusResting, er.ExecStatus)
	require.NotNil(t, er.Side)
	assert.Equal(t, 2, *er.Side)
	require.NotNil(t, er.Quantity)
	assert.Equal(t, uint64(5), *er.Quantity)
	require.NotNil(t, er.Price)
	assert.True(t, price.Equal(*er.Price))
}

func TestCodec_ExecutionReportWithoutOptionalFields(t *testing.T) {
	msg := ExecutionReport{OrderID: "1", ExecStatus: ExecStatusRejected}
	got := roundTrip(t, msg)
	er := got.(ExecutionReport)
	assert.Nil(t, er.Side)
	assert.Nil(t, er.Quantity)
	assert.Nil(t, er.Price)
}

func TestCodec_PushAccumulatesPartialChunks(t *testing.T) {
	enc := NewCodec("server", "client-1")
	frame, err := enc.Encode(OrderCancelRequest{Product: "BTC-USD", OrderID: "99"}, 1)
	require.NoError(t, err)

	dec := NewCodec("client-1", "server")
	_, ok, err := dec.Push(frame[:3])
	require.NoError(t, err)
	assert.False(t, ok, "incomplete length prefix yields no message yet")

	msg, ok, err := dec.Push(frame[3:])
	require.NoError(t, err)
	require.True(t, ok)
	cancel := msg.(OrderCancelRequest)
	assert.Equal(t, "99", cancel.OrderID)
}

func TestCodec_PushDrainsMultipleBufferedFrames(t *testing.T) {
	enc := NewCodec("server", "client-1")
	f1, err := enc.Encode(OrderCancelRequest{Product: "BTC-USD", OrderID: "1"}, 1)
	require.NoError(t, err)
	f2, err := enc.Encode(OrderCancelRequest{Product: "BTC-USD", OrderID: "2"}, 2)
	require.NoError(t, err)

	dec := NewCodec("client-1", "server")
	both := append(append([]byte(nil), f1...), f2...)

	msg1, ok, err := dec.Push(both)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", msg1.(OrderCancelRequest).OrderID)

	msg2, ok, err := dec.Push(nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", msg2.(OrderCancelRequest).OrderID)
}

// TestCodec_RoundTripRemainingCatalogueTypes covers every message-type code
// in messages.go not already exercised above, per spec.md §8's "Encode∘Decode
// is identity on every message type in the catalogue."
func TestCodec_RoundTripRemainingCatalogueTypes(t *testing.T) {
	price := decimal.RequireFromString("101.25")
	spread := decimal.RequireFromString("0.50")
	budget := decimal.RequireFromString("5000.00")

	cases := []struct {
		name  string
		msg   Message
		check func(t *testing.T, got Message)
	}{
		{
			name: "RegisterRequest",
			msg:  RegisterRequest{UserName: "alice", Budget: budget},
			check: func(t *testing.T, got Message) {
				m := got.(RegisterRequest)
				assert.Equal(t, "alice", m.UserName)
				assert.True(t, budget.Equal(m.Budget))
			},
		},
		{
			name: "OrderModifyRequestQty",
			msg:  OrderModifyRequestQty{Product: "BTC-USD", OrderID: "42", NewQuantity: 3},
			check: func(t *testing.T, got Message) {
				m := got.(OrderModifyRequestQty)
				assert.Equal(t, "BTC-USD", m.Product)
				assert.Equal(t, "42", m.OrderID)
				assert.Equal(t, uint64(3), m.NewQuantity)
			},
		},
		{
			name: "OrderStatusRequest",
			msg:  OrderStatusRequest{Product: "BTC-USD", OrderID: "7"},
			check: func(t *testing.T, got Message) {
				m := got.(OrderStatusRequest)
				assert.Equal(t, "BTC-USD", m.Product)
				assert.Equal(t, "7", m.OrderID)
			},
		},
		{
			name: "MarketDataRequest",
			msg:  MarketDataRequest{Product: "BTC-USD", Depth: 5},
			check: func(t *testing.T, got Message) {
				m := got.(MarketDataRequest)
				assert.Equal(t, "BTC-USD", m.Product)
				assert.Equal(t, 5, m.Depth)
			},
		},
		{
			name: "MarketDataRequest full depth",
			msg:  MarketDataRequest{Product: "BTC-USD", Depth: -1},
			check: func(t *testing.T, got Message) {
				m := got.(MarketDataRequest)
				assert.Equal(t, -1, m.Depth)
			},
		},
		{
			name: "UserOrderStatusRequest",
			msg:  UserOrderStatusRequest{Product: "BTC-USD", User: "u-1"},
			check: func(t *testing.T, got Message) {
				m := got.(UserOrderStatusRequest)
				assert.Equal(t, "BTC-USD", m.Product)
				assert.Equal(t, "u-1", m.User)
			},
		},
		{
			name: "UserBalanceRequest",
			msg:  UserBalanceRequest{Product: "BTC-USD", User: "u-1"},
			check: func(t *testing.T, got Message) {
				m := got.(UserBalanceRequest)
				assert.Equal(t, "BTC-USD", m.Product)
				assert.Equal(t, "u-1", m.User)
			},
		},
		{
			name: "CaptureReportRequest",
			msg:  CaptureReportRequest{Product: "BTC-USD", HistoryLen: 10},
			check: func(t *testing.T, got Message) {
				m := got.(CaptureReportRequest)
				assert.Equal(t, "BTC-USD", m.Product)
				assert.Equal(t, 10, m.HistoryLen)
			},
		},
		{
			name: "InitializeLiquidityEngineRequest",
			msg: InitializeLiquidityEngineRequest{
				Product:       "BTC-USD",
				StartingPrice: price,
				Spread:        spread,
				NumOrders:     4,
				OrderSize:     25,
			},
			check: func(t *testing.T, got Message) {
				m := got.(InitializeLiquidityEngineRequest)
				assert.Equal(t, "BTC-USD", m.Product)
				assert.True(t, price.Equal(m.StartingPrice))
				assert.True(t, spread.Equal(m.Spread))
				assert.Equal(t, 4, m.NumOrders)
				assert.Equal(t, uint64(25), m.OrderSize)
			},
		},
		{
			name: "RegisterResponse",
			msg:  RegisterResponse{UserID: "u-99"},
			check: func(t *testing.T, got Message) {
				assert.Equal(t, "u-99", got.(RegisterResponse).UserID)
			},
		},
		{
			name: "Reject",
			msg:  Reject{OrderID: "13", Reason: "unknown user"},
			check: func(t *testing.T, got Message) {
				m := got.(Reject)
				assert.Equal(t, "13", m.OrderID)
				assert.Equal(t, "unknown user", m.Reason)
			},
		},
		{
			name: "MarketDataSnapshot",
			msg:  MarketDataSnapshot{Product: "BTC-USD", Payload: json.RawMessage(`{"Bids":[],"Asks":[]}`)},
			check: func(t *testing.T, got Message) {
				m := got.(MarketDataSnapshot)
				assert.Equal(t, "BTC-USD", m.Product)
				assert.JSONEq(t, `{"Bids":[],"Asks":[]}`, string(m.Payload))
			},
		},
		{
			name: "UserOrderStatus",
			msg:  UserOrderStatus{Product: "BTC-USD", Payload: json.RawMessage(`[{"ID":"1"}]`)},
			check: func(t *testing.T, got Message) {
				m := got.(UserOrderStatus)
				assert.Equal(t, "BTC-USD", m.Product)
				assert.JSONEq(t, `[{"ID":"1"}]`, string(m.Payload))
			},
		},
		{
			name: "CollateralReport",
			msg:  CollateralReport{Payload: json.RawMessage(`{"balance":"10.00"}`)},
			check: func(t *testing.T, got Message) {
				m := got.(CollateralReport)
				assert.JSONEq(t, `{"balance":"10.00"}`, string(m.Payload))
			},
		},
		{
			name: "TradeCaptureReport",
			msg:  TradeCaptureReport{Payload: json.RawMessage(`[{"Timestamp":1}]`)},
			check: func(t *testing.T, got Message) {
				m := got.(TradeCaptureReport)
				assert.JSONEq(t, `[{"Timestamp":1}]`, string(m.Payload))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := roundTrip(t, tc.msg)
			require.Equal(t, tc.msg.msgType(), got.Header().MsgType)
			tc.check(t, got)
		})
	}
}

func TestCodec_SeqNumIncrementsPerEncode(t *testing.T) {
	c := NewCodec("server", "client-1")
	_, err := c.Encode(OrderCancelRequest{Product: "BTC-USD", OrderID: "1"}, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.seqNum)
	_, err = c.Encode(OrderCancelRequest{Product: "BTC-USD", OrderID: "2"}, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c.seqNum)
}
