package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputra/lobx/internal/book"
	"github.com/saiputra/lobx/internal/common"
	"github.com/saiputra/lobx/internal/order"
)

func px(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newOrder(id string, ts int64, user string, side common.Side, qty uint64, price string) *order.Order {
	o := order.New(id, ts, user, "BTC-USD", side, qty, px(price))
	return &o
}

func TestMatch_RestsWhenBookEmpty(t *testing.T) {
	b := book.New("BTC-USD")
	e := New(b)

	res := e.Match(newOrder("b1", 1, "alice", common.Buy, 10, "99.00"))
	assert.Equal(t, Resting, res.Outcome)
	assert.Empty(t, res.Fills)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(px("99.00")))
}

func TestMatch_FullFillAtRestingPrice(t *testing.T) {
	b := book.New("BTC-USD")
	e := New(b)

	require.Equal(t, Resting, e.Match(newOrder("s1", 1, "bob", common.Sell, 100, "100.00")).Outcome)

	res := e.Match(newOrder("b1", 2, "alice", common.Buy, 100, "105.00"))
	require.Equal(t, Filled, res.Outcome)
	require.Len(t, res.Fills, 1)
	fill := res.Fills[0]
	assert.True(t, fill.Price.Equal(px("100.00")), "execution price is the resting order's price")
	assert.Equal(t, uint64(100), fill.Quantity)
	assert.Equal(t, "bob", fill.Maker)
	assert.Equal(t, "alice", fill.Taker)

	_, restingLeft := b.GetOrder("s1")
	assert.False(t, restingLeft)

	snap := b.Snapshot(-1)
	assert.True(t, snap.UserBalance["alice"].Balance.Equal(px("-10000.00")))
	assert.Equal(t, int64(100), snap.UserBalance["alice"].Volume)
	assert.True(t, snap.UserBalance["bob"].Balance.Equal(px("10000.00")))
	assert.Equal(t, int64(-100), snap.UserBalance["bob"].Volume)
}

func TestMatch_PartialFillLeavesHeadRestingWithPriority(t *testing.T) {
	b := book.New("BTC-USD")
	e := New(b)

	require.Equal(t, Resting, e.Match(newOrder("s1", 1, "bob", common.Sell, 100, "100.00")).Outcome)

	res := e.Match(newOrder("b1", 2, "alice", common.Buy, 40, "100.00"))
	require.Equal(t, Filled, res.Outcome)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, uint64(40), res.Fills[0].Quantity)

	remaining, ok := b.GetOrder("s1")
	require.True(t, ok)
	assert.Equal(t, uint64(60), remaining.Quantity)
}

func TestMatch_AggressorPartiallyFillsThenRests(t *testing.T) {
	b := book.New("BTC-USD")
	e := New(b)

	require.Equal(t, Resting, e.Match(newOrder("s1", 1, "bob", common.Sell, 30, "100.00")).Outcome)

	res := e.Match(newOrder("b1", 2, "alice", common.Buy, 100, "100.00"))
	require.Equal(t, Resting, res.Outcome)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, uint64(30), res.Fills[0].Quantity)

	resting, ok := b.GetOrder("b1")
	require.True(t, ok)
	assert.Equal(t, uint64(70), resting.Quantity)
}

func TestMatch_SweepsMultipleLevelsInPriceOrder(t *testing.T) {
	b := book.New("BTC-USD")
	e := New(b)

	require.Equal(t, Resting, e.Match(newOrder("s1", 1, "bob", common.Sell, 50, "100.00")).Outcome)
	require.Equal(t, Resting, e.Match(newOrder("s2", 2, "carol", common.Sell, 50, "101.00")).Outcome)

	res := e.Match(newOrder("b1", 3, "alice", common.Buy, 75, "101.00"))
	require.Equal(t, Filled, res.Outcome)
	require.Len(t, res.Fills, 2)
	assert.True(t, res.Fills[0].Price.Equal(px("100.00")))
	assert.Equal(t, uint64(50), res.Fills[0].Quantity)
	assert.True(t, res.Fills[1].Price.Equal(px("101.00")))
	assert.Equal(t, uint64(25), res.Fills[1].Quantity)
}

func TestMatch_PriceIncompatibleRests(t *testing.T) {
	b := book.New("BTC-USD")
	e := New(b)

	require.Equal(t, Resting, e.Match(newOrder("s1", 1, "bob", common.Sell, 50, "101.00")).Outcome)

	res := e.Match(newOrder("b1", 2, "alice", common.Buy, 50, "100.00"))
	assert.Equal(t, Resting, res.Outcome)
	assert.Empty(t, res.Fills)

	_, stillResting := b.GetOrder("s1")
	assert.True(t, stillResting)
}

func TestMatch_RejectsInvalidSide(t *testing.T) {
	b := book.New("BTC-USD")
	e := New(b)

	bad := newOrder("x1", 1, "alice", common.Side(7), 1, "100.00")
	res := e.Match(bad)
	assert.Equal(t, Rejected, res.Outcome)
}
