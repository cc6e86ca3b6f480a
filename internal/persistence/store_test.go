package persistence

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputra/lobx/internal/book"
	"github.com/saiputra/lobx/internal/common"
	"github.com/saiputra/lobx/internal/order"
	"github.com/saiputra/lobx/internal/user"
)

func TestStore_SaveThenLoadLatestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	b := book.New("BTC-USD")
	o := order.New("1", 1, "alice", "BTC-USD", common.Buy, 10, decimal.RequireFromString("100.00"))
	b.Add(&o)
	b.ApplyFill("alice", decimal.RequireFromString("-50.00"), 1)

	histories := Histories{"BTC-USD": {b.Snapshot(-1)}}

	reg := user.New()
	aliceID := reg.RegisterNew("alice", decimal.RequireFromString("1000.00"))

	path, err := s.Save(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), histories, reg, []string{aliceID})
	require.NoError(t, err)
	assert.Contains(t, path, "20260102T030405Z-server_data.json")

	loaded, ok, err := s.LoadLatest()
	require.NoError(t, err)
	require.True(t, ok)

	restored, present := loaded.Books["BTC-USD"]
	require.True(t, present)
	snap := restored.Snapshot(-1)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, "1", snap.Bids[0].Orders[0].ID)

	aliceRec, ok := loaded.Users[aliceID]
	require.True(t, ok)
	assert.Equal(t, "alice", aliceRec.Name)
}

func TestStore_LoadLatestWithNoFilesReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	_, ok, err := s.LoadLatest()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_LoadLatestPicksNewestByTimestamp(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	reg := user.New()
	older := Histories{"BTC-USD": {book.New("BTC-USD").Snapshot(-1)}}
	_, err = s.Save(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), older, reg, nil)
	require.NoError(t, err)

	b := book.New("BTC-USD")
	o := order.New("42", 1, "bob", "BTC-USD", common.Sell, 5, decimal.RequireFromString("10.00"))
	b.Add(&o)
	newer := Histories{"BTC-USD": {b.Snapshot(-1)}}
	_, err = s.Save(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), newer, reg, nil)
	require.NoError(t, err)

	loaded, ok, err := s.LoadLatest()
	require.NoError(t, err)
	require.True(t, ok)
	snap := loaded.Books["BTC-USD"].Snapshot(-1)
	require.Len(t, snap.Asks, 1, "should have picked the newer file's book, not the older empty one")
}

func TestMaxOrderID(t *testing.T) {
	b1 := book.New("BTC-USD")
	o1 := order.New("5", 1, "alice", "BTC-USD", common.Buy, 1, decimal.RequireFromString("1.00"))
	b1.Add(&o1)
	b2 := book.New("ETH-USD")
	o2 := order.New("12", 1, "bob", "ETH-USD", common.Sell, 1, decimal.RequireFromString("1.00"))
	b2.Add(&o2)

	max := MaxOrderID(map[common.Product]*book.OrderBook{"BTC-USD": b1, "ETH-USD": b2})
	assert.Equal(t, int64(12), max)
}

func TestMaxOrderID_EmptyBooksReturnsNegativeOne(t *testing.T) {
	max := MaxOrderID(map[common.Product]*book.OrderBook{"BTC-USD": book.New("BTC-USD")})
	assert.Equal(t, int64(-1), max)
}
