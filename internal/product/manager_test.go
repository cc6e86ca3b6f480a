package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputra/lobx/internal/common"
	"github.com/saiputra/lobx/internal/order"
)

func TestManager_BookSnapshotsBeforeMutation(t *testing.T) {
	m := New([]common.Product{"BTC-USD"})

	b, err := m.Book("BTC-USD", true, 1)
	require.NoError(t, err)
	o := order.New("b1", 1, "alice", "BTC-USD", common.Buy, 10, decimal.RequireFromString("100.00"))
	b.Add(&o)

	hist, err := m.History("BTC-USD", -1)
	require.NoError(t, err)
	require.Len(t, hist, 1, "history gets the pre-mutation snapshot, not the post-mutation one")
	assert.Empty(t, hist[0].Bids, "snapshot recorded before add() ran")

	assert.Equal(t, int64(1), b.Timestamp)
}

func TestManager_EngineAlsoSnapshotsBeforeMatch(t *testing.T) {
	m := New([]common.Product{"BTC-USD"})

	e, err := m.Engine("BTC-USD", 5)
	require.NoError(t, err)
	o := order.New("b1", 5, "alice", "BTC-USD", common.Buy, 10, decimal.RequireFromString("100.00"))
	e.Match(&o)

	hist, err := m.History("BTC-USD", -1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Empty(t, hist[0].Bids)

	b, err := m.Book("BTC-USD", false, 0)
	require.NoError(t, err)
	assert.Len(t, b.Snapshot(-1).Bids, 1)
}

func TestManager_UnknownProductErrors(t *testing.T) {
	m := New([]common.Product{"BTC-USD"})
	_, err := m.Book("ETH-USD", false, 0)
	assert.Error(t, err)
	_, err = m.Engine("ETH-USD", 1)
	assert.Error(t, err)
	_, err = m.History("ETH-USD", -1)
	assert.Error(t, err)
}

func TestManager_HistoryTruncation(t *testing.T) {
	m := New([]common.Product{"BTC-USD"})
	for i := int64(1); i <= 3; i++ {
		_, err := m.Book("BTC-USD", true, i)
		require.NoError(t, err)
	}
	last, err := m.History("BTC-USD", 2)
	require.NoError(t, err)
	assert.Len(t, last, 2)

	all, err := m.History("BTC-USD", -1)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
