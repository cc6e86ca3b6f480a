// Package product owns the per-product (OrderBook, MatchingEngine,
// history) triple, per spec.md §4.3. History is an append-only audit
// trail of pre-mutation snapshots, taken before the caller's matching or
// cancel/modify operation runs.
package product

import (
	"fmt"

	"github.com/saiputra/lobx/internal/book"
	"github.com/saiputra/lobx/internal/common"
	"github.com/saiputra/lobx/internal/engine"
)

type productState struct {
	book    *book.OrderBook
	engine  *engine.MatchingEngine
	history []book.Snapshot
}

// Manager owns every configured product's book, engine, and history.
type Manager struct {
	products map[common.Product]*productState
}

// New creates a manager with one empty book per product, per the
// INITIAL_BUDGET-free construction the original TradingProductManager
// performs at startup.
func New(products []common.Product) *Manager {
	m := &Manager{products: make(map[common.Product]*productState, len(products))}
	for _, p := range products {
		b := book.New(p)
		m.products[p] = &productState{
			book:   b,
			engine: engine.New(b),
		}
	}
	return m
}

func (m *Manager) state(product common.Product) (*productState, bool) {
	st, ok := m.products[product]
	return st, ok
}

// HasProduct reports whether product is configured.
func (m *Manager) HasProduct(product common.Product) bool {
	_, ok := m.products[product]
	return ok
}

// Products lists every configured product.
func (m *Manager) Products() []common.Product {
	out := make([]common.Product, 0, len(m.products))
	for p := range m.products {
		out = append(out, p)
	}
	return out
}

// Book returns the live book for product. If saveHistory is true it
// advances the book's timestamp to ts and appends a pre-state snapshot to
// history before returning — the caller's mutation has not happened yet.
func (m *Manager) Book(product common.Product, saveHistory bool, ts int64) (*book.OrderBook, error) {
	st, ok := m.state(product)
	if !ok {
		return nil, fmt.Errorf("product %q not found", product)
	}
	if saveHistory {
		m.snapshotBefore(st, ts)
	}
	return st.book, nil
}

// Engine sets the book's timestamp to ts, appends a pre-mutation snapshot
// to history, and returns the matching engine bound to that book.
func (m *Manager) Engine(product common.Product, ts int64) (*engine.MatchingEngine, error) {
	st, ok := m.state(product)
	if !ok {
		return nil, fmt.Errorf("product %q not found", product)
	}
	m.snapshotBefore(st, ts)
	return st.engine, nil
}

func (m *Manager) snapshotBefore(st *productState, ts int64) {
	st.history = append(st.history, st.book.Snapshot(-1))
	st.book.Timestamp = ts
}

// History returns the last n snapshots for product; n=-1 returns all.
func (m *Manager) History(product common.Product, n int) ([]book.Snapshot, error) {
	st, ok := m.state(product)
	if !ok {
		return nil, fmt.Errorf("product %q not found", product)
	}
	if n == -1 || n >= len(st.history) {
		out := make([]book.Snapshot, len(st.history))
		copy(out, st.history)
		return out, nil
	}
	return append([]book.Snapshot(nil), st.history[len(st.history)-n:]...), nil
}

// RestoreFromSnapshot replaces a product's live book and history wholesale
// (used by persistence.Load), rebuilding order_index via book.Restore.
func (m *Manager) RestoreFromSnapshot(product common.Product, history []book.Snapshot, restored *book.OrderBook) error {
	st, ok := m.state(product)
	if !ok {
		return fmt.Errorf("product %q not found", product)
	}
	st.history = history
	st.book = restored
	st.engine = engine.New(restored)
	return nil
}
