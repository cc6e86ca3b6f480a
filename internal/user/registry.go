// Package user implements the global UserRegistry: user identity, cash
// budget, and order counters, per spec.md §4.4. Cash/volume that is
// scoped to a single product lives in internal/book's per-product balance
// map instead (see SPEC_FULL.md's Open Question decision on balance
// scoping); this registry only ever holds the user-global fields.
package user

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketMaker and LiquidityGenerator are the two reserved identities every
// registry pre-registers with zero budget, mirroring the original
// UserManager's unconditional seeding of these two accounts.
const (
	MarketMaker        = "market_maker"
	LiquidityGenerator = "liquidity_generator"
)

// Record is one user's registry entry.
type Record struct {
	Name          string
	ID            string
	Budget        decimal.Decimal
	PostBuyBudget decimal.Decimal
	NumOrders     uint64
}

// Registry maps user id to Record. It is not sharded per product — any
// goroutine driving more than one product's event loop concurrently must
// serialize its own access (spec.md §5).
type Registry struct {
	mu    sync.Mutex
	users map[string]*Record
}

// New creates a registry pre-seeded with the market_maker and
// liquidity_generator accounts, both at zero budget.
func New() *Registry {
	r := &Registry{users: make(map[string]*Record)}
	r.Register(MarketMaker, MarketMaker, decimal.Zero)
	r.Register(LiquidityGenerator, LiquidityGenerator, decimal.Zero)
	return r
}

// Register adds a user with the given id, name, and starting budget,
// overwriting any existing record for that id.
func (r *Registry) Register(name, id string, budget decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = &Record{Name: name, ID: id, Budget: budget, PostBuyBudget: budget}
}

// RegisterNew mints a fresh uuid.New() identity for name at budget and
// returns the assigned id — the RegisterRequest handler's path (§6).
func (r *Registry) RegisterNew(name string, budget decimal.Decimal) string {
	id := uuid.New().String()
	r.Register(name, id, budget)
	return id
}

// Count reports how many users are registered, including the reserved
// market_maker/liquidity_generator identities, for ambient metrics
// reporting (SPEC_FULL §2).
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Exists reports whether id is a known user.
func (r *Registry) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[id]
	return ok
}

// LookupByName returns a registered id for name, if any. Names are not
// guaranteed unique; when several users share a name, which of their ids
// is returned is not defined.
func (r *Registry) LookupByName(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.users {
		if rec.Name == name {
			return id, true
		}
	}
	return "", false
}

// Get returns a copy of a user's registry record.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.users[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// SetBudget overwrites a user's budget (admin-style operation).
func (r *Registry) SetBudget(id string, budget decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user %q not found", id)
	}
	rec.Budget = budget
	return nil
}

// IncrementOrders bumps a user's lifetime order counter by one.
func (r *Registry) IncrementOrders(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user %q not found", id)
	}
	rec.NumOrders++
	return nil
}

// SetPostBuyBudget overwrites a user's stored post_buy_budget; cmd/server
// calls it when restoring persisted state. The session dispatcher computes
// post_buy_budget from the live book (I6) for each new order and does not
// update this field.
func (r *Registry) SetPostBuyBudget(id string, postBuyBudget decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user %q not found", id)
	}
	rec.PostBuyBudget = postBuyBudget
	return nil
}
