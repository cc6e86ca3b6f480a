// Package persistence serializes exchange state to disk on shutdown and
// restores it on startup with --load, per spec.md §4.8/§6.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saiputra/lobx/internal/book"
	"github.com/saiputra/lobx/internal/common"
	"github.com/saiputra/lobx/internal/user"
)

const fileSuffix = "-server_data.json"

// productData is one product's persisted slice: its full snapshot history.
// Per-user balances travel inside each snapshot; book.Restore reads them
// from the last one.
type productData struct {
	History []book.Snapshot `json:"history"`
}

// fileFormat is the on-disk layout: one entry per product plus the user
// registry, matching §6's "Persisted state layout".
type fileFormat struct {
	Products map[common.Product]productData `json:"products"`
	Users    map[string]userRecord           `json:"users"`
}

type userRecord struct {
	Name          string          `json:"name"`
	Budget        decimal.Decimal `json:"budget"`
	PostBuyBudget decimal.Decimal `json:"post_buy_budget"`
	NumOrders     uint64          `json:"num_orders"`
}

// Store writes/reads persisted exchange state under a directory.
type Store struct {
	dir string
}

// New creates a store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Histories is the shape the caller (cmd/server) supplies to Save: each
// product's full append-only history as held by product.Manager.
type Histories map[common.Product][]book.Snapshot

// Save writes one timestamped file containing every product's history and
// the registry records of the users listed in userIDs (ids the registry
// does not know are skipped). now is the UTC timestamp embedded in the
// filename, in the compact 20060102T150405Z form, which has no colons
// since colons are awkward on some filesystems.
func (s *Store) Save(now time.Time, histories Histories, registry *user.Registry, userIDs []string) (string, error) {
	ff := fileFormat{
		Products: make(map[common.Product]productData, len(histories)),
		Users:    make(map[string]userRecord, len(userIDs)),
	}
	for product, hist := range histories {
		ff.Products[product] = productData{History: hist}
	}
	for _, id := range userIDs {
		rec, ok := registry.Get(id)
		if !ok {
			continue
		}
		ff.Users[id] = userRecord{
			Name:          rec.Name,
			Budget:        rec.Budget,
			PostBuyBudget: rec.PostBuyBudget,
			NumOrders:     rec.NumOrders,
		}
	}

	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return "", fmt.Errorf("persistence: marshal: %w", err)
	}

	name := now.UTC().Format("20060102T150405Z") + fileSuffix
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("persistence: write %s: %w", path, err)
	}
	return path, nil
}

// Loaded is the result of restoring the newest persisted file.
type Loaded struct {
	Path    string
	Books   map[common.Product]*book.OrderBook
	History map[common.Product][]book.Snapshot
	Users   map[string]userRecord
}

// LoadLatest locates the newest *-server_data.json file in dir and
// rebuilds each product's live book from the last snapshot in its
// history. If no file is found (or it fails to parse), ok is false and
// the caller should start empty and log a warning (spec.md §9's decision
// on this Open Question).
func (s *Store) LoadLatest() (Loaded, bool, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Loaded{}, false, nil
		}
		return Loaded{}, false, fmt.Errorf("persistence: read dir: %w", err)
	}

	var candidates []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), fileSuffix) {
			candidates = append(candidates, e.Name())
		}
	}
	if len(candidates) == 0 {
		return Loaded{}, false, nil
	}
	sort.Strings(candidates) // the timestamp prefix sorts lexicographically by time
	newest := candidates[len(candidates)-1]

	path := filepath.Join(s.dir, newest)
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, false, fmt.Errorf("persistence: read %s: %w", path, err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return Loaded{}, false, fmt.Errorf("persistence: parse %s: %w", path, err)
	}

	out := Loaded{
		Path:    path,
		Books:   make(map[common.Product]*book.OrderBook, len(ff.Products)),
		History: make(map[common.Product][]book.Snapshot, len(ff.Products)),
		Users:   ff.Users,
	}
	for product, pd := range ff.Products {
		out.History[product] = pd.History
		if len(pd.History) == 0 {
			out.Books[product] = book.New(product)
			continue
		}
		out.Books[product] = book.Restore(pd.History[len(pd.History)-1])
	}
	return out, true, nil
}

// MaxOrderID scans every restored book's order_index for the greatest
// numeric id, so the caller can resume the order-id counter at max+1
// (spec.md §9). Order ids that don't parse as integers are ignored.
func MaxOrderID(books map[common.Product]*book.OrderBook) int64 {
	var max int64 = -1
	for _, b := range books {
		for _, o := range b.AllOrders() {
			id, err := strconv.ParseInt(o.ID, 10, 64)
			if err != nil {
				continue
			}
			if id > max {
				max = id
			}
		}
	}
	return max
}
