// Package state holds the authoritative in-memory project ledger for the
// current process. Every mutation returns the full snapshot that should be
// pushed to the remote document.
package state

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sitecost/internal/core"
)

var (
	ErrBudgetNotFound    = errors.New("budget category not found")
	ErrDuplicateCategory = errors.New("budget category already exists")
)

type Store struct {
	mu           sync.Mutex
	transactions []core.Transaction
	budgets      []core.Budget
	now          func() time.Time
}

func New(budgets []core.Budget) *Store {
	return &Store{budgets: dedupeBudgets(budgets), now: time.Now}
}

// NewSeeded returns a store with the default project budgets and no transactions.
func NewSeeded() *Store {
	return New(core.DefaultBudgets())
}

// SaveTransaction inserts tx at the head of the list, or replaces the entry
// with the same id in place.
func (s *Store) SaveTransaction(tx core.Transaction) (snap core.Snapshot, created bool, err error) {
	tx = tx.Normalize()
	if err := tx.Validate(); err != nil {
		return core.Snapshot{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	created = true
	for i := range s.transactions {
		if s.transactions[i].ID == tx.ID {
			s.transactions[i] = tx
			created = false
			break
		}
	}
	if created {
		s.transactions = append([]core.Transaction{tx}, s.transactions...)
	}
	return s.snapshotLocked(), created, nil
}

// Transaction looks up a transaction by id.
func (s *Store) Transaction(id string) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.transactions {
		if tx.ID == id {
			return tx, true
		}
	}
	return core.Transaction{}, false
}

func (s *Store) UpdateBudget(category string, amount float64) (core.Snapshot, error) {
	b := core.Budget{Category: strings.TrimSpace(category), Amount: amount}
	if err := b.Validate(); err != nil {
		return core.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.budgets {
		if s.budgets[i].Category == b.Category {
			s.budgets[i].Amount = b.Amount
			return s.snapshotLocked(), nil
		}
	}
	return core.Snapshot{}, fmt.Errorf("%w: %s", ErrBudgetNotFound, b.Category)
}

func (s *Store) AddCategory(category string, amount float64) (core.Snapshot, error) {
	b := core.Budget{Category: strings.TrimSpace(category), Amount: amount}
	if err := b.Validate(); err != nil {
		return core.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.budgets {
		if existing.Category == b.Category {
			return core.Snapshot{}, fmt.Errorf("%w: %s", ErrDuplicateCategory, b.Category)
		}
	}
	s.budgets = append(s.budgets, b)
	return s.snapshotLocked(), nil
}

// Replace swaps in a pulled remote document. A nil list in the document leaves
// the corresponding local list as it is.
func (s *Store) Replace(snap core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Transactions != nil {
		s.transactions = dedupeTransactions(snap.Transactions)
	}
	if snap.Budgets != nil {
		s.budgets = dedupeBudgets(snap.Budgets)
	}
}

// Snapshot returns a copy of the current ledger stamped with the current time.
func (s *Store) Snapshot() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() core.Snapshot {
	return core.Snapshot{
		Transactions: append([]core.Transaction{}, s.transactions...),
		Budgets:      append([]core.Budget{}, s.budgets...),
		LastUpdated:  s.now().UTC(),
	}
}

// dedupeTransactions keeps the first occurrence of each id.
func dedupeTransactions(in []core.Transaction) []core.Transaction {
	seen := map[string]struct{}{}
	out := make([]core.Transaction, 0, len(in))
	for _, tx := range in {
		if _, ok := seen[tx.ID]; ok {
			continue
		}
		seen[tx.ID] = struct{}{}
		out = append(out, tx)
	}
	return out
}

func dedupeBudgets(in []core.Budget) []core.Budget {
	seen := map[string]struct{}{}
	out := make([]core.Budget, 0, len(in))
	for _, b := range in {
		b.Category = strings.TrimSpace(b.Category)
		if b.Category == "" {
			continue
		}
		if _, ok := seen[b.Category]; ok {
			continue
		}
		seen[b.Category] = struct{}{}
		out = append(out, b)
	}
	return out
}
