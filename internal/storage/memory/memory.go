// Package memory is an in-process store for rules and transactions.
// It enforces the same (rule, date) uniqueness as the SQL stores.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gagyebu/internal/core"
)

type linkKey struct {
	ruleID int64
	date   string
}

type Store struct {
	mu         sync.Mutex
	nextID     int64
	categories map[int64]core.Category
	rules      map[int64]core.RecurringRule
	items      []core.Transaction
	links      map[linkKey]int64
	synced     map[int64]time.Time
}

func New() *Store {
	return &Store{
		categories: make(map[int64]core.Category),
		rules:      make(map[int64]core.RecurringRule),
		links:      make(map[linkKey]int64),
		synced:     make(map[int64]time.Time),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateCategory(_ context.Context, name string, t core.CategoryType) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := core.Category{ID: s.id(), Name: name, Type: t}
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) CreateRule(_ context.Context, r core.RecurringRule) (core.RecurringRule, error) {
	if err := r.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	r.CategoryType = nil
	s.rules[r.ID] = r
	return s.withCategory(r), nil
}

func (s *Store) UpdateRule(_ context.Context, r core.RecurringRule) (core.RecurringRule, error) {
	if err := r.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.rules[r.ID]
	if !ok {
		return core.RecurringRule{}, core.ErrRuleNotFound
	}
	r.CreatedBy, r.GroupID = old.CreatedBy, old.GroupID
	r.CategoryType = nil
	s.rules[r.ID] = r
	return s.withCategory(r), nil
}

func (s *Store) DeactivateRule(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return core.ErrRuleNotFound
	}
	r.IsActive = false
	s.rules[id] = r
	return nil
}

func (s *Store) withCategory(r core.RecurringRule) core.RecurringRule {
	if r.CategoryID != nil {
		if c, ok := s.categories[*r.CategoryID]; ok {
			t := c.Type
			r.CategoryType = &t
		}
	}
	return r
}

func (s *Store) ListActiveRules(_ context.Context, f core.RuleFilter) ([]core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurringRule
	for _, r := range s.rules {
		if !r.IsActive || r.StartDate.After(f.AsOf) {
			continue
		}
		if f.RuleID != nil && r.ID != *f.RuleID {
			continue
		}
		if f.UserID != nil && r.CreatedBy != *f.UserID {
			continue
		}
		out = append(out, s.withCategory(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListRules returns the owner's rules, active ones first, newest first.
func (s *Store) ListRules(_ context.Context, f core.RuleListFilter) ([]core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurringRule
	for _, r := range s.rules {
		if r.CreatedBy != f.UserID {
			continue
		}
		if f.IsActive != nil && r.IsActive != *f.IsActive {
			continue
		}
		if f.GroupID != nil && !sameID(r.GroupID, f.GroupID) {
			continue
		}
		out = append(out, s.withCategory(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsActive != out[j].IsActive {
			return out[i].IsActive
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) GetRule(_ context.Context, id int64) (*core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, core.ErrRuleNotFound
	}
	r = s.withCategory(r)
	return &r, nil
}

func (s *Store) CategoryType(_ context.Context, id int64) (*core.CategoryType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, nil
	}
	t := c.Type
	return &t, nil
}

func (s *Store) FindDuplicate(_ context.Context, k core.DuplicateKey) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.links[linkKey{k.RuleID, k.Date.String()}]; ok {
		if tx, found := s.find(id); found {
			return &tx, nil
		}
	}
	for _, tx := range s.items {
		if tx.GeneratedFromRuleID == nil &&
			tx.OwnerUserID == k.OwnerUserID &&
			tx.Date.Equal(k.Date) &&
			tx.Amount == k.Amount &&
			sameID(tx.CategoryID, k.CategoryID) &&
			sameString(tx.Merchant, k.Merchant) &&
			strings.Contains(tx.Memo, k.Marker) {
			found := tx
			return &found, nil
		}
	}
	return nil, nil
}

// find scans for a transaction; ids are shared with rules and categories.
func (s *Store) find(id int64) (core.Transaction, bool) {
	for _, tx := range s.items {
		if tx.ID == id {
			return tx, true
		}
	}
	return core.Transaction{}, false
}

func (s *Store) InsertTransaction(_ context.Context, n core.NewTransaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var key linkKey
	if n.GeneratedFromRuleID != nil && n.GeneratedForDate != nil {
		key = linkKey{*n.GeneratedFromRuleID, n.GeneratedForDate.String()}
		if _, taken := s.links[key]; taken {
			return core.Transaction{}, core.ErrDuplicateTransaction
		}
	}
	tx := core.Transaction{ID: s.id(), NewTransaction: n, CreatedAt: time.Now().UTC()}
	s.items = append(s.items, tx)
	if key.ruleID != 0 {
		s.links[key] = tx.ID
	}
	return tx, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, found := s.find(id); found {
		return &tx, nil
	}
	return nil, core.ErrTransactionNotFound
}

// ListUnsynced returns up to limit transactions not yet mirrored, oldest first.
func (s *Store) ListUnsynced(_ context.Context, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.items {
		if _, done := s.synced[tx.ID]; done {
			continue
		}
		out = append(out, tx)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkSynced(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced[id] = time.Now().UTC()
	return nil
}

// Transactions returns a copy of everything stored.
func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.items...)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
