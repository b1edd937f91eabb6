package services

import (
	"context"
	"fmt"

	"gagyebu/internal/core"
)

// DuplicateGuard tells whether a generation for a rule and date already happened.
type DuplicateGuard struct {
	store TransactionStore
}

func NewDuplicateGuard(store TransactionStore) *DuplicateGuard {
	return &DuplicateGuard{store: store}
}

// Exists is a pure read. It does not reserve the key; the store's unique
// (rule, date) index is what makes a concurrent insert lose.
func (g *DuplicateGuard) Exists(ctx context.Context, key core.DuplicateKey) (bool, error) {
	tx, err := g.store.FindDuplicate(ctx, key)
	if err != nil {
		return false, fmt.Errorf("find duplicate: %w", err)
	}
	return tx != nil, nil
}
