package services

import (
	"context"

	"gagyebu/internal/core"
)

// RuleStore loads recurring rules.
type RuleStore interface {
	// ListActiveRules returns active rules with StartDate <= filter.AsOf,
	// narrowed by the optional filters, ordered by id.
	ListActiveRules(ctx context.Context, filter core.RuleFilter) ([]core.RecurringRule, error)
	// GetRule returns core.ErrRuleNotFound when id does not exist.
	GetRule(ctx context.Context, id int64) (*core.RecurringRule, error)
}

// TransactionStore persists ledger transactions.
type TransactionStore interface {
	// FindDuplicate returns nil, nil when no matching transaction exists.
	FindDuplicate(ctx context.Context, key core.DuplicateKey) (*core.Transaction, error)
	// InsertTransaction returns core.ErrDuplicateTransaction when the
	// (rule, date) link already exists.
	InsertTransaction(ctx context.Context, tx core.NewTransaction) (core.Transaction, error)
}

type CategoryStore interface {
	// CategoryType returns nil, nil when the category does not exist.
	CategoryType(ctx context.Context, id int64) (*core.CategoryType, error)
}

// Store is everything the scheduler needs from persistence.
type Store interface {
	RuleStore
	TransactionStore
	CategoryStore
}

// EventPublisher announces generated transactions to other processes.
type EventPublisher interface {
	PublishTransactionGenerated(ctx context.Context, tx core.Transaction) error
}
