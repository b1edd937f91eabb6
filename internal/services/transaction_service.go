package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gagyebu/internal/core"
)

// TransactionService turns a due rule into a stored transaction and
// announces it over AMQP when a publisher is configured.
type TransactionService struct {
	transactions TransactionStore
	categories   CategoryStore
	publisher    EventPublisher
}

// NewTransactionService wires the materializer. categories and publisher may be nil.
func NewTransactionService(transactions TransactionStore, categories CategoryStore, publisher EventPublisher) *TransactionService {
	return &TransactionService{
		transactions: transactions,
		categories:   categories,
		publisher:    publisher,
	}
}

// Materialize inserts the transaction generated by rule on date.
// Returns core.ErrDuplicateTransaction when another writer got there first.
func (s *TransactionService) Materialize(ctx context.Context, rule core.RecurringRule, date core.Date) (core.Transaction, error) {
	txType, err := s.transactionType(ctx, rule)
	if err != nil {
		return core.Transaction{}, err
	}

	ruleID := rule.ID
	forDate := date
	created, err := s.transactions.InsertTransaction(ctx, core.NewTransaction{
		GroupID:             rule.GroupID,
		OwnerUserID:         rule.Owner(),
		Type:                txType,
		Date:                date,
		Amount:              rule.Amount,
		CategoryID:          rule.CategoryID,
		Merchant:            rule.Merchant,
		Memo:                rule.GeneratedMemo(),
		GeneratedFromRuleID: &ruleID,
		GeneratedForDate:    &forDate,
	})
	if err != nil {
		if errors.Is(err, core.ErrDuplicateTransaction) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	if err := s.publishGenerated(ctx, created); err != nil {
		slog.ErrorContext(ctx, "Failed to publish generated transaction",
			"transaction_id", created.ID, "rule_id", rule.ID, "error", err)
		// Don't fail the generation - transaction is saved
	}

	return created, nil
}

func (s *TransactionService) transactionType(ctx context.Context, rule core.RecurringRule) (core.TransactionType, error) {
	if rule.CategoryType != nil || rule.CategoryID == nil || s.categories == nil {
		return core.DeriveTransactionType(rule.CategoryType), nil
	}
	categoryType, err := s.categories.CategoryType(ctx, *rule.CategoryID)
	if err != nil {
		return "", fmt.Errorf("load category type: %w", err)
	}
	return core.DeriveTransactionType(categoryType), nil
}

func (s *TransactionService) publishGenerated(ctx context.Context, tx core.Transaction) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping generated message")
		return nil
	}
	return s.publisher.PublishTransactionGenerated(ctx, tx)
}
