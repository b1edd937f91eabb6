package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gagyebu/internal/core"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/ledger?sslmode=disable", migrateURL("postgres://u:p@db:5432/ledger?sslmode=disable"))
	assert.Equal(t, "pgx5://db/ledger", migrateURL("postgresql://db/ledger"))
	assert.Equal(t, "pgx5://db/ledger", migrateURL("pgx5://db/ledger"))
}

// newTestRepo needs a disposable database; its tables are truncated.
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	repo, err := NewRepository(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	_, err = repo.pool.Exec(ctx, `TRUNCATE transactions, recurring_rules, categories RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return repo
}

func TestRepository_GeneratedTransactions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	cat, err := repo.CreateCategory(ctx, "월세", core.Expense)
	require.NoError(t, err)
	merchant := "집주인"
	rule, err := repo.CreateRule(ctx, core.RecurringRule{
		CreatedBy:  7,
		StartDate:  core.NewDate(2025, 1, 1),
		Frequency:  core.Monthly,
		DayRule:    "매월 말일",
		Amount:     800000,
		CategoryID: &cat.ID,
		Merchant:   &merchant,
		IsActive:   true,
	})
	require.NoError(t, err)
	require.NotNil(t, rule.CategoryType)
	assert.Equal(t, core.Expense, *rule.CategoryType)

	rules, err := repo.ListActiveRules(ctx, core.RuleFilter{AsOf: core.NewDate(2025, 2, 28)})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "2025-01-01", rules[0].StartDate.String())

	date := core.NewDate(2025, 2, 28)
	ruleID := rule.ID
	n := core.NewTransaction{
		OwnerUserID:         7,
		Type:                core.Expense,
		Date:                date,
		Amount:              rule.Amount,
		CategoryID:          rule.CategoryID,
		Merchant:            rule.Merchant,
		Memo:                rule.GeneratedMemo(),
		GeneratedFromRuleID: &ruleID,
		GeneratedForDate:    &date,
	}
	tx, err := repo.InsertTransaction(ctx, n)
	require.NoError(t, err)
	assert.False(t, tx.CreatedAt.IsZero())

	_, err = repo.InsertTransaction(ctx, n)
	assert.ErrorIs(t, err, core.ErrDuplicateTransaction)

	found, err := repo.FindDuplicate(ctx, rule.DuplicateKey(date))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, tx.ID, found.ID)
	assert.Equal(t, "2025-02-28", found.GeneratedForDate.String())

	pending, err := repo.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, repo.MarkSynced(ctx, tx.ID))
	pending, err = repo.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	rule.DayRule = "매월 25일"
	rule.Merchant = nil
	updated, err := repo.UpdateRule(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, "매월 25일", updated.DayRule)
	assert.Nil(t, updated.Merchant)

	listed, err := repo.ListRules(ctx, core.RuleListFilter{UserID: 7, IsActive: &rule.IsActive})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, repo.DeactivateRule(ctx, rule.ID))
	rules, err = repo.ListActiveRules(ctx, core.RuleFilter{AsOf: date})
	require.NoError(t, err)
	assert.Empty(t, rules)

	_, err = repo.GetTransaction(ctx, 9999)
	assert.ErrorIs(t, err, core.ErrTransactionNotFound)
}
