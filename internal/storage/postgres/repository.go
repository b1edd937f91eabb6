// Package postgres stores rules and transactions in PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gagyebu/internal/core"
)

type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository connects to databaseURL and applies migrations.
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) CreateCategory(ctx context.Context, name string, t core.CategoryType) (core.Category, error) {
	if !t.IsValid() {
		return core.Category{}, fmt.Errorf("invalid category type: %s", t)
	}
	c := core.Category{Name: name, Type: t}
	if err := r.pool.QueryRow(ctx, createCategory, name, string(t)).Scan(&c.ID); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *Repository) CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	if err := rule.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	err := r.pool.QueryRow(ctx, createRule,
		rule.GroupID,
		rule.CreatedBy,
		rule.StartDate.String(),
		string(rule.Frequency),
		rule.DayRule,
		rule.Amount,
		rule.CategoryID,
		rule.Merchant,
		rule.Memo,
		rule.IsActive,
	).Scan(&rule.ID)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("create rule: %w", err)
	}

	slog.DebugContext(ctx, "Recurring rule saved to Postgres",
		"id", rule.ID,
		"frequency", rule.Frequency,
		"day_rule", rule.DayRule)

	created, err := r.GetRule(ctx, rule.ID)
	if err != nil {
		return core.RecurringRule{}, err
	}
	return *created, nil
}

func (r *Repository) UpdateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	if err := rule.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	tag, err := r.pool.Exec(ctx, updateRule,
		rule.StartDate.String(),
		string(rule.Frequency),
		rule.DayRule,
		rule.Amount,
		rule.CategoryID,
		rule.Merchant,
		rule.Memo,
		rule.IsActive,
		rule.ID,
	)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("update rule %d: %w", rule.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return core.RecurringRule{}, core.ErrRuleNotFound
	}

	updated, err := r.GetRule(ctx, rule.ID)
	if err != nil {
		return core.RecurringRule{}, err
	}
	return *updated, nil
}

func (r *Repository) DeactivateRule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deactivateRule, id)
	if err != nil {
		return fmt.Errorf("deactivate rule %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrRuleNotFound
	}
	return nil
}

func (r *Repository) ListActiveRules(ctx context.Context, f core.RuleFilter) ([]core.RecurringRule, error) {
	rows, err := r.pool.Query(ctx, listActiveRules, f.AsOf.String(), f.RuleID, f.UserID)
	if err != nil {
		return nil, fmt.Errorf("query active rules: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active rules: %w", err)
	}
	return out, nil
}

// ListRules returns the owner's rules, active ones first, newest first.
func (r *Repository) ListRules(ctx context.Context, f core.RuleListFilter) ([]core.RecurringRule, error) {
	rows, err := r.pool.Query(ctx, listRules, f.UserID, f.IsActive, f.GroupID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

func (r *Repository) GetRule(ctx context.Context, id int64) (*core.RecurringRule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, getRule, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %d: %w", id, err)
	}
	return &rule, nil
}

func (r *Repository) CategoryType(ctx context.Context, id int64) (*core.CategoryType, error) {
	var t string
	err := r.pool.QueryRow(ctx, getCategoryType, id).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category type %d: %w", id, err)
	}
	ct := core.CategoryType(t)
	return &ct, nil
}

func (r *Repository) FindDuplicate(ctx context.Context, k core.DuplicateKey) (*core.Transaction, error) {
	tx, err := scanTransaction(r.pool.QueryRow(ctx, findDuplicate,
		k.RuleID,
		k.Date.String(),
		k.OwnerUserID,
		k.Amount,
		k.CategoryID,
		k.Merchant,
		k.Marker,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find duplicate: %w", err)
	}
	return &tx, nil
}

// InsertTransaction inserts n unless its (rule, date) link is already taken,
// in which case core.ErrDuplicateTransaction is returned.
func (r *Repository) InsertTransaction(ctx context.Context, n core.NewTransaction) (core.Transaction, error) {
	var forDate *string
	if n.GeneratedForDate != nil {
		s := n.GeneratedForDate.String()
		forDate = &s
	}

	tx := core.Transaction{NewTransaction: n}
	err := r.pool.QueryRow(ctx, insertTransaction,
		n.GroupID,
		n.OwnerUserID,
		string(n.Type),
		n.Date.String(),
		n.Amount,
		n.CategoryID,
		n.Merchant,
		n.Memo,
		n.GeneratedFromRuleID,
		forDate,
	).Scan(&tx.ID, &tx.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.ErrDuplicateTransaction
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to Postgres",
		"id", tx.ID,
		"date", n.Date.String(),
		"amount", n.Amount)

	return tx, nil
}

func (r *Repository) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	tx, err := scanTransaction(r.pool.QueryRow(ctx, getTransaction, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return &tx, nil
}

func (r *Repository) ListUnsynced(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx, listUnsynced, limit)
	if err != nil {
		return nil, fmt.Errorf("query unsynced transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsynced transactions: %w", err)
	}
	return out, nil
}

func (r *Repository) MarkSynced(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, markSynced, id); err != nil {
		return fmt.Errorf("mark transaction %d synced: %w", id, err)
	}
	return nil
}

func scanRule(row pgx.Row) (core.RecurringRule, error) {
	var (
		rule         core.RecurringRule
		startDate    time.Time
		frequency    string
		categoryType *string
	)
	err := row.Scan(
		&rule.ID,
		&rule.GroupID,
		&rule.CreatedBy,
		&startDate,
		&frequency,
		&rule.DayRule,
		&rule.Amount,
		&rule.CategoryID,
		&categoryType,
		&rule.Merchant,
		&rule.Memo,
		&rule.IsActive,
	)
	if err != nil {
		return core.RecurringRule{}, err
	}
	rule.StartDate = core.DateOf(startDate)
	rule.Frequency = core.Frequency(frequency)
	if categoryType != nil {
		t := core.CategoryType(*categoryType)
		rule.CategoryType = &t
	}
	return rule, nil
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		tx      core.Transaction
		txType  string
		date    time.Time
		forDate *time.Time
	)
	err := row.Scan(
		&tx.ID,
		&tx.GroupID,
		&tx.OwnerUserID,
		&txType,
		&date,
		&tx.Amount,
		&tx.CategoryID,
		&tx.Merchant,
		&tx.Memo,
		&tx.GeneratedFromRuleID,
		&forDate,
		&tx.CreatedAt,
	)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(txType)
	tx.Date = core.DateOf(date)
	if forDate != nil {
		d := core.DateOf(*forDate)
		tx.GeneratedForDate = &d
	}
	return tx, nil
}
