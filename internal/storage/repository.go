package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gagyebu/internal/core"

	_ "modernc.org/sqlite"
)

const timestampLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return newRepository(db), nil
}

// newRepository wraps an open, migrated database.
func newRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string, t core.CategoryType) (core.Category, error) {
	if !t.IsValid() {
		return core.Category{}, fmt.Errorf("invalid category type: %s", t)
	}
	c := core.Category{Name: name, Type: t}
	if err := r.db.QueryRowContext(ctx, createCategory, name, string(t)).Scan(&c.ID); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	if err := rule.Validate(); err != nil {
		return core.RecurringRule{}, err
	}

	now := time.Now().UTC().Format(timestampLayout)
	err := r.db.QueryRowContext(ctx, createRule,
		nullInt64(rule.GroupID),
		rule.CreatedBy,
		rule.StartDate.String(),
		string(rule.Frequency),
		rule.DayRule,
		rule.Amount,
		nullInt64(rule.CategoryID),
		nullString(rule.Merchant),
		nullString(rule.Memo),
		rule.IsActive,
		now,
		now,
	).Scan(&rule.ID)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("create rule: %w", err)
	}

	slog.DebugContext(ctx, "Recurring rule saved to SQLite",
		"id", rule.ID,
		"frequency", rule.Frequency,
		"day_rule", rule.DayRule)

	created, err := r.GetRule(ctx, rule.ID)
	if err != nil {
		return core.RecurringRule{}, err
	}
	return *created, nil
}

// UpdateRule overwrites the editable fields of rule.ID.
func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	if err := rule.Validate(); err != nil {
		return core.RecurringRule{}, err
	}

	res, err := r.db.ExecContext(ctx, updateRule,
		rule.StartDate.String(),
		string(rule.Frequency),
		rule.DayRule,
		rule.Amount,
		nullInt64(rule.CategoryID),
		nullString(rule.Merchant),
		nullString(rule.Memo),
		rule.IsActive,
		time.Now().UTC().Format(timestampLayout),
		rule.ID,
	)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("update rule %d: %w", rule.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.RecurringRule{}, core.ErrRuleNotFound
	}

	updated, err := r.GetRule(ctx, rule.ID)
	if err != nil {
		return core.RecurringRule{}, err
	}
	return *updated, nil
}

// DeactivateRule retires a rule. Rules are never hard-deleted.
func (r *SQLiteRepository) DeactivateRule(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deactivateRule, time.Now().UTC().Format(timestampLayout), id)
	if err != nil {
		return fmt.Errorf("deactivate rule %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrRuleNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListActiveRules(ctx context.Context, f core.RuleFilter) ([]core.RecurringRule, error) {
	ruleID, userID := nullInt64(f.RuleID), nullInt64(f.UserID)
	rows, err := r.db.QueryContext(ctx, listActiveRules, f.AsOf.String(), ruleID, ruleID, userID, userID)
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
func (r *SQLiteRepository) ListRules(ctx context.Context, f core.RuleListFilter) ([]core.RecurringRule, error) {
	var active sql.NullBool
	if f.IsActive != nil {
		active = sql.NullBool{Bool: *f.IsActive, Valid: true}
	}
	groupID := nullInt64(f.GroupID)

	rows, err := r.db.QueryContext(ctx, listRules, f.UserID, active, active, groupID, groupID)
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

func (r *SQLiteRepository) GetRule(ctx context.Context, id int64) (*core.RecurringRule, error) {
	rule, err := scanRule(r.db.QueryRowContext(ctx, getRule, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func (r *SQLiteRepository) CategoryType(ctx context.Context, id int64) (*core.CategoryType, error) {
	var t string
	err := r.db.QueryRowContext(ctx, getCategoryType, id).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category type %d: %w", id, err)
	}
	ct := core.CategoryType(t)
	return &ct, nil
}

func (r *SQLiteRepository) FindDuplicate(ctx context.Context, k core.DuplicateKey) (*core.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, findDuplicate,
		k.RuleID,
		k.Date.String(),
		k.OwnerUserID,
		k.Date.String(),
		k.Amount,
		nullInt64(k.CategoryID),
		nullString(k.Merchant),
		k.Marker,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find duplicate: %w", err)
	}
	return &tx, nil
}

// InsertTransaction inserts n unless its (rule, date) link is already taken,
// in which case core.ErrDuplicateTransaction is returned.
func (r *SQLiteRepository) InsertTransaction(ctx context.Context, n core.NewTransaction) (core.Transaction, error) {
	createdAt := time.Now().UTC()
	var forDate any
	if n.GeneratedForDate != nil {
		forDate = n.GeneratedForDate.String()
	}

	tx := core.Transaction{NewTransaction: n, CreatedAt: createdAt}
	err := r.db.QueryRowContext(ctx, insertTransaction,
		nullInt64(n.GroupID),
		n.OwnerUserID,
		string(n.Type),
		n.Date.String(),
		n.Amount,
		nullInt64(n.CategoryID),
		nullString(n.Merchant),
		n.Memo,
		nullInt64(n.GeneratedFromRuleID),
		forDate,
		createdAt.Format(timestampLayout),
	).Scan(&tx.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrDuplicateTransaction
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"date", n.Date.String(),
		"amount", n.Amount)

	return tx, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, getTransaction, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return &tx, nil
}

// ListUnsynced returns up to limit transactions not yet mirrored, oldest first.
func (r *SQLiteRepository) ListUnsynced(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, listUnsynced, limit)
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

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, markSynced, time.Now().UTC().Format(timestampLayout), id); err != nil {
		return fmt.Errorf("mark transaction %d synced: %w", id, err)
	}
	return nil
}
