package storage

import (
	"database/sql"
	"fmt"
	"time"

	"gagyebu/internal/core"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (core.RecurringRule, error) {
	var (
		rule         core.RecurringRule
		groupID      sql.NullInt64
		startDate    string
		frequency    string
		categoryID   sql.NullInt64
		categoryType sql.NullString
		merchant     sql.NullString
		memo         sql.NullString
	)
	err := s.Scan(
		&rule.ID,
		&groupID,
		&rule.CreatedBy,
		&startDate,
		&frequency,
		&rule.DayRule,
		&rule.Amount,
		&categoryID,
		&categoryType,
		&merchant,
		&memo,
		&rule.IsActive,
	)
	if err != nil {
		return core.RecurringRule{}, err
	}

	rule.StartDate, err = core.ParseDate(startDate)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("rule %d start date %q: %w", rule.ID, startDate, err)
	}
	rule.Frequency = core.Frequency(frequency)
	rule.GroupID = int64Ptr(groupID)
	rule.CategoryID = int64Ptr(categoryID)
	if categoryType.Valid {
		t := core.CategoryType(categoryType.String)
		rule.CategoryType = &t
	}
	rule.Merchant = stringPtr(merchant)
	rule.Memo = stringPtr(memo)
	return rule, nil
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx         core.Transaction
		groupID    sql.NullInt64
		txType     string
		date       string
		categoryID sql.NullInt64
		merchant   sql.NullString
		ruleID     sql.NullInt64
		forDate    sql.NullString
		createdAt  string
	)
	err := s.Scan(
		&tx.ID,
		&groupID,
		&tx.OwnerUserID,
		&txType,
		&date,
		&tx.Amount,
		&categoryID,
		&merchant,
		&tx.Memo,
		&ruleID,
		&forDate,
		&createdAt,
	)
	if err != nil {
		return core.Transaction{}, err
	}

	if tx.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d date %q: %w", tx.ID, date, err)
	}
	if forDate.Valid {
		d, err := core.ParseDate(forDate.String)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("transaction %d generated date %q: %w", tx.ID, forDate.String, err)
		}
		tx.GeneratedForDate = &d
	}
	if t, err := time.Parse(timestampLayout, createdAt); err == nil {
		tx.CreatedAt = t
	}
	tx.Type = core.TransactionType(txType)
	tx.GroupID = int64Ptr(groupID)
	tx.CategoryID = int64Ptr(categoryID)
	tx.Merchant = stringPtr(merchant)
	tx.GeneratedFromRuleID = int64Ptr(ruleID)
	return tx, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
