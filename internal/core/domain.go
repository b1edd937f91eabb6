package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"

	Income  CategoryType = "INCOME"
	Expense CategoryType = "EXPENSE"
)

// AutoGeneratedMarker is appended to the memo of every generated transaction.
// The duplicate guard scans for this exact literal.
const AutoGeneratedMarker = "(자동 생성)"

type (
	Frequency    string
	CategoryType string

	// TransactionType mirrors the category type of the ledger entry.
	TransactionType = CategoryType

	Category struct {
		ID   int64
		Name string
		Type CategoryType
	}

	RecurringRule struct {
		ID        int64
		GroupID   *int64
		CreatedBy int64 `validate:"gt=0"`
		StartDate Date
		Frequency Frequency `validate:"oneof=DAILY WEEKLY MONTHLY"`
		DayRule   string    `validate:"required,max=20"`
		Amount    int64     `validate:"gt=0,lte=999999999"`
		// CategoryType is loaded with the rule from its category association.
		CategoryID   *int64
		CategoryType *CategoryType
		Merchant     *string `validate:"omitempty,max=160"`
		Memo         *string `validate:"omitempty,max=1000"`
		IsActive     bool
	}

	// NewTransaction is what the materializer hands to the store.
	NewTransaction struct {
		GroupID             *int64
		OwnerUserID         int64
		Type                TransactionType
		Date                Date
		Amount              int64
		CategoryID          *int64
		Merchant            *string
		Memo                string
		GeneratedFromRuleID *int64
		GeneratedForDate    *Date
	}

	Transaction struct {
		ID int64
		NewTransaction
		CreatedAt time.Time
	}

	// DuplicateKey identifies what a generation for RuleID on Date would produce.
	DuplicateKey struct {
		RuleID      int64
		OwnerUserID int64
		Date        Date
		Amount      int64
		CategoryID  *int64
		Merchant    *string
		Marker      string
	}

	RuleFilter struct {
		AsOf   Date
		RuleID *int64
		UserID *int64
	}

	// RuleListFilter narrows one owner's rule listing.
	RuleListFilter struct {
		UserID   int64
		IsActive *bool
		GroupID  *int64
	}

	// RulePatch holds the fields an owner changes on a rule. Nil fields are
	// left alone; an empty Merchant or Memo clears it.
	RulePatch struct {
		StartDate     *Date
		Frequency     *Frequency
		DayRule       *string
		Amount        *int64
		CategoryID    *int64
		ClearCategory bool
		Merchant      *string
		Memo          *string
		IsActive      *bool
	}

	ProcessOptions struct {
		RuleID *int64
		UserID *int64
	}

	RuleFailure struct {
		RuleID int64  `json:"ruleId,string"`
		Error  string `json:"error"`
	}

	// DateResult summarises one processed calendar day.
	DateResult struct {
		Success  bool          `json:"success"`
		Date     string        `json:"date"`
		Created  int           `json:"created"`
		Skipped  int           `json:"skipped"`
		Failed   int           `json:"failed"`
		Total    int           `json:"total"`
		Failures []RuleFailure `json:"failures,omitempty"`
		Error    string        `json:"error,omitempty"`
	}
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyStartDate       = errors.New("empty start date")
	ErrInvalidRange         = errors.New("start date must not be after end date")
	ErrRuleNotFound         = errors.New("recurring rule not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrCategoryNotFound     = errors.New("category not found")
	ErrDuplicateTransaction = errors.New("transaction already generated for this rule and date")
)

func (f Frequency) IsValid() bool {
	switch f {
	case Daily, Weekly, Monthly:
		return true
	default:
		return false
	}
}

func (c CategoryType) IsValid() bool {
	return c == Income || c == Expense
}

// Owner returns the user the rule's transactions belong to.
func (r RecurringRule) Owner() int64 {
	return r.CreatedBy
}

// GeneratedMemo builds the memo of a transaction materialized from r.
func (r RecurringRule) GeneratedMemo() string {
	memo := ""
	if r.Memo != nil {
		memo = *r.Memo
	}
	return strings.TrimSpace(memo + " " + AutoGeneratedMarker)
}

// DuplicateKey returns the idempotency key for generating r on date.
func (r RecurringRule) DuplicateKey(date Date) DuplicateKey {
	return DuplicateKey{
		RuleID:      r.ID,
		OwnerUserID: r.Owner(),
		Date:        date,
		Amount:      r.Amount,
		CategoryID:  r.CategoryID,
		Merchant:    r.Merchant,
		Marker:      AutoGeneratedMarker,
	}
}

// DeriveTransactionType derives the direction of a generated transaction.
// Only an INCOME category yields INCOME; everything else is EXPENSE.
func DeriveTransactionType(category *CategoryType) TransactionType {
	if category != nil && *category == Income {
		return Income
	}
	return Expense
}

func (r RecurringRule) Validate() error {
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	if r.StartDate.IsZero() {
		return ErrEmptyStartDate
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid recurring rule: %w", err)
	}
	return nil
}

// Apply returns r with the patch's fields set.
func (p RulePatch) Apply(r RecurringRule) RecurringRule {
	if p.StartDate != nil {
		r.StartDate = *p.StartDate
	}
	if p.Frequency != nil {
		r.Frequency = *p.Frequency
	}
	if p.DayRule != nil {
		r.DayRule = *p.DayRule
	}
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	switch {
	case p.ClearCategory:
		r.CategoryID, r.CategoryType = nil, nil
	case p.CategoryID != nil:
		id := *p.CategoryID
		r.CategoryID, r.CategoryType = &id, nil
	}
	if p.Merchant != nil {
		r.Merchant = emptyToNil(*p.Merchant)
	}
	if p.Memo != nil {
		r.Memo = emptyToNil(*p.Memo)
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	return r
}

func emptyToNil(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// RangePolicy decides what a range run does when one day fails.
type RangePolicy string

const (
	// RangeFailFast aborts the range at the first failing day.
	RangeFailFast RangePolicy = "fail-fast"
	// RangeIsolate records the failing day with its error and moves on.
	RangeIsolate RangePolicy = "isolate"
)

func (p RangePolicy) IsValid() bool {
	return p == RangeFailFast || p == RangeIsolate
}
