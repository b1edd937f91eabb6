// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding and validating request bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"gagyebu/internal/core"
)

const maxBodyBytes = 1 << 20

// ProcessRequest is the body of POST /api/recurring-rules/process.
// A range is processed only when both bounds are present.
type ProcessRequest struct {
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartDate string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
}

// IsRange reports whether the request asks for a date range.
func (p ProcessRequest) IsRange() bool {
	return p.StartDate != "" && p.EndDate != ""
}

// GenerateRequest is the body of POST /api/recurring-rules/{id}/generate.
type GenerateRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// CreateRuleRequest is the body of POST /api/recurring-rules. Amounts are
// whole won; categoryId is a decimal string.
type CreateRuleRequest struct {
	StartDate  string `json:"startDate" validate:"required,datetime=2006-01-02"`
	Frequency  string `json:"frequency" validate:"required,oneof=DAILY WEEKLY MONTHLY"`
	DayRule    string `json:"dayRule" validate:"required,max=20"`
	Amount     int64  `json:"amount" validate:"gt=0,lte=999999999"`
	CategoryID string `json:"categoryId"`
	Merchant   string `json:"merchant" validate:"max=160"`
	Memo       string `json:"memo" validate:"max=1000"`
}

func (c CreateRuleRequest) toRule(userID int64) (core.RecurringRule, error) {
	start, err := core.ParseDate(c.StartDate)
	if err != nil {
		return core.RecurringRule{}, &requestError{msg: "날짜 형식이 올바르지 않습니다"}
	}
	rule := core.RecurringRule{
		CreatedBy: userID,
		StartDate: start,
		Frequency: core.Frequency(c.Frequency),
		DayRule:   strings.TrimSpace(c.DayRule),
		Amount:    c.Amount,
		Merchant:  optionalText(c.Merchant),
		Memo:      optionalText(c.Memo),
	}
	if c.CategoryID != "" {
		id, err := parseID(c.CategoryID)
		if err != nil {
			return core.RecurringRule{}, err
		}
		rule.CategoryID = &id
	}
	return rule, nil
}

// UpdateRuleRequest is the body of PUT /api/recurring-rules/{id}. Absent
// fields are left alone; an empty categoryId, merchant or memo clears it.
type UpdateRuleRequest struct {
	StartDate  *string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	Frequency  *string `json:"frequency" validate:"omitempty,oneof=DAILY WEEKLY MONTHLY"`
	DayRule    *string `json:"dayRule" validate:"omitempty,min=1,max=20"`
	Amount     *int64  `json:"amount" validate:"omitempty,gt=0,lte=999999999"`
	CategoryID *string `json:"categoryId"`
	Merchant   *string `json:"merchant" validate:"omitempty,max=160"`
	Memo       *string `json:"memo" validate:"omitempty,max=1000"`
	IsActive   *bool   `json:"isActive"`
}

func (u UpdateRuleRequest) toPatch() (core.RulePatch, error) {
	patch := core.RulePatch{
		DayRule:  u.DayRule,
		Amount:   u.Amount,
		Merchant: u.Merchant,
		Memo:     u.Memo,
		IsActive: u.IsActive,
	}
	if u.StartDate != nil {
		d, err := core.ParseDate(*u.StartDate)
		if err != nil {
			return core.RulePatch{}, &requestError{msg: "날짜 형식이 올바르지 않습니다"}
		}
		patch.StartDate = &d
	}
	if u.Frequency != nil {
		f := core.Frequency(*u.Frequency)
		patch.Frequency = &f
	}
	if u.CategoryID != nil {
		if *u.CategoryID == "" {
			patch.ClearCategory = true
		} else {
			id, err := parseID(*u.CategoryID)
			if err != nil {
				return core.RulePatch{}, err
			}
			patch.CategoryID = &id
		}
	}
	return patch, nil
}

func optionalText(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// requestError is a decoding or validation failure, always a 400.
type requestError struct {
	msg    string
	fields []FieldError
}

func (e *requestError) Error() string { return e.msg }

// decodeAndValidate reads a JSON body into dst and validates it.
// An empty body decodes to the zero value.
func decodeAndValidate(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return &requestError{msg: "요청 본문을 읽을 수 없습니다"}
	}
	if len(body) > maxBodyBytes {
		return &requestError{msg: "요청 본문이 너무 큽니다"}
	}

	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			return &requestError{msg: "요청 형식이 올바르지 않습니다"}
		}
	}

	if err := core.Validator().Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]FieldError, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, FieldError{Field: lowerFirst(fe.Field()), Rule: fe.Tag()})
			}
			return &requestError{msg: "입력 데이터가 올바르지 않습니다", fields: fields}
		}
		return fmt.Errorf("validate request: %w", err)
	}
	return nil
}

// parseRuleID reads the {id} path segment.
func parseRuleID(r *http.Request) (int64, error) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		return 0, &requestError{msg: "올바른 규칙 ID가 아닙니다"}
	}
	return id, nil
}

// parseID reads a positive decimal id.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, &requestError{msg: "올바른 ID가 아닙니다"}
	}
	return id, nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
