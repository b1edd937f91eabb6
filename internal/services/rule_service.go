package services

import (
	"context"
	"errors"
	"fmt"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
)

// RuleRepository is the rule management side of the store.
type RuleRepository interface {
	RuleStore
	CategoryStore
	ListRules(ctx context.Context, filter core.RuleListFilter) ([]core.RecurringRule, error)
	CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error)
	// UpdateRule returns core.ErrRuleNotFound when rule.ID does not exist.
	UpdateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error)
	DeactivateRule(ctx context.Context, id int64) error
}

// RuleService lets owners manage their recurring rules. A rule owned by
// someone else is reported as core.ErrRuleNotFound.
type RuleService struct {
	repo   RuleRepository
	logger *log.Logger
}

func NewRuleService(repo RuleRepository, logger *log.Logger) *RuleService {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentRecurring)
	}
	return &RuleService{repo: repo, logger: logger}
}

// List returns the owner's rules, active ones first.
func (s *RuleService) List(ctx context.Context, filter core.RuleListFilter) ([]core.RecurringRule, error) {
	rules, err := s.repo.ListRules(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

func (s *RuleService) Get(ctx context.Context, id, userID int64) (*core.RecurringRule, error) {
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrRuleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	if rule.Owner() != userID {
		return nil, core.ErrRuleNotFound
	}
	return rule, nil
}

// Create stores a new active rule owned by rule.CreatedBy.
func (s *RuleService) Create(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	rule.ID = 0
	rule.IsActive = true
	rule.CategoryType = nil
	if err := rule.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	if err := s.checkCategory(ctx, rule.CategoryID); err != nil {
		return core.RecurringRule{}, err
	}

	created, err := s.repo.CreateRule(ctx, rule)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("create rule: %w", err)
	}
	s.logger.InfoContext(ctx, "Recurring rule created",
		log.FieldRuleID, created.ID,
		log.FieldUserID, created.CreatedBy,
		log.FieldFrequency, created.Frequency,
		log.FieldDayRule, created.DayRule)
	return created, nil
}

// Update applies patch to the caller's rule. Transactions already generated
// keep their values.
func (s *RuleService) Update(ctx context.Context, id, userID int64, patch core.RulePatch) (core.RecurringRule, error) {
	current, err := s.Get(ctx, id, userID)
	if err != nil {
		return core.RecurringRule{}, err
	}

	next := patch.Apply(*current)
	if err := next.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	if patch.CategoryID != nil && !patch.ClearCategory {
		if err := s.checkCategory(ctx, next.CategoryID); err != nil {
			return core.RecurringRule{}, err
		}
	}

	updated, err := s.repo.UpdateRule(ctx, next)
	if err != nil {
		if errors.Is(err, core.ErrRuleNotFound) {
			return core.RecurringRule{}, err
		}
		return core.RecurringRule{}, fmt.Errorf("update rule: %w", err)
	}
	s.logger.InfoContext(ctx, "Recurring rule updated",
		log.FieldRuleID, updated.ID,
		log.FieldUserID, userID)
	return updated, nil
}

// Deactivate retires the caller's rule. Its generated transactions stay.
func (s *RuleService) Deactivate(ctx context.Context, id, userID int64) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	if err := s.repo.DeactivateRule(ctx, id); err != nil {
		if errors.Is(err, core.ErrRuleNotFound) {
			return err
		}
		return fmt.Errorf("deactivate rule: %w", err)
	}
	s.logger.InfoContext(ctx, "Recurring rule deactivated",
		log.FieldRuleID, id,
		log.FieldUserID, userID)
	return nil
}

func (s *RuleService) checkCategory(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	t, err := s.repo.CategoryType(ctx, *id)
	if err != nil {
		return fmt.Errorf("check category %d: %w", *id, err)
	}
	if t == nil {
		return core.ErrCategoryNotFound
	}
	return nil
}
