package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
)

// handleListRules lists the caller's rules, optionally filtered by
// ?isActive=true|false and ?groupId=N.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	filter := core.RuleListFilter{UserID: userID}
	query := r.URL.Query()
	if v := query.Get("isActive"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			BadRequestError("입력 데이터가 올바르지 않습니다").Write(w)
			return
		}
		filter.IsActive = &active
	}
	if v := query.Get("groupId"); v != "" {
		groupID, err := parseID(v)
		if err != nil {
			writeRequestError(w, err)
			return
		}
		filter.GroupID = &groupID
	}

	rules, err := s.rules.List(ctx, filter)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Listing recurring rules failed",
			log.FieldOperation, log.OpListRules,
			log.FieldUserID, userID,
			log.FieldError, err)
		InternalServerError("반복 거래 규칙 조회에 실패했습니다").Write(w)
		return
	}

	dtos := make([]ruleDTO, 0, len(rules))
	for _, rule := range rules {
		dtos = append(dtos, newRuleDTO(rule))
	}
	NewJSONResponse().Data(dtos).Write(w)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req CreateRuleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	rule, err := req.toRule(userID)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	created, err := s.rules.Create(ctx, rule)
	if err != nil {
		if writeRuleError(w, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Creating recurring rule failed",
			log.FieldOperation, log.OpCreateRule,
			log.FieldUserID, userID,
			log.FieldError, err)
		InternalServerError("반복 거래 규칙 생성에 실패했습니다").Write(w)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Data(newRuleDTO(created)).
		Write(w)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	ruleID, err := parseRuleID(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	rule, err := s.rules.Get(ctx, ruleID, userID)
	if err != nil {
		if writeRuleError(w, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Loading recurring rule failed",
			log.FieldRuleID, ruleID,
			log.FieldUserID, userID,
			log.FieldError, err)
		InternalServerError("고정 지출을 가져오는 중 오류가 발생했습니다").Write(w)
		return
	}

	NewJSONResponse().Data(newRuleDTO(*rule)).Write(w)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	ruleID, err := parseRuleID(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	var req UpdateRuleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeRequestError(w, err)
		return
	}

	updated, err := s.rules.Update(ctx, ruleID, userID, patch)
	if err != nil {
		if writeRuleError(w, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Updating recurring rule failed",
			log.FieldOperation, log.OpUpdateRule,
			log.FieldRuleID, ruleID,
			log.FieldUserID, userID,
			log.FieldError, err)
		InternalServerError("고정 지출 수정 중 오류가 발생했습니다").Write(w)
		return
	}

	NewJSONResponse().
		Data(newRuleDTO(updated)).
		Message("고정 지출이 성공적으로 수정되었습니다").
		Write(w)
}

// handleDeleteRule deactivates the rule; generated transactions are kept.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	ruleID, err := parseRuleID(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	if err := s.rules.Deactivate(ctx, ruleID, userID); err != nil {
		if writeRuleError(w, err) {
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Deactivating recurring rule failed",
			log.FieldOperation, log.OpDeleteRule,
			log.FieldRuleID, ruleID,
			log.FieldUserID, userID,
			log.FieldError, err)
		InternalServerError("고정 지출 삭제 중 오류가 발생했습니다").Write(w)
		return
	}

	NewJSONResponse().Message("고정 지출이 성공적으로 삭제되었습니다").Write(w)
}

// writeRuleError answers the domain errors a rule operation can return and
// reports whether it wrote a response.
func writeRuleError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, core.ErrRuleNotFound):
		NotFoundError("반복 거래 규칙을 찾을 수 없습니다").Write(w)
	case errors.Is(err, core.ErrCategoryNotFound):
		BadRequestError("존재하지 않는 카테고리입니다").Write(w)
	case errors.Is(err, core.ErrInvalidAmount):
		BadRequestError("금액은 0보다 커야 합니다").Write(w)
	case errors.Is(err, core.ErrEmptyStartDate):
		BadRequestError("날짜 형식이 올바르지 않습니다").Write(w)
	default:
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return false
		}
		BadRequestError("입력 데이터가 올바르지 않습니다").Write(w)
	}
	return true
}

// ruleDTO renders ids and amounts as strings, like transactionDTO.
type ruleDTO struct {
	ID           string  `json:"id"`
	GroupID      *string `json:"groupId"`
	CreatedBy    string  `json:"createdBy"`
	StartDate    string  `json:"startDate"`
	Frequency    string  `json:"frequency"`
	DayRule      string  `json:"dayRule"`
	Amount       string  `json:"amount"`
	CategoryID   *string `json:"categoryId"`
	CategoryType *string `json:"categoryType"`
	Merchant     *string `json:"merchant"`
	Memo         *string `json:"memo"`
	IsActive     bool    `json:"isActive"`
}

func newRuleDTO(r core.RecurringRule) ruleDTO {
	dto := ruleDTO{
		ID:         strconv.FormatInt(r.ID, 10),
		GroupID:    idString(r.GroupID),
		CreatedBy:  strconv.FormatInt(r.CreatedBy, 10),
		StartDate:  r.StartDate.String(),
		Frequency:  string(r.Frequency),
		DayRule:    r.DayRule,
		Amount:     strconv.FormatInt(r.Amount, 10),
		CategoryID: idString(r.CategoryID),
		Merchant:   r.Merchant,
		Memo:       r.Memo,
		IsActive:   r.IsActive,
	}
	if r.CategoryType != nil {
		t := string(*r.CategoryType)
		dto.CategoryType = &t
	}
	return dto
}
