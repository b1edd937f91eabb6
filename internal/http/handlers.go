package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Data(map[string]any{
			"status": "ok",
			"uptime": time.Since(s.startedAt).Round(time.Second).String(),
		}).
		Timestamp(time.Now().Format(time.RFC3339)).
		Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	status, httpStatus := "ready", http.StatusOK

	if s.store == nil {
		checks["store"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.store.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
		checks["store"] = "failed: " + err.Error()
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	}

	NewJSONResponse().
		Status(httpStatus).
		Data(map[string]any{"status": status, "checks": checks}).
		Timestamp(time.Now().Format(time.RFC3339)).
		Write(w)
}

// handleMetrics provides scheduler and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	outcomes := s.metrics.Snapshot()

	w.WriteHeader(http.StatusOK)

	// Prometheus text format
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP recurring_rule_outcomes_total Recurring rule outcomes by kind\n")
	fmt.Fprintf(w, "# TYPE recurring_rule_outcomes_total counter\n")
	fmt.Fprintf(w, "recurring_rule_outcomes_total{outcome=\"matched\"} %d\n", outcomes.Matched)
	fmt.Fprintf(w, "recurring_rule_outcomes_total{outcome=\"created\"} %d\n", outcomes.Created)
	fmt.Fprintf(w, "recurring_rule_outcomes_total{outcome=\"duplicate_skipped\"} %d\n", outcomes.Skipped)
	fmt.Fprintf(w, "recurring_rule_outcomes_total{outcome=\"error\"} %d\n", outcomes.Failed)
	fmt.Fprintf(w, "recurring_rule_outcomes_total{outcome=\"unrecognized\"} %d\n\n", outcomes.Unrecognized)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.startedAt).Seconds())
}

// authenticate writes the 401 itself and reports false when the caller is
// not a signed-in user.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := s.auth.UserID(r)
	switch {
	case errors.Is(err, ErrMissingToken):
		UnauthorizedError("인증이 필요합니다").Write(w)
		return 0, false
	case err != nil:
		UnauthorizedError("유효하지 않은 토큰입니다").Write(w)
		return 0, false
	}
	return userID, true
}

// writeRequestError answers a decode or validation failure with 400.
func writeRequestError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		resp := BadRequestError(reqErr.msg)
		if len(reqErr.fields) > 0 {
			resp.Details(reqErr.fields)
		}
		resp.Write(w)
		return
	}
	BadRequestError("입력 데이터가 올바르지 않습니다").Write(w)
}

// handleProcess runs the scheduler for the caller's rules on one date or
// on an inclusive date range.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req ProcessRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	if req.IsRange() {
		start, _ := core.ParseDate(req.StartDate)
		end, _ := core.ParseDate(req.EndDate)
		if start.After(end) {
			BadRequestError("시작 날짜는 종료 날짜보다 이전이어야 합니다").Write(w)
			return
		}
		if core.DaysBetween(start, end) > s.maxRangeDays {
			BadRequestError(fmt.Sprintf("처리 기간은 최대 %d일까지만 가능합니다", s.maxRangeDays)).Write(w)
			return
		}

		results, err := s.recurring.ProcessForRange(ctx, start, end, &userID)
		if err != nil {
			logger.ErrorContext(ctx, "Recurring range processing failed",
				log.FieldOperation, log.OpProcessRange,
				log.FieldUserID, userID,
				log.FieldStartDate, req.StartDate,
				log.FieldEndDate, req.EndDate,
				log.FieldError, err)
			InternalServerError("반복 거래 처리에 실패했습니다").Write(w)
			return
		}
		NewJSONResponse().Data(results).Message("반복 거래 처리가 완료되었습니다").Write(w)
		return
	}

	date := s.recurring.Today()
	if req.Date != "" {
		date, _ = core.ParseDate(req.Date)
	}

	result, err := s.recurring.ProcessForDate(ctx, date, core.ProcessOptions{UserID: &userID})
	if err != nil {
		logger.ErrorContext(ctx, "Recurring processing failed",
			log.FieldOperation, log.OpProcessDate,
			log.FieldUserID, userID,
			log.FieldDate, date.String(),
			log.FieldError, err)
		InternalServerError("반복 거래 처리에 실패했습니다").Write(w)
		return
	}
	NewJSONResponse().Data(result).Message("반복 거래 처리가 완료되었습니다").Write(w)
}

// handleProcessToday is the cron entry point: every user's rules for today.
func (s *Server) handleProcessToday(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch err := s.auth.CheckSchedulerKey(r); {
	case errors.Is(err, ErrSchedulerKeyUnset):
		InternalServerError("스케줄러 API 키가 설정되지 않았습니다").Write(w)
		return
	case err != nil:
		UnauthorizedError("인증이 필요합니다").Write(w)
		return
	}

	result, err := s.recurring.ProcessToday(ctx)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Scheduled recurring processing failed",
			log.FieldOperation, log.OpProcessDate,
			log.FieldError, err)
		InternalServerError("자동 반복 거래 처리에 실패했습니다").Write(w)
		return
	}

	NewJSONResponse().
		Data(result).
		Message(fmt.Sprintf("오늘의 반복 거래 처리 완료: %d개 생성, %d개 건너뜀", result.Created, result.Skipped)).
		Timestamp(time.Now().UTC().Format(time.RFC3339)).
		Write(w)
}

// handleGenerate materializes one rule on a caller-chosen date.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
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

	var req GenerateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		BadRequestError("올바른 날짜를 입력해주세요").Write(w)
		return
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		BadRequestError("올바른 날짜를 입력해주세요").Write(w)
		return
	}

	tx, err := s.recurring.GenerateForRule(ctx, ruleID, userID, date)
	switch {
	case errors.Is(err, core.ErrRuleNotFound):
		NotFoundError("반복 거래 규칙을 찾을 수 없습니다").Write(w)
		return
	case errors.Is(err, core.ErrDuplicateTransaction):
		BadRequestError("해당 날짜에 이미 동일한 거래가 존재합니다").Write(w)
		return
	case err != nil:
		log.FromContext(ctx).ErrorContext(ctx, "Generate from recurring rule failed",
			log.FieldOperation, log.OpGenerate,
			log.FieldRuleID, ruleID,
			log.FieldUserID, userID,
			log.FieldDate, date.String(),
			log.FieldError, err)
		InternalServerError("반복 거래 생성에 실패했습니다").Write(w)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Data(newTransactionDTO(tx)).
		Message("반복 거래에서 실제 거래가 생성되었습니다").
		Write(w)
}

// transactionDTO renders ids and amounts as strings so 64-bit values
// survive JavaScript clients.
type transactionDTO struct {
	ID                  string  `json:"id"`
	GroupID             *string `json:"groupId"`
	OwnerUserID         string  `json:"ownerUserId"`
	Type                string  `json:"type"`
	Date                string  `json:"date"`
	Amount              string  `json:"amount"`
	CategoryID          *string `json:"categoryId"`
	Merchant            *string `json:"merchant"`
	Memo                string  `json:"memo"`
	GeneratedFromRuleID *string `json:"generatedFromRuleId"`
	GeneratedForDate    *string `json:"generatedForDate"`
	CreatedAt           string  `json:"createdAt"`
}

func newTransactionDTO(tx core.Transaction) transactionDTO {
	dto := transactionDTO{
		ID:                  strconv.FormatInt(tx.ID, 10),
		GroupID:             idString(tx.GroupID),
		OwnerUserID:         strconv.FormatInt(tx.OwnerUserID, 10),
		Type:                string(tx.Type),
		Date:                tx.Date.String(),
		Amount:              strconv.FormatInt(tx.Amount, 10),
		CategoryID:          idString(tx.CategoryID),
		Merchant:            tx.Merchant,
		Memo:                tx.Memo,
		GeneratedFromRuleID: idString(tx.GeneratedFromRuleID),
		CreatedAt:           tx.CreatedAt.UTC().Format(time.RFC3339),
	}
	if tx.GeneratedForDate != nil {
		d := tx.GeneratedForDate.String()
		dto.GeneratedForDate = &d
	}
	return dto
}

func idString(id *int64) *string {
	if id == nil {
		return nil
	}
	s := strconv.FormatInt(*id, 10)
	return &s
}
