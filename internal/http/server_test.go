package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/services"
	"gagyebu/internal/storage/memory"
)

const (
	testSecret = "test-secret"
	testAPIKey = "cron-key"
)

type testEnv struct {
	server *Server
	store  *memory.Store
}

func newTestEnv(t *testing.T, mutate func(*ServerConfig)) *testEnv {
	t.Helper()

	store := memory.New()
	metrics := NewSchedulerMetrics()
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC) // Monday
	processor := services.NewRecurringProcessorForStore(store, nil, services.ProcessorConfig{},
		services.WithLogger(log.Discard()),
		services.WithObserver(metrics),
		services.WithClock(func() time.Time { return now }))

	cfg := ServerConfig{
		Addr:            ":0",
		MaxRangeDays:    31,
		JWTSecret:       testSecret,
		SchedulerAPIKey: testAPIKey,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	rules := services.NewRuleService(store, log.Discard())
	s := NewServer(cfg, processor, rules, store, metrics, log.Discard())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return &testEnv{server: s, store: store}
}

func (e *testEnv) rule(t *testing.T, owner int64, frequency core.Frequency, dayRule string) core.RecurringRule {
	t.Helper()
	r, err := e.store.CreateRule(context.Background(), core.RecurringRule{
		CreatedBy: owner,
		StartDate: core.NewDate(2025, 1, 1),
		Frequency: frequency,
		DayRule:   dayRule,
		Amount:    12000,
		IsActive:  true,
	})
	require.NoError(t, err)
	return r
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func userRequest(t *testing.T, method, target, body string, userID int64) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, err := IssueAccessToken(testSecret, userID, time.Hour)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
	}
	return req
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["data"].(map[string]any)["status"])

	rec, body = env.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["data"].(map[string]any)["status"])
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestReady_StoreDown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.server.store = downStore{}

	rec, body := env.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", body["data"].(map[string]any)["status"])
}

func TestResponses_CarrySecurityHeadersAndRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSuspiciousRequestRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/../../etc/passwd", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcess_Authentication(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/process", `{}`, 0))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "인증이 필요합니다", body["error"])

	req := userRequest(t, http.MethodPost, "/api/recurring-rules/process", `{}`, 0)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "not-a-jwt"})
	rec, body = env.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "유효하지 않은 토큰입니다", body["error"])

	forged, err := IssueAccessToken("other-secret", 1, time.Hour)
	require.NoError(t, err)
	req = userRequest(t, http.MethodPost, "/api/recurring-rules/process", `{}`, 0)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: forged})
	rec, _ = env.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProcess_SingleDateScopedToCaller(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rule(t, 1, core.Daily, "매일")
	env.rule(t, 1, core.Weekly, "화요일")
	env.rule(t, 2, core.Daily, "매일")

	rec, body := env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/process", `{"date":"2025-03-03"}`, 1))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "반복 거래 처리가 완료되었습니다", body["message"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "2025-03-03", data["date"])
	assert.EqualValues(t, 1, data["created"])
	assert.EqualValues(t, 0, data["skipped"])
	assert.EqualValues(t, 2, data["total"])

	rec, body = env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/process", `{"date":"2025-03-03"}`, 1))
	require.Equal(t, http.StatusOK, rec.Code)
	data = body["data"].(map[string]any)
	assert.EqualValues(t, 0, data["created"])
	assert.EqualValues(t, 1, data["skipped"])

	assert.Len(t, env.store.Transactions(), 1)
}

func TestProcess_DefaultsToToday(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rule(t, 1, core.Daily, "평일만")

	rec, body := env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/process", ``, 1))
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "2025-03-03", data["date"])
	assert.EqualValues(t, 1, data["created"])
}

func TestProcess_Range(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rule(t, 1, core.Daily, "주말만")

	rec, body := env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/process",
		`{"startDate":"2025-03-07","endDate":"2025-03-10"}`, 1))
	require.Equal(t, http.StatusOK, rec.Code)

	days := body["data"].([]any)
	require.Len(t, days, 4)
	created := 0
	for _, d := range days {
		created += int(d.(map[string]any)["created"].(float64))
	}
	assert.Equal(t, 2, created, "Saturday and Sunday only")
	assert.Equal(t, "2025-03-07", days[0].(map[string]any)["date"])
	assert.Equal(t, "2025-03-10", days[3].(map[string]any)["date"])
}

func TestProcess_RangeValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"start after end", `{"startDate":"2025-03-10","endDate":"2025-03-01"}`, "시작 날짜는 종료 날짜보다 이전이어야 합니다"},
		{"too long", `{"startDate":"2025-01-01","endDate":"2025-02-02"}`, "처리 기간은 최대 31일까지만 가능합니다"},
		{"bad format", `{"date":"2025/03/01"}`, "입력 데이터가 올바르지 않습니다"},
		{"impossible date", `{"date":"2025-02-30"}`, "입력 데이터가 올바르지 않습니다"},
		{"malformed json", `{"date":`, "요청 형식이 올바르지 않습니다"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/process", tt.body, 1))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantErr, body["error"])
		})
	}
}

func TestProcess_RangeAtLimitAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/process",
		`{"startDate":"2025-01-01","endDate":"2025-02-01"}`, 1))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"].([]any), 32)
}

func TestProcess_ValidationDetails(t *testing.T) {
	env := newTestEnv(t, nil)

	_, body := env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/process", `{"startDate":"yesterday"}`, 1))
	details := body["details"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "startDate", details[0].(map[string]any)["field"])
}

func TestProcessToday_SchedulerKey(t *testing.T) {
	t.Run("key not configured", func(t *testing.T) {
		env := newTestEnv(t, func(c *ServerConfig) { c.SchedulerAPIKey = "" })
		req := httptest.NewRequest(http.MethodGet, "/api/recurring-rules/process", nil)
		req.Header.Set("Authorization", "Bearer anything")

		rec, body := env.do(t, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "스케줄러 API 키가 설정되지 않았습니다", body["error"])
	})

	t.Run("wrong key", func(t *testing.T) {
		env := newTestEnv(t, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/recurring-rules/process", nil)
		req.Header.Set("Authorization", "Bearer wrong")

		rec, body := env.do(t, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "인증이 필요합니다", body["error"])
	})

	t.Run("all users processed", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.rule(t, 1, core.Daily, "매일")
		env.rule(t, 2, core.Monthly, "매월 3일")
		env.rule(t, 3, core.Monthly, "매월 말일")

		req := httptest.NewRequest(http.MethodGet, "/api/recurring-rules/process", nil)
		req.Header.Set("Authorization", "Bearer "+testAPIKey)

		rec, body := env.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "오늘의 반복 거래 처리 완료: 2개 생성, 0개 건너뜀", body["message"])
		assert.NotEmpty(t, body["timestamp"])
	})
}

func TestGenerate(t *testing.T) {
	env := newTestEnv(t, nil)
	mine := env.rule(t, 1, core.Weekly, "금요일")
	theirs := env.rule(t, 2, core.Daily, "매일")

	target := "/api/recurring-rules/" + itoa(mine.ID) + "/generate"

	// Off-schedule dates are allowed for manual generation.
	rec, body := env.do(t, userRequest(t, http.MethodPost, target, `{"date":"2025-03-04"}`, 1))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "반복 거래에서 실제 거래가 생성되었습니다", body["message"])

	data := body["data"].(map[string]any)
	assert.IsType(t, "", data["id"])
	assert.Equal(t, "1", data["ownerUserId"])
	assert.Equal(t, "12000", data["amount"])
	assert.Equal(t, "EXPENSE", data["type"])
	assert.Equal(t, "2025-03-04", data["date"])
	assert.Equal(t, core.AutoGeneratedMarker, data["memo"])
	assert.Equal(t, itoa(mine.ID), data["generatedFromRuleId"])

	rec, body = env.do(t, userRequest(t, http.MethodPost, target, `{"date":"2025-03-04"}`, 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "해당 날짜에 이미 동일한 거래가 존재합니다", body["error"])

	rec, body = env.do(t, userRequest(t, http.MethodPost,
		"/api/recurring-rules/"+itoa(theirs.ID)+"/generate", `{"date":"2025-03-04"}`, 1))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "반복 거래 규칙을 찾을 수 없습니다", body["error"])

	rec, body = env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/999/generate", `{"date":"2025-03-04"}`, 1))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, bad := range []string{`{}`, `{"date":"03-04-2025"}`, ``} {
		rec, body = env.do(t, userRequest(t, http.MethodPost, target, bad, 1))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Equal(t, "올바른 날짜를 입력해주세요", body["error"], bad)
	}
}

func TestGenerate_InactiveRuleNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	r := env.rule(t, 1, core.Daily, "매일")
	require.NoError(t, env.store.DeactivateRule(context.Background(), r.ID))

	rec, _ := env.do(t, userRequest(t, http.MethodPost,
		"/api/recurring-rules/"+itoa(r.ID)+"/generate", `{"date":"2025-03-04"}`, 1))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitOnPost(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.RequestsPerMinute = 2 })

	for i := 0; i < 2; i++ {
		rec, _ := env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/process", `{}`, 1))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, _ := env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/process", `{}`, 1))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// GET routes are not limited.
	rec, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rule(t, 1, core.Daily, "매일")
	env.rule(t, 1, core.Weekly, "격주")

	rec, _ := env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/process", `{"date":"2025-03-03"}`, 1))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `recurring_rule_outcomes_total{outcome="created"} 1`)
	assert.Contains(t, out, `recurring_rule_outcomes_total{outcome="unrecognized"} 1`)
	assert.Contains(t, out, "http_requests_total 2")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestRules_CreateGetList(t *testing.T) {
	env := newTestEnv(t, nil)
	cat, err := env.store.CreateCategory(context.Background(), "주거", core.Expense)
	require.NoError(t, err)
	catID := strconv.FormatInt(cat.ID, 10)

	rec, body := env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules",
		`{"startDate":"2025-01-01","frequency":"MONTHLY","dayRule":"매월 25일","amount":950000,"categoryId":"`+catID+`","merchant":"집주인"}`, 7))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := body["data"].(map[string]any)
	assert.Equal(t, "950000", created["amount"])
	assert.Equal(t, "7", created["createdBy"])
	assert.Equal(t, catID, created["categoryId"])
	assert.Equal(t, "EXPENSE", created["categoryType"])
	assert.Equal(t, true, created["isActive"])
	id := created["id"].(string)

	rec, body = env.do(t, userRequest(t, http.MethodGet, "/api/recurring-rules/"+id, "", 7))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "매월 25일", body["data"].(map[string]any)["dayRule"])

	rec, _ = env.do(t, userRequest(t, http.MethodGet, "/api/recurring-rules/"+id, "", 8))
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users cannot see the rule")

	rec, body = env.do(t, userRequest(t, http.MethodGet, "/api/recurring-rules", "", 7))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"].([]any), 1)

	rec, body = env.do(t, userRequest(t, http.MethodGet, "/api/recurring-rules", "", 8))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["data"].([]any))

	rec, _ = env.do(t, userRequest(t, http.MethodGet, "/api/recurring-rules?isActive=maybe", "", 7))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, userRequest(t, http.MethodGet, "/api/recurring-rules", "", 0))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRules_CreateRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown frequency", `{"startDate":"2025-01-01","frequency":"YEARLY","dayRule":"매년","amount":1000}`, "입력 데이터가 올바르지 않습니다"},
		{"zero amount", `{"startDate":"2025-01-01","frequency":"DAILY","dayRule":"매일","amount":0}`, "입력 데이터가 올바르지 않습니다"},
		{"bad start date", `{"startDate":"2025/01/01","frequency":"DAILY","dayRule":"매일","amount":1000}`, "입력 데이터가 올바르지 않습니다"},
		{"day rule too long", `{"startDate":"2025-01-01","frequency":"DAILY","dayRule":"` + strings.Repeat("매", 21) + `","amount":1000}`, "입력 데이터가 올바르지 않습니다"},
		{"unknown category", `{"startDate":"2025-01-01","frequency":"DAILY","dayRule":"매일","amount":1000,"categoryId":"999"}`, "존재하지 않는 카테고리입니다"},
		{"malformed category", `{"startDate":"2025-01-01","frequency":"DAILY","dayRule":"매일","amount":1000,"categoryId":"abc"}`, "올바른 ID가 아닙니다"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules", tt.body, 7))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantErr, body["error"])
		})
	}

	rules, err := env.store.ListRules(context.Background(), core.RuleListFilter{UserID: 7})
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestRules_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	rule := env.rule(t, 7, core.Monthly, "매월 3일")
	path := "/api/recurring-rules/" + strconv.FormatInt(rule.ID, 10)

	rec, body := env.do(t, userRequest(t, http.MethodPut, path, `{"dayRule":"매월 말일","amount":15000,"memo":"관리비"}`, 7))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := body["data"].(map[string]any)
	assert.Equal(t, "매월 말일", data["dayRule"])
	assert.Equal(t, "15000", data["amount"])
	assert.Equal(t, "관리비", data["memo"])
	assert.Equal(t, "MONTHLY", data["frequency"], "absent fields are unchanged")

	rec, _ = env.do(t, userRequest(t, http.MethodPut, path, `{"amount":0}`, 7))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, userRequest(t, http.MethodPut, path, `{"amount":1}`, 8))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, userRequest(t, http.MethodDelete, path, "", 8))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = env.do(t, userRequest(t, http.MethodDelete, path, "", 7))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "고정 지출이 성공적으로 삭제되었습니다", body["message"])

	rec, body = env.do(t, userRequest(t, http.MethodGet, "/api/recurring-rules?isActive=false", "", 7))
	require.Equal(t, http.StatusOK, rec.Code)
	listed := body["data"].([]any)
	require.Len(t, listed, 1)
	assert.Equal(t, false, listed[0].(map[string]any)["isActive"])

	// A retired rule no longer fires, even on its day.
	rec, body = env.do(t, userRequest(t, http.MethodPost, "/api/recurring-rules/process", `{"date":"2025-03-31"}`, 7))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["data"].(map[string]any)["total"])
	assert.Empty(t, env.store.Transactions())
}
