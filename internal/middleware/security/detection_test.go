package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gagyebu/internal/log"
)

func TestDetectSuspiciousRequest(t *testing.T) {
	tests := []struct {
		name   string
		build  func() *http.Request
		expect bool
	}{
		{"plain api call", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/api/recurring-rules/process", nil)
		}, false},
		{"cron via curl", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/api/recurring-rules/process", nil)
			r.Header.Set("User-Agent", "curl/8.5.0")
			return r
		}, false},
		{"path traversal", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/static/../.env", nil)
		}, true},
		{"scanner agent", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("User-Agent", "sqlmap/1.7")
			return r
		}, true},
		{"traversal in query", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/healthz?file=../../etc/passwd", nil)
		}, true},
		{"trace method", func() *http.Request {
			return httptest.NewRequest("TRACE", "/", nil)
		}, true},
		{"oversized url", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/?"+strings.Repeat("a", 2100), nil)
		}, true},
		{"forwarded chain", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2, 3.3.3.3, 4.4.4.4, 5.5.5.5, 6.6.6.6, 7.7.7.7")
			return r
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector()
			assert.Equal(t, tt.expect, d.DetectSuspiciousRequest(tt.build()))
		})
	}
}

func TestDetector_Middleware(t *testing.T) {
	d := NewDetector()
	h := d.Middleware(log.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wp-admin/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, int64(1), d.GetMetrics().SuspiciousRequests)
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()

	t.Run("forwarded header from trusted proxy", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.1.2.3:5555"
		r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.2.3")
		assert.Equal(t, "203.0.113.9", d.ExtractClientIP(r))
	})

	t.Run("real ip from trusted proxy", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "127.0.0.1:5555"
		r.Header.Set("X-Real-IP", "198.51.100.4")
		assert.Equal(t, "198.51.100.4", d.ExtractClientIP(r))
	})

	t.Run("forwarded header from untrusted peer is ignored", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "203.0.113.50:5555"
		r.Header.Set("X-Forwarded-For", "1.1.1.1")
		assert.Equal(t, "203.0.113.50", d.ExtractClientIP(r))
	})

	t.Run("invalid remote address is counted", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "garbage"
		assert.Equal(t, "garbage", d.ExtractClientIP(r))
		assert.Equal(t, int64(1), d.GetMetrics().InvalidIPAttempts)
	})
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector()
	require.Error(t, d.AddTrustedProxy("not-a-cidr"))
	require.NoError(t, d.AddTrustedProxy("203.0.113.0/24"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.50:5555"
	r.Header.Set("X-Forwarded-For", "1.1.1.1")
	assert.Equal(t, "1.1.1.1", d.ExtractClientIP(r))
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"), "HSTS only over TLS")
}
