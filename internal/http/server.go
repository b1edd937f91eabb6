package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/middleware/ratelimit"
	"gagyebu/internal/middleware/security"
	"gagyebu/internal/middleware/trace"
)

// RecurringService is the scheduler surface the API drives.
type RecurringService interface {
	Today() core.Date
	ProcessToday(ctx context.Context) (core.DateResult, error)
	ProcessForDate(ctx context.Context, date core.Date, opts core.ProcessOptions) (core.DateResult, error)
	ProcessForRange(ctx context.Context, start, end core.Date, userID *int64) ([]core.DateResult, error)
	GenerateForRule(ctx context.Context, ruleID, userID int64, date core.Date) (core.Transaction, error)
}

// RuleManager is the owner-scoped rule CRUD the API exposes.
type RuleManager interface {
	List(ctx context.Context, filter core.RuleListFilter) ([]core.RecurringRule, error)
	Get(ctx context.Context, id, userID int64) (*core.RecurringRule, error)
	Create(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error)
	Update(ctx context.Context, id, userID int64, patch core.RulePatch) (core.RecurringRule, error)
	Deactivate(ctx context.Context, id, userID int64) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds the HTTP-facing settings.
type ServerConfig struct {
	Addr            string
	MaxRangeDays    int
	JWTSecret       string
	SchedulerAPIKey string
	// RequestsPerMinute caps POST requests per client IP.
	RequestsPerMinute int
}

type Server struct {
	http.Server
	recurring RecurringService
	rules     RuleManager
	store     Pinger
	auth      *Authenticator
	logger    *log.Logger
	metrics   *SchedulerMetrics

	maxRangeDays int
	startedAt    time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// metrics may be nil when the caller does not observe the processor.
func NewServer(cfg ServerConfig, recurring RecurringService, rules RuleManager, store Pinger, metrics *SchedulerMetrics, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if metrics == nil {
		metrics = NewSchedulerMetrics()
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = 31
	}

	detector := security.NewDetector()
	s := &Server{
		recurring:        recurring,
		rules:            rules,
		store:            store,
		auth:             NewAuthenticator(cfg.JWTSecret, cfg.SchedulerAPIKey),
		logger:           logger.WithComponent(log.ComponentHTTP),
		metrics:          metrics,
		maxRangeDays:     cfg.MaxRangeDays,
		startedAt:        time.Now(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RequestsPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
	}

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		TooManyRequestsError("요청이 너무 많습니다. 잠시 후 다시 시도해주세요").Write(w)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("POST /api/recurring-rules/process", limited(http.HandlerFunc(s.handleProcess)))
	mux.HandleFunc("GET /api/recurring-rules/process", s.handleProcessToday)
	mux.Handle("POST /api/recurring-rules/{id}/generate", limited(http.HandlerFunc(s.handleGenerate)))
	mux.HandleFunc("GET /api/recurring-rules", s.handleListRules)
	mux.Handle("POST /api/recurring-rules", limited(http.HandlerFunc(s.handleCreateRule)))
	mux.HandleFunc("GET /api/recurring-rules/{id}", s.handleGetRule)
	mux.Handle("PUT /api/recurring-rules/{id}", limited(http.HandlerFunc(s.handleUpdateRule)))
	mux.Handle("DELETE /api/recurring-rules/{id}", limited(http.HandlerFunc(s.handleDeleteRule)))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = detector.Middleware(s.logger)(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A 31-day range run can take a while on a large ledger.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
