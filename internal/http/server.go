package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"ricorrenti/internal/core"
	applog "ricorrenti/internal/log"
	"ricorrenti/internal/services"
	appweb "ricorrenti/web"
)

// ExpenseManager is the lifecycle surface the handlers need.
type ExpenseManager interface {
	Create(ctx context.Context, in services.ExpenseInput) (core.RecurringExpense, error)
	Update(ctx context.Context, id string, in services.ExpenseInput) (core.RecurringExpense, error)
	Pause(ctx context.Context, id string) (core.RecurringExpense, error)
	Activate(ctx context.Context, id string) (core.RecurringExpense, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (core.RecurringExpense, error)
	List(ctx context.Context) ([]core.RecurringExpense, error)
	RecordEvent(ctx context.Context, ev core.ExpenseEvent) (int64, error)
}

// TimelineReader returns the reconstructed timeline and the event-log
// version it was computed from.
type TimelineReader interface {
	Timeline(ctx context.Context) ([]core.TimelinePoint, int64, error)
}

// Pinger reports storage reachability for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups the server's collaborators. Pinger and Logger are optional.
type Deps struct {
	Expenses  ExpenseManager
	Timeline  TimelineReader
	Pinger    Pinger
	Format    core.FormatOptions
	RateLimit int
	Logger    *applog.Logger
}

type Server struct {
	http.Server
	templates   *template.Template
	expenses    ExpenseManager
	timeline    TimelineReader
	pinger      Pinger
	format      core.FormatOptions
	logger      *applog.Logger
	rateLimiter *rateLimiter
	metrics     *securityMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.Config{Component: applog.ComponentHTTP})
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		expenses:    deps.Expenses,
		timeline:    deps.Timeline,
		pinger:      deps.Pinger,
		format:      deps.Format,
		logger:      logger,
		rateLimiter: newRateLimiter(deps.RateLimit),
		metrics:     &securityMetrics{},
	}
	go s.rateLimiter.startCleanup(5 * time.Minute)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			static.ServeHTTP(w, r)
		}))
	} else {
		logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("POST /api/expenses/{id}/delete", s.handleDeleteExpense)
	mux.HandleFunc("POST /api/expenses/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /api/expenses/{id}/activate", s.handleActivate)
	mux.HandleFunc("POST /api/events", s.handleRecordEvent)
	mux.HandleFunc("GET /api/timeline", s.handleTimeline)

	requestLogger := applog.RequestLogger(logger, extractClientIP)
	s.Handler = requestLogger(s.withSecurity(mux))
	return s
}

// withSecurity sets security headers, logs suspicious requests and rate
// limits writes per client IP.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w.Header())
		clientIP := extractClientIP(r)

		if detectSuspiciousRequest(r, s.metrics) {
			applog.FromContext(r.Context()).Warn("Suspicious request",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
		}

		if isWrite(r.Method) && !s.rateLimiter.allow(clientIP, s.metrics) {
			applog.FromContext(r.Context()).Warn("Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").
				Header("Retry-After", "60").
				Write(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Shutdown stops background routines and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).Warn("Readiness check failed", applog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "storage unavailable").Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]any{
		"status":   "ready",
		"security": s.metrics.snapshot(),
	}).Write(w)
}
