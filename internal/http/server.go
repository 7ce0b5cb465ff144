package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fincontrol/internal/cache"
	"fincontrol/internal/log"
	"fincontrol/internal/metrics"
	"fincontrol/internal/middleware/ratelimit"
	"fincontrol/internal/middleware/security"
	"fincontrol/internal/middleware/trace"
	"fincontrol/internal/report"
	"fincontrol/internal/services"
	appweb "fincontrol/web"
)

const (
	dashboardCacheSize = 200
	ownerCacheSize     = 1000
	ownerCacheTTL      = time.Hour
	requestTimeout     = 7 * time.Second
)

// Repository is everything the web server reads and writes.
type Repository interface {
	services.TransactionStore
	services.CategoryStore
	report.Source
	EnsureUser(ctx context.Context, username string) (int64, error)
	Ping(ctx context.Context) error
}

// Options configures NewServer. Publisher and Metrics may be nil.
type Options struct {
	Addr         string
	Repository   Repository
	Publisher    services.Publisher
	Metrics      *metrics.Metrics
	Logger       *log.Logger
	Location     *time.Location
	OwnerHeader  string
	DefaultOwner string
	RateLimit    int
	CacheTTL     time.Duration
}

type Server struct {
	http.Server
	templates *template.Template

	repo         Repository
	publisher    services.Publisher
	transactions *services.TransactionService
	categories   *services.CategoryService
	engine       *report.Engine
	reports      *report.Builder

	// dashboards is nil when caching is disabled
	dashboards   *cache.LRUCache[report.Month]
	owners       *cache.LRUCache[int64]
	cacheManager *cache.Manager
	loads        singleflight.Group

	// genMu guards generations and orders cache fills against invalidation
	genMu       sync.Mutex
	generations map[int64]uint64

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware
	metrics     *metrics.Metrics
	logger      *log.Logger
	events      *log.StructuredLogger

	ownerHeader  string
	defaultOwner string
	startedAt    time.Time
	shutdownOnce sync.Once
}

// NewServer wires services, caches and middleware and returns a ready-to-run
// server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.OwnerHeader == "" {
		opts.OwnerHeader = "X-Remote-User"
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		repo:         opts.Repository,
		publisher:    opts.Publisher,
		transactions: services.NewTransactionService(opts.Repository, opts.Publisher, opts.Location),
		categories:   services.NewCategoryService(opts.Repository),
		engine:       report.NewEngine(opts.Repository),
		reports:      report.NewBuilder(opts.Repository, opts.Repository),
		owners:       cache.NewLRUCache[int64](ownerCacheSize, ownerCacheTTL),
		cacheManager: cache.NewManager(),
		rateLimiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimit}),
		detector:     security.NewDetector(false),
		metrics:      opts.Metrics,
		logger:       logger,
		events:       log.NewStructuredLogger(opts.Logger),
		ownerHeader:  opts.OwnerHeader,
		defaultOwner: opts.DefaultOwner,
		startedAt:    time.Now(),
		generations:  make(map[int64]uint64),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	s.cacheManager.Register(s.owners)
	if opts.CacheTTL > 0 {
		s.dashboards = cache.NewLRUCache[report.Month](dashboardCacheSize, opts.CacheTTL)
		s.cacheManager.Register(s.dashboards)
	}
	s.cacheManager.StartCleanup(10 * time.Minute)

	s.transactions.OnChange(s.invalidateOwner)
	s.categories.OnChange(s.invalidateOwner)

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	root := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		root.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	s.handle(root, "GET /healthz", s.handleHealth)
	s.handle(root, "GET /readyz", s.handleReady)
	if s.metrics != nil {
		root.Handle("GET /metrics", s.metrics.Handler())
	}

	app := http.NewServeMux()
	s.handle(app, "GET /{$}", s.handleDashboard)
	s.handle(app, "GET /ui/dashboard", s.handleDashboardPartial)
	s.handle(app, "GET /api/dashboard", s.handleDashboardAPI)

	s.handle(app, "GET /categories", s.handleListCategories)
	s.handle(app, "POST /categories", s.handleCreateCategory)
	s.handle(app, "GET /categories/{id}", s.handleEditCategory)
	s.handle(app, "POST /categories/{id}", s.handleUpdateCategory)
	s.handle(app, "POST /categories/{id}/delete", s.handleDeleteCategory)
	s.handle(app, "DELETE /categories/{id}", s.handleDeleteCategory)

	s.handle(app, "GET /transactions", s.handleListTransactions)
	s.handle(app, "POST /transactions", s.handleCreateTransaction)
	s.handle(app, "GET /transactions/new", s.handleNewTransaction)
	s.handle(app, "GET /transactions/{id}", s.handleEditTransaction)
	s.handle(app, "POST /transactions/{id}", s.handleUpdateTransaction)
	s.handle(app, "POST /transactions/{id}/delete", s.handleDeleteTransaction)
	s.handle(app, "DELETE /transactions/{id}", s.handleDeleteTransaction)

	s.handle(app, "GET /reports", s.handleReport)
	s.handle(app, "GET /reports/export", s.handleReportExport)

	root.Handle("/", s.withOwner(app))

	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(root)
	writesLimited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			root.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})

	var h http.Handler = writesLimited
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = log.RequestIDMiddleware(trace.GetRequestID)(h)
	h = log.Middleware(s.logger)(h)
	h = s.tracer.Middleware(h)
	return h
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorFor(r, http.StatusTooManyRequests, "Muitas requisições. Tente novamente em instantes.").Write(w)
}

// render executes a template into a buffer first so a failing template never
// leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	body, err := s.renderString(name, data)
	if err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			"template", name, log.FieldError, err)
		http.Error(w, "erro ao renderizar a página", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (s *Server) renderString(name string, data any) (string, error) {
	if s.templates == nil {
		return "", fmt.Errorf("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// serverError logs err and answers 500 with a generic message.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.events.LogError(r.Context(), msg, err, log.ComponentHTTP, r.Method,
		log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery))
	ErrorFor(r, http.StatusInternalServerError, "Erro interno. Tente novamente.").Write(w)
}

// Shutdown stops background goroutines and then the HTTP server. Safe to call
// more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		slog.Info("HTTP server stopped")
	})
	return shutdownErr
}
