// Package http exposes the ledger and drive sync over a JSON API with a
// websocket status stream.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"sitecost/internal/auth"
	"sitecost/internal/cache"
	"sitecost/internal/core"
	applog "sitecost/internal/log"
	"sitecost/internal/middleware/ratelimit"
	"sitecost/internal/middleware/security"
	"sitecost/internal/middleware/trace"
	"sitecost/internal/services"
	"sitecost/internal/settings"
)

// Ledger is the application surface the handlers drive.
type Ledger interface {
	Initialize(creds auth.Credentials) error
	Snapshot() core.Snapshot
	Summary(f core.Filter) core.Summary
	Transaction(id string) (core.Transaction, bool)
	SaveTransaction(ctx context.Context, tx core.Transaction, receipt *services.Receipt) (services.SaveResult, error)
	UpdateBudget(ctx context.Context, category string, amount float64) (core.Snapshot, error)
	AddCategory(ctx context.Context, category string, amount float64) (core.Snapshot, error)
	Status() services.Status
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Pull(ctx context.Context) (bool, error)
	FetchReceipt(ctx context.Context, ref string) (string, bool)
}

// SettingsStore is the subset of settings.Settings the API exposes.
type SettingsStore interface {
	Profile(ctx context.Context) (settings.Profile, error)
	SaveProfile(ctx context.Context, p settings.Profile) error
	SetPassphrase(ctx context.Context, passphrase string) error
	VerifyPassphrase(ctx context.Context, candidate string) error
	Credentials(ctx context.Context, def auth.Credentials) (auth.Credentials, error)
}

type Config struct {
	Addr             string
	CORSOrigins      []string
	ReceiptCacheSize int
	ReceiptCacheTTL  time.Duration
	// WriteTimeout must outlast the interactive grant behind /api/drive/connect.
	WriteTimeout time.Duration
	RateLimit    ratelimit.Config
	// Credentials are the configured defaults merged with stored settings
	// when the settings change.
	Credentials auth.Credentials
	Logger      *applog.Logger
}

type Server struct {
	http.Server

	ledger   Ledger
	settings SettingsStore
	hub      *Hub
	logger   *applog.Logger
	events   *applog.StructuredLogger
	defaults auth.Credentials

	receipts *cache.Receipts
	caches   *cache.Manager
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. hub is shared with the ledger,
// which publishes status events into it; Start runs it.
func NewServer(cfg Config, ledger Ledger, st SettingsStore, hub *Hub) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)
	if hub == nil {
		hub = NewHub(cfg.CORSOrigins)
	}
	if cfg.ReceiptCacheSize <= 0 {
		cfg.ReceiptCacheSize = 128
	}
	if cfg.ReceiptCacheTTL <= 0 {
		cfg.ReceiptCacheTTL = 30 * time.Minute
	}

	s := &Server{
		ledger:   ledger,
		settings: st,
		hub:      hub,
		logger:   logger,
		events:   applog.NewStructuredLogger(logger),
		defaults: cfg.Credentials,
		receipts: cache.NewReceipts(cfg.ReceiptCacheSize, cfg.ReceiptCacheTTL, ledger.FetchReceipt),
		caches:   cache.NewManager(logger.With(applog.FieldComponent, applog.ComponentCache).Logger),
		limiter:  ratelimit.NewLimiter(cfg.RateLimit),
		detector: security.NewDetector(),
		started:  time.Now(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ClientIP)
	s.caches.Register("receipts", s.receipts)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(applog.Middleware(s.logger))
	r.Use(s.tracer.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(cfg.CORSOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", headerPassphrase, trace.HeaderRequestID},
		ExposedHeaders:   []string{trace.HeaderRequestID, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)
	r.Use(s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)
	r.With(applog.ComponentMiddleware(applog.ComponentWebsocket)).Get("/ws/sync", s.handleSyncStream)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/summary", s.handleSummary)
		r.Get("/categories", s.handleCategories)
		r.Post("/transactions", s.handleSaveTransaction)
		r.Get("/transactions/{id}", s.handleGetTransaction)
		r.Post("/budgets", s.handleAddCategory)
		r.Put("/budgets/{category}", s.handleUpdateBudget)

		r.Get("/drive/status", s.handleDriveStatus)
		r.Post("/drive/connect", s.handleDriveConnect)
		r.Post("/drive/disconnect", s.handleDriveDisconnect)
		r.Post("/drive/pull", s.handleDrivePull)
		r.Get("/receipts", s.handleReceipt)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})
	return r
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// Start runs background maintenance. It returns immediately.
func (s *Server) Start(ctx context.Context) {
	s.caches.Start(ctx, 10*time.Minute)
	go s.hub.Run(ctx)
}

// Shutdown stops maintenance goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// fail writes the response for err. Errors with no domain mapping become
// 400 when the request itself was at fault, 500 otherwise.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error, clientFault bool) {
	if resp := errorFor(err); resp != nil {
		resp.Write(w)
		return
	}
	if clientFault {
		BadRequestError(err.Error()).Write(w)
		return
	}
	s.events.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op,
		applog.NewFields().WithRequestID(trace.GetRequestID(r.Context())))
	InternalServerError("internal error").Write(w)
}
