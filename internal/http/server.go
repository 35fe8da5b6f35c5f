package http

import (
	"context"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"donations/internal/core"
	applog "donations/internal/log"
	"donations/internal/middleware/ratelimit"
	"donations/internal/middleware/security"
	"donations/internal/middleware/trace"
	"donations/internal/services"
)

// DonationService is the part of the donation manager the API drives.
// Implemented by *services.DonationManager.
type DonationService interface {
	Record(ctx context.Context, name string, amount decimal.Decimal) (services.Receipt, error)
	ClearAll(ctx context.Context) error
	WillReachGoalWith(amount decimal.Decimal) bool
	HasReachedGoal() bool
	Total() decimal.Decimal
	Goal() decimal.Decimal
	Ratio(x decimal.Decimal) float64
	Donations(ctx context.Context) iter.Seq2[core.Donation, error]
	Verify(ctx context.Context) error
}

// ActivityFeed is the part of the feed the API drives. Implemented by
// *feed.Feed.
type ActivityFeed interface {
	PushDonation(d core.Donation) string
	Filter(query string) []string
	Clear()
	Capacity() int
}

// Config holds the server settings
type Config struct {
	Addr               string
	RateLimitPerMinute int
	Logger             *applog.Logger
}

// Server is the donations HTTP API
type Server struct {
	http.Server
	donations   DonationService
	feed        ActivityFeed
	logger      *applog.Logger
	rateLimiter *ratelimit.Limiter
	clientIP    *security.ClientIPResolver
	tracer      *trace.Middleware

	// writeMu orders ledger writes and their feed updates together, so the
	// live feed matches a replay of the ledger.
	writeMu      sync.Mutex
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, donations DonationService, activity ActivityFeed) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		donations: donations,
		feed:      activity,
		logger:    logger,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
		clientIP: security.NewClientIPResolver(),
	}
	s.tracer = trace.NewMiddleware(logger, s.clientIP.ClientIP)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          applog.NewStdLogger(logger),
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.tracer.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no route for " + r.URL.Path).Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError().Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	limit := s.rateLimiter.Middleware(s.clientIP.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context(), s.logger).WarnContext(r.Context(), "Rate limit exceeded")
		TooManyRequestsError().Write(w)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/progress", s.handleProgress)
		r.Get("/donations", s.handleListDonations)
		r.With(limit).Post("/donations", s.handleCreateDonation)
		r.Delete("/donations", s.handleClearDonations)
		r.Get("/donations/preview", s.handlePreviewDonation)
		r.Get("/feed", s.handleFeed)
		r.Get("/export.xlsx", s.handleExport)
	})

	return r
}

// Shutdown stops the rate limiter and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

// handleReady rescans the ledger and compares it with the cached total
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.donations.Verify(ctx); err != nil {
		applog.FromContext(ctx, s.logger).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, CodeNotReady, err.Error()).Write(w)
		return
	}
	NewJSONResponse().Data(map[string]string{"status": "ready"}).Write(w)
}
