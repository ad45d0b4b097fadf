package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lifescore/internal/aggregate"
	"lifescore/internal/log"
	"lifescore/internal/metrics"
	"lifescore/internal/middleware/ratelimit"
	"lifescore/internal/middleware/security"
	"lifescore/internal/rules"
	"lifescore/internal/services"
)

// Deps are the collaborators the API serves from.
type Deps struct {
	Insights     *services.InsightService
	Transactions *services.TransactionService
	Catalog      *rules.Catalog
	// Metrics is optional; without it /metrics is not mounted.
	Metrics       *metrics.Metrics
	Logger        *log.Logger
	DefaultPolicy aggregate.Policy
	RateLimit     ratelimit.Config
	// Ready backs /readyz. Nil always reports ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server

	insights      *services.InsightService
	transactions  *services.TransactionService
	catalog       *rules.Catalog
	defaultPolicy aggregate.Policy
	ready         func(ctx context.Context) error
	now           func() time.Time

	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer builds the router. Call Shutdown to stop the rate limiter.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.DefaultPolicy == "" {
		deps.DefaultPolicy = aggregate.Weekly
	}
	if deps.Catalog == nil {
		deps.Catalog = rules.Default()
	}

	s := &Server{
		insights:      deps.Insights,
		transactions:  deps.Transactions,
		catalog:       deps.Catalog,
		defaultPolicy: deps.DefaultPolicy,
		ready:         deps.Ready,
		now:           time.Now,
		limiter:       ratelimit.NewLimiter(deps.RateLimit),
		detector:      security.NewDetector(deps.Logger.WithComponent(log.ComponentHTTP).Logger),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(log.Middleware(deps.Logger, func(r *http.Request) string {
		return middleware.GetReqID(r.Context())
	}))
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.detector.Middleware)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, _ *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
		}))

		r.Get("/insights", s.handleInsights)
		r.Post("/correlation", s.handleCorrelation)
		r.Post("/classify", s.handleClassify)
		r.Post("/transactions", s.handleCreateTransaction)
		r.Get("/transactions/{id}", s.handleGetTransaction)
		r.Get("/rules", s.handleRules)

		r.Post("/hydration", s.handleHydration)
		r.Post("/signals", s.handleSignal)

		r.Get("/preferences/{key}", s.handleGetPreference)
		r.Put("/preferences/{key}", s.handleSetPreference)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		NotFoundError("no such route").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})
	return r
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	NewJSONResponse().Data(map[string]string{"status": "ready"}).Write(w)
}
