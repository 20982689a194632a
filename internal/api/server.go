// Package api exposes the ledger over HTTP for the dashboard.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ecoledger/internal/aggregate"
	"github.com/sells-group/ecoledger/internal/explain"
	"github.com/sells-group/ecoledger/internal/factor"
	"github.com/sells-group/ecoledger/internal/ledger"
	"github.com/sells-group/ecoledger/internal/normalize"
	"github.com/sells-group/ecoledger/internal/pipeline"
	"github.com/sells-group/ecoledger/internal/recommend"
	"github.com/sells-group/ecoledger/internal/scenario"
)

// Config controls HTTP behavior and presentation.
type Config struct {
	CORSOrigins    []string
	RateLimitRPS   float64 // uploads per second; <= 0 disables limiting
	RateLimitBurst int
	MaxUploadBytes int64

	Period       aggregate.Period
	ZeroFill     bool
	HotspotLimit int
	Thresholds   aggregate.Thresholds
	// CO2eUnit is kg or t. Stored values are kg.
	CO2eUnit string
	// Precision is the number of significant digits in presented CO2e.
	Precision int32
}

// DefaultMaxUploadBytes caps an upload body when Config leaves it unset.
const DefaultMaxUploadBytes = 10 << 20

// Deps are the engine components the handlers call.
type Deps struct {
	Ledger      *ledger.Ledger
	Pipeline    *pipeline.Pipeline
	Normalizer  *normalize.Normalizer
	Explainer   *explain.Explainer
	Recommender *recommend.Recommender
	Simulator   *scenario.Simulator
	Factors     *factor.Table
}

// Server holds the handlers' dependencies.
type Server struct {
	cfg     Config
	deps    Deps
	limiter *rate.Limiter
}

// NewServer creates a Server.
func NewServer(deps Deps, cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.CO2eUnit == "" {
		cfg.CO2eUnit = aggregate.UnitKg
	}
	s := &Server{cfg: cfg, deps: deps}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.With(s.rateLimit).Post("/upload", s.handleUpload)
		r.Get("/activities", s.handleActivities)
		r.Post("/activities/{id}/correct", s.handleCorrect)
		r.Get("/explain/{id}", s.handleExplain)
		r.Get("/summary", s.handleSummary)
		r.Get("/insights", s.handleInsights)
		r.Post("/insights/ai", s.handleNarrative)
		r.Post("/scenario", s.handleScenario)
		r.Get("/factors", s.handleFactors)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	return r
}

// requestLogger writes one zap line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "Too many uploads. Please retry shortly.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
