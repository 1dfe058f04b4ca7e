// Package api exposes the search, ETL and account flows over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect/internal/auth"
	"github.com/sells-group/siteselect/internal/etl"
	"github.com/sells-group/siteselect/internal/metrics"
	"github.com/sells-group/siteselect/internal/reference"
	"github.com/sells-group/siteselect/internal/search"
	"github.com/sells-group/siteselect/internal/store"
)

// Server holds the collaborators behind every route.
type Server struct {
	store    store.Store
	search   *search.Engine
	ref      *reference.Tables
	auth     *auth.Service
	etl      *etl.Runner
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	origins  []string
	log      *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves g at /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a Server.
func New(st store.Store, eng *search.Engine, ref *reference.Tables, authSvc *auth.Service, runner *etl.Runner, opts ...Option) *Server {
	s := &Server{
		store:  st,
		search: eng,
		ref:    ref,
		auth:   authSvc,
		etl:    runner,
		log:    zap.L().With(zap.String("component", "api")),
	}
	for _, o := range opts {
		o(s)
	}
	if len(s.origins) == 0 {
		s.origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeFail(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeFail(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/areas", s.handleAreas)
	r.Get("/counties", s.handleCounties)
	r.Get("/parameters", s.handleParameters)
	r.Get("/location/{name}", s.handleLocation)
	r.Get("/venues", s.handleVenues)

	r.Post("/seed-db", s.handleSeed)
	r.Route("/etl", func(r chi.Router) {
		r.Post("/cities/discover", s.handleDiscover)
		r.Post("/census/population", s.handleCensusPopulation)
		r.Post("/census/apartments", s.handleApartments)
		r.Post("/transportation/scores", s.handleTransport)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.optionalUser)
		r.Post("/search", s.handleSearch)
		r.Post("/search/ai", s.handleAISearch)
		r.Post("/search/advanced", s.handleAdvancedSearch)
		r.Post("/search/venues", s.handleVenueSearch)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Post("/search/history", s.handleAddHistory)
		r.Get("/search/history", s.handleListHistory)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Post("/reset-password", s.handleResetPassword)
		r.Get("/google", s.handleGoogleURL)
		r.Post("/google/callback", s.handleGoogleCallback)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/logout", s.handleLogout)
			r.Get("/me", s.handleMe)
			r.Put("/me", s.handleUpdateMe)
		})
	})

	return r
}

// logRequests logs each request and records it under its route pattern.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.metrics.ObserveHTTP(r.Method, route, status)

		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// requireUser rejects requests without a valid bearer token.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeFail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		u, session, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, r, err)
			return
		}
		ctx := auth.WithIdentity(r.Context(), auth.Identity{User: u, SessionToken: session})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// optionalUser attaches the caller when a valid token is present and
// otherwise serves the request anonymously.
func (s *Server) optionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := auth.BearerToken(r); token != "" {
			if u, session, err := s.auth.Authenticate(r.Context(), token); err == nil {
				r = r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{User: u, SessionToken: session}))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Southern California Business Intelligence API",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("health: store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"service": "business-intelligence-api",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "business-intelligence-api",
	})
}
