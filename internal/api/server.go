// Package api exposes the HTTP interface for the influencer finder.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finderhq/influencer-finder/internal/auth"
	"github.com/finderhq/influencer-finder/internal/blob"
	"github.com/finderhq/influencer-finder/internal/influencer"
	"github.com/finderhq/influencer-finder/internal/keystore"
	"github.com/finderhq/influencer-finder/internal/metrics"
	"github.com/finderhq/influencer-finder/internal/search"
	"github.com/finderhq/influencer-finder/internal/store/postgres"
	"github.com/finderhq/influencer-finder/internal/syncjob"
)

// Searcher runs discovery searches and cache reads.
type Searcher interface {
	Search(ctx context.Context, filter influencer.Filter) search.Result
	SearchAll(ctx context.Context, filter influencer.Filter) search.AggregateResult
	Cached(ctx context.Context, city, platform string) search.CachedResult
}

// Syncer accepts background sync submissions.
type Syncer interface {
	Submit(ctx context.Context, params syncjob.Parameters) (syncjob.Job, error)
}

// JobReader looks up sync job status.
type JobReader interface {
	Get(ctx context.Context, jobID string) (syncjob.Job, error)
}

// UserDirectory is the slice of the user store the API needs.
type UserDirectory interface {
	Create(ctx context.Context, email, passwordHash, role string) (postgres.User, error)
	GetByEmail(ctx context.Context, email string) (postgres.User, error)
	List(ctx context.Context) ([]postgres.User, error)
	UpdateStatus(ctx context.Context, id, status string) error
	UpdateRole(ctx context.Context, id, role string) error
	Delete(ctx context.Context, id string) error
}

// CityDirectory is the slice of the city store the API needs.
type CityDirectory interface {
	List(ctx context.Context) ([]postgres.City, error)
	Create(ctx context.Context, name string) (postgres.City, error)
	Delete(ctx context.Context, id string) error
}

// SubscriptionDirectory is the slice of the subscription store the API needs.
type SubscriptionDirectory interface {
	List(ctx context.Context) ([]postgres.Subscription, error)
	Create(ctx context.Context, userID, plan string, expiresAt *time.Time) (postgres.Subscription, error)
	UpdateStatus(ctx context.Context, id, status string) error
	Delete(ctx context.Context, id string) error
}

// KeyAdmin is the slice of the credential store the API needs.
type KeyAdmin interface {
	List(ctx context.Context) ([]keystore.APIKey, error)
	Create(ctx context.Context, serviceName, keyValue string) (keystore.APIKey, error)
	UpdateStatus(ctx context.Context, id, status string) error
	Delete(ctx context.Context, id string) error
}

// Deps bundles everything the server needs.
type Deps struct {
	Searcher      Searcher
	Syncer        Syncer
	Jobs          JobReader
	Users         UserDirectory
	Cities        CityDirectory
	Subscriptions SubscriptionDirectory
	Keys          KeyAdmin
	Exports       blob.Provider
	JWTSecret     []byte
	TokenTTL      time.Duration
	Timeout       time.Duration
	Logger        *zap.Logger
}

// Server wires HTTP handlers to the orchestrator and stores.
type Server struct {
	router chi.Router
	deps   Deps
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) *Server {
	if deps.Timeout <= 0 {
		deps.Timeout = 60 * time.Second
	}
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(deps.Logger))
	r.Use(recoverMiddleware(deps.Logger))
	r.Use(timeoutMiddleware(deps.Timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(deps.JWTSecret))

			r.Get("/search", s.searchPage)
			r.Get("/search/all", s.searchAll)
			r.Get("/influencers/cached", s.cached)
			r.Get("/influencers/export", s.exportCSV)
			r.Get("/cities", s.listCities)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(postgres.RoleAdmin))

				r.Route("/users", func(r chi.Router) {
					r.Get("/", s.listUsers)
					r.Post("/", s.createUser)
					r.Patch("/{user_id}/status", s.updateUserStatus)
					r.Patch("/{user_id}/role", s.updateUserRole)
					r.Delete("/{user_id}", s.deleteUser)
				})
				r.Route("/cities", func(r chi.Router) {
					r.Get("/", s.listCities)
					r.Post("/", s.createCity)
					r.Delete("/{city_id}", s.deleteCity)
				})
				r.Route("/api-keys", func(r chi.Router) {
					r.Get("/", s.listKeys)
					r.Post("/", s.createKey)
					r.Patch("/{key_id}/status", s.updateKeyStatus)
					r.Delete("/{key_id}", s.deleteKey)
				})
				r.Route("/subscriptions", func(r chi.Router) {
					r.Get("/", s.listSubscriptions)
					r.Post("/", s.createSubscription)
					r.Patch("/{sub_id}/status", s.updateSubscriptionStatus)
					r.Delete("/{sub_id}", s.deleteSubscription)
				})
				r.Route("/sync", func(r chi.Router) {
					r.Post("/", s.submitSync)
					r.Get("/{job_id}", s.getSync)
				})
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.deps.Logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.deps.Logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			duration := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, ww.status, duration)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", duration.Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
