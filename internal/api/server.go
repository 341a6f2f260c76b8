package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"stormwatch/internal/types"
)

// healthCheckTimeout bounds the total time spent probing subsystems.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a subsystem health check. Each probe covers one critical
// dependency (database, queue) and must respect the context deadline.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// ViolationReader is the read/review contract the violation endpoints need.
// Implemented by db.ViolationRepo.
type ViolationReader interface {
	GetEvent(ctx context.Context, eventID string) (*types.ViolationEvent, error)
	Stats(ctx context.Context) (*types.ViolationStats, error)
	SetDismissed(ctx context.Context, eventID string, dismissed bool, notes string) error
}

// MatchPreviewer evaluates a candidate subscription against a violation
// event without persisting anything. Implemented by subscriptions.Matcher.
type MatchPreviewer interface {
	Matches(sub *types.Subscription, event *types.ViolationEvent) types.MatchResult
}

// Server holds the router and the handler dependencies.
type Server struct {
	violations ViolationReader
	previewer  MatchPreviewer
	validator  *Validator
	logger     *slog.Logger
	probes     []HealthProbe

	router *chi.Mux
}

// NewServer wires the router, middleware chain, and routes. probes may be
// empty, in which case the health endpoint reports healthy unconditionally.
func NewServer(violations ViolationReader, previewer MatchPreviewer, logger *slog.Logger, probes ...HealthProbe) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		violations: violations,
		previewer:  previewer,
		validator:  NewValidator(),
		logger:     logger,
		probes:     probes,
		router:     chi.NewRouter(),
	}

	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(logger))

	s.router.Get("/health", s.HandleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		r.Route("/violations", func(r chi.Router) {
			r.Get("/stats", s.HandleViolationStats)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetViolation)
				r.Post("/dismiss", s.HandleDismiss)
				r.Post("/undismiss", s.HandleUndismiss)
			})
		})
		r.Post("/subscriptions/test-match", s.HandleTestMatch)
	})

	return s
}

// Handler returns the router for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs all registered probes concurrently under a short
// deadline. Any probe failure turns the overall status into 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	var (
		mu         sync.Mutex
		components = make(map[string]componentStatus, len(s.probes))
		wg         sync.WaitGroup
		degraded   bool
	)

	for _, probe := range s.probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()

			err := p.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				degraded = true
				components[p.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
				return
			}
			components[p.Name()] = componentStatus{Status: "healthy"}
		}(probe)
	}
	wg.Wait()

	resp := healthResponse{Status: "healthy", Components: components}
	status := http.StatusOK
	if degraded {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}
