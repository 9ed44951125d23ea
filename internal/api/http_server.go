package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tripplanner/internal/config"
	"tripplanner/internal/domain"
	"tripplanner/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// HealthChecker reports whether a dependency is ready to serve.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Services bundles the managers the HTTP API is a thin layer over.
type Services struct {
	Itineraries *service.ItineraryService
	Bookings    *service.BookingService
	Accounts    *service.AccountService
}

// HTTPServer exposes the itinerary, booking and profile API under /api.
type HTTPServer struct {
	svc     Services
	health  HealthChecker
	auth    *JWTAuth
	limiter *rateLimiter
	dev     bool
	logger  *zerolog.Logger
	server  *http.Server
}

func NewHTTPServer(cfg config.APIConfig, app config.AppConfig, svc Services, health HealthChecker, logger *zerolog.Logger) *HTTPServer {
	httpLogger := logger.With().Str("component", "http").Logger()
	s := &HTTPServer{
		svc:     svc,
		health:  health,
		auth:    NewJWTAuth(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
		dev:     app.IsDevelopment(),
		logger:  &httpLogger,
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestContext, s.accessLog, s.recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: domain.KindNotFound, Message: "route not found"})
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.Middleware, s.limiter.Middleware)

		r.Route("/itineraries", func(r chi.Router) {
			r.Get("/", s.handleListItineraries)
			r.Post("/", s.handleCreateItinerary)
			r.Get("/{id}", s.handleGetItinerary)
			r.Put("/{id}", s.handleUpdateItinerary)
			r.Delete("/{id}", s.handleDeleteItinerary)
			r.Post("/{id}/generate", s.handleGenerateItinerary)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", s.handleListBookings)
			r.Post("/", s.handleCreateBooking)
			r.Get("/export", s.handleExportBookings)
			r.Post("/flights/search", s.handleSearchFlights)
			r.Post("/hotels/search", s.handleSearchHotels)
			r.Get("/{id}", s.handleGetBooking)
			r.Put("/{id}/status", s.handleUpdateBookingStatus)
		})

		r.Get("/users/profile", s.handleGetProfile)
		r.Put("/users/profile", s.handleUpdateProfile)
	})
	return r
}

// Handler returns the fully wrapped router.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Health(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
