package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"cloneguard-lab/internal/api/handlers"
	apimiddleware "cloneguard-lab/internal/api/middleware"
	"cloneguard-lab/internal/config"
	"cloneguard-lab/pkg/logger"
)

// requestTimeout bounds a request end to end; large uploads need the headroom
const requestTimeout = 120 * time.Second

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	metrics  http.Handler
	logger   *logger.Logger
}

// NewRouter creates a new Router instance. metrics may be nil.
func NewRouter(cfg config.Config, h *handlers.Handlers, metrics http.Handler, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		metrics:  metrics,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(requestTimeout))

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	router.Group(func(pub chi.Router) {
		pub.Get("/health", r.handlers.Health.Check)
		pub.Get("/ready", r.handlers.Health.Ready)
		if r.metrics != nil {
			pub.Handle("/metrics", r.metrics)
		}
	})

	router.Route("/api/v1", func(api chi.Router) {
		api.Route("/scan", func(scan chi.Router) {
			scan.Post("/url", r.handlers.Scan.ScanURL)
			scan.Post("/apk", r.handlers.Scan.ScanAPK)
			scan.Post("/evidence", r.handlers.Scan.ScanEvidence)
		})

		api.Route("/references", func(refs chi.Router) {
			refs.Get("/{package}", r.handlers.References.Get)
			refs.Put("/{package}", r.handlers.References.Put)
		})

		api.Post("/evidence", r.handlers.Evidence.Create)
		api.Get("/scoring/weights", r.handlers.Scoring.Weights)
	})

	return router
}
