package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/katu09161004/tel-addapter/internal/config"
	"github.com/katu09161004/tel-addapter/internal/storage/sqlite"
	"github.com/katu09161004/tel-addapter/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(runs *sqlite.RunStorage, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(runs, config, logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/health", r.handler.GetHealth)
		router.Get("/runs", r.handler.GetRuns)
		router.Get("/runs/{id}", r.handler.GetRunByID)
		router.Get("/config", r.handler.GetConfig)
	})

	return router
}
