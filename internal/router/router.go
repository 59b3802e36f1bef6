package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"pronto-ballbot/internal/handler"
	"pronto-ballbot/internal/middleware"
	"pronto-ballbot/pkg/apierror"
	"pronto-ballbot/pkg/response"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler          *handler.Handler
	InventoryHandler *handler.InventoryHandler
	AdminHandler     *handler.AdminHandler
	AuthMiddleware   func(http.Handler) http.Handler
	Logger           *zap.Logger
}

// New creates and configures the status HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "X-Request-ID", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, apierror.NotFound(""))
	})

	// public
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
		r.Get("/api/v1/health", cfg.Handler.Health)
	}

	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		if cfg.InventoryHandler != nil {
			r.Get("/api/v1/inventory/{user_id}", cfg.InventoryHandler.GetInventory)
		}
		if cfg.AdminHandler != nil {
			r.Get("/api/v1/admin/stats", cfg.AdminHandler.GetStats)
		}
	})

	return r
}
