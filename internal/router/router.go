package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"lootcase-api/internal/handler"
	"lootcase-api/internal/middleware"
	"lootcase-api/internal/ratelimit"
	"lootcase-api/pkg/apierror"
	"lootcase-api/pkg/response"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler          *handler.Handler
	InventoryHandler *handler.InventoryHandler
	AdminHandler     *handler.AdminHandler
	AuthHandler      *handler.AuthHandler

	AllowedOrigins []string
	TrustProxy     bool
	AdminKeyHash   string

	// IPGate and IPRule enable the coarse per-address limit when IPGate is set.
	IPGate *ratelimit.Gate
	IPRule ratelimit.Rule
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientIP(cfg.TrustProxy))
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Token", "X-Login-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// PUBLIC routes
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		// Player-facing routes carry their session in the body and sit
		// behind the per-address limit.
		r.Group(func(r chi.Router) {
			if cfg.IPGate != nil {
				r.Use(middleware.IPRateLimit(cfg.IPGate, cfg.IPRule))
			}

			if cfg.InventoryHandler != nil {
				r.Route("/inventory", func(r chi.Router) {
					r.Post("/actions", cfg.InventoryHandler.HandleAction)
					r.Post("/list", cfg.InventoryHandler.List)
				})
			}

			if cfg.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.Post("/validate", cfg.AuthHandler.ValidateSession)
					r.Post("/revoke", cfg.AuthHandler.RevokeSession)
				})
			}
		})

		if cfg.AdminHandler != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.AdminAuth(cfg.AdminKeyHash))
				r.Get("/stats", cfg.AdminHandler.GetStats)
				r.Get("/audit", cfg.AdminHandler.ListAudit)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, apierror.NotFound("route not found"))
	})

	return r
}
