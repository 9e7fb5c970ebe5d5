// Package handlers exposes the engine over HTTP.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Features switches route groups on and off. A disabled group answers 404.
type Features struct {
	Quests   bool
	Crafting bool
}

// RouterConfig carries what NewRouter mounts. Metrics may be nil.
type RouterConfig struct {
	Players  *PlayerHandler
	Health   http.Handler
	Metrics  http.Handler
	Features Features
	Logger   *slog.Logger
}

// NewRouter builds the API routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(cfg.Logger))
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, requestLogger(req, cfg.Logger), http.StatusNotFound, "no route for "+req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, requestLogger(req, cfg.Logger), http.StatusMethodNotAllowed, "method "+req.Method+" not allowed")
	})

	r.Method(http.MethodGet, "/health", cfg.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	p := cfg.Players
	r.Route("/v1/players/{player}", func(r chi.Router) {
		r.Route("/quests", func(r chi.Router) {
			r.Use(enabled(cfg.Features.Quests, "quests are disabled", cfg.Logger))
			r.Get("/", p.ListAvailable)
			r.Get("/catalog", p.ListQuests)
			r.Get("/active", p.ActiveQuests)
			r.Post("/{quest}/start", p.StartQuest)
			r.Get("/{quest}/scene", p.CurrentScene)
			r.Post("/{quest}/choices", p.ApplyChoice)
			r.Post("/{quest}/abandon", p.AbandonQuest)
		})
		r.Route("/recipes", func(r chi.Router) {
			r.Use(enabled(cfg.Features.Crafting, "crafting is disabled", cfg.Logger))
			r.Get("/", p.ListRecipes)
			r.Get("/{item}", p.CheckRecipe)
			r.Post("/{item}/craft", p.Craft)
		})
		r.Get("/inventory", p.Inventory)
		r.Post("/characters/{character}/interact", p.Interact)
		r.Post("/discoveries", p.Discover)
	})

	return r
}

func enabled(on bool, message string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if on {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, requestLogger(r, logger), http.StatusNotFound, message)
		})
	}
}
