// Package http provides the HTTP delivery layer of the playlist tracker: the
// management API for tracking links, the public redirect and the operational
// endpoints.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/vadimbarashkov/playlist-tracker/pkg/middleware/recoverer"
)

// NewRouter initializes a Chi router with the middleware stack and every route of the service.
func NewRouter(logger *httplog.Logger, svc Services) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(recoverer.New(logger.Logger.With(slog.String("component", "recoverer"))))

	h := newHandler(svc, validator.New())

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/swagger.yml"),
	))

	r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger.yml")
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", handlePing)

		r.Route("/links", func(r chi.Router) {
			r.Post("/", h.createLink)
			r.Get("/", h.listLinks)
			r.Get("/{linkID}/metrics", h.linkMetrics)
			r.Delete("/{slug}", h.deactivateLink)
		})

		r.Get("/playlists/preview", h.previewPlaylist)
	})

	r.Get("/{slug}", h.redirect)

	return r
}
