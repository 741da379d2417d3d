// 文件: internal/api/routes.go
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册所有API路由
func RegisterRoutes(handlers *APIHandlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// --- 中间件 (Middleware) ---
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- API路由 ---
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks/scan", handlers.HandleStartScanTask)
		r.Get("/tasks/{taskId}", handlers.HandleGetTaskStatus)
		r.Delete("/tasks/{taskId}", handlers.HandleCancelTask)
		r.Get("/albums", handlers.HandleListAlbums)
		r.Get("/albums/{albumID}/images", handlers.HandleListImagesByAlbum)
		r.Get("/tags", handlers.HandleListTags)
		r.Post("/tags/aliases", handlers.HandleCreateAlias)
		r.Get("/stats", handlers.HandleDirectoryStats)
		r.Post("/search/image", handlers.HandleSearchByImage)
		r.Get("/config", handlers.HandleGetConfig)
		r.Put("/config", handlers.HandleUpdateConfig)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
