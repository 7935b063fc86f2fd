package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router assembles the chi router for the full HTTP surface of spec.md §6,
// following the teacher's middleware stack in internal/api/router.go:
// request ID, real IP, recoverer, a bounded timeout, permissive CORS (the
// only caller is the tournament platform itself), and zap-based request
// logging.
func Router(logger *zap.Logger, handlers *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(70 * time.Second))

	r.Get("/", handlers.Root)
	r.Get("/reset-redis", handlers.ResetRedis)

	r.Route("/application", func(r chi.Router) {
		r.Get("/", handlers.ListApplications)
		r.Put("/", handlers.ResumeApplications)
		r.Delete("/", handlers.DeleteAllApplications)

		r.Get("/{team_id}", handlers.GetApplication)
		r.Post("/{team_id}", handlers.DeployApplication)
		r.Delete("/{team_id}", handlers.DeleteApplication)
	})

	return r
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
