package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/marmotkit/Gold/docs"
	"github.com/marmotkit/Gold/handlers"
	"github.com/marmotkit/Gold/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	logger *slog.Logger,
	allowedOrigins []string,
	sessionHandler *handlers.SessionHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestLogger(logger))
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Archive-Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(docs.SwaggerJSON)
	})
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	router.With(middleware.TournamentID).Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	router.Route("/api/v1/sessions/{tournamentID}", func(r chi.Router) {
		r.Use(middleware.TournamentID)
		r.Use(chiMiddleware.Timeout(60 * time.Second))

		r.Get("/", sessionHandler.GetSession)
		r.Delete("/", sessionHandler.CloseSession)
		r.Post("/reload", sessionHandler.Reload)
		r.Post("/save", sessionHandler.Save)
		r.Post("/auto-group", sessionHandler.AutoGroup)
		r.Get("/export", sessionHandler.Export)

		r.Route("/drag", func(r chi.Router) {
			r.Post("/start", sessionHandler.DragStart)
			r.Post("/over", sessionHandler.DragOver)
			r.Post("/drop", sessionHandler.Drop)
			r.Post("/end", sessionHandler.DragEnd)
		})

		r.Route("/participants/{participantID}", func(r chi.Router) {
			r.Delete("/", sessionHandler.DeleteParticipant)
			r.Post("/move", sessionHandler.MoveParticipant)
			r.Put("/fields/{field}", sessionHandler.EditField)
			r.Put("/fields/{field}/commit", sessionHandler.CommitField)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", sessionHandler.AddGroup)
			r.Post("/reorder", sessionHandler.ReorderGroups)
			r.Delete("/{code}", sessionHandler.DeleteGroup)
			r.Post("/{code}/sort-by-handicap", sessionHandler.SortGroupByHandicap)
		})
	})
}
