package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/courtmix/session-engine/handlers"
)

func SetupRoutes(
	router *chi.Mux,
	sessionHandler *handlers.SessionHandler,
	scoreHandler *handlers.ScoreHandler,
	networkHandler *handlers.NetworkHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	// Court screens are served from a different origin than the API.
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/sessions", func(r chi.Router) {
		r.Post("/", sessionHandler.CreateSessionHandler)
		r.Get("/", sessionHandler.ListSessionsHandler)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", sessionHandler.GetSessionHandler)
			r.Get("/state", sessionHandler.GetStateHandler)
			r.Get("/standings", sessionHandler.GetStandingsHandler)
			r.Get("/events", sessionHandler.ListEventsHandler)

			r.Post("/navigate", sessionHandler.NavigateHandler)
			r.Post("/advance", sessionHandler.AdvanceRoundHandler)
			r.Post("/finish", sessionHandler.FinishSessionHandler)

			r.Post("/scores/draft", scoreHandler.SetDraftHandler)
			r.Post("/scores/commit", scoreHandler.CommitScoreHandler)

			r.Put("/players/{playerID}/status", sessionHandler.UpdatePlayerStatusHandler)
		})
	})

	router.Get("/network", networkHandler.GetStatusHandler)
	router.Post("/network", networkHandler.SetStatusHandler)

	router.Get("/ws/sessions/{sessionID}", webSocketHandler.ServeWs)
}
