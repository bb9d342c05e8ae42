package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/manipulatorai/engage-api/internal/api"
	apiMiddleware "github.com/manipulatorai/engage-api/internal/api/middleware"
	"github.com/manipulatorai/engage-api/internal/api/shared"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authHandler := api.NewAuthHandler(app.userStore, app.jwtService, app.passwordVerifier)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	conversationHandler := api.NewConversationHandler(app.orchestrator, app.engine)
	webhookHandler := api.NewWebhookHandler(app.orchestrator)
	taskHandler := api.NewTaskHandler(app.monitor)
	itemHandler := api.NewItemHandler(app.catalogStore)

	r.Route("/api", func(r chi.Router) {
		// Authentication endpoints (public)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		// Webhook intake (public; platforms cannot send bearer tokens)
		r.Post("/webhooks/{platform}", webhookHandler.HandleWebhook)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/interactions", conversationHandler.HandleInteraction)
			r.Get("/conversations/metrics", conversationHandler.GetMetrics)
			r.Get("/conversations/{id}", conversationHandler.GetConversation)
			r.Post("/conversations/{id}/messages", conversationHandler.PostMessage)

			r.Get("/tasks", taskHandler.ListTasks)
			r.Get("/tasks/{id}", taskHandler.GetTask)
			r.Delete("/tasks/{id}", taskHandler.CancelTask)

			r.Get("/items", itemHandler.ListItems)
			r.Get("/items/{id}", itemHandler.GetItem)
			r.Post("/items/match", itemHandler.MatchItems)
		})
	})

	r.Get("/health", app.handleHealth)

	return r
}

// handleHealth reports whether the server's dependencies are reachable.
func (app *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{
		"database": "ok",
		"queue":    "ok",
	}
	healthy := true

	if err := app.db.PingContext(ctx); err != nil {
		checks["database"] = "unreachable"
		healthy = false
	}
	if err := app.redis.Ping(ctx).Err(); err != nil {
		checks["queue"] = "unreachable"
		healthy = false
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	shared.RespondWithJSON(w, r, status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}
