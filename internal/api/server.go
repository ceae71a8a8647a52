package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	documentapi "nexus/internal/api/document"
	llmapi "nexus/internal/api/llm"
	"nexus/internal/api/middleware"
	sessionapi "nexus/internal/api/session"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(
	documentHandler *documentapi.Handler,
	sessionHandler *sessionapi.Handler,
	llmHandler *llmapi.Handler,
	logger *zap.Logger,
	timeout time.Duration,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logger(logger))
	if timeout > 0 {
		r.Use(chimiddleware.Timeout(timeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	documentapi.RegisterRoutes(r, documentHandler)
	sessionapi.RegisterRoutes(r, sessionHandler)
	llmapi.RegisterRoutes(r, llmHandler)

	return r
}
