package session

import "github.com/go-chi/chi/v5"

// RegisterRoutes registers session and one-shot query routes
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.StartSession)
		r.Post("/file", h.StartFileSession)
		r.Get("/{id}", h.GetSession)
		r.Post("/{id}/messages", h.SendMessage)
		r.Post("/{id}/clear", h.ClearSession)
		r.Delete("/{id}", h.EndSession)
	})
	r.Post("/rag/query", h.Query)
}
