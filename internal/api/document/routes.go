package document

import "github.com/go-chi/chi/v5"

// RegisterRoutes registers document routes
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/", h.IngestDocument)
		r.Get("/", h.ListDocuments)
		r.Get("/stats", h.GetStats)
		r.Get("/{id}", h.GetDocument)
		r.Delete("/{id}", h.DeleteDocument)
		r.Post("/{id}/summary", h.Summarize)
		r.Get("/{id}/summary", h.GetSummary)
	})
}
