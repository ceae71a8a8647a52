package llm

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	llmadapter "nexus/internal/adapter/llm"
	"nexus/internal/api/respond"
)

type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

type Handler struct {
	models ModelLister
}

func NewHandler(models ModelLister) *Handler {
	return &Handler{models: models}
}

type ModelsResponse struct {
	Models []string `json:"models"`
}

// RegisterRoutes registers model listing routes
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/llm/models", h.ListModels)
	r.Get("/llm/embedding_models", h.ListEmbeddingModels)
}

// ListModels handles GET /llm/models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	ids, err := h.models.ListModels(r.Context())
	if err != nil {
		respond.Error(r.Context(), w, http.StatusBadGateway, "failed to list models", err)
		return
	}
	respond.JSON(w, http.StatusOK, ModelsResponse{Models: nonNil(ids)})
}

// ListEmbeddingModels handles GET /llm/embedding_models
func (h *Handler) ListEmbeddingModels(w http.ResponseWriter, r *http.Request) {
	ids, err := h.models.ListModels(r.Context())
	if err != nil {
		respond.Error(r.Context(), w, http.StatusBadGateway, "failed to list models", err)
		return
	}
	respond.JSON(w, http.StatusOK, ModelsResponse{Models: nonNil(llmadapter.EmbeddingModels(ids))})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
