package document

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"nexus/internal/api/respond"
	"nexus/internal/domain"
	"nexus/internal/logger"
	"nexus/internal/usecase"
)

type Handler struct {
	documents DocumentUsecase
	summaries SummaryUsecase
}

func NewHandler(documents DocumentUsecase, summaries SummaryUsecase) *Handler {
	return &Handler{documents: documents, summaries: summaries}
}

type IngestRequest struct {
	ID     string            `json:"id"`
	Title  string            `json:"title,omitempty"`
	Path   string            `json:"path,omitempty"`
	Text   string            `json:"text"`
	Hash   string            `json:"content_hash,omitempty"`
	Source domain.SourceType `json:"source,omitempty"`
}

// DocumentDTO is a document record with its text omitted unless asked for.
type DocumentDTO struct {
	domain.Document
	Text string `json:"text,omitempty"`
}

// IngestDocument handles POST /documents
func (h *Handler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "IngestDocument")

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID == "" {
		respond.UsecaseError(ctx, w, fmt.Errorf("%w: id", domain.ErrMissingField))
		return
	}
	if req.Source == "" {
		req.Source = domain.SourceUpload
	}

	ctx = logger.AddFields(ctx, zap.String("doc_id", req.ID))
	report, err := h.documents.Ingest(ctx, domain.SourceDocument{
		ID:          req.ID,
		Source:      req.Source,
		Title:       req.Title,
		Path:        req.Path,
		Text:        req.Text,
		ContentHash: req.Hash,
	})
	if err != nil {
		respond.UsecaseError(ctx, w, err)
		return
	}

	ctxzap.Info(ctx, "document ingested", zap.String("outcome", string(report.Outcome)), zap.Int("chunks", report.Chunks))
	respond.JSON(w, http.StatusOK, report)
}

// ListDocuments handles GET /documents
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.List()
	if err != nil {
		respond.UsecaseError(r.Context(), w, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	respond.JSON(w, http.StatusOK, docs)
}

// GetStats handles GET /documents/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.documents.Stats(r.Context())
	if err != nil {
		respond.UsecaseError(r.Context(), w, err)
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}

// GetDocument handles GET /documents/{id}; ?text=true includes the body.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := logger.AddFields(r.Context(), zap.String("doc_id", chi.URLParam(r, "id")))

	doc, err := h.documents.Status(chi.URLParam(r, "id"))
	if err != nil {
		respond.UsecaseError(ctx, w, err)
		return
	}
	dto := DocumentDTO{Document: doc}
	if r.URL.Query().Get("text") == "true" {
		dto.Text = doc.Text
	}
	respond.JSON(w, http.StatusOK, dto)
}

// DeleteDocument handles DELETE /documents/{id}
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	ctx := logger.AddFields(r.Context(), zap.String("doc_id", docID), zap.String("action", "DeleteDocument"))

	if err := h.documents.Remove(ctx, docID); err != nil {
		respond.UsecaseError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Summarize handles POST /documents/{id}/summary and streams the summary.
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	ctx := logger.AddFields(r.Context(), zap.String("doc_id", docID), zap.String("action", "Summarize"))

	stream, err := h.summaries.Summarize(ctx, docID)
	if err != nil {
		respond.UsecaseError(ctx, w, err)
		return
	}
	respond.Stream(ctx, w, stream)
}

// GetSummary handles GET /documents/{id}/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.summaries.Summary(chi.URLParam(r, "id"))
	if err != nil {
		respond.UsecaseError(r.Context(), w, err)
		return
	}
	respond.JSON(w, http.StatusOK, summary)
}

var _ SummaryUsecase = (*usecase.SummarizeUseCase)(nil)
var _ DocumentUsecase = (*usecase.IngestUseCase)(nil)
