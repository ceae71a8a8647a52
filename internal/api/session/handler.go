package session

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"nexus/internal/api/respond"
	"nexus/internal/domain"
	"nexus/internal/logger"
)

// MaxUploadBytes bounds the file accepted by StartFileSession.
const MaxUploadBytes = 10 << 20

type Handler struct {
	usecase ConversationUsecase
}

func NewHandler(usecase ConversationUsecase) *Handler {
	return &Handler{usecase: usecase}
}

type StartSessionRequest struct {
	Scope []string `json:"scope"`
}

type MessageRequest struct {
	Text string `json:"text"`
}

type QueryRequest struct {
	Query string   `json:"query"`
	Scope []string `json:"scope"`
}

type QueryResponse struct {
	Answer   string           `json:"answer"`
	Passages []domain.Passage `json:"passages"`
}

// StartSession handles POST /sessions - a session over the shared index
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "StartSession")

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respond.Error(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	s := h.usecase.StartDatabaseSession(req.Scope)
	ctxzap.Info(ctx, "session started", zap.String("session_id", s.ID))
	respond.JSON(w, http.StatusCreated, s)
}

// StartFileSession handles POST /sessions/file - multipart field "file"
func (h *Handler) StartFileSession(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "StartFileSession")

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		respond.Error(ctx, w, http.StatusBadRequest, "failed to parse form", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respond.UsecaseError(ctx, w, fmt.Errorf("%w: file", domain.ErrMissingField))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respond.Error(ctx, w, http.StatusBadRequest, "failed to read file", err)
		return
	}
	if !utf8.Valid(data) {
		respond.Error(ctx, w, http.StatusBadRequest, "file is not UTF-8 text", nil)
		return
	}

	ctx = logger.AddFields(ctx, zap.String("file", header.Filename), zap.Int64("size_bytes", header.Size))
	s, err := h.usecase.StartFileSession(ctx, header.Filename, string(data))
	if err != nil {
		respond.UsecaseError(ctx, w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, s)
}

// GetSession handles GET /sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.usecase.Session(chi.URLParam(r, "id"))
	if err != nil {
		respond.UsecaseError(r.Context(), w, err)
		return
	}
	respond.JSON(w, http.StatusOK, s)
}

// SendMessage handles POST /sessions/{id}/messages and streams the answer.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ctx := logger.AddFields(r.Context(),
		zap.String("session_id", sessionID),
		zap.String("action", "SendMessage"),
	)

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	stream, err := h.usecase.Send(ctx, sessionID, req.Text)
	if err != nil {
		respond.UsecaseError(ctx, w, err)
		return
	}
	respond.Stream(ctx, w, stream)
}

// ClearSession handles POST /sessions/{id}/clear
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.usecase.Clear(chi.URLParam(r, "id")); err != nil {
		respond.UsecaseError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EndSession handles DELETE /sessions/{id}
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.usecase.End(chi.URLParam(r, "id")); err != nil {
		respond.UsecaseError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Query handles POST /rag/query - one question, no session
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "Query")

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	answer, passages, err := h.usecase.Ask(ctx, req.Query, req.Scope)
	if err != nil {
		respond.UsecaseError(ctx, w, err)
		return
	}
	if passages == nil {
		passages = []domain.Passage{}
	}
	respond.JSON(w, http.StatusOK, QueryResponse{Answer: answer, Passages: passages})
}
