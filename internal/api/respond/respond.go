// Package respond writes JSON bodies, mapped errors and streamed answers.
package respond

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"nexus/internal/domain"
	"nexus/internal/usecase"
)

// ErrorMarker precedes the error message written into a stream that failed
// after its headers were sent.
const ErrorMarker = "\n[error] "

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func Error(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		ctxzap.Error(ctx, message, zap.Error(err))
	} else {
		ctxzap.Debug(ctx, message, zap.Error(err))
	}
	body := ErrorResponse{Error: http.StatusText(status), Message: message}
	if err != nil {
		body.Message = message + ": " + err.Error()
	}
	JSON(w, status, body)
}

// UsecaseError maps a domain error to its HTTP status.
func UsecaseError(ctx context.Context, w http.ResponseWriter, err error) {
	var genErr *domain.GenerationError
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound) || errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSummaryNotFound):
		Error(ctx, w, http.StatusNotFound, "resource not found", err)
	case errors.Is(err, domain.ErrEmptyQuery) || errors.Is(err, domain.ErrEmptyDocument) || errors.Is(err, domain.ErrMissingField):
		Error(ctx, w, http.StatusBadRequest, "invalid parameter", err)
	case domain.IsIndexUnavailable(err):
		Error(ctx, w, http.StatusServiceUnavailable, "vector index unavailable", err)
	case domain.IsEmbeddingProvider(err):
		Error(ctx, w, http.StatusBadGateway, "embedding provider failed", err)
	case errors.As(err, &genErr):
		Error(ctx, w, http.StatusBadGateway, "generation failed", err)
	case errors.Is(err, context.DeadlineExceeded):
		Error(ctx, w, http.StatusGatewayTimeout, "request timed out", err)
	default:
		Error(ctx, w, http.StatusInternalServerError, "internal server error", err)
	}
}

// Stream writes answer fragments as plain text, flushing after each one. A
// stream that fails after the first byte ends with ErrorMarker and the
// reason, since the status line is already sent.
func Stream(ctx context.Context, w http.ResponseWriter, s *usecase.Stream) {
	defer s.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for {
		frag, ok := s.Next()
		if !ok {
			break
		}
		if _, err := io.WriteString(w, frag); err != nil {
			ctxzap.Debug(ctx, "client went away", zap.Error(err))
			return
		}
		rc.Flush()
	}

	if err := s.Err(); err != nil {
		if usecase.IsCancelled(err) {
			ctxzap.Info(ctx, "stream cancelled", zap.Error(err))
		} else {
			ctxzap.Error(ctx, "stream failed", zap.Error(err))
		}
		io.WriteString(w, ErrorMarker+err.Error())
		rc.Flush()
	}
}
