package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

// errorResponse mirrors the bank's error body so the UI parses one shape.
type errorResponse struct {
	Message []string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msgs ...string) {
	if msgs == nil {
		msgs = []string{http.StatusText(status)}
	}
	writeJSON(w, status, errorResponse{Message: msgs})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// waitParam reads ?wait=; views block until settled unless wait=false.
func waitParam(r *http.Request) bool {
	return r.URL.Query().Get("wait") != "false"
}

// handleServiceError maps domain errors to HTTP responses. Upstream answers
// keep their status and messages; a missing answer becomes 502.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var unauthorized *domain.ErrUnauthorized
	var circuitOpen *domain.ErrCircuitOpen
	var validation *domain.ErrValidation
	var httpErr *domain.ErrHTTP
	var network *domain.ErrNetwork

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, unauthorized.Message)
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		status := validation.StatusCode()
		if status == 0 {
			status = http.StatusBadRequest
		}
		writeError(w, status, messagesOr(validation, "invalid request")...)
	case errors.As(err, &httpErr):
		logger.Debug("bank rejected request", zap.Int("status", httpErr.StatusCode()))
		writeError(w, httpErr.StatusCode(), messagesOr(httpErr, http.StatusText(httpErr.StatusCode()))...)
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "bank temporarily unavailable")
	case errors.As(err, &network):
		logger.Error("bank unreachable", zap.Error(err))
		writeError(w, http.StatusBadGateway, "bank unreachable")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func messagesOr(err domain.DomainError, fallback string) []string {
	if msgs := err.Messages(); len(msgs) > 0 {
		return msgs
	}
	return []string{fallback}
}
