package handler

import (
	"net/http"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
	"github.com/boddenberg/bankdash-bfa-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Session
// ============================================================

type sessionResponse struct {
	LoggedIn bool   `json:"loggedIn"`
	Subject  string `json:"subject,omitempty"`
}

func loginHandler(session *service.Session, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/session")
		defer span.End()

		var req domain.SessionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		// Replacing an active session takes its bearer.
		if !requireOwner(w, r, session) {
			return
		}

		if err := adoptToken(session, req.AccessToken); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func logoutHandler(session *service.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "DELETE /v1/session")
		defer span.End()

		if !requireOwner(w, r, session) {
			return
		}
		session.Logout()
		w.WriteHeader(http.StatusNoContent)
	}
}

func getSessionHandler(session *service.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionResponse{
			LoggedIn: session.LoggedIn(),
			Subject:  session.Subject(),
		})
	}
}
