package handler

import (
	"net/http"
	"strings"

	"github.com/boddenberg/bankdash-bfa-go/internal/service"

	"go.uber.org/zap"
)

// BearerSessionMiddleware binds the session to the bearer that owns it.
// With no active session a bearer is adopted as the session credential and a
// request without one goes out unauthenticated. Once a session is active every
// request must present its bearer: a missing one is answered 401 and a
// different one 409, so callers never see each other's cached data.
func BearerSessionMiddleware(session *service.Session, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			if current := session.Token(); current != "" {
				if !ownsSession(w, current, token) {
					logger.Warn("auth: request does not own the session",
						zap.String("path", r.URL.Path),
						zap.String("remote_addr", r.RemoteAddr),
						zap.Bool("bearer", token != ""),
					)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if token != "" {
				if err := adoptToken(session, token); err != nil {
					logger.Warn("auth: token rejected",
						zap.String("path", r.URL.Path),
						zap.String("remote_addr", r.RemoteAddr),
						zap.Error(err),
					)
					handleServiceError(w, err, logger)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken returns the Authorization bearer, "" when the header is absent.
// ok is false for a header that is not a bearer credential.
func bearerToken(r *http.Request) (token string, ok bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", true
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// ownsSession writes the rejection and returns false unless token is the
// active session credential.
func ownsSession(w http.ResponseWriter, current, token string) bool {
	switch token {
	case current:
		return true
	case "":
		writeError(w, http.StatusUnauthorized, "a session is active; present its bearer token")
	default:
		writeError(w, http.StatusConflict, "another session is active")
	}
	return false
}

// requireOwner lets the request through when no session is active or when it
// presents the active session's bearer.
func requireOwner(w http.ResponseWriter, r *http.Request, session *service.Session) bool {
	current := session.Token()
	if current == "" {
		return true
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid authorization header")
		return false
	}
	return ownsSession(w, current, token)
}

// adoptToken makes token the session credential. Whatever was stored before
// (an expired token included) is logged out first, which drops its cached
// data.
func adoptToken(session *service.Session, token string) error {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		// Rejected by Login; the current session is left alone.
		return session.Login(token)
	case token == session.Token():
		return nil
	case session.Stored():
		session.Logout()
	}
	return session.Login(token)
}
