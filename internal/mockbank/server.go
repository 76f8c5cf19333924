package mockbank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

type contextKey string

const userIDKey contextKey = "userID"

// Options tune the server.
type Options struct {
	// RequestsPerMinute answers 429 once exceeded; zero disables the limit.
	RequestsPerMinute int
	// Latency is added to every response.
	Latency time.Duration
}

// NewServer returns the bank API handler.
func NewServer(store *Store, issuer *Issuer, opts Options, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	if opts.Latency > 0 {
		r.Use(delay(opts.Latency))
	}
	if opts.RequestsPerMinute > 0 {
		r.Use(httprate.Limit(opts.RequestsPerMinute, time.Minute,
			httprate.WithLimitHandler(tooManyRequests),
		))
	}

	r.Post("/v1/auth/login", loginHandler(store, issuer))

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(issuer, logger))

		r.Get("/v1/accounts", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, store.ListAccounts(userID(r)))
		})

		r.Post("/v1/accounts", func(w http.ResponseWriter, r *http.Request) {
			var req domain.CreateAccountRequest
			if !decode(w, r, &req) {
				return
			}
			account, err := store.CreateAccount(userID(r), req)
			respond(w, http.StatusCreated, account, err)
		})

		r.Post("/v1/accounts/{id}/close", func(w http.ResponseWriter, r *http.Request) {
			var req domain.CloseAccountRequest
			if !decode(w, r, &req) {
				return
			}
			if err := store.CloseAccount(userID(r), chi.URLParam(r, "id"), req); err != nil {
				writeFailure(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/v1/accounts/{id}/transactions", func(w http.ResponseWriter, r *http.Request) {
			page, limit, ok := pageQuery(w, r)
			if !ok {
				return
			}
			result, err := store.ListTransactions(userID(r), chi.URLParam(r, "id"), page, limit)
			respond(w, http.StatusOK, result, err)
		})

		r.Post("/v1/accounts/{id}/transactions", func(w http.ResponseWriter, r *http.Request) {
			var req domain.SimulateTransactionRequest
			if !decode(w, r, &req) {
				return
			}
			txn, err := store.SimulateTransaction(userID(r), chi.URLParam(r, "id"), req)
			respond(w, http.StatusCreated, txn, err)
		})

		r.Post("/v1/transfers", func(w http.ResponseWriter, r *http.Request) {
			var req domain.TransferRequest
			if !decode(w, r, &req) {
				return
			}
			result, err := store.Transfer(userID(r), req)
			respond(w, http.StatusCreated, result, err)
		})
	})

	return r
}

func loginHandler(store *Store, issuer *Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.LoginRequest
		if !decode(w, r, &req) {
			return
		}
		user, err := store.Authenticate(req.Email, req.Password)
		if err != nil {
			writeFailure(w, err)
			return
		}
		resp, err := issuer.Issue(user)
		respond(w, http.StatusOK, resp, err)
	}
}

func authMiddleware(issuer *Issuer, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeFailure(w, reject(http.StatusUnauthorized, "missing bearer token"))
				return
			}
			id, err := issuer.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				logger.Debug("mockbank: token rejected", zap.Error(err))
				writeFailure(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
		})
	}
}

func userID(r *http.Request) string {
	v, _ := r.Context().Value(userIDKey).(string)
	return v
}

// pageQuery parses page and limit; absent values default to 1 and 20.
func pageQuery(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	page, limit = 1, 20
	q := r.URL.Query()
	var err error
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			writeFailure(w, reject(http.StatusBadRequest, "page must be a positive integer"))
			return 0, 0, false
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			writeFailure(w, reject(http.StatusBadRequest, "limit must be an integer"))
			return 0, 0, false
		}
	}
	return page, limit, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFailure(w, reject(http.StatusBadRequest, "invalid request body"))
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, status, v)
}

func writeFailure(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = reject(http.StatusInternalServerError, "internal error")
	}
	writeJSON(w, e.Status, map[string][]string{"message": e.Messages})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func delay(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// tooManyRequests answers 429 with a plain string message, which is how the
// bank reports rate limiting.
func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": "too many requests"})
}
