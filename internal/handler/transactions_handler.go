package handler

import (
	"net/http"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
	"github.com/boddenberg/bankdash-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Transactions Handlers
// ============================================================

// listTransactionsHandler serves one page. page and limit come from the query
// string and are validated the same way the dashboard navigation does.
func listTransactionsHandler(dash *service.Dashboard, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/transactions")
		defer span.End()
		accountID := chi.URLParam(r, "accountId")
		p := service.DerivePage(r.URL.Query())
		span.SetAttributes(
			attribute.String("account.id", accountID),
			attribute.Int("page", p.Page),
			attribute.Int("limit", p.Limit),
		)

		view, err := dash.Transactions(ctx, accountID, p, waitParam(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func refetchTransactionsHandler(dash *service.Dashboard, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountId}/transactions/refetch")
		defer span.End()
		accountID := chi.URLParam(r, "accountId")

		view, err := dash.RefetchTransactions(ctx, accountID, service.DerivePage(r.URL.Query()))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func recentTransactionsHandler(dash *service.Dashboard, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/transactions/recent")
		defer span.End()
		accountID := chi.URLParam(r, "accountId")

		view, err := dash.RecentTransactions(ctx, accountID, waitParam(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func simulateTransactionHandler(mut *service.Mutator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountId}/transactions")
		defer span.End()
		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		var req domain.SimulateTransactionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		txn, err := mut.SimulateTransaction(ctx, accountID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, txn)
	}
}

func transferHandler(mut *service.Mutator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transfers")
		defer span.End()

		var req domain.TransferRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(
			attribute.String("transfer.from", req.FromAccountID),
			attribute.String("transfer.to", req.ToAccountID),
		)

		res, err := mut.Transfer(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}
