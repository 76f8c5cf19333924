package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// BankClient maps the bank REST resources onto the Transport.
// It implements port.BankAPI.
type BankClient struct {
	transport *Transport
}

// NewBankClient creates a new BankClient.
func NewBankClient(transport *Transport) *BankClient {
	return &BankClient{transport: transport}
}

// ListAccounts calls GET /v1/accounts.
func (c *BankClient) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "BankClient.ListAccounts")
	defer span.End()

	var accounts []domain.Account
	if err := c.transport.Do(ctx, http.MethodGet, "/v1/accounts", RequestOptions{}, &accounts); err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	return accounts, nil
}

// CreateAccount calls POST /v1/accounts.
func (c *BankClient) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "BankClient.CreateAccount")
	defer span.End()

	var account domain.Account
	if err := c.transport.Do(ctx, http.MethodPost, "/v1/accounts", RequestOptions{Body: req}, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// CloseAccount calls POST /v1/accounts/{id}/close. The bank answers 204.
func (c *BankClient) CloseAccount(ctx context.Context, accountID string, req domain.CloseAccountRequest) error {
	ctx, span := tracer.Start(ctx, "BankClient.CloseAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	path := fmt.Sprintf("/v1/accounts/%s/close", url.PathEscape(accountID))
	return c.transport.Do(ctx, http.MethodPost, path, RequestOptions{Body: req}, nil)
}

// ListTransactions calls GET /v1/accounts/{id}/transactions?page&limit.
func (c *BankClient) ListTransactions(ctx context.Context, accountID string, page, limit int) (*domain.TransactionPage, error) {
	ctx, span := tracer.Start(ctx, "BankClient.ListTransactions")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", accountID),
		attribute.Int("page", page),
		attribute.Int("limit", limit),
	)

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	var result domain.TransactionPage
	path := fmt.Sprintf("/v1/accounts/%s/transactions", url.PathEscape(accountID))
	if err := c.transport.Do(ctx, http.MethodGet, path, RequestOptions{Params: params}, &result); err != nil {
		return nil, err
	}
	if result.Items == nil {
		result.Items = []domain.Transaction{}
	}
	return &result, nil
}

// SimulateTransaction calls POST /v1/accounts/{id}/transactions.
func (c *BankClient) SimulateTransaction(ctx context.Context, accountID string, req domain.SimulateTransactionRequest) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "BankClient.SimulateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	var txn domain.Transaction
	path := fmt.Sprintf("/v1/accounts/%s/transactions", url.PathEscape(accountID))
	if err := c.transport.Do(ctx, http.MethodPost, path, RequestOptions{Body: req}, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// Transfer calls POST /v1/transfers.
func (c *BankClient) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	ctx, span := tracer.Start(ctx, "BankClient.Transfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("transfer.from", req.FromAccountID),
		attribute.String("transfer.to", req.ToAccountID),
	)

	var result domain.TransferResult
	if err := c.transport.Do(ctx, http.MethodPost, "/v1/transfers", RequestOptions{Body: req}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
