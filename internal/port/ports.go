// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service layer
// from the concrete bank API adapter and credential store.
package port

import (
	"context"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
)

// CredentialSource supplies the current bearer credential. An empty string
// means the request goes out unauthenticated.
type CredentialSource interface {
	Token() string
}

// AccountsAPI reads and writes bank accounts.
type AccountsAPI interface {
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (*domain.Account, error)
	CloseAccount(ctx context.Context, accountID string, req domain.CloseAccountRequest) error
}

// TransactionsAPI reads and appends account transactions.
type TransactionsAPI interface {
	ListTransactions(ctx context.Context, accountID string, page, limit int) (*domain.TransactionPage, error)
	SimulateTransaction(ctx context.Context, accountID string, req domain.SimulateTransactionRequest) (*domain.Transaction, error)
	Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error)
}

// BankAPI is the full upstream contract consumed by the sync layer.
// Every error it returns is a *domain.ErrTransport.
type BankAPI interface {
	AccountsAPI
	TransactionsAPI
}
