package domain

// ============================================================
// Mutation payloads
// ============================================================

// CreateAccountRequest is the body of POST /v1/accounts.
type CreateAccountRequest struct {
	Name string `json:"name"`
}

// CloseAccountRequest is the confirmation body of POST /v1/accounts/{id}/close.
// It is forwarded untouched; the bank decides whether it matches.
type CloseAccountRequest struct {
	Password    string `json:"password"`
	ConfirmName string `json:"confirmName"`
}

// SimulateTransactionRequest is the body of POST /v1/accounts/{id}/transactions.
type SimulateTransactionRequest struct {
	Amount       int64  `json:"amount"`
	Description  string `json:"description"`
	Counterparty string `json:"counterparty,omitempty"`
	CategoryHint string `json:"categoryHint,omitempty"`
	Date         string `json:"date,omitempty"` // RFC 3339, server time when empty
}

// TransferRequest is the body of POST /v1/transfers. Both legs are booked by
// the bank in a single call.
type TransferRequest struct {
	FromAccountID string `json:"fromAccountId"`
	ToAccountID   string `json:"toAccountId"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description,omitempty"`
}

// TransferResult holds the two legs booked for an internal transfer.
type TransferResult struct {
	Debit  Transaction `json:"debit"`
	Credit Transaction `json:"credit"`
}
