// Package domain defines the client-side projections of the bank API
// resources served by the dashboard BFF. The remote bank is the system of
// record: nothing here is persisted, and balances are only ever replaced by
// server responses.
package domain

import "time"

// CurrencyPLN is the only currency the bank API supports.
const CurrencyPLN = "PLN"

// ============================================================
// Accounts
// ============================================================

// Account is a bank account as returned by GET /v1/accounts.
// Balance is expressed in minor units (grosze).
type Account struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Name      string    `json:"name"`
	IBAN      string    `json:"iban"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TotalBalance sums the balances of the given accounts.
func TotalBalance(accounts []Account) int64 {
	var sum int64
	for _, a := range accounts {
		sum += a.Balance
	}
	return sum
}

// FindAccount returns the account with the given id, if present.
// The bank API has no single-account GET, so detail views filter the list.
func FindAccount(accounts []Account, id string) (*Account, bool) {
	for i := range accounts {
		if accounts[i].ID == id {
			return &accounts[i], true
		}
	}
	return nil, false
}

// ============================================================
// Transactions
// ============================================================

// Transaction is an immutable ledger entry. Amount is in minor units:
// negative values are debits, positive values are credits.
type Transaction struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"accountId"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Date          time.Time `json:"date"`
	Description   string    `json:"description"`
	Counterparty  string    `json:"counterparty,omitempty"`
	CategoryHint  string    `json:"categoryHint,omitempty"`
	ExternalTxnID string    `json:"externalTxnId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TransactionPage is one page of an account's transaction history,
// in server order (newest first).
type TransactionPage struct {
	Items []Transaction `json:"items"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Total int           `json:"total"`
	Pages int           `json:"pages"`
}

// PageCount returns ceil(total/limit). It falls back to the server supplied
// page count when the limit is unknown.
func (p TransactionPage) PageCount() int {
	if p.Limit <= 0 {
		return p.Pages
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// DisplayPage clamps a requested page number into [1, PageCount()].
// It is a read used for display only; callers must not write the result
// back into navigation state.
func (p TransactionPage) DisplayPage(requested int) int {
	page := requested
	if n := p.PageCount(); page > n {
		page = n
	}
	if page < 1 {
		page = 1
	}
	return page
}
