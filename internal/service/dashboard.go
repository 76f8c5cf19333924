package service

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/cache"
	"github.com/boddenberg/bankdash-bfa-go/internal/port"

	"go.uber.org/zap"
)

// Resource kinds held in the cache.
const (
	KindAccounts     = "accounts"
	KindTransactions = "transactions"
)

// AccountsKey is the key of the account collection.
func AccountsKey() cache.Key {
	return cache.NewKey(KindAccounts)
}

// TransactionsKey is the key of one page of an account's transactions.
func TransactionsKey(accountID string, p PageParams) cache.Key {
	return cache.NewKey(KindTransactions,
		"accountId", accountID,
		"page", strconv.Itoa(p.Page),
		"limit", strconv.Itoa(p.Limit),
	)
}

// ViewError is the renderable form of a failed fetch.
type ViewError struct {
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message"`
	Hint       string `json:"hint,omitempty"`
}

// NewViewError builds a ViewError; fallback is used when the bank sent no
// message.
func NewViewError(err domain.DomainError, fallback string) *ViewError {
	if err == nil {
		return nil
	}
	ve := &ViewError{StatusCode: err.StatusCode(), Message: domain.Message(err, fallback)}
	switch err.StatusCode() {
	case http.StatusForbidden:
		ve.Hint = "You do not have access to this account."
	case http.StatusTooManyRequests:
		ve.Hint = "Request limit exceeded. Try again in a moment."
	}
	return ve
}

// AccountsView is the account list as a consumer renders it.
type AccountsView struct {
	Accounts     []domain.Account `json:"accounts"`
	TotalBalance int64            `json:"totalBalance"`
	Currency     string           `json:"currency"`
	Status       Status           `json:"status"`
	Error        *ViewError       `json:"error,omitempty"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// AccountView is a single account picked out of the account list.
type AccountView struct {
	Account   *domain.Account `json:"account"`
	Found     bool            `json:"found"`
	Status    Status          `json:"status"`
	Error     *ViewError      `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// TransactionsView is one page of an account's transactions.
type TransactionsView struct {
	AccountID   string                  `json:"accountId"`
	Items       []domain.Transaction    `json:"items"`
	Requested   PageParams              `json:"requested"`
	DisplayPage int                     `json:"displayPage"`
	PageCount   int                     `json:"pageCount"`
	Total       int                     `json:"total"`
	Status      Status                  `json:"status"`
	Placeholder bool                    `json:"placeholder"`
	Error       *ViewError              `json:"error,omitempty"`
	UpdatedAt   time.Time               `json:"updatedAt"`
	Page        *domain.TransactionPage `json:"-"`
}

// Dashboard exposes typed views of the bank resources on top of the
// Executor.
type Dashboard struct {
	api    port.BankAPI
	exec   *Executor
	logger *zap.Logger

	mu       sync.Mutex
	lastPage map[string]cache.Key // by account id
}

// NewDashboard creates a Dashboard.
func NewDashboard(api port.BankAPI, exec *Executor, logger *zap.Logger) *Dashboard {
	return &Dashboard{
		api:      api,
		exec:     exec,
		logger:   logger,
		lastPage: make(map[string]cache.Key),
	}
}

// Executor returns the executor the dashboard reads through.
func (d *Dashboard) Executor() *Executor {
	return d.exec
}

// Accounts returns the account list. With wait set it blocks until no fetch
// is in flight; the error is only ever ctx's.
func (d *Dashboard) Accounts(ctx context.Context, wait bool) (AccountsView, error) {
	v, err := d.observe(ctx, AccountsKey(), d.fetchAccounts, wait)
	return accountsView(v), err
}

// RefetchAccounts forces a new fetch of the account list.
func (d *Dashboard) RefetchAccounts(ctx context.Context) (AccountsView, error) {
	v, err := d.refetch(ctx, AccountsKey(), d.fetchAccounts)
	return accountsView(v), err
}

// Account returns one account. There is no single-account endpoint; the
// account is looked up in the list.
func (d *Dashboard) Account(ctx context.Context, accountID string, wait bool) (AccountView, error) {
	v, err := d.observe(ctx, AccountsKey(), d.fetchAccounts, wait)

	av := AccountView{
		Status:    v.Status,
		Error:     NewViewError(v.Err, "Could not load the account."),
		UpdatedAt: v.UpdatedAt,
	}
	if accounts, ok := v.Data.([]domain.Account); ok {
		if acc, found := domain.FindAccount(accounts, accountID); found {
			account := *acc
			av.Account = &account
			av.Found = true
		}
	}
	return av, err
}

// Transactions returns one page of an account's transactions. A page never
// loaded before shows the account's previously displayed page as a
// placeholder until it arrives.
func (d *Dashboard) Transactions(ctx context.Context, accountID string, p PageParams, wait bool) (TransactionsView, error) {
	key := TransactionsKey(accountID, p)
	fetch := d.fetchTransactions(accountID, p)

	var v View
	var err error
	if wait {
		v, err = d.exec.Await(ctx, key, fetch)
	} else {
		d.mu.Lock()
		prev, ok := d.lastPage[accountID]
		d.mu.Unlock()
		if !ok {
			prev = key
		}
		v = d.exec.UseWithPlaceholder(key, fetch, prev)
	}

	if v.HasData && !v.Placeholder {
		d.mu.Lock()
		d.lastPage[accountID] = key
		d.mu.Unlock()
	}
	return transactionsView(accountID, p, v), err
}

// RecentTransactions returns the first few transactions of an account.
func (d *Dashboard) RecentTransactions(ctx context.Context, accountID string, wait bool) (TransactionsView, error) {
	p := PageParams{Page: DefaultPage, Limit: RecentLimit}
	v, err := d.observe(ctx, TransactionsKey(accountID, p), d.fetchTransactions(accountID, p), wait)
	return transactionsView(accountID, p, v), err
}

// RefetchTransactions forces a new fetch of one page.
func (d *Dashboard) RefetchTransactions(ctx context.Context, accountID string, p PageParams) (TransactionsView, error) {
	v, err := d.refetch(ctx, TransactionsKey(accountID, p), d.fetchTransactions(accountID, p))
	return transactionsView(accountID, p, v), err
}

func (d *Dashboard) observe(ctx context.Context, key cache.Key, fetch FetchFunc, wait bool) (View, error) {
	if wait {
		return d.exec.Await(ctx, key, fetch)
	}
	return d.exec.Use(key, fetch), nil
}

func (d *Dashboard) refetch(ctx context.Context, key cache.Key, fetch FetchFunc) (View, error) {
	v, err := d.exec.Refetch(ctx, key)
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		// Never observed yet: the first observation is the fetch.
		return d.exec.Await(ctx, key, fetch)
	}
	return v, err
}

func (d *Dashboard) fetchAccounts(ctx context.Context) (any, error) {
	return d.api.ListAccounts(ctx)
}

func (d *Dashboard) fetchTransactions(accountID string, p PageParams) FetchFunc {
	return func(ctx context.Context) (any, error) {
		return d.api.ListTransactions(ctx, accountID, p.Page, p.Limit)
	}
}

func accountsView(v View) AccountsView {
	av := AccountsView{
		Accounts:  []domain.Account{},
		Currency:  domain.CurrencyPLN,
		Status:    v.Status,
		Error:     NewViewError(v.Err, "Could not load the account list."),
		UpdatedAt: v.UpdatedAt,
	}
	if accounts, ok := v.Data.([]domain.Account); ok {
		av.Accounts = slices.Clone(accounts)
		av.TotalBalance = domain.TotalBalance(accounts)
	}
	return av
}

func transactionsView(accountID string, p PageParams, v View) TransactionsView {
	tv := TransactionsView{
		AccountID:   accountID,
		Items:       []domain.Transaction{},
		Requested:   p,
		DisplayPage: p.Page,
		PageCount:   1,
		Status:      v.Status,
		Placeholder: v.Placeholder,
		Error:       NewViewError(v.Err, "Could not load transactions."),
		UpdatedAt:   v.UpdatedAt,
	}
	if cached, ok := v.Data.(*domain.TransactionPage); ok && cached != nil {
		page := *cached
		page.Items = slices.Clone(cached.Items)
		tv.Page = &page
		tv.Items = page.Items
		tv.Total = page.Total
		tv.DisplayPage = page.DisplayPage(p.Page)
		if n := page.PageCount(); n > 1 {
			tv.PageCount = n
		}
	}
	return tv
}
