package mockbank_test

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
	"github.com/boddenberg/bankdash-bfa-go/internal/mockbank"

	"go.uber.org/zap"
)

const (
	email    = "jan@example.com"
	password = "s3cret"
)

type bank struct {
	t     *testing.T
	srv   *httptest.Server
	store *mockbank.Store
	token string
}

func newBank(t *testing.T, opts mockbank.Options) *bank {
	t.Helper()
	store := mockbank.NewStore()
	if _, err := store.AddUser(email, password); err != nil {
		t.Fatalf("add user: %v", err)
	}
	srv := httptest.NewServer(mockbank.NewServer(store, mockbank.NewIssuer("test-secret", time.Hour), opts, zap.NewNop()))
	t.Cleanup(srv.Close)

	b := &bank{t: t, srv: srv, store: store}
	resp := b.call(http.MethodPost, "/v1/auth/login", domain.LoginRequest{Email: email, Password: password}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var login domain.LoginResponse
	json.NewDecoder(resp.Body).Decode(&login)
	b.token = login.AccessToken
	return b
}

func (b *bank) call(method, path string, body, out any) *http.Response {
	b.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, b.srv.URL+path, &buf)
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s: %v", method, path, err)
	}
	b.t.Cleanup(func() { resp.Body.Close() })
	if out != nil && resp.StatusCode < 300 {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp
}

func (b *bank) create(name string) domain.Account {
	b.t.Helper()
	var acc domain.Account
	if resp := b.call(http.MethodPost, "/v1/accounts", domain.CreateAccountRequest{Name: name}, &acc); resp.StatusCode != http.StatusCreated {
		b.t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	return acc
}

func messages(t *testing.T, resp *http.Response) domain.MessageList {
	t.Helper()
	var body domain.ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Message
}

func TestLogin_WrongPassword(t *testing.T) {
	b := newBank(t, mockbank.Options{})
	b.token = ""

	resp := b.call(http.MethodPost, "/v1/auth/login", domain.LoginRequest{Email: email, Password: "nope"}, nil)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAccounts_RequireToken(t *testing.T) {
	b := newBank(t, mockbank.Options{})
	b.token = ""

	if resp := b.call(http.MethodGet, "/v1/accounts", nil, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}

	b.token = "garbage"
	if resp := b.call(http.MethodGet, "/v1/accounts", nil, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid token, got %d", resp.StatusCode)
	}
}

func TestCreateAccount_ValidIBAN(t *testing.T) {
	b := newBank(t, mockbank.Options{})

	acc := b.create("Main")

	if acc.Currency != domain.CurrencyPLN || acc.Balance != 0 || len(acc.IBAN) != 28 {
		t.Fatalf("unexpected account %+v", acc)
	}
	// ISO 13616: move the first four characters to the end, letters to
	// numbers, the remainder mod 97 must be 1.
	n, ok := new(big.Int).SetString(acc.IBAN[4:]+"2521"+acc.IBAN[2:4], 10)
	if !ok || new(big.Int).Mod(n, big.NewInt(97)).Int64() != 1 {
		t.Errorf("invalid IBAN check digits: %s", acc.IBAN)
	}

	var list []domain.Account
	b.call(http.MethodGet, "/v1/accounts", nil, &list)
	if len(list) != 1 || list[0].ID != acc.ID {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestCreateAccount_MissingName(t *testing.T) {
	b := newBank(t, mockbank.Options{})

	resp := b.call(http.MethodPost, "/v1/accounts", domain.CreateAccountRequest{Name: "  "}, nil)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if msgs := messages(t, resp); len(msgs) != 1 || msgs[0] != "name is required" {
		t.Errorf("unexpected messages %v", msgs)
	}
}

func TestCloseAccount_Rules(t *testing.T) {
	b := newBank(t, mockbank.Options{})
	funded := b.create("Funded")
	empty := b.create("Empty")
	b.call(http.MethodPost, "/v1/accounts/"+funded.ID+"/transactions",
		domain.SimulateTransactionRequest{Amount: 100, Description: "top up"}, nil)

	other, _ := b.store.AddUser("other@example.com", "pw")
	foreign, _ := b.store.CreateAccount(other.ID, domain.CreateAccountRequest{Name: "Foreign"})

	tests := []struct {
		name      string
		accountID string
		req       domain.CloseAccountRequest
		want      int
	}{
		{"unknown account", "nope", domain.CloseAccountRequest{Password: password, ConfirmName: "x"}, http.StatusNotFound},
		{"not owner", foreign.ID, domain.CloseAccountRequest{Password: password, ConfirmName: "Foreign"}, http.StatusForbidden},
		{"bad password", empty.ID, domain.CloseAccountRequest{Password: "wrong", ConfirmName: "Empty"}, http.StatusUnauthorized},
		{"name mismatch", empty.ID, domain.CloseAccountRequest{Password: password, ConfirmName: "empty"}, http.StatusBadRequest},
		{"non-zero balance", funded.ID, domain.CloseAccountRequest{Password: password, ConfirmName: "Funded"}, http.StatusConflict},
		{"closed", empty.ID, domain.CloseAccountRequest{Password: password, ConfirmName: "Empty"}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := b.call(http.MethodPost, "/v1/accounts/"+tt.accountID+"/close", tt.req, nil)
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}

	var list []domain.Account
	b.call(http.MethodGet, "/v1/accounts", nil, &list)
	if len(list) != 1 || list[0].ID != funded.ID {
		t.Errorf("expected only the funded account left, got %+v", list)
	}
}

func TestSimulateTransaction_Validation(t *testing.T) {
	b := newBank(t, mockbank.Options{})
	acc := b.create("Main")

	resp := b.call(http.MethodPost, "/v1/accounts/"+acc.ID+"/transactions",
		domain.SimulateTransactionRequest{Date: "yesterday"}, nil)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if msgs := messages(t, resp); len(msgs) != 3 {
		t.Errorf("expected 3 messages, got %v", msgs)
	}
}

func TestTransactions_Pagination(t *testing.T) {
	b := newBank(t, mockbank.Options{})
	acc := b.create("Main")
	for i := 0; i < 45; i++ {
		b.call(http.MethodPost, "/v1/accounts/"+acc.ID+"/transactions",
			domain.SimulateTransactionRequest{Amount: int64(i + 1), Description: "txn"}, nil)
	}

	var page domain.TransactionPage
	b.call(http.MethodGet, "/v1/accounts/"+acc.ID+"/transactions?page=3&limit=20", nil, &page)

	if page.Total != 45 || page.Pages != 3 || len(page.Items) != 5 {
		t.Errorf("unexpected page total=%d pages=%d items=%d", page.Total, page.Pages, len(page.Items))
	}
	if page.Items[4].Amount != 1 {
		t.Errorf("expected oldest transaction last, got %d", page.Items[4].Amount)
	}

	if resp := b.call(http.MethodGet, "/v1/accounts/"+acc.ID+"/transactions?limit=500", nil, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for limit 500, got %d", resp.StatusCode)
	}
}

func TestTransfer_AtomicAndInsufficientFunds(t *testing.T) {
	b := newBank(t, mockbank.Options{})
	from := b.create("From")
	to := b.create("To")
	b.call(http.MethodPost, "/v1/accounts/"+from.ID+"/transactions",
		domain.SimulateTransactionRequest{Amount: 1000, Description: "top up"}, nil)

	var res domain.TransferResult
	resp := b.call(http.MethodPost, "/v1/transfers",
		domain.TransferRequest{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 400}, &res)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if res.Debit.Amount != -400 || res.Credit.Amount != 400 || res.Debit.ExternalTxnID != res.Credit.ExternalTxnID {
		t.Errorf("unexpected legs %+v", res)
	}

	resp = b.call(http.MethodPost, "/v1/transfers",
		domain.TransferRequest{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 601}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", resp.StatusCode)
	}

	var list []domain.Account
	b.call(http.MethodGet, "/v1/accounts", nil, &list)
	if domain.TotalBalance(list) != 1000 {
		t.Errorf("expected money conserved, got %d", domain.TotalBalance(list))
	}
}

func TestRateLimit_StringMessage(t *testing.T) {
	b := newBank(t, mockbank.Options{RequestsPerMinute: 2})

	// The login in newBank used the first request.
	b.call(http.MethodGet, "/v1/accounts", nil, nil)
	resp := b.call(http.MethodGet, "/v1/accounts", nil, nil)

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if msgs := messages(t, resp); len(msgs) != 1 || msgs[0] != "too many requests" {
		t.Errorf("unexpected messages %v", msgs)
	}
}

func TestSeed(t *testing.T) {
	b := newBank(t, mockbank.Options{})
	user, _ := b.store.Authenticate(email, password)

	if err := b.store.Seed(user.ID, 30); err != nil {
		t.Fatalf("seed: %v", err)
	}

	accounts := b.store.ListAccounts(user.ID)
	if len(accounts) != 2 || accounts[0].Balance <= 0 {
		t.Fatalf("unexpected accounts %+v", accounts)
	}
	page, err := b.store.ListTransactions(user.ID, accounts[0].ID, 1, 20)
	if err != nil || page.Total != 30 {
		t.Errorf("expected 30 transactions, got %+v (%v)", page, err)
	}
}
