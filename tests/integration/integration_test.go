package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
	"github.com/boddenberg/bankdash-bfa-go/internal/handler"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/cache"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/client"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/observability"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/bankdash-bfa-go/internal/mockbank"
	"github.com/boddenberg/bankdash-bfa-go/internal/service"

	"go.uber.org/zap"
)

const (
	email    = "demo@bankdash.local"
	password = "demo"
)

type env struct {
	t       *testing.T
	bank    *httptest.Server
	store   *mockbank.Store
	userID  string
	router  http.Handler
	metrics *observability.Metrics
	token   string // bearer of the BFF session once logged in
}

// newEnv runs the BFF router against a real mock bank over HTTP.
func newEnv(t *testing.T, opts mockbank.Options, history int) *env {
	t.Helper()
	logger := zap.NewNop()

	store := mockbank.NewStore()
	user, err := store.AddUser(email, password)
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	if history > 0 {
		if err := store.Seed(user.ID, history); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	bank := httptest.NewServer(mockbank.NewServer(store, mockbank.NewIssuer("integration", time.Hour), opts, logger))
	t.Cleanup(bank.Close)

	metrics := observability.NewMetrics()
	resources := cache.New()
	session := service.NewSession(logger)
	session.OnLogout(resources.Reset)

	cfg := resilience.DefaultConfig()
	transport := client.NewTransport(
		&http.Client{Timeout: 5 * time.Second},
		bank.URL,
		session,
		resilience.NewCircuitBreaker("integration", cfg),
		resilience.NewBulkhead(cfg.MaxConcurrency),
		metrics,
		logger,
	)
	api := client.NewBankClient(transport)
	exec := service.NewExecutor(resources, metrics, logger, 5*time.Second)

	return &env{
		t:       t,
		bank:    bank,
		store:   store,
		userID:  user.ID,
		metrics: metrics,
		router: handler.NewRouter(
			service.NewDashboard(api, exec, logger),
			service.NewMutator(api, exec, metrics, logger),
			session, metrics, logger,
		),
	}
}

// login obtains a token from the bank and hands it to the BFF session.
func (e *env) login() {
	e.t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Email: email, Password: password})
	resp, err := http.Post(e.bank.URL+"/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		e.t.Fatalf("bank login: %v", err)
	}
	defer resp.Body.Close()
	var login domain.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil || login.AccessToken == "" {
		e.t.Fatalf("bank login: status %d, %v", resp.StatusCode, err)
	}

	rec := e.do(http.MethodPost, "/v1/session", domain.SessionRequest{AccessToken: login.AccessToken}, nil)
	if rec.Code != http.StatusNoContent {
		e.t.Fatalf("session: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	e.token = login.AccessToken
}

func (e *env) do(method, path string, body, out any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			e.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return rec
}

func TestIntegration_DashboardFlow(t *testing.T) {
	e := newEnv(t, mockbank.Options{}, 45)
	e.login()

	// --- Accounts ---
	var accounts service.AccountsView
	if rec := e.do(http.MethodGet, "/v1/accounts", nil, &accounts); rec.Code != http.StatusOK {
		t.Fatalf("accounts: expected 200, got %d", rec.Code)
	}
	if accounts.Status != service.StatusSuccess || len(accounts.Accounts) != 2 {
		t.Fatalf("unexpected accounts view %+v", accounts)
	}
	primary := accounts.Accounts[0]
	before := accounts.TotalBalance

	// --- Pagination ---
	var page service.TransactionsView
	e.do(http.MethodGet, "/v1/accounts/"+primary.ID+"/transactions?page=3&limit=20", nil, &page)
	if page.PageCount != 3 || page.Total != 45 || len(page.Items) != 5 {
		t.Errorf("unexpected page 3: count=%d total=%d items=%d", page.PageCount, page.Total, len(page.Items))
	}

	// --- Mutation refreshes the cached views ---
	rec := e.do(http.MethodPost, "/v1/accounts/"+primary.ID+"/transactions",
		domain.SimulateTransactionRequest{Amount: -2500, Description: "Coffee"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("simulate: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	e.do(http.MethodGet, "/v1/accounts", nil, &accounts)
	if accounts.TotalBalance != before-2500 {
		t.Errorf("expected total %d after refresh, got %d", before-2500, accounts.TotalBalance)
	}

	var recent service.TransactionsView
	e.do(http.MethodGet, "/v1/accounts/"+primary.ID+"/transactions/recent", nil, &recent)
	if len(recent.Items) != service.RecentLimit || recent.Items[0].Description != "Coffee" {
		t.Errorf("expected the new transaction first, got %+v", recent.Items)
	}

	e.do(http.MethodGet, "/v1/accounts/"+primary.ID+"/transactions?page=3&limit=20", nil, &page)
	if page.Total != 46 || len(page.Items) != 6 {
		t.Errorf("expected refreshed page 3, got total=%d items=%d", page.Total, len(page.Items))
	}

	// The mutation refetched the account list once; later reads were hits.
	if got := e.metrics.FetchCount(service.KindAccounts); got != 2 {
		t.Errorf("expected 2 account fetches, got %v", got)
	}
}

func TestIntegration_CloseAccountRules(t *testing.T) {
	e := newEnv(t, mockbank.Options{}, 10)
	e.login()

	var accounts service.AccountsView
	e.do(http.MethodGet, "/v1/accounts", nil, &accounts)
	primary := accounts.Accounts[0]

	// Funded accounts cannot be closed; the bank's messages pass through.
	rec := e.do(http.MethodPost, "/v1/accounts/"+primary.ID+"/close",
		domain.CloseAccountRequest{Password: password, ConfirmName: primary.Name}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	var created domain.Account
	if rec := e.do(http.MethodPost, "/v1/accounts", domain.CreateAccountRequest{Name: "Holiday"}, &created); rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rec.Code)
	}
	e.do(http.MethodGet, "/v1/accounts", nil, &accounts)
	if len(accounts.Accounts) != 3 {
		t.Fatalf("expected created account listed, got %d accounts", len(accounts.Accounts))
	}

	rec = e.do(http.MethodPost, "/v1/accounts/"+created.ID+"/close",
		domain.CloseAccountRequest{Password: "wrong", ConfirmName: "Holiday"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", rec.Code)
	}

	rec = e.do(http.MethodPost, "/v1/accounts/"+created.ID+"/close",
		domain.CloseAccountRequest{Password: password, ConfirmName: "Holiday"}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	e.do(http.MethodGet, "/v1/accounts", nil, &accounts)
	if len(accounts.Accounts) != 2 {
		t.Errorf("expected closed account gone, got %d accounts", len(accounts.Accounts))
	}

	// Closing it again only surfaces the bank's answer.
	rec = e.do(http.MethodPost, "/v1/accounts/"+created.ID+"/close",
		domain.CloseAccountRequest{Password: password, ConfirmName: "Holiday"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a closed account, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("account not found")) {
		t.Errorf("expected the bank's message, got %s", rec.Body.String())
	}
	e.do(http.MethodGet, "/v1/accounts", nil, &accounts)
	if accounts.Status != service.StatusSuccess || len(accounts.Accounts) != 2 {
		t.Errorf("expected accounts still served, got %+v", accounts)
	}
}

func TestIntegration_TransferRefreshesBothAccounts(t *testing.T) {
	e := newEnv(t, mockbank.Options{}, 5)
	e.login()

	var accounts service.AccountsView
	e.do(http.MethodGet, "/v1/accounts", nil, &accounts)
	from, to := accounts.Accounts[0], accounts.Accounts[1]

	var fromPage, toPage service.TransactionsView
	e.do(http.MethodGet, "/v1/accounts/"+from.ID+"/transactions", nil, &fromPage)
	e.do(http.MethodGet, "/v1/accounts/"+to.ID+"/transactions", nil, &toPage)

	rec := e.do(http.MethodPost, "/v1/transfers",
		domain.TransferRequest{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 1000, Description: "Savings"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	e.do(http.MethodGet, "/v1/accounts/"+from.ID+"/transactions", nil, &fromPage)
	e.do(http.MethodGet, "/v1/accounts/"+to.ID+"/transactions", nil, &toPage)
	if fromPage.Items[0].Amount != -1000 || toPage.Items[0].Amount != 1000 {
		t.Errorf("expected both legs visible, got %d and %d", fromPage.Items[0].Amount, toPage.Items[0].Amount)
	}

	e.do(http.MethodGet, "/v1/accounts", nil, &accounts)
	if accounts.Accounts[1].Balance != to.Balance+1000 {
		t.Errorf("expected destination balance %d, got %d", to.Balance+1000, accounts.Accounts[1].Balance)
	}
}

func TestIntegration_RateLimitKeepsPreviousData(t *testing.T) {
	// Login and the first account list fit in the window.
	e := newEnv(t, mockbank.Options{RequestsPerMinute: 2}, 3)
	e.login()

	var accounts service.AccountsView
	e.do(http.MethodGet, "/v1/accounts", nil, &accounts)
	if len(accounts.Accounts) != 2 {
		t.Fatalf("expected accounts, got %+v", accounts)
	}

	e.do(http.MethodPost, "/v1/accounts/refetch", nil, &accounts)
	if accounts.Status != service.StatusError || accounts.Error == nil || accounts.Error.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 error view, got %+v", accounts)
	}
	if accounts.Error.Message != "too many requests" || accounts.Error.Hint == "" {
		t.Errorf("unexpected error %+v", accounts.Error)
	}
	if len(accounts.Accounts) != 2 {
		t.Errorf("expected previous data kept, got %d accounts", len(accounts.Accounts))
	}
}

func TestIntegration_Unauthenticated(t *testing.T) {
	e := newEnv(t, mockbank.Options{}, 0)

	var accounts service.AccountsView
	e.do(http.MethodGet, "/v1/accounts", nil, &accounts)

	if accounts.Status != service.StatusError || accounts.Error == nil || accounts.Error.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 error view, got %+v", accounts)
	}
}
