package service_test

import (
	"context"
	"net/http"
	"sync"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/cache"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/observability"
	"github.com/boddenberg/bankdash-bfa-go/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

// mockBank is an in-memory port.BankAPI that counts calls per endpoint.
type mockBank struct {
	mu           sync.Mutex
	accounts     []domain.Account
	transactions map[string][]domain.Transaction
	calls        map[string]int
	err          error // returned by every mutation when set
	listErr      error // returned by ListAccounts when set
	pageGate     chan struct{}
}

func newMockBank(accounts ...domain.Account) *mockBank {
	return &mockBank{
		accounts:     accounts,
		transactions: make(map[string][]domain.Transaction),
		calls:        make(map[string]int),
	}
}

func (m *mockBank) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockBank) hit(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
}

func (m *mockBank) ListAccounts(_ context.Context) ([]domain.Account, error) {
	m.hit("ListAccounts")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]domain.Account{}, m.accounts...), nil
}

func (m *mockBank) CreateAccount(_ context.Context, req domain.CreateAccountRequest) (*domain.Account, error) {
	m.hit("CreateAccount")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	acc := domain.Account{ID: "acc-new", Name: req.Name, Currency: domain.CurrencyPLN}
	m.accounts = append(m.accounts, acc)
	return &acc, nil
}

func (m *mockBank) CloseAccount(_ context.Context, accountID string, _ domain.CloseAccountRequest) error {
	m.hit("CloseAccount")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for i, a := range m.accounts {
		if a.ID == accountID {
			m.accounts = append(m.accounts[:i], m.accounts[i+1:]...)
			return nil
		}
	}
	return &domain.ErrTransport{
		StatusCode: http.StatusNotFound,
		Messages:   domain.MessageList{"account not found"},
	}
}

func (m *mockBank) ListTransactions(_ context.Context, accountID string, page, limit int) (*domain.TransactionPage, error) {
	m.hit("ListTransactions")
	m.mu.Lock()
	gate := m.pageGate
	m.mu.Unlock()
	if gate != nil && page > 1 {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.transactions[accountID]
	p := &domain.TransactionPage{Items: []domain.Transaction{}, Page: page, Limit: limit, Total: len(all)}
	start := (page - 1) * limit
	for i := start; i < len(all) && i < start+limit; i++ {
		p.Items = append(p.Items, all[i])
	}
	p.Pages = p.PageCount()
	return p, nil
}

func (m *mockBank) SimulateTransaction(_ context.Context, accountID string, req domain.SimulateTransactionRequest) (*domain.Transaction, error) {
	m.hit("SimulateTransaction")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	txn := domain.Transaction{ID: "txn-new", AccountID: accountID, Amount: req.Amount, Description: req.Description}
	m.transactions[accountID] = append([]domain.Transaction{txn}, m.transactions[accountID]...)
	m.adjust(accountID, req.Amount)
	return &txn, nil
}

func (m *mockBank) Transfer(_ context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	m.hit("Transfer")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	debit := domain.Transaction{ID: "d", AccountID: req.FromAccountID, Amount: -req.Amount}
	credit := domain.Transaction{ID: "c", AccountID: req.ToAccountID, Amount: req.Amount}
	m.transactions[req.FromAccountID] = append([]domain.Transaction{debit}, m.transactions[req.FromAccountID]...)
	m.transactions[req.ToAccountID] = append([]domain.Transaction{credit}, m.transactions[req.ToAccountID]...)
	m.adjust(req.FromAccountID, -req.Amount)
	m.adjust(req.ToAccountID, req.Amount)
	return &domain.TransferResult{Debit: debit, Credit: credit}, nil
}

// adjust must be called with mu held.
func (m *mockBank) adjust(accountID string, amount int64) {
	for i := range m.accounts {
		if m.accounts[i].ID == accountID {
			m.accounts[i].Balance += amount
		}
	}
}

func (m *mockBank) seed(accountID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.transactions[accountID] = append(m.transactions[accountID], domain.Transaction{
			ID: accountID + "-t", AccountID: accountID, Amount: int64(-100 * (i + 1)),
		})
	}
}

var errConflict = &domain.ErrTransport{
	StatusCode: http.StatusConflict,
	Messages:   domain.MessageList{"account balance must be zero"},
}

type fixture struct {
	bank      *mockBank
	metrics   *observability.Metrics
	exec      *service.Executor
	dashboard *service.Dashboard
	mutator   *service.Mutator
}

func newFixture(bank *mockBank) *fixture {
	metrics := observability.NewMetrics()
	exec := service.NewExecutor(cache.New(), metrics, zap.NewNop(), 0)
	return &fixture{
		bank:      bank,
		metrics:   metrics,
		exec:      exec,
		dashboard: service.NewDashboard(bank, exec, zap.NewNop()),
		mutator:   service.NewMutator(bank, exec, metrics, zap.NewNop()),
	}
}
