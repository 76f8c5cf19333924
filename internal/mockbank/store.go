// Package mockbank is an in-memory stand-in for the bank REST API, used for
// local development and integration tests. Amounts are int64 minor units.
// One mutex serializes every state change, so a transfer updates both
// accounts atomically.
package mockbank

import (
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxNameLength = 64
	maxLimit      = 100
)

// Error is a rejection the server renders as {message: [...]}.
type Error struct {
	Status   int
	Messages []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, strings.Join(e.Messages, "; "))
}

func reject(status int, msgs ...string) *Error {
	return &Error{Status: status, Messages: msgs}
}

// User is a bank customer.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
}

// Store holds users, accounts and transactions.
type Store struct {
	mu           sync.Mutex
	users        map[string]*User // by email
	accounts     map[string]*domain.Account
	order        []string // account ids in creation order
	transactions map[string][]domain.Transaction // by account id, newest first
	now          func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:        make(map[string]*User),
		accounts:     make(map[string]*domain.Account),
		transactions: make(map[string][]domain.Transaction),
		now:          time.Now,
	}
}

// AddUser registers a user with a bcrypt-hashed password.
func (s *Store) AddUser(email, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := &User{ID: uuid.NewString(), Email: strings.ToLower(email), PasswordHash: hash}
	s.users[u.Email] = u
	return u, nil
}

// Authenticate checks an email/password pair.
func (s *Store) Authenticate(email, password string) (*User, error) {
	s.mu.Lock()
	u, ok := s.users[strings.ToLower(strings.TrimSpace(email))]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return nil, reject(http.StatusUnauthorized, "invalid email or password")
	}
	return u, nil
}

func (s *Store) userByID(id string) *User {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// ListAccounts returns the user's accounts, oldest first.
func (s *Store) ListAccounts(userID string) []domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Account{}
	for _, id := range s.order {
		if a := s.accounts[id]; a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out
}

// CreateAccount opens an empty PLN account.
func (s *Store) CreateAccount(userID string, req domain.CreateAccountRequest) (*domain.Account, error) {
	name := strings.TrimSpace(req.Name)
	var msgs []string
	if name == "" {
		msgs = append(msgs, "name is required")
	}
	if len(name) > maxNameLength {
		msgs = append(msgs, fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	if msgs != nil {
		return nil, reject(http.StatusBadRequest, msgs...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	a := &domain.Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		IBAN:      newIBAN(),
		Currency:  domain.CurrencyPLN,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accounts[a.ID] = a
	s.order = append(s.order, a.ID)
	cp := *a
	return &cp, nil
}

// CloseAccount removes an account. Checks run in order: existence,
// ownership, password, confirmation name, zero balance.
func (s *Store) CloseAccount(userID, accountID string, req domain.CloseAccountRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.owned(userID, accountID)
	if err != nil {
		return err
	}
	u := s.userByID(userID)
	if u == nil || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		return reject(http.StatusUnauthorized, "invalid password")
	}
	if req.ConfirmName != a.Name {
		return reject(http.StatusBadRequest, "confirmation name does not match the account name")
	}
	if a.Balance != 0 {
		return reject(http.StatusConflict, "account balance must be zero to close the account")
	}

	delete(s.accounts, accountID)
	delete(s.transactions, accountID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == accountID })
	return nil
}

// ListTransactions returns one page of an account's history.
func (s *Store) ListTransactions(userID, accountID string, page, limit int) (*domain.TransactionPage, error) {
	var msgs []string
	if page < 1 {
		msgs = append(msgs, "page must be a positive integer")
	}
	if limit < 1 || limit > maxLimit {
		msgs = append(msgs, fmt.Sprintf("limit must be between 1 and %d", maxLimit))
	}
	if msgs != nil {
		return nil, reject(http.StatusBadRequest, msgs...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.owned(userID, accountID); err != nil {
		return nil, err
	}

	all := s.transactions[accountID]
	p := &domain.TransactionPage{Items: []domain.Transaction{}, Page: page, Limit: limit, Total: len(all)}
	for i := (page - 1) * limit; i < len(all) && i < page*limit; i++ {
		p.Items = append(p.Items, all[i])
	}
	p.Pages = p.PageCount()
	return p, nil
}

// SimulateTransaction books a transaction and moves the balance by its
// amount.
func (s *Store) SimulateTransaction(userID, accountID string, req domain.SimulateTransactionRequest) (*domain.Transaction, error) {
	var msgs []string
	if req.Amount == 0 {
		msgs = append(msgs, "amount must not be zero")
	}
	if strings.TrimSpace(req.Description) == "" {
		msgs = append(msgs, "description is required")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		msgs = append(msgs, "date must be YYYY-MM-DD or RFC 3339")
	}
	if msgs != nil {
		return nil, reject(http.StatusBadRequest, msgs...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.owned(userID, accountID)
	if err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = s.now().UTC()
	}

	txn := s.book(a, req.Amount, date, strings.TrimSpace(req.Description), req.Counterparty, req.CategoryHint, "")
	return &txn, nil
}

// Transfer moves money between two accounts of the same user. Both legs are
// booked or neither is.
func (s *Store) Transfer(userID string, req domain.TransferRequest) (*domain.TransferResult, error) {
	var msgs []string
	if req.FromAccountID == "" || req.ToAccountID == "" {
		msgs = append(msgs, "fromAccountId and toAccountId are required")
	} else if req.FromAccountID == req.ToAccountID {
		msgs = append(msgs, "cannot transfer to the same account")
	}
	if req.Amount <= 0 {
		msgs = append(msgs, "amount must be positive")
	}
	if msgs != nil {
		return nil, reject(http.StatusBadRequest, msgs...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from, err := s.owned(userID, req.FromAccountID)
	if err != nil {
		return nil, err
	}
	to, err := s.owned(userID, req.ToAccountID)
	if err != nil {
		return nil, err
	}
	if from.Balance < req.Amount {
		return nil, reject(http.StatusUnprocessableEntity, "insufficient funds")
	}

	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		desc = "Internal transfer"
	}
	now := s.now().UTC()
	ref := uuid.NewString()
	debit := s.book(from, -req.Amount, now, desc, to.Name, "transfer", ref)
	credit := s.book(to, req.Amount, now, desc, from.Name, "transfer", ref)

	return &domain.TransferResult{Debit: debit, Credit: credit}, nil
}

// book must be called with mu held.
func (s *Store) book(a *domain.Account, amount int64, date time.Time, desc, counterparty, category, ref string) domain.Transaction {
	now := s.now().UTC()
	txn := domain.Transaction{
		ID:            uuid.NewString(),
		AccountID:     a.ID,
		Amount:        amount,
		Currency:      a.Currency,
		Date:          date,
		Description:   desc,
		Counterparty:  counterparty,
		CategoryHint:  category,
		ExternalTxnID: ref,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.transactions[a.ID] = append([]domain.Transaction{txn}, s.transactions[a.ID]...)
	a.Balance += amount
	a.UpdatedAt = now
	return txn
}

// owned must be called with mu held.
func (s *Store) owned(userID, accountID string) (*domain.Account, error) {
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, reject(http.StatusNotFound, "account not found")
	}
	if a.UserID != userID {
		return nil, reject(http.StatusForbidden, "account belongs to another user")
	}
	return a, nil
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, v)
}

// newIBAN returns a Polish IBAN with valid ISO 7064 check digits.
func newIBAN() string {
	id := uuid.New()
	digits := new(big.Int).SetBytes(id[:]).String()
	for len(digits) < 24 {
		digits = "0" + digits
	}
	bban := digits[:24]

	// Country code PL -> 25 21, followed by 00 placeholder check digits.
	n, _ := new(big.Int).SetString(bban+"252100", 10)
	check := 98 - new(big.Int).Mod(n, big.NewInt(97)).Int64()
	return fmt.Sprintf("PL%02d%s", check, bban)
}

// Seed gives a user a funded main account with some history and an empty
// savings account.
func (s *Store) Seed(userID string, history int) error {
	main, err := s.CreateAccount(userID, domain.CreateAccountRequest{Name: "Main account"})
	if err != nil {
		return err
	}
	if _, err := s.CreateAccount(userID, domain.CreateAccountRequest{Name: "Savings"}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.accounts[main.ID]
	day := s.now().UTC().AddDate(0, 0, -history)
	s.book(a, 500000, day, "Salary", "Employer Sp. z o.o.", "income", "")
	for i := 1; i < history; i++ {
		amount := -int64(1000 + (i*739)%9000)
		s.book(a, amount, day.AddDate(0, 0, i), fmt.Sprintf("Card payment #%d", i), "Shop", "shopping", "")
	}
	return nil
}
