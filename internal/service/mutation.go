package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/cache"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/observability"
	"github.com/boddenberg/bankdash-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var mutationTracer = otel.Tracer("service/mutation")

// Operation names a mutating action against the bank.
type Operation string

const (
	OpCreateAccount       Operation = "createAccount"
	OpCloseAccount        Operation = "closeAccount"
	OpSimulateTransaction Operation = "simulateTransaction"
	OpInternalTransfer    Operation = "internalTransfer"
)

// CloseAccountInput is the payload of OpCloseAccount. Request is sent to the
// bank unmodified.
type CloseAccountInput struct {
	AccountID string
	Request   domain.CloseAccountRequest
}

// SimulateTransactionInput is the payload of OpSimulateTransaction.
type SimulateTransactionInput struct {
	AccountID string
	Request   domain.SimulateTransactionRequest
}

// Mutator performs mutations and keeps the cache consistent with them: on
// success every dependent key is invalidated and refetched, on failure the
// cache is left alone.
type Mutator struct {
	api     port.BankAPI
	exec    *Executor
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewMutator creates a Mutator.
func NewMutator(api port.BankAPI, exec *Executor, metrics *observability.Metrics, logger *zap.Logger) *Mutator {
	return &Mutator{api: api, exec: exec, metrics: metrics, logger: logger}
}

// Mutate runs op with payload. Payloads: domain.CreateAccountRequest,
// CloseAccountInput, SimulateTransactionInput, domain.TransferRequest.
// The returned error is always a domain.DomainError.
func (m *Mutator) Mutate(ctx context.Context, op Operation, payload any) (any, error) {
	ctx, span := mutationTracer.Start(ctx, "Mutator."+string(op))
	defer span.End()

	result, affected, err := m.call(ctx, op, payload)
	if err != nil {
		de := domain.Classify(err)
		m.metrics.IncrMutation(string(op), "error")
		span.RecordError(de)
		span.SetStatus(codes.Error, de.Error())
		m.logger.Warn("mutation: failed",
			zap.String("operation", string(op)),
			zap.Int("status", de.StatusCode()),
			zap.Error(de),
		)
		return nil, de
	}
	m.metrics.IncrMutation(string(op), "success")
	span.SetAttributes(attribute.StringSlice("mutation.accounts", affected))

	m.settle(ctx, op, affected)
	return result, nil
}

// CreateAccount opens an account named name.
func (m *Mutator) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (*domain.Account, error) {
	res, err := m.Mutate(ctx, OpCreateAccount, req)
	if err != nil {
		return nil, err
	}
	return res.(*domain.Account), nil
}

// CloseAccount closes an account. Whether it may be closed is decided by
// the bank.
func (m *Mutator) CloseAccount(ctx context.Context, accountID string, req domain.CloseAccountRequest) error {
	_, err := m.Mutate(ctx, OpCloseAccount, CloseAccountInput{AccountID: accountID, Request: req})
	return err
}

// SimulateTransaction appends a transaction to an account.
func (m *Mutator) SimulateTransaction(ctx context.Context, accountID string, req domain.SimulateTransactionRequest) (*domain.Transaction, error) {
	res, err := m.Mutate(ctx, OpSimulateTransaction, SimulateTransactionInput{AccountID: accountID, Request: req})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Transaction), nil
}

// Transfer moves money between two accounts of the same user.
func (m *Mutator) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	res, err := m.Mutate(ctx, OpInternalTransfer, req)
	if err != nil {
		return nil, err
	}
	return res.(*domain.TransferResult), nil
}

// call validates the payload locally and performs the request. It returns
// the ids of the accounts whose transactions the mutation touched.
func (m *Mutator) call(ctx context.Context, op Operation, payload any) (any, []string, error) {
	switch op {
	case OpCreateAccount:
		req, ok := payload.(domain.CreateAccountRequest)
		if !ok {
			return nil, nil, badPayload(op, payload)
		}
		acc, err := m.api.CreateAccount(ctx, req)
		return acc, nil, err

	case OpCloseAccount:
		in, ok := payload.(CloseAccountInput)
		if !ok {
			return nil, nil, badPayload(op, payload)
		}
		if err := requireID("accountId", in.AccountID); err != nil {
			return nil, nil, err
		}
		return nil, nil, m.api.CloseAccount(ctx, in.AccountID, in.Request)

	case OpSimulateTransaction:
		in, ok := payload.(SimulateTransactionInput)
		if !ok {
			return nil, nil, badPayload(op, payload)
		}
		if err := requireID("accountId", in.AccountID); err != nil {
			return nil, nil, err
		}
		txn, err := m.api.SimulateTransaction(ctx, in.AccountID, in.Request)
		return txn, []string{in.AccountID}, err

	case OpInternalTransfer:
		req, ok := payload.(domain.TransferRequest)
		if !ok {
			return nil, nil, badPayload(op, payload)
		}
		if err := requireID("fromAccountId", req.FromAccountID); err != nil {
			return nil, nil, err
		}
		if err := requireID("toAccountId", req.ToAccountID); err != nil {
			return nil, nil, err
		}
		res, err := m.api.Transfer(ctx, req)
		return res, []string{req.FromAccountID, req.ToAccountID}, err
	}

	return nil, nil, &domain.ErrValidation{Field: "operation", Msgs: []string{fmt.Sprintf("unknown operation %q", op)}}
}

// settle invalidates what op made stale (balances always, plus every page of
// the affected accounts' transactions) in a single call and refetches the
// keys still being observed. Refetch failures land in the cache.
func (m *Mutator) settle(ctx context.Context, op Operation, affected []string) {
	pred := cache.MatchKey(AccountsKey())
	if len(affected) > 0 {
		pred = cache.Any(pred, cache.MatchParam(KindTransactions, "accountId", affected...))
	}

	keys := m.exec.Cache().Invalidate(pred)
	perKind := make(map[string]int)
	for _, k := range keys {
		perKind[k.Kind]++
	}
	for kind, n := range perKind {
		m.metrics.AddInvalidations(kind, n)
	}

	m.logger.Debug("mutation: invalidated",
		zap.String("operation", string(op)),
		zap.Int("keys", len(keys)),
		zap.Strings("accounts", affected),
	)

	// The caller's deadline bounds how long we wait, not the refetches.
	if err := m.exec.RefetchMatching(ctx, pred); err != nil {
		m.logger.Debug("mutation: stopped waiting for refetch",
			zap.String("operation", string(op)),
			zap.Error(err),
		)
	}
}

func requireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return &domain.ErrValidation{Field: field, Msgs: []string{field + " is required"}}
	}
	return nil
}

func badPayload(op Operation, payload any) error {
	return &domain.ErrValidation{
		Field: "payload",
		Msgs:  []string{fmt.Sprintf("%s does not accept %T", op, payload)},
	}
}
