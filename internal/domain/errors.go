package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error types for consistent error handling across the BFA.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrUnauthorized indicates a missing or rejected credential.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ============================================================
// Transport level
// ============================================================

// MessageList decodes the `message` field of bank error bodies, which is
// either a single string or an array of strings.
type MessageList []string

func (m *MessageList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*m = MessageList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("message must be a string or an array of strings: %w", err)
	}
	*m = many
	return nil
}

// NonEmpty returns the trimmed, non-empty messages.
func (m MessageList) NonEmpty() []string {
	out := make([]string, 0, len(m))
	for _, s := range m {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ErrorBody is the shape of every bank API error response.
type ErrorBody struct {
	Message MessageList `json:"message,omitempty"`
}

// ErrTransport is what the transport client returns for any failed call.
// StatusCode is zero when no response reached the client.
type ErrTransport struct {
	Method     string
	Path       string
	StatusCode int
	Messages   MessageList
	Err        error
}

func (e *ErrTransport) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: no response: %v", e.Method, e.Path, e.Err)
	}
	if e.StatusCode < 300 {
		return fmt.Sprintf("%s %s returned status %d: %v", e.Method, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s returned status %d", e.Method, e.Path, e.StatusCode)
}

func (e *ErrTransport) Unwrap() error {
	return e.Err
}

// ============================================================
// Domain errors (closed taxonomy)
// ============================================================

// DomainError is implemented only by ErrNetwork, ErrHTTP and ErrValidation.
// Every failure leaving the sync layer is one of them.
type DomainError interface {
	error
	// StatusCode is the upstream HTTP status, or zero for network failures
	// and local payload checks.
	StatusCode() int
	Messages() []string
	domainError()
}

// ErrNetwork indicates that no response reached the client (dial failure,
// timeout, open circuit).
type ErrNetwork struct {
	Err error
}

func (e *ErrNetwork) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *ErrNetwork) Unwrap() error      { return e.Err }
func (e *ErrNetwork) StatusCode() int    { return 0 }
func (e *ErrNetwork) Messages() []string { return nil }
func (e *ErrNetwork) domainError()       {}

// ErrHTTP is a non-2xx answer from the bank. Status specific copy (429, 403,
// 409...) is chosen by the caller.
type ErrHTTP struct {
	Status int
	Msgs   []string
}

func (e *ErrHTTP) Error() string {
	if len(e.Msgs) > 0 {
		return fmt.Sprintf("http %d: %s", e.Status, strings.Join(e.Msgs, "; "))
	}
	return fmt.Sprintf("http %d", e.Status)
}

func (e *ErrHTTP) StatusCode() int    { return e.Status }
func (e *ErrHTTP) Messages() []string { return e.Msgs }
func (e *ErrHTTP) domainError()       {}

// ErrValidation indicates a 400-class rejection by the bank, or a payload
// refused locally before any call was made (Field is set then).
type ErrValidation struct {
	Status int
	Field  string
	Msgs   []string
}

func (e *ErrValidation) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on '%s': %s", e.Field, strings.Join(e.Msgs, "; "))
	}
	return fmt.Sprintf("validation error (%d): %s", e.Status, strings.Join(e.Msgs, "; "))
}

func (e *ErrValidation) StatusCode() int    { return e.Status }
func (e *ErrValidation) Messages() []string { return e.Msgs }
func (e *ErrValidation) domainError()       {}

// Message returns the error's messages joined by newlines, or fallback when
// the bank sent none.
func Message(err DomainError, fallback string) string {
	if err == nil {
		return fallback
	}
	if msgs := err.Messages(); len(msgs) > 0 {
		return strings.Join(msgs, "\n")
	}
	return fallback
}

// Classify turns any error into a DomainError. Transport errors are split by
// status code; anything else is treated as a network failure.
func Classify(err error) DomainError {
	if err == nil {
		return nil
	}
	var de DomainError
	if errors.As(err, &de) {
		return de
	}

	var te *ErrTransport
	if !errors.As(err, &te) || te.StatusCode == 0 {
		return &ErrNetwork{Err: err}
	}

	msgs := te.Messages.NonEmpty()
	switch {
	case te.StatusCode < 300:
		// Answered with a body we could not read.
		return &ErrHTTP{Status: http.StatusBadGateway, Msgs: []string{"unreadable response from the bank"}}
	case te.StatusCode == http.StatusBadRequest, te.StatusCode == http.StatusUnprocessableEntity:
		return &ErrValidation{Status: te.StatusCode, Msgs: msgs}
	default:
		return &ErrHTTP{Status: te.StatusCode, Msgs: msgs}
	}
}
