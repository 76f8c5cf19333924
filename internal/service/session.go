package service

import (
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Session stores the bearer credential handed to the BFA and implements
// port.CredentialSource. Acquiring the token is the caller's business.
type Session struct {
	mu        sync.RWMutex
	token     string
	subject   string
	expiresAt time.Time
	onLogout  []func()
	now       func() time.Time
	logger    *zap.Logger
}

// NewSession creates an empty (logged out) session.
func NewSession(logger *zap.Logger) *Session {
	return &Session{now: time.Now, logger: logger}
}

// Login stores token. JWT claims (sub, exp) are read without verifying the
// signature: the bank is the one that accepts or rejects the token.
// Opaque tokens are stored as-is.
func (s *Session) Login(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return &domain.ErrValidation{Field: "accessToken", Msgs: []string{"access token is required"}}
	}

	var subject string
	var expiresAt time.Time

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil {
		subject = claims.Subject
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
			if !expiresAt.After(s.now()) {
				return &domain.ErrUnauthorized{Message: "access token expired"}
			}
		}
	}

	s.mu.Lock()
	s.token = token
	s.subject = subject
	s.expiresAt = expiresAt
	s.mu.Unlock()

	s.logger.Info("session: logged in",
		zap.String("subject", subject),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

// Logout forgets the credential and runs the logout hooks (the resource cache
// is reset there so the next user never sees the previous one's data).
func (s *Session) Logout() {
	s.mu.Lock()
	s.token = ""
	s.subject = ""
	s.expiresAt = time.Time{}
	hooks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	s.logger.Info("session: logged out")
}

// OnLogout registers fn to run on every Logout.
func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onLogout = append(s.onLogout, fn)
}

// Token returns the stored credential, or "" when absent or expired.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.expiresAt.IsZero() && !s.expiresAt.After(s.now()) {
		return ""
	}
	return s.token
}

// Subject returns the sub claim of the stored JWT, if any.
func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.subject
}

// Stored reports whether any credential is held, expired or not.
func (s *Session) Stored() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token != ""
}

// LoggedIn reports whether a usable credential is stored.
func (s *Session) LoggedIn() bool {
	return s.Token() != ""
}
