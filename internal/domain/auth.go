package domain

// ============================================================
// Auth / Session
// ============================================================

// LoginRequest is the body of the bank's POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer credential issued by the bank.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// SessionRequest hands a bearer credential to the BFF (POST /v1/session).
type SessionRequest struct {
	AccessToken string `json:"accessToken"`
}
