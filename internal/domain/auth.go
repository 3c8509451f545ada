package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type CustomClaims struct {
	ReviewerID string          `json:"reviewer_id"`
	Scopes     map[string]bool `json:"scopes"` // "hitl.review": true, "transactions.read": true
	jwt.RegisteredClaims
}

// Scope-константы защищенного периметра.
const (
	ScopeHITLReview       = "hitl.review"
	ScopeTransactionsRead = "transactions.read"
)

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// Reviewer — оператор ручного разбора (HITL). Источник правды — Postgres.
type Reviewer struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
