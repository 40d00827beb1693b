package models

import (
	"encoding/json"
	"time"
)

// Identity is a credential record held by the identity provider
type Identity struct {
	UID          string    `json:"uid" db:"uid"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"` // User email address
	Password string `json:"password" validate:"required,min=6" example:"password123"`   // User password
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"`
	Password string `json:"password" validate:"required" example:"password123"`
}

// AmountRequest is the body of a deposit or withdraw call. Amount is kept raw
// so a quoted number can be told apart from a JSON number.
// @Description Deposit/withdraw request structure
type AmountRequest struct {
	Amount json.RawMessage `json:"amount" swaggertype:"integer" example:"100"` // Positive integer amount in the smallest currency unit
}
