package auth

import (
	"time"

	"github.com/luxeledger/inventory-backend/internal/users"
	"github.com/luxeledger/inventory-backend/pkg/enums"
)

// SubmitRequest is the first step of either flow. VerifyPassword is only
// checked for customers.
type SubmitRequest struct {
	Email          string
	Password       string
	VerifyPassword string
	Kind           enums.ActorKind
}

// LoginRequest captures the employee credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterCustomerRequest stages a new customer account until its email is confirmed.
type RegisterCustomerRequest struct {
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,max=256"`
	VerifyPassword string `json:"verify_password" validate:"required,max=256"`
}

type RequestCodeRequest struct {
	PendingToken string `json:"pending_token" validate:"required"`
}

type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"otp" validate:"required,numeric"`
}

type CancelRequest struct {
	PendingToken string `json:"pending_token" validate:"required"`
}

// PendingResponse carries the token that lets the client ask for a code.
type PendingResponse struct {
	PendingToken string          `json:"pending_token"`
	Kind         enums.ActorKind `json:"kind"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// DeliveryAck confirms a code was handed to the delivery channel.
type DeliveryAck struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	Resent    bool      `json:"resent"`
}

// SessionResponse contains the tokens produced by a verified flow.
type SessionResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Actor        *users.ActorDTO `json:"actor"`
}
