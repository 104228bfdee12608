package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/luxeledger/inventory-backend/pkg/enums"
)

const (
	PurposeAccess  = "access"
	PurposePending = "pending"
)

// AccessTokenPayload captures the data available when minting a session JWT.
type AccessTokenPayload struct {
	ActorID uuid.UUID
	Email   string
	Kind    enums.ActorKind
	JTI     string
}

// AccessTokenClaims represents the typed JWT issued once a flow is verified.
type AccessTokenClaims struct {
	ActorID uuid.UUID       `json:"actor_id"`
	Email   string          `json:"email"`
	Kind    enums.ActorKind `json:"kind"`
	Purpose string          `json:"purpose"`
	jwt.RegisteredClaims
}

// PendingTokenPayload binds a half-finished login or registration to its flow.
type PendingTokenPayload struct {
	Email  string
	Kind   enums.ActorKind
	FlowID string
}

// PendingTokenClaims grants nothing except the right to request a code for Email.
type PendingTokenClaims struct {
	Email   string          `json:"email"`
	Kind    enums.ActorKind `json:"kind"`
	FlowID  string          `json:"flow_id"`
	Purpose string          `json:"purpose"`
	jwt.RegisteredClaims
}
