package notifications

import (
	"time"

	"github.com/luxeledger/inventory-backend/pkg/enums"
)

// OTPMessage is the payload carried on the OTP delivery queue.
type OTPMessage struct {
	FlowID    string          `json:"flow_id"`
	Email     string          `json:"email"`
	Kind      enums.ActorKind `json:"kind"`
	Code      string          `json:"code"`
	ExpiresAt time.Time       `json:"expires_at"`
}
