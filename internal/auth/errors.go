package auth

import (
	"errors"

	pkgerrors "github.com/luxeledger/inventory-backend/pkg/errors"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrAuthentication = errors.New("invalid credentials")
	ErrInvalidCode    = errors.New("invalid verification code")
	ErrCodeExpired    = errors.New("verification code expired")
	// ErrCodeAlreadyUsed is returned when a verified flow sees its code again.
	ErrCodeAlreadyUsed = errors.New("verification code already used")
	// ErrNoPendingVerification covers out-of-order events, cancelled flows and unknown emails.
	ErrNoPendingVerification = errors.New("no pending verification")
	ErrDelivery              = errors.New("code delivery failed")
	ErrAccountExists         = errors.New("account already exists")
	// ErrFlowInProgress guards a pending flow against submissions that cannot prove ownership of it.
	ErrFlowInProgress = errors.New("verification already in progress")
)

// classify maps flow errors onto API codes and returns the metric outcome label.
func classify(err error) (string, error) {
	if typed := pkgerrors.As(err); typed != nil {
		return "error", err
	}
	switch {
	case errors.Is(err, ErrValidation):
		return "validation", pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	case errors.Is(err, ErrAuthentication):
		return "authentication", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid credentials")
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid verification code")
	case errors.Is(err, ErrCodeExpired):
		return "code_expired", pkgerrors.Wrap(pkgerrors.CodeCodeExpired, err, "verification code expired; request a new one")
	case errors.Is(err, ErrCodeAlreadyUsed):
		return "code_used", pkgerrors.Wrap(pkgerrors.CodeConflict, err, "verification code already used")
	case errors.Is(err, ErrNoPendingVerification):
		return "no_pending", pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "no pending verification for this email")
	case errors.Is(err, ErrDelivery):
		return "delivery", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "could not deliver verification code")
	case errors.Is(err, ErrAccountExists):
		return "account_exists", pkgerrors.Wrap(pkgerrors.CodeConflict, err, "an account already exists for this email")
	case errors.Is(err, ErrFlowInProgress):
		return "flow_in_progress", pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a verification is already in progress for this email")
	default:
		return "dependency", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verification store unavailable")
	}
}
