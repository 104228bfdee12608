package ledger

import "errors"

var (
	// ErrDuplicateUID is returned when a uid is already recorded anywhere in the ledger.
	ErrDuplicateUID = errors.New("duplicate uid")
	// ErrCyclicChain is returned when a chain walk revisits a uid.
	ErrCyclicChain = errors.New("cyclic chain")
	// ErrTampered wraps every hash or link mismatch found by Verify.
	ErrTampered = errors.New("ledger tampered")

	// ErrBrokenChain is returned when a link points at a uid the ledger does not hold.
	ErrBrokenChain = errors.New("broken chain link")

	ErrInvalidBlock = errors.New("invalid block")
	ErrNotFound     = errors.New("block not found")
	ErrSuperseded   = errors.New("block already superseded")
	ErrStatusChange = errors.New("status change not allowed")
)
