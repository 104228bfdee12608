package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/luxeledger/inventory-backend/pkg/enums"
)

// State is a position in the two-step verification flow shared by employee
// login and customer registration.
type State string

const (
	StateIdle                 State = "idle"
	StateCredentialsSubmitted State = "credentials_submitted"
	StateCodeSent             State = "code_sent"
	StateVerified             State = "verified"
	StateCancelled            State = "cancelled"
)

type Event string

const (
	EventSubmitCredentials Event = "submit_credentials"
	EventRequestCode       Event = "request_code"
	EventVerifyCode        Event = "verify_code"
	EventCancel            Event = "cancel"
)

var (
	allStates = []State{StateIdle, StateCredentialsSubmitted, StateCodeSent, StateVerified, StateCancelled}
	allEvents = []Event{EventSubmitCredentials, EventRequestCode, EventVerifyCode, EventCancel}
)

type outcome struct {
	next State
	err  error
}

// transitions answers every (state, event) pair. Submitting credentials always
// starts a fresh flow; a rejected event leaves the state where it was.
var transitions = map[State]map[Event]outcome{
	StateIdle: {
		EventSubmitCredentials: {next: StateCredentialsSubmitted},
		EventRequestCode:       {next: StateIdle, err: ErrNoPendingVerification},
		EventVerifyCode:        {next: StateIdle, err: ErrNoPendingVerification},
		EventCancel:            {next: StateIdle},
	},
	StateCredentialsSubmitted: {
		EventSubmitCredentials: {next: StateCredentialsSubmitted},
		EventRequestCode:       {next: StateCodeSent},
		EventVerifyCode:        {next: StateCredentialsSubmitted, err: ErrNoPendingVerification},
		EventCancel:            {next: StateCancelled},
	},
	StateCodeSent: {
		EventSubmitCredentials: {next: StateCredentialsSubmitted},
		EventRequestCode:       {next: StateCodeSent},
		EventVerifyCode:        {next: StateVerified},
		EventCancel:            {next: StateCancelled},
	},
	StateVerified: {
		EventSubmitCredentials: {next: StateCredentialsSubmitted},
		EventRequestCode:       {next: StateVerified, err: ErrNoPendingVerification},
		EventVerifyCode:        {next: StateVerified, err: ErrCodeAlreadyUsed},
		EventCancel:            {next: StateVerified},
	},
	StateCancelled: {
		EventSubmitCredentials: {next: StateCredentialsSubmitted},
		EventRequestCode:       {next: StateCancelled, err: ErrNoPendingVerification},
		EventVerifyCode:        {next: StateCancelled, err: ErrNoPendingVerification},
		EventCancel:            {next: StateCancelled},
	},
}

func transition(from State, ev Event) (State, error) {
	events, ok := transitions[from]
	if !ok {
		return from, fmt.Errorf("%w: unknown state %q", ErrNoPendingVerification, from)
	}
	out, ok := events[ev]
	if !ok {
		return from, fmt.Errorf("%w: unknown event %q", ErrNoPendingVerification, ev)
	}
	if out.err != nil {
		return from, out.err
	}
	return out.next, nil
}

// Flow is the pending verification for one email. Only the code hash is kept.
type Flow struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	Kind          enums.ActorKind `json:"kind"`
	State         State           `json:"state"`
	ActorID       uuid.UUID       `json:"actor_id"`
	PasswordHash  string          `json:"password_hash,omitempty"`
	CodeHash      string          `json:"code_hash,omitempty"`
	CodeExpiresAt time.Time       `json:"code_expires_at"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

func idleFlow(email string) *Flow {
	return &Flow{Email: email, State: StateIdle}
}

// isLive reports whether the flow still holds credentials or a code.
func (f *Flow) isLive() bool {
	return f.State == StateCredentialsSubmitted || f.State == StateCodeSent
}

// discardSecrets drops the credential material and any outstanding code.
func (f *Flow) discardSecrets() {
	f.PasswordHash = ""
	f.CodeHash = ""
	f.CodeExpiresAt = time.Time{}
}
