package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/luxeledger/inventory-backend/internal/notifications"
	"github.com/luxeledger/inventory-backend/internal/users"
	pkgAuth "github.com/luxeledger/inventory-backend/pkg/auth"
	"github.com/luxeledger/inventory-backend/pkg/auth/session"
	"github.com/luxeledger/inventory-backend/pkg/config"
	"github.com/luxeledger/inventory-backend/pkg/db"
	"github.com/luxeledger/inventory-backend/pkg/db/models"
	"github.com/luxeledger/inventory-backend/pkg/enums"
	pkgerrors "github.com/luxeledger/inventory-backend/pkg/errors"
	"github.com/luxeledger/inventory-backend/pkg/logger"
	"github.com/luxeledger/inventory-backend/pkg/metrics"
	"github.com/luxeledger/inventory-backend/pkg/security"
	"github.com/luxeledger/inventory-backend/pkg/types"
)

// Issuer drives the credential, code and session steps shared by employee
// login and customer registration.
type Issuer interface {
	SubmitCredentials(ctx context.Context, req SubmitRequest) (*PendingResponse, error)
	RequestCode(ctx context.Context, pendingToken string) (*DeliveryAck, error)
	VerifyCode(ctx context.Context, req VerifyRequest) (*SessionResponse, error)
	Cancel(ctx context.Context, pendingToken string) error
}

// CodeDeliverer sends a one-time code out of band.
type CodeDeliverer interface {
	DeliverCode(ctx context.Context, msg notifications.OTPMessage) error
}

type accountRepository interface {
	FindEmployeeByEmail(ctx context.Context, email string) (*models.Employee, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	CreateCustomer(ctx context.Context, dto users.CreateCustomerDTO) (*models.Customer, error)
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Revoke(ctx context.Context, accessID string) error
}

// IssuerParams bundles the dependencies required to build an issuer.
type IssuerParams struct {
	Accounts       accountRepository
	Sessions       sessionManager
	Flows          FlowStore
	Deliverer      CodeDeliverer
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	OTPConfig      config.OTPConfig
	Metrics        *metrics.AuthMetrics
	Logger         *logger.Logger
	Clock          func() time.Time
}

type issuer struct {
	accounts    accountRepository
	sessions    sessionManager
	flows       FlowStore
	deliverer   CodeDeliverer
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	otpCfg      config.OTPConfig
	metrics     *metrics.AuthMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// NewIssuer constructs the verification flow service.
func NewIssuer(params IssuerParams) (Issuer, error) {
	if params.Accounts == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.Flows == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if params.Deliverer == nil {
		return nil, fmt.Errorf("code deliverer is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.OTPConfig.Length <= 0 || params.OTPConfig.TTL <= 0 || params.OTPConfig.PendingTTL <= 0 {
		return nil, fmt.Errorf("otp length, ttl and pending ttl must be positive")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &issuer{
		accounts:    params.Accounts,
		sessions:    params.Sessions,
		flows:       params.Flows,
		deliverer:   params.Deliverer,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		otpCfg:      params.OTPConfig,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         func() time.Time { return clock().UTC() },
	}, nil
}

func (s *issuer) SubmitCredentials(ctx context.Context, req SubmitRequest) (*PendingResponse, error) {
	email := types.NormalizeEmail(req.Email)
	if !req.Kind.IsValid() {
		return nil, s.fail(ctx, req.Kind, EventSubmitCredentials, fmt.Errorf("%w: unknown account kind %q", ErrValidation, req.Kind))
	}
	if email == "" || req.Password == "" {
		return nil, s.fail(ctx, req.Kind, EventSubmitCredentials, fmt.Errorf("%w: email and password are required", ErrValidation))
	}
	if req.Kind == enums.ActorKindCustomer && req.Password != req.VerifyPassword {
		return nil, s.fail(ctx, req.Kind, EventSubmitCredentials, fmt.Errorf("%w: passwords do not match", ErrValidation))
	}

	unlock, err := s.flows.Lock(ctx, email)
	if err != nil {
		return nil, s.fail(ctx, req.Kind, EventSubmitCredentials, err)
	}
	defer unlock()

	current, err := s.loadFlow(ctx, email)
	if err != nil {
		return nil, s.fail(ctx, req.Kind, EventSubmitCredentials, err)
	}
	if err := s.guardLiveFlow(current, req); err != nil {
		return nil, s.fail(ctx, req.Kind, EventSubmitCredentials, err)
	}
	next, err := transition(current.State, EventSubmitCredentials)
	if err != nil {
		return nil, s.fail(ctx, req.Kind, EventSubmitCredentials, err)
	}

	now := s.now()
	flow := &Flow{
		ID:        uuid.NewString(),
		Email:     email,
		Kind:      req.Kind,
		CreatedAt: now,
		ExpiresAt: now.Add(s.otpCfg.PendingTTL),
	}
	switch req.Kind {
	case enums.ActorKindEmployee:
		employee, err := s.authenticateEmployee(ctx, email, req.Password)
		if err != nil {
			return nil, s.fail(ctx, req.Kind, EventSubmitCredentials, err)
		}
		flow.ActorID = employee.ID
	case enums.ActorKindCustomer:
		if err := s.ensureCustomerAbsent(ctx, email); err != nil {
			return nil, s.fail(ctx, req.Kind, EventSubmitCredentials, err)
		}
		hash, err := security.HashPassword(req.Password, s.passwordCfg)
		if err != nil {
			return nil, s.fail(ctx, req.Kind, EventSubmitCredentials, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password"))
		}
		flow.ActorID = uuid.New()
		flow.PasswordHash = hash
	}
	flow.State = next

	if err := s.flows.Save(ctx, flow); err != nil {
		return nil, s.fail(ctx, req.Kind, EventSubmitCredentials, err)
	}

	token, err := pkgAuth.MintPendingToken(s.jwtCfg, now, s.otpCfg.PendingTTL, pkgAuth.PendingTokenPayload{
		Email:  email,
		Kind:   req.Kind,
		FlowID: flow.ID,
	})
	if err != nil {
		return nil, s.fail(ctx, req.Kind, EventSubmitCredentials, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint pending token"))
	}

	s.succeeded(ctx, flow, EventSubmitCredentials)
	return &PendingResponse{PendingToken: token, Kind: req.Kind, ExpiresAt: flow.ExpiresAt}, nil
}

func (s *issuer) RequestCode(ctx context.Context, pendingToken string) (*DeliveryAck, error) {
	claims, err := pkgAuth.ParsePendingToken(s.jwtCfg, strings.TrimSpace(pendingToken))
	if err != nil {
		return nil, s.fail(ctx, "", EventRequestCode, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid pending token"))
	}
	email := types.NormalizeEmail(claims.Email)

	unlock, err := s.flows.Lock(ctx, email)
	if err != nil {
		return nil, s.fail(ctx, claims.Kind, EventRequestCode, err)
	}
	defer unlock()

	flow, err := s.loadFlow(ctx, email)
	if err != nil {
		return nil, s.fail(ctx, claims.Kind, EventRequestCode, err)
	}
	// a token from an older submission must not drive the current flow
	if flow.ID != claims.FlowID {
		return nil, s.fail(ctx, claims.Kind, EventRequestCode, fmt.Errorf("%w: pending token does not match the current flow", ErrNoPendingVerification))
	}
	next, err := transition(flow.State, EventRequestCode)
	if err != nil {
		return nil, s.fail(ctx, flow.Kind, EventRequestCode, err)
	}

	code, err := security.GenerateNumericCode(s.otpCfg.Length)
	if err != nil {
		return nil, s.fail(ctx, flow.Kind, EventRequestCode, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate code"))
	}
	now := s.now()
	expiresAt := now.Add(s.otpCfg.TTL)

	started := time.Now()
	err = s.deliverer.DeliverCode(ctx, notifications.OTPMessage{
		FlowID:    flow.ID,
		Email:     flow.Email,
		Kind:      flow.Kind,
		Code:      code,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		s.metrics.ObserveDelivery("error", time.Since(started))
		return nil, s.fail(ctx, flow.Kind, EventRequestCode, fmt.Errorf("%w: %w", ErrDelivery, err))
	}
	s.metrics.ObserveDelivery("ok", time.Since(started))

	resent := flow.State == StateCodeSent
	flow.CodeHash = security.HashCode(s.jwtCfg.Secret, flow.ID, code)
	flow.CodeExpiresAt = expiresAt
	// an expired code keeps being reported as expired for one more ttl
	flow.ExpiresAt = later(flow.ExpiresAt, expiresAt.Add(s.otpCfg.TTL))
	flow.State = next
	if err := s.flows.Save(ctx, flow); err != nil {
		return nil, s.fail(ctx, flow.Kind, EventRequestCode, err)
	}

	s.succeeded(ctx, flow, EventRequestCode)
	return &DeliveryAck{Email: flow.Email, ExpiresAt: expiresAt, Resent: resent}, nil
}

func (s *issuer) VerifyCode(ctx context.Context, req VerifyRequest) (*SessionResponse, error) {
	email := types.NormalizeEmail(req.Email)
	code := strings.TrimSpace(req.Code)
	if email == "" || code == "" {
		return nil, s.fail(ctx, "", EventVerifyCode, fmt.Errorf("%w: email and code are required", ErrValidation))
	}

	unlock, err := s.flows.Lock(ctx, email)
	if err != nil {
		return nil, s.fail(ctx, "", EventVerifyCode, err)
	}
	defer unlock()

	flow, err := s.loadFlow(ctx, email)
	if err != nil {
		return nil, s.fail(ctx, "", EventVerifyCode, err)
	}
	next, err := transition(flow.State, EventVerifyCode)
	if err != nil {
		return nil, s.fail(ctx, flow.Kind, EventVerifyCode, err)
	}

	now := s.now()
	if !now.Before(flow.CodeExpiresAt) {
		return nil, s.fail(ctx, flow.Kind, EventVerifyCode, ErrCodeExpired)
	}
	if !security.CompareCode(s.jwtCfg.Secret, flow.ID, code, flow.CodeHash) {
		return nil, s.fail(ctx, flow.Kind, EventVerifyCode, ErrInvalidCode)
	}

	resp, accessID, err := s.issueSession(ctx, flow, now)
	if err != nil {
		return nil, s.fail(ctx, flow.Kind, EventVerifyCode, err)
	}

	flow.State = next
	flow.discardSecrets()
	// replays are answered with ErrCodeAlreadyUsed for a full pending window
	flow.ExpiresAt = later(flow.ExpiresAt, now.Add(s.otpCfg.PendingTTL))
	if err := s.flows.Save(ctx, flow); err != nil {
		if rerr := s.sessions.Revoke(ctx, accessID); rerr != nil {
			s.logg.Error(ctx, "failed to revoke session after flow save error", rerr)
		}
		return nil, s.fail(ctx, flow.Kind, EventVerifyCode, err)
	}

	s.succeeded(s.logg.WithUserID(ctx, flow.ActorID.String()), flow, EventVerifyCode)
	return resp, nil
}

func (s *issuer) Cancel(ctx context.Context, pendingToken string) error {
	claims, err := pkgAuth.ParsePendingTokenAllowExpired(s.jwtCfg, strings.TrimSpace(pendingToken))
	if err != nil {
		return s.fail(ctx, "", EventCancel, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid pending token"))
	}
	email := types.NormalizeEmail(claims.Email)

	unlock, err := s.flows.Lock(ctx, email)
	if err != nil {
		return s.fail(ctx, claims.Kind, EventCancel, err)
	}
	defer unlock()

	flow, err := s.loadFlow(ctx, email)
	if err != nil {
		return s.fail(ctx, claims.Kind, EventCancel, err)
	}
	// the token's flow is gone; a newer flow for the email is left alone
	if flow.State == StateIdle || flow.ID != claims.FlowID {
		return nil
	}
	next, err := transition(flow.State, EventCancel)
	if err != nil {
		return s.fail(ctx, flow.Kind, EventCancel, err)
	}
	if next == flow.State {
		return nil
	}

	flow.State = next
	flow.discardSecrets()
	if err := s.flows.Save(ctx, flow); err != nil {
		return s.fail(ctx, flow.Kind, EventCancel, err)
	}
	s.succeeded(ctx, flow, EventCancel)
	return nil
}

// loadFlow returns the stored flow for email, or an idle one when none is live.
func (s *issuer) loadFlow(ctx context.Context, email string) (*Flow, error) {
	flow, ok, err := s.flows.Load(ctx, email)
	if err != nil {
		return nil, err
	}
	if !ok || !s.now().Before(flow.ExpiresAt) {
		return idleFlow(email), nil
	}
	return flow, nil
}

// guardLiveFlow decides whether a submission may restart a pending flow. Only
// the same kind may restart it, and a customer must repeat the staged password.
func (s *issuer) guardLiveFlow(current *Flow, req SubmitRequest) error {
	if !current.isLive() {
		return nil
	}
	if current.Kind != req.Kind {
		return ErrFlowInProgress
	}
	if req.Kind != enums.ActorKindCustomer {
		return nil
	}
	if current.PasswordHash == "" {
		return ErrFlowInProgress
	}
	same, err := security.VerifyPassword(req.Password, current.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify staged password")
	}
	if !same {
		return ErrFlowInProgress
	}
	return nil
}

func (s *issuer) authenticateEmployee(ctx context.Context, email, password string) (*models.Employee, error) {
	employee, err := s.accounts.FindEmployeeByEmail(ctx, email)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrAuthentication
		}
		return nil, fmt.Errorf("lookup employee: %w", err)
	}
	valid, err := security.VerifyPassword(password, employee.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || !employee.IsActive {
		return nil, ErrAuthentication
	}
	return employee, nil
}

func (s *issuer) ensureCustomerAbsent(ctx context.Context, email string) error {
	_, err := s.accounts.FindCustomerByEmail(ctx, email)
	switch {
	case err == nil:
		return ErrAccountExists
	case db.IsNotFound(err):
		return nil
	default:
		return fmt.Errorf("lookup customer: %w", err)
	}
}

// issueSession performs the per-kind persistence and mints the session.
func (s *issuer) issueSession(ctx context.Context, flow *Flow, now time.Time) (*SessionResponse, string, error) {
	var actor *users.ActorDTO
	switch flow.Kind {
	case enums.ActorKindCustomer:
		customer, err := s.createCustomer(ctx, flow, now)
		if err != nil {
			return nil, "", err
		}
		actor = users.FromCustomer(customer)
	default:
		if err := s.accounts.UpdateLastLogin(ctx, flow.ActorID, now); err != nil {
			return nil, "", fmt.Errorf("update last login: %w", err)
		}
		at := now
		actor = &users.ActorDTO{ID: flow.ActorID, Email: flow.Email, Kind: flow.Kind, LastLoginAt: &at}
	}

	accessID := session.NewAccessID()
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		ActorID: flow.ActorID,
		Email:   flow.Email,
		Kind:    flow.Kind,
		JTI:     accessID,
	})
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refreshToken, err := s.sessions.Generate(ctx, accessID)
	if err != nil {
		return nil, "", fmt.Errorf("store refresh token: %w", err)
	}

	return &SessionResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(time.Duration(s.jwtCfg.ExpirationMinutes) * time.Minute),
		Actor:        actor,
	}, accessID, nil
}

// createCustomer persists the staged account. A row already written for this
// flow's actor id, left by an earlier attempt whose flow save failed, is reused.
func (s *issuer) createCustomer(ctx context.Context, flow *Flow, now time.Time) (*models.Customer, error) {
	customer, err := s.accounts.CreateCustomer(ctx, users.CreateCustomerDTO{
		ID:           flow.ActorID,
		Email:        flow.Email,
		PasswordHash: flow.PasswordHash,
		VerifiedAt:   now,
	})
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, users.ErrEmailTaken) {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	existing, lerr := s.accounts.FindCustomerByEmail(ctx, flow.Email)
	if lerr != nil {
		return nil, fmt.Errorf("lookup customer: %w", lerr)
	}
	if existing.ID != flow.ActorID {
		return nil, fmt.Errorf("%w: %w", ErrAccountExists, err)
	}
	return existing, nil
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func (s *issuer) succeeded(ctx context.Context, flow *Flow, ev Event) {
	s.metrics.IncTransition(string(flow.Kind), string(ev), "ok")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"flow_id": flow.ID,
		"kind":    flow.Kind,
		"event":   ev,
		"state":   flow.State,
	}), "auth flow transition")
}

func (s *issuer) fail(ctx context.Context, kind enums.ActorKind, ev Event, err error) error {
	outcome, mapped := classify(err)
	s.metrics.IncTransition(string(kind), string(ev), outcome)
	if code := pkgerrors.CodeOf(mapped); code == pkgerrors.CodeDependency || code == pkgerrors.CodeInternal {
		s.logg.Error(s.logg.WithField(ctx, "event", string(ev)), "auth flow failed", err)
	}
	return mapped
}
