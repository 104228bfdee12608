package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/luxeledger/inventory-backend/internal/notifications"
	"github.com/luxeledger/inventory-backend/internal/users"
	pkgAuth "github.com/luxeledger/inventory-backend/pkg/auth"
	"github.com/luxeledger/inventory-backend/pkg/config"
	"github.com/luxeledger/inventory-backend/pkg/db/models"
	"github.com/luxeledger/inventory-backend/pkg/enums"
	pkgerrors "github.com/luxeledger/inventory-backend/pkg/errors"
	"github.com/luxeledger/inventory-backend/pkg/logger"
	"github.com/luxeledger/inventory-backend/pkg/security"
)

var testJWT = config.JWTConfig{
	Secret:                 "test-secret",
	Issuer:                 "luxe-inventory",
	ExpirationMinutes:      60,
	RefreshTokenTTLMinutes: 120,
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeAccounts struct {
	mu         sync.Mutex
	employees  map[string]*models.Employee
	customers  map[string]*models.Customer
	lastLogins map[uuid.UUID]time.Time
	createErr  error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		employees:  map[string]*models.Employee{},
		customers:  map[string]*models.Customer{},
		lastLogins: map[uuid.UUID]time.Time{},
	}
}

func (f *fakeAccounts) FindEmployeeByEmail(_ context.Context, email string) (*models.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.employees[email]; ok {
		return e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAccounts) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLogins[id] = at
	return nil
}

func (f *fakeAccounts) FindCustomerByEmail(_ context.Context, email string) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.customers[email]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAccounts) CreateCustomer(_ context.Context, dto users.CreateCustomerDTO) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.customers[dto.Email]; ok {
		return nil, users.ErrEmailTaken
	}
	c := dto.ToModel()
	f.customers[dto.Email] = c
	return c, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]string
}

func (f *fakeSessions) Generate(_ context.Context, accessID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions == nil {
		f.sessions = map[string]string{}
	}
	token := "refresh-" + accessID
	f.sessions[accessID] = token
	return token, nil
}

func (f *fakeSessions) Revoke(_ context.Context, accessID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, accessID)
	return nil
}

type fakeDeliverer struct {
	mu   sync.Mutex
	sent []notifications.OTPMessage
	err  error
}

func (f *fakeDeliverer) DeliverCode(_ context.Context, msg notifications.OTPMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeDeliverer) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no code delivered")
	return f.sent[len(f.sent)-1].Code
}

type harness struct {
	issuer    Issuer
	accounts  *fakeAccounts
	sessions  *fakeSessions
	deliverer *fakeDeliverer
	flows     *MemoryFlowStore
	clock     *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		accounts:  newFakeAccounts(),
		sessions:  &fakeSessions{},
		deliverer: &fakeDeliverer{},
		flows:     NewMemoryFlowStore(),
		// token parsing checks exp against the wall clock
		clock: &testClock{t: time.Now().UTC()},
	}
	iss, err := NewIssuer(IssuerParams{
		Accounts:  h.accounts,
		Sessions:  h.sessions,
		Flows:     h.flows,
		Deliverer: h.deliverer,
		JWTConfig: testJWT,
		OTPConfig: config.OTPConfig{Length: 6, TTL: 5 * time.Minute, PendingTTL: 15 * time.Minute},
		Logger:    logger.Nop(),
		Clock:     h.clock.Now,
	})
	require.NoError(t, err)
	h.issuer = iss
	return h
}

func (h *harness) addEmployee(t *testing.T, email, password string) *models.Employee {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	require.NoError(t, err)
	e := &models.Employee{ID: uuid.New(), Email: email, PasswordHash: hash, IsActive: true}
	h.accounts.employees[email] = e
	return e
}

func (h *harness) state(t *testing.T, email string) State {
	t.Helper()
	flow, ok, err := h.flows.Load(context.Background(), email)
	require.NoError(t, err)
	if !ok {
		return StateIdle
	}
	return flow.State
}

// codeSent walks an employee through submit and request and returns the delivered code.
func (h *harness) codeSent(t *testing.T, email, password string) string {
	t.Helper()
	_, code := h.pendingCode(t, email, password)
	return code
}

// pendingCode is codeSent that also hands back the pending token.
func (h *harness) pendingCode(t *testing.T, email, password string) (string, string) {
	t.Helper()
	ctx := context.Background()
	pending, err := h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: email, Password: password, Kind: enums.ActorKindEmployee})
	require.NoError(t, err)
	_, err = h.issuer.RequestCode(ctx, pending.PendingToken)
	require.NoError(t, err)
	return pending.PendingToken, h.deliverer.lastCode(t)
}

func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}

func TestIssuerCustomerPasswordMismatchStaysIdle(t *testing.T) {
	h := newHarness(t)
	_, err := h.issuer.SubmitCredentials(context.Background(), SubmitRequest{
		Email:          "buyer@example.com",
		Password:       "p1",
		VerifyPassword: "p2",
		Kind:           enums.ActorKindCustomer,
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.Equal(t, StateIdle, h.state(t, "buyer@example.com"))
}

func TestIssuerEmployeeWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")

	_, err := h.issuer.SubmitCredentials(context.Background(), SubmitRequest{Email: "clerk@luxe.test", Password: "nope", Kind: enums.ActorKindEmployee})
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))

	_, err = h.issuer.SubmitCredentials(context.Background(), SubmitRequest{Email: "ghost@luxe.test", Password: "nope", Kind: enums.ActorKindEmployee})
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, StateIdle, h.state(t, "clerk@luxe.test"))
}

func TestIssuerWrongThenRightThenReplay(t *testing.T) {
	h := newHarness(t)
	employee := h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	code := h.codeSent(t, " Clerk@Luxe.test ", "correct-horse")
	assert.Equal(t, StateCodeSent, h.state(t, "clerk@luxe.test"))

	_, err := h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: wrongCode(code)})
	require.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
	assert.Equal(t, StateCodeSent, h.state(t, "clerk@luxe.test"))

	session, err := h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: code})
	require.NoError(t, err)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, employee.ID, session.Actor.ID)

	claims, err := pkgAuth.ParseAccessToken(testJWT, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, employee.ID, claims.ActorID)
	assert.Equal(t, enums.ActorKindEmployee, claims.Kind)
	assert.Contains(t, h.sessions.sessions, claims.ID)
	assert.Contains(t, h.accounts.lastLogins, employee.ID)

	_, err = h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: code})
	require.ErrorIs(t, err, ErrCodeAlreadyUsed)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}

func TestIssuerCustomerRegistrationCreatesAccountOnVerify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending, err := h.issuer.SubmitCredentials(ctx, SubmitRequest{
		Email:          "buyer@example.com",
		Password:       "s3cret",
		VerifyPassword: "s3cret",
		Kind:           enums.ActorKindCustomer,
	})
	require.NoError(t, err)
	assert.Empty(t, h.accounts.customers, "account is only written after verification")

	_, err = h.issuer.RequestCode(ctx, pending.PendingToken)
	require.NoError(t, err)
	session, err := h.issuer.VerifyCode(ctx, VerifyRequest{Email: "buyer@example.com", Code: h.deliverer.lastCode(t)})
	require.NoError(t, err)
	assert.Equal(t, enums.ActorKindCustomer, session.Actor.Kind)

	customer, ok := h.accounts.customers["buyer@example.com"]
	require.True(t, ok)
	valid, err := security.VerifyPassword("s3cret", customer.PasswordHash)
	require.NoError(t, err)
	assert.True(t, valid)

	_, err = h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "buyer@example.com", Password: "x", VerifyPassword: "x", Kind: enums.ActorKindCustomer})
	require.ErrorIs(t, err, ErrAccountExists)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}

func TestIssuerCancelThenVerifyFails(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	token, code := h.pendingCode(t, "clerk@luxe.test", "correct-horse")
	require.NoError(t, h.issuer.Cancel(ctx, token))
	assert.Equal(t, StateCancelled, h.state(t, "clerk@luxe.test"))
	require.NoError(t, h.issuer.Cancel(ctx, token), "cancel is idempotent")

	_, err := h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: code})
	require.ErrorIs(t, err, ErrNoPendingVerification)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	flow, _, err := h.flows.Load(ctx, "clerk@luxe.test")
	require.NoError(t, err)
	assert.Empty(t, flow.CodeHash)
}

func TestIssuerCancelIsNoOpForUnknownAndVerified(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	unknown, err := pkgAuth.MintPendingToken(testJWT, time.Now(), time.Minute, pkgAuth.PendingTokenPayload{
		Email:  "nobody@luxe.test",
		Kind:   enums.ActorKindCustomer,
		FlowID: uuid.NewString(),
	})
	require.NoError(t, err)
	require.NoError(t, h.issuer.Cancel(ctx, unknown))
	assert.Equal(t, StateIdle, h.state(t, "nobody@luxe.test"))

	token, code := h.pendingCode(t, "clerk@luxe.test", "correct-horse")
	_, err = h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: code})
	require.NoError(t, err)
	require.NoError(t, h.issuer.Cancel(ctx, token))
	assert.Equal(t, StateVerified, h.state(t, "clerk@luxe.test"))
}

func TestIssuerExpiredCode(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	code := h.codeSent(t, "clerk@luxe.test", "correct-horse")
	h.clock.Advance(5*time.Minute + time.Second)

	_, err := h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: code})
	require.ErrorIs(t, err, ErrCodeExpired)
	assert.Equal(t, pkgerrors.CodeCodeExpired, pkgerrors.CodeOf(err))
	assert.Equal(t, StateCodeSent, h.state(t, "clerk@luxe.test"))
}

func TestIssuerResendInvalidatesOldCode(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	pending, err := h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "clerk@luxe.test", Password: "correct-horse", Kind: enums.ActorKindEmployee})
	require.NoError(t, err)
	first, err := h.issuer.RequestCode(ctx, pending.PendingToken)
	require.NoError(t, err)
	assert.False(t, first.Resent)
	old := h.deliverer.lastCode(t)

	second, err := h.issuer.RequestCode(ctx, pending.PendingToken)
	require.NoError(t, err)
	assert.True(t, second.Resent)
	fresh := h.deliverer.lastCode(t)

	if old != fresh {
		_, err = h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: old})
		require.ErrorIs(t, err, ErrInvalidCode)
	}
	_, err = h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: fresh})
	require.NoError(t, err)
}

func TestIssuerDeliveryFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	pending, err := h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "clerk@luxe.test", Password: "correct-horse", Kind: enums.ActorKindEmployee})
	require.NoError(t, err)

	h.deliverer.err = errors.New("broker unreachable")
	_, err = h.issuer.RequestCode(ctx, pending.PendingToken)
	require.ErrorIs(t, err, ErrDelivery)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
	assert.Equal(t, StateCredentialsSubmitted, h.state(t, "clerk@luxe.test"))

	h.deliverer.err = nil
	_, err = h.issuer.RequestCode(ctx, pending.PendingToken)
	require.NoError(t, err)
	assert.Equal(t, StateCodeSent, h.state(t, "clerk@luxe.test"))
}

func TestIssuerVerifyBeforeRequest(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	_, err := h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: "123456"})
	require.ErrorIs(t, err, ErrNoPendingVerification)

	_, err = h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "clerk@luxe.test", Password: "correct-horse", Kind: enums.ActorKindEmployee})
	require.NoError(t, err)
	_, err = h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: "123456"})
	require.ErrorIs(t, err, ErrNoPendingVerification)
}

func TestIssuerStalePendingToken(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	first, err := h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "clerk@luxe.test", Password: "correct-horse", Kind: enums.ActorKindEmployee})
	require.NoError(t, err)
	_, err = h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "clerk@luxe.test", Password: "correct-horse", Kind: enums.ActorKindEmployee})
	require.NoError(t, err)

	_, err = h.issuer.RequestCode(ctx, first.PendingToken)
	require.ErrorIs(t, err, ErrNoPendingVerification)

	_, err = h.issuer.RequestCode(ctx, "not-a-token")
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
}

func TestIssuerConcurrentVerifyConsumesOnce(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	code := h.codeSent(t, "clerk@luxe.test", "correct-horse")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.issuer.VerifyCode(context.Background(), VerifyRequest{Email: "clerk@luxe.test", Code: code}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestIssuerCancelNeedsTheFlowsOwnToken(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	err := h.issuer.Cancel(ctx, "clerk@luxe.test")
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))

	stale, err := h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "clerk@luxe.test", Password: "correct-horse", Kind: enums.ActorKindEmployee})
	require.NoError(t, err)
	code := h.codeSent(t, "clerk@luxe.test", "correct-horse")

	require.NoError(t, h.issuer.Cancel(ctx, stale.PendingToken))
	assert.Equal(t, StateCodeSent, h.state(t, "clerk@luxe.test"), "a superseded token leaves the newer flow alone")

	_, err = h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: code})
	require.NoError(t, err)
}

func TestIssuerCancelAfterPendingTokenLapsed(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	h.codeSent(t, "clerk@luxe.test", "correct-horse")
	flow, ok, err := h.flows.Load(ctx, "clerk@luxe.test")
	require.NoError(t, err)
	require.True(t, ok)

	expired, err := pkgAuth.MintPendingToken(testJWT, time.Now().Add(-time.Hour), 15*time.Minute, pkgAuth.PendingTokenPayload{
		Email:  "clerk@luxe.test",
		Kind:   enums.ActorKindEmployee,
		FlowID: flow.ID,
	})
	require.NoError(t, err)

	require.NoError(t, h.issuer.Cancel(ctx, expired))
	assert.Equal(t, StateCancelled, h.state(t, "clerk@luxe.test"))
}

func TestIssuerCustomerSubmissionCannotReplaceEmployeeFlow(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	code := h.codeSent(t, "clerk@luxe.test", "correct-horse")

	_, err := h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "clerk@luxe.test", Password: "x", VerifyPassword: "x", Kind: enums.ActorKindCustomer})
	require.ErrorIs(t, err, ErrFlowInProgress)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	assert.Equal(t, StateCodeSent, h.state(t, "clerk@luxe.test"))

	session, err := h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: code})
	require.NoError(t, err)
	assert.Equal(t, enums.ActorKindEmployee, session.Actor.Kind)
}

func TestIssuerCustomerRestartNeedsStagedPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	submit := func(password string) error {
		_, err := h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "buyer@example.com", Password: password, VerifyPassword: password, Kind: enums.ActorKindCustomer})
		return err
	}

	require.NoError(t, submit("s3cret"))
	require.ErrorIs(t, submit("hijack"), ErrFlowInProgress)
	require.NoError(t, submit("s3cret"))

	h.clock.Advance(16 * time.Minute)
	require.NoError(t, submit("another"), "an expired flow no longer blocks registration")
}

func TestIssuerCodeRequestedLateInPendingWindow(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	pending, err := h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "clerk@luxe.test", Password: "correct-horse", Kind: enums.ActorKindEmployee})
	require.NoError(t, err)
	h.clock.Advance(12 * time.Minute)
	_, err = h.issuer.RequestCode(ctx, pending.PendingToken)
	require.NoError(t, err)
	code := h.deliverer.lastCode(t)

	h.clock.Advance(4 * time.Minute)
	_, err = h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: code})
	require.NoError(t, err, "the code is still inside its own lifetime")
}

func TestIssuerExpiredCodeReportedAfterPendingWindow(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	pending, err := h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "clerk@luxe.test", Password: "correct-horse", Kind: enums.ActorKindEmployee})
	require.NoError(t, err)
	h.clock.Advance(10 * time.Minute)
	_, err = h.issuer.RequestCode(ctx, pending.PendingToken)
	require.NoError(t, err)
	code := h.deliverer.lastCode(t)

	h.clock.Advance(6 * time.Minute)
	_, err = h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: code})
	require.ErrorIs(t, err, ErrCodeExpired)
	assert.Equal(t, pkgerrors.CodeCodeExpired, pkgerrors.CodeOf(err))
}

func TestIssuerReplayAfterPendingWindow(t *testing.T) {
	h := newHarness(t)
	h.addEmployee(t, "clerk@luxe.test", "correct-horse")
	ctx := context.Background()

	pending, err := h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "clerk@luxe.test", Password: "correct-horse", Kind: enums.ActorKindEmployee})
	require.NoError(t, err)
	h.clock.Advance(10 * time.Minute)
	_, err = h.issuer.RequestCode(ctx, pending.PendingToken)
	require.NoError(t, err)
	code := h.deliverer.lastCode(t)

	h.clock.Advance(4 * time.Minute)
	_, err = h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: code})
	require.NoError(t, err)

	h.clock.Advance(2 * time.Minute)
	_, err = h.issuer.VerifyCode(ctx, VerifyRequest{Email: "clerk@luxe.test", Code: code})
	require.ErrorIs(t, err, ErrCodeAlreadyUsed)
}

// flakySaveStore fails the next Save once armed.
type flakySaveStore struct {
	*MemoryFlowStore
	mu       sync.Mutex
	failNext bool
}

func (s *flakySaveStore) Save(ctx context.Context, flow *Flow) error {
	s.mu.Lock()
	fail := s.failNext
	s.failNext = false
	s.mu.Unlock()
	if fail {
		return errors.New("flow store unavailable")
	}
	return s.MemoryFlowStore.Save(ctx, flow)
}

func TestIssuerCustomerVerifyRetriesAfterFlowSaveFailure(t *testing.T) {
	accounts := newFakeAccounts()
	sessions := &fakeSessions{}
	deliverer := &fakeDeliverer{}
	flows := &flakySaveStore{MemoryFlowStore: NewMemoryFlowStore()}
	iss, err := NewIssuer(IssuerParams{
		Accounts:  accounts,
		Sessions:  sessions,
		Flows:     flows,
		Deliverer: deliverer,
		JWTConfig: testJWT,
		OTPConfig: config.OTPConfig{Length: 6, TTL: 5 * time.Minute, PendingTTL: 15 * time.Minute},
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)
	ctx := context.Background()

	pending, err := iss.SubmitCredentials(ctx, SubmitRequest{Email: "buyer@example.com", Password: "s3cret", VerifyPassword: "s3cret", Kind: enums.ActorKindCustomer})
	require.NoError(t, err)
	_, err = iss.RequestCode(ctx, pending.PendingToken)
	require.NoError(t, err)
	code := deliverer.lastCode(t)

	flows.failNext = true
	_, err = iss.VerifyCode(ctx, VerifyRequest{Email: "buyer@example.com", Code: code})
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
	assert.Empty(t, sessions.sessions, "the minted session is revoked")
	require.Contains(t, accounts.customers, "buyer@example.com")

	session, err := iss.VerifyCode(ctx, VerifyRequest{Email: "buyer@example.com", Code: code})
	require.NoError(t, err)
	assert.Equal(t, accounts.customers["buyer@example.com"].ID, session.Actor.ID)
}

func TestIssuerCustomerVerifyRejectsForeignAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending, err := h.issuer.SubmitCredentials(ctx, SubmitRequest{Email: "buyer@example.com", Password: "s3cret", VerifyPassword: "s3cret", Kind: enums.ActorKindCustomer})
	require.NoError(t, err)
	_, err = h.issuer.RequestCode(ctx, pending.PendingToken)
	require.NoError(t, err)

	h.accounts.customers["buyer@example.com"] = &models.Customer{ID: uuid.New(), Email: "buyer@example.com"}
	_, err = h.issuer.VerifyCode(ctx, VerifyRequest{Email: "buyer@example.com", Code: h.deliverer.lastCode(t)})
	require.ErrorIs(t, err, ErrAccountExists)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}
