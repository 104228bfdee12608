package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/luxeledger/inventory-backend/api/controllers"
	"github.com/luxeledger/inventory-backend/api/middleware"
	"github.com/luxeledger/inventory-backend/internal/auth"
	"github.com/luxeledger/inventory-backend/internal/ledger"
	pkgAuth "github.com/luxeledger/inventory-backend/pkg/auth"
	"github.com/luxeledger/inventory-backend/pkg/auth/session"
	"github.com/luxeledger/inventory-backend/pkg/config"
	"github.com/luxeledger/inventory-backend/pkg/enums"
	"github.com/luxeledger/inventory-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubSessionManager struct{}

func (stubSessionManager) HasSession(ctx context.Context, accessID string) (bool, error) {
	return true, nil
}

func (stubSessionManager) Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error) {
	return "", "", nil
}

func (stubSessionManager) Revoke(ctx context.Context, accessID string) error {
	return nil
}

type stubIssuer struct{}

func (stubIssuer) SubmitCredentials(ctx context.Context, req auth.SubmitRequest) (*auth.PendingResponse, error) {
	return &auth.PendingResponse{PendingToken: "pending", Kind: req.Kind}, nil
}

func (stubIssuer) RequestCode(ctx context.Context, pendingToken string) (*auth.DeliveryAck, error) {
	return &auth.DeliveryAck{}, nil
}

func (stubIssuer) VerifyCode(ctx context.Context, req auth.VerifyRequest) (*auth.SessionResponse, error) {
	return nil, errors.New("not implemented")
}

func (stubIssuer) Cancel(ctx context.Context, pendingToken string) error {
	return nil
}

type stubLedger struct{}

func (stubLedger) AppendRecord(ctx context.Context, req ledger.AppendRecordRequest) (*ledger.BlockDTO, error) {
	return &ledger.BlockDTO{UID: 1, Brand: req.Brand}, nil
}

func (stubLedger) ListInventory(ctx context.Context) ([]ledger.BlockDTO, error) {
	return []ledger.BlockDTO{}, nil
}

func (stubLedger) Sell(ctx context.Context, uid uint64, req ledger.SellRequest) (*ledger.BlockDTO, error) {
	return &ledger.BlockDTO{UID: uid + 1, Status: enums.ItemStatusSold}, nil
}

func (stubLedger) Reserve(ctx context.Context, uid uint64, req ledger.ReserveRequest) (*ledger.BlockDTO, error) {
	return &ledger.BlockDTO{UID: uid + 1, Status: enums.ItemStatusReserved}, nil
}

func (stubLedger) History(ctx context.Context, uid uint64) ([]ledger.BlockDTO, error) {
	return []ledger.BlockDTO{{UID: uid}}, nil
}

func (stubLedger) Verify(ctx context.Context) (*ledger.VerifyReport, error) {
	return &ledger.VerifyReport{Valid: true}, nil
}

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *countingLimiter) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[scope]++
	return c.counts[scope] <= limit, c.counts[scope], nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:                 "secret",
			Issuer:                 "issuer",
			ExpirationMinutes:      60,
			RefreshTokenTTLMinutes: 120,
		},
		AuthRateLimit: config.AuthRateLimitConfig{
			LoginWindow:     time.Minute,
			LoginEmailLimit: 2,
			LoginIPLimit:    100,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func newTestRouter(cfg *config.Config, limiter *countingLimiter) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "# metrics\n")
	})
	var rl middleware.RateLimiter
	if limiter != nil {
		rl = limiter
	}
	return NewRouter(
		cfg,
		logg,
		map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{}},
		rl,
		stubSessionManager{},
		stubIssuer{},
		stubLedger{},
		metrics,
	)
}

func buildToken(t *testing.T, cfg *config.Config, kind enums.ActorKind) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		ActorID: uuid.New(),
		Email:   "actor@example.com",
		Kind:    kind,
		JTI:     session.NewAccessID(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		if resp := serve(router, http.MethodGet, path, "", ""); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestInventoryRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	resp := serve(router, http.MethodGet, "/api/v1/inventory", "", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestInventoryListForAnyActor(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)
	for _, kind := range []enums.ActorKind{enums.ActorKindEmployee, enums.ActorKindCustomer} {
		resp := serve(router, http.MethodGet, "/api/v1/inventory", buildToken(t, cfg, kind), "")
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", kind, resp.Code)
		}
	}
}

func TestInventoryAppendRequiresEmployee(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)
	body := `{"brand":"Hermes","item_name":"Birkin 30","price":1250000}`

	resp := serve(router, http.MethodPost, "/api/v1/inventory", buildToken(t, cfg, enums.ActorKindCustomer), body)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}

	resp = serve(router, http.MethodPost, "/api/v1/inventory", buildToken(t, cfg, enums.ActorKindEmployee), body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for employee got %d", resp.Code)
	}
}

func TestInventoryItemRoutes(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, nil)
	token := buildToken(t, cfg, enums.ActorKindEmployee)

	if resp := serve(router, http.MethodGet, "/api/v1/inventory/4/history", token, ""); resp.Code != http.StatusOK {
		t.Fatalf("history: expected 200 got %d", resp.Code)
	}
	if resp := serve(router, http.MethodPost, "/api/v1/inventory/4/sell", token, `{"customer_email":"buyer@example.com"}`); resp.Code != http.StatusCreated {
		t.Fatalf("sell: expected 201 got %d", resp.Code)
	}
	if resp := serve(router, http.MethodPost, "/api/v1/inventory/4/reserve", token, `{"reserved_until":"2031-06-01T00:00:00Z"}`); resp.Code != http.StatusCreated {
		t.Fatalf("reserve: expected 201 got %d", resp.Code)
	}
	if resp := serve(router, http.MethodGet, "/api/v1/inventory/verify", token, ""); resp.Code != http.StatusOK {
		t.Fatalf("verify: expected 200 got %d", resp.Code)
	}
}

func TestAuthRoutesArePublic(t *testing.T) {
	router := newTestRouter(testConfig(), nil)

	resp := serve(router, http.MethodPost, "/api/v1/auth/customers", "", `{"email":"buyer@example.com","password":"pw","verify_password":"pw"}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("register: expected 202 got %d", resp.Code)
	}
	resp = serve(router, http.MethodPost, "/api/v1/auth/otp/request", "", `{"pending_token":"pending"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("otp request: expected 200 got %d", resp.Code)
	}
}

func TestLoginIsRateLimitedPerEmail(t *testing.T) {
	limiter := &countingLimiter{}
	router := newTestRouter(testConfig(), limiter)
	body := `{"email":"clerk@example.com","password":"secret"}`

	for i := 0; i < 3; i++ {
		resp := serve(router, http.MethodPost, "/api/v1/auth/login", "", body)
		switch {
		case i < 2 && resp.Code != http.StatusOK:
			t.Fatalf("attempt %d: expected 200 got %d", i, resp.Code)
		case i == 2 && resp.Code != http.StatusTooManyRequests:
			t.Fatalf("attempt %d: expected 429 got %d", i, resp.Code)
		}
	}
}

func TestCORSPreflightAllowsDashboardOrigin(t *testing.T) {
	router := newTestRouter(testConfig(), nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/inventory", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected dashboard origin allowed got %q", got)
	}
}
