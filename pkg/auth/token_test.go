package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/luxeledger/inventory-backend/pkg/config"
	"github.com/luxeledger/inventory-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "luxe-inventory",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	actorID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		ActorID: actorID,
		Email:   "staff@luxe.test",
		Kind:    enums.ActorKindEmployee,
		JTI:     "jti-1",
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.ActorID != actorID {
		t.Fatalf("expected actor_id %s, got %s", actorID, claims.ActorID)
	}
	if claims.Kind != enums.ActorKindEmployee || claims.Email != "staff@luxe.test" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID != "jti-1" {
		t.Fatalf("expected jti preserved, got %q", claims.ID)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}

	exp := now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp, claims.ExpiresAt)
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{ActorID: uuid.New(), Kind: enums.ActorKindCustomer})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpirationMinutes = 15
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{ActorID: uuid.New(), Kind: enums.ActorKindEmployee})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	_, err = ParseAccessToken(cfg, token)
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiration error, got %v", err)
	}

	claims, err := ParseAccessTokenAllowExpired(cfg, token)
	if err != nil {
		t.Fatalf("allow-expired parse failed: %v", err)
	}
	if claims.ID == "" {
		t.Fatal("expected generated jti")
	}
}

func TestMintAccessTokenInvalidKind(t *testing.T) {
	if _, err := MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{ActorID: uuid.New()}); err == nil {
		t.Fatal("expected invalid kind error")
	}
}

func TestPendingTokenRoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintPendingToken(cfg, time.Now(), 10*time.Minute, PendingTokenPayload{
		Email:  "buyer@example.com",
		Kind:   enums.ActorKindCustomer,
		FlowID: "flow-1",
	})
	if err != nil {
		t.Fatalf("mint pending token: %v", err)
	}

	claims, err := ParsePendingToken(cfg, token)
	if err != nil {
		t.Fatalf("parse pending token: %v", err)
	}
	if claims.Email != "buyer@example.com" || claims.FlowID != "flow-1" {
		t.Fatalf("unexpected pending claims %+v", claims)
	}

	if _, err := ParseAccessToken(cfg, token); !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("pending token must not pass as access token, got %v", err)
	}
}

func TestPendingTokenRejectsAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{ActorID: uuid.New(), Kind: enums.ActorKindEmployee})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := ParsePendingToken(cfg, token); !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("access token must not pass as pending token, got %v", err)
	}
}

func TestMintPendingTokenValidation(t *testing.T) {
	cfg := testJWTConfig()
	if _, err := MintPendingToken(cfg, time.Now(), 0, PendingTokenPayload{Email: "a@b.c", Kind: enums.ActorKindCustomer, FlowID: "f"}); err == nil {
		t.Fatal("expected ttl error")
	}
	if _, err := MintPendingToken(cfg, time.Now(), time.Minute, PendingTokenPayload{Kind: enums.ActorKindCustomer, FlowID: "f"}); err == nil {
		t.Fatal("expected missing email error")
	}
}

func TestParsePendingTokenAllowExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintPendingToken(cfg, time.Now().Add(-time.Hour), 10*time.Minute, PendingTokenPayload{
		Email:  "clerk@luxe.test",
		Kind:   enums.ActorKindEmployee,
		FlowID: "flow-2",
	})
	if err != nil {
		t.Fatalf("mint pending token: %v", err)
	}

	if _, err := ParsePendingToken(cfg, token); err == nil {
		t.Fatal("expected expired pending token to fail strict parsing")
	}
	claims, err := ParsePendingTokenAllowExpired(cfg, token)
	if err != nil {
		t.Fatalf("parse expired pending token: %v", err)
	}
	if claims.FlowID != "flow-2" {
		t.Fatalf("unexpected flow id %q", claims.FlowID)
	}

	other := testJWTConfig()
	other.Secret = "another-secret"
	if _, err := ParsePendingTokenAllowExpired(other, token); err == nil {
		t.Fatal("expected signature check to still apply")
	}
}
