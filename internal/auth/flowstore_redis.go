package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/luxeledger/inventory-backend/pkg/redis"
)

const (
	flowLockScope = "auth_flow"
	flowLockTTL   = 15 * time.Second
	flowLockWait  = 5 * time.Second
	flowLockPoll  = 25 * time.Millisecond
)

var errFlowLockTimeout = errors.New("timed out waiting for auth flow lock")

type redisFlowClient interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
	AuthFlowKey(email string) string
	LockKey(scope, id string) string
}

// RedisFlowStore shares pending verifications across API replicas. Records
// are JSON with a TTL matching the flow expiry.
type RedisFlowStore struct {
	client redisFlowClient
	now    func() time.Time
}

func NewRedisFlowStore(client *redisclient.Client) (*RedisFlowStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisFlowStore{client: client, now: time.Now}, nil
}

func (s *RedisFlowStore) Load(ctx context.Context, email string) (*Flow, bool, error) {
	raw, err := s.client.Get(ctx, s.client.AuthFlowKey(email))
	if err != nil {
		if redisclient.IsNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load auth flow: %w", err)
	}
	var flow Flow
	if err := json.Unmarshal([]byte(raw), &flow); err != nil {
		return nil, false, fmt.Errorf("decode auth flow: %w", err)
	}
	return &flow, true, nil
}

func (s *RedisFlowStore) Save(ctx context.Context, flow *Flow) error {
	key := s.client.AuthFlowKey(flow.Email)
	ttl := flow.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.client.Del(ctx, key)
	}
	payload, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("encode auth flow: %w", err)
	}
	if err := s.client.Set(ctx, key, payload, ttl); err != nil {
		return fmt.Errorf("save auth flow: %w", err)
	}
	return nil
}

func (s *RedisFlowStore) Lock(ctx context.Context, email string) (func(), error) {
	key := s.client.LockKey(flowLockScope, email)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, flowLockWait)
	defer cancel()
	for {
		ok, err := s.client.TryLock(waitCtx, key, token, flowLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire auth flow lock: %w", err)
		}
		if ok {
			return func() {
				// detached so a canceled request still releases the lock
				_ = s.client.Unlock(context.WithoutCancel(ctx), key, token)
			}, nil
		}
		select {
		case <-waitCtx.Done():
			return nil, errFlowLockTimeout
		case <-time.After(flowLockPoll):
		}
	}
}
