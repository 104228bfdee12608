package auth

import (
	"context"
	"sync"
)

// FlowStore keeps pending verifications keyed by email. Lock serializes
// transitions for one email; the returned func releases it.
type FlowStore interface {
	Load(ctx context.Context, email string) (*Flow, bool, error)
	Save(ctx context.Context, flow *Flow) error
	Lock(ctx context.Context, email string) (func(), error)
}

// MemoryFlowStore is a process-local FlowStore. Expired flows are filtered by the issuer.
type MemoryFlowStore struct {
	mu    sync.RWMutex
	flows map[string]Flow
	locks keyedMutex
}

func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{flows: make(map[string]Flow)}
}

func (s *MemoryFlowStore) Load(_ context.Context, email string) (*Flow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flow, ok := s.flows[email]
	if !ok {
		return nil, false, nil
	}
	return &flow, true, nil
}

func (s *MemoryFlowStore) Save(_ context.Context, flow *Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.Email] = *flow
	return nil
}

func (s *MemoryFlowStore) Lock(_ context.Context, email string) (func(), error) {
	return s.locks.lock(email), nil
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
