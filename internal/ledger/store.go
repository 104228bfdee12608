package ledger

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/luxeledger/inventory-backend/pkg/db"
	"github.com/luxeledger/inventory-backend/pkg/db/models"
	"go.uber.org/multierr"
)

// Persister durably records a block before the store links it in memory.
type Persister interface {
	Create(ctx context.Context, block *models.Block) error
}

// Loader returns every persisted block ordered by append position.
type Loader interface {
	ListAll(ctx context.Context) ([]models.Block, error)
}

// Store is an arena of blocks keyed by uid plus a head index per brand.
// All writes are serialized by mu; readers never see a half-linked block.
type Store struct {
	mu           sync.RWMutex
	blocks       map[uint64]Block
	heads        map[string]uint64
	brands       []string
	supersededBy map[uint64]uint64
	maxUID       uint64
	lastPosition int64

	persister Persister
	now       func() time.Time
}

// NewStore returns an empty store. A nil persister keeps the ledger in memory only.
func NewStore(persister Persister) *Store {
	return &Store{
		blocks:       make(map[uint64]Block),
		heads:        make(map[string]uint64),
		supersededBy: make(map[uint64]uint64),
		persister:    persister,
		now:          time.Now,
	}
}

// Append makes block the new head of its brand's chain. The uid must be unused
// across the whole store; on any failure the store is left untouched.
func (s *Store) Append(ctx context.Context, block Block) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ctx, block)
}

// AppendNext is Append with the uid allocated as one past the highest recorded uid.
func (s *Store) AppendNext(ctx context.Context, block Block) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block.UID = s.maxUID + 1
	return s.appendLocked(ctx, block)
}

// Supersede appends the block produced by change as the successor of uid.
// Only the latest block of a lineage can be superseded; change runs under the
// write lock so its checks cannot race with another status change.
func (s *Store) Supersede(ctx context.Context, uid uint64, change func(prev Block) (Block, error)) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.blocks[uid]
	if !ok || prev.IsSentinel() {
		return Block{}, fmt.Errorf("%w: uid %d", ErrNotFound, uid)
	}
	if next, done := s.supersededBy[uid]; done {
		return Block{}, fmt.Errorf("%w: uid %d replaced by %d", ErrSuperseded, uid, next)
	}

	next, err := change(prev)
	if err != nil {
		return Block{}, err
	}
	next.UID = s.maxUID + 1
	next.Brand = prev.Brand
	next.Supersedes, next.HasSupersedes = prev.UID, true
	return s.appendLocked(ctx, next)
}

func (s *Store) appendLocked(ctx context.Context, block Block) (Block, error) {
	if err := validateBlock(block); err != nil {
		return Block{}, err
	}
	if _, exists := s.blocks[block.UID]; exists {
		return Block{}, fmt.Errorf("%w: uid %d", ErrDuplicateUID, block.UID)
	}

	if block.CreatedAt.IsZero() {
		block.CreatedAt = s.now()
	}
	block.CreatedAt = normalizeTime(block.CreatedAt)
	if block.ReservedUntil != nil {
		until := normalizeTime(*block.ReservedUntil)
		block.ReservedUntil = &until
	}

	block.NextUID, block.HasNext, block.PrevHash = 0, false, ""
	if headUID, ok := s.heads[block.Brand]; ok {
		head := s.blocks[headUID]
		block.NextUID, block.HasNext = head.UID, true
		block.PrevHash = head.Hash
		if block.CreatedAt.Before(head.CreatedAt) {
			block.CreatedAt = head.CreatedAt
		}
	}
	block.position = s.lastPosition + 1
	block.Hash = block.ComputeHash()

	if s.persister != nil {
		if err := s.persister.Create(ctx, block.toModel()); err != nil {
			if db.IsUniqueViolation(err, "") {
				return Block{}, fmt.Errorf("%w: uid %d: %w", ErrDuplicateUID, block.UID, err)
			}
			return Block{}, fmt.Errorf("persist block %d: %w", block.UID, err)
		}
	}

	s.link(block)
	return block, nil
}

func (s *Store) link(block Block) {
	s.blocks[block.UID] = block
	if _, known := s.heads[block.Brand]; !known {
		s.brands = append(s.brands, block.Brand)
	}
	s.heads[block.Brand] = block.UID
	if block.HasSupersedes {
		s.supersededBy[block.Supersedes] = block.UID
	}
	if block.UID > s.maxUID {
		s.maxUID = block.UID
	}
	if block.position > s.lastPosition {
		s.lastPosition = block.position
	}
}

func validateBlock(b Block) error {
	var problems []string
	if b.UID == SentinelUID {
		problems = append(problems, "uid 0 is reserved")
	}
	if strings.TrimSpace(b.Brand) == "" {
		problems = append(problems, "brand is required")
	}
	if strings.TrimSpace(b.ItemName) == "" {
		problems = append(problems, "item name is required")
	}
	if b.Price < 0 {
		problems = append(problems, "price must not be negative")
	}
	if !b.Status.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown status %q", b.Status))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidBlock, strings.Join(problems, "; "))
	}
	return nil
}

// ChainHead returns the most recent block of brand. Unknown brands are not an error.
func (s *Store) ChainHead(brand string) (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uid, ok := s.heads[brand]
	if !ok {
		return Block{}, false
	}
	return s.blocks[uid], true
}

// AllBrands yields known brands in first-seen order. Each call starts from a
// fresh snapshot, so the sequence can be ranged over any number of times.
func (s *Store) AllBrands() iter.Seq[string] {
	return func(yield func(string) bool) {
		s.mu.RLock()
		brands := slices.Clone(s.brands)
		s.mu.RUnlock()
		for _, brand := range brands {
			if !yield(brand) {
				return
			}
		}
	}
}

// Get looks a block up by uid.
func (s *Store) Get(uid uint64) (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[uid]
	return b, ok
}

// SupersededBy returns the uid of the block that replaced uid, if any.
func (s *Store) SupersededBy(uid uint64) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	next, ok := s.supersededBy[uid]
	return next, ok
}

// Len returns the number of blocks held, sentinels included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// Hydrate replaces the in-memory state with the persisted ledger.
func (s *Store) Hydrate(ctx context.Context, loader Loader) error {
	rows, err := loader.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load blocks: %w", err)
	}

	fresh := NewStore(s.persister)
	for _, row := range rows {
		b := blockFromModel(row)
		if _, exists := fresh.blocks[b.UID]; exists {
			return fmt.Errorf("%w: uid %d loaded twice", ErrDuplicateUID, b.UID)
		}
		fresh.link(b)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = fresh.blocks
	s.heads = fresh.heads
	s.brands = fresh.brands
	s.supersededBy = fresh.supersededBy
	s.maxUID = fresh.maxUID
	s.lastPosition = fresh.lastPosition
	return nil
}

// Audit recomputes every hash and link and returns each problem found.
// A cycle or broken link ends the walk of that chain.
func (s *Store) Audit() []error {
	var problems []error
	for brand := range s.AllBrands() {
		var newer *Block
		err := walkChain(s, brand, func(b Block) error {
			if got := b.ComputeHash(); got != b.Hash {
				problems = append(problems, fmt.Errorf("uid %d: hash mismatch", b.UID))
			}
			if b.Brand != brand {
				problems = append(problems, fmt.Errorf("uid %d: brand %q found in chain %q", b.UID, b.Brand, brand))
			}
			if newer != nil && newer.PrevHash != b.Hash {
				problems = append(problems, fmt.Errorf("uid %d: prev hash does not match uid %d", newer.UID, b.UID))
			}
			if !b.HasNext && b.PrevHash != "" {
				problems = append(problems, fmt.Errorf("uid %d: tail block carries a prev hash", b.UID))
			}
			cur := b
			newer = &cur
			return nil
		})
		if err != nil {
			problems = append(problems, err)
		}
	}
	return problems
}

// Verify is Audit folded into a single error wrapping ErrTampered.
func (s *Store) Verify() error {
	problems := s.Audit()
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTampered, multierr.Combine(problems...))
}
