package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/luxeledger/inventory-backend/pkg/enums"
	pkgerrors "github.com/luxeledger/inventory-backend/pkg/errors"
	"github.com/luxeledger/inventory-backend/pkg/logger"
	"github.com/luxeledger/inventory-backend/pkg/metrics"
	"github.com/luxeledger/inventory-backend/pkg/types"
	"go.uber.org/multierr"
)

// Service exposes the inventory ledger to the HTTP layer.
type Service interface {
	AppendRecord(ctx context.Context, req AppendRecordRequest) (*BlockDTO, error)
	ListInventory(ctx context.Context) ([]BlockDTO, error)
	Sell(ctx context.Context, uid uint64, req SellRequest) (*BlockDTO, error)
	Reserve(ctx context.Context, uid uint64, req ReserveRequest) (*BlockDTO, error)
	History(ctx context.Context, uid uint64) ([]BlockDTO, error)
	Verify(ctx context.Context) (*VerifyReport, error)
}

type service struct {
	store   *Store
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// ServiceParams bundles the dependencies required to build a ledger service.
type ServiceParams struct {
	Store   *Store
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
	Clock   func() time.Time
}

// NewService wires a ledger service around an already hydrated store.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		store:   params.Store,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     clock,
	}, nil
}

func (s *service) AppendRecord(ctx context.Context, req AppendRecordRequest) (*BlockDTO, error) {
	brand := strings.TrimSpace(req.Brand)
	if IsSentinelBrand(brand) {
		s.metrics.IncFailure("invalid")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "brand name is reserved").
			WithDetails(map[string]any{"brand": "must not contain \"genesis\""})
	}
	status := req.Status
	if status == "" {
		status = enums.ItemStatusAvailable
	}

	block := Block{
		Brand:     brand,
		ItemName:  strings.TrimSpace(req.ItemName),
		Price:     req.Price,
		Status:    status,
		CreatedAt: s.now(),
	}

	var (
		appended Block
		err      error
	)
	if req.UID != nil {
		block.UID = *req.UID
		appended, err = s.store.Append(ctx, block)
	} else {
		appended, err = s.store.AppendNext(ctx, block)
	}
	if err != nil {
		return nil, s.fail(ctx, "append record", err)
	}

	s.recorded(ctx, appended)
	dto := FromBlock(appended)
	return &dto, nil
}

func (s *service) ListInventory(ctx context.Context) ([]BlockDTO, error) {
	blocks, err := Flatten(s.store)
	if err != nil {
		return nil, s.fail(ctx, "list inventory", err)
	}
	return fromBlocks(blocks), nil
}

func (s *service) Sell(ctx context.Context, uid uint64, req SellRequest) (*BlockDTO, error) {
	email := types.NormalizeEmail(req.CustomerEmail)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	at := s.now()

	sold, err := s.store.Supersede(ctx, uid, func(prev Block) (Block, error) {
		if prev.Status.IsFinal() {
			return Block{}, fmt.Errorf("%w: uid %d is already sold", ErrStatusChange, prev.UID)
		}
		return Block{
			ItemName:      prev.ItemName,
			Price:         prev.Price,
			Status:        enums.ItemStatusSold,
			CreatedAt:     at,
			CustomerEmail: email,
		}, nil
	})
	if err != nil {
		return nil, s.fail(ctx, "sell item", err)
	}

	s.recorded(ctx, sold)
	dto := FromBlock(sold)
	return &dto, nil
}

func (s *service) Reserve(ctx context.Context, uid uint64, req ReserveRequest) (*BlockDTO, error) {
	at := s.now()
	if !req.ReservedUntil.After(at) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation must end in the future").
			WithDetails(map[string]any{"reserved_until": "must be after now"})
	}
	until := req.ReservedUntil

	reserved, err := s.store.Supersede(ctx, uid, func(prev Block) (Block, error) {
		if prev.Status.IsFinal() {
			return Block{}, fmt.Errorf("%w: uid %d is already sold", ErrStatusChange, prev.UID)
		}
		return Block{
			ItemName:      prev.ItemName,
			Price:         prev.Price,
			Status:        enums.ItemStatusReserved,
			CreatedAt:     at,
			ReservedUntil: &until,
		}, nil
	})
	if err != nil {
		return nil, s.fail(ctx, "reserve item", err)
	}

	s.recorded(ctx, reserved)
	dto := FromBlock(reserved)
	return &dto, nil
}

// History returns every block of uid's lineage, newest first.
func (s *service) History(ctx context.Context, uid uint64) ([]BlockDTO, error) {
	b, ok := s.store.Get(uid)
	if !ok || b.IsSentinel() {
		return nil, s.fail(ctx, "item history", fmt.Errorf("%w: uid %d", ErrNotFound, uid))
	}

	latest := uid
	seen := map[uint64]struct{}{uid: {}}
	for {
		next, ok := s.store.SupersededBy(latest)
		if !ok {
			break
		}
		if _, dup := seen[next]; dup {
			return nil, s.fail(ctx, "item history", fmt.Errorf("%w: lineage of uid %d loops at %d", ErrCyclicChain, uid, next))
		}
		seen[next] = struct{}{}
		latest = next
	}

	var lineage []Block
	visited := map[uint64]struct{}{}
	cur, ok := s.store.Get(latest)
	for ok {
		if _, dup := visited[cur.UID]; dup {
			return nil, s.fail(ctx, "item history", fmt.Errorf("%w: lineage of uid %d loops at %d", ErrCyclicChain, uid, cur.UID))
		}
		visited[cur.UID] = struct{}{}
		lineage = append(lineage, cur)
		if !cur.HasSupersedes {
			break
		}
		cur, ok = s.store.Get(cur.Supersedes)
	}
	return fromBlocks(lineage), nil
}

func (s *service) Verify(ctx context.Context) (*VerifyReport, error) {
	problems := s.store.Audit()
	report := &VerifyReport{Valid: len(problems) == 0, Records: s.store.Len()}
	if report.Valid {
		return report, nil
	}
	for _, problem := range problems {
		report.Problems = append(report.Problems, problem.Error())
	}
	s.metrics.IncFailure("tampered")
	s.logg.Error(s.logg.WithField(ctx, "problems", len(problems)), "ledger verification failed", fmt.Errorf("%w: %w", ErrTampered, multierr.Combine(problems...)))
	return report, nil
}

func (s *service) recorded(ctx context.Context, b Block) {
	s.metrics.IncAppend(string(b.Status))
	s.metrics.SetRecords(s.store.Len())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"uid":    b.UID,
		"brand":  b.Brand,
		"status": b.Status,
	}), "ledger block appended")
}

func (s *service) fail(ctx context.Context, op string, err error) error {
	reason, mapped := classify(op, err)
	s.metrics.IncFailure(reason)
	if code := pkgerrors.CodeOf(mapped); code == pkgerrors.CodeIntegrity || code == pkgerrors.CodeDependency {
		s.logg.Error(s.logg.WithField(ctx, "op", op), "ledger operation failed", err)
	}
	return mapped
}

// classify maps ledger sentinels onto API error codes, keeping the sentinel in the chain.
func classify(op string, err error) (string, error) {
	switch {
	case errors.Is(err, ErrDuplicateUID):
		return "duplicate_uid", pkgerrors.Wrap(pkgerrors.CodeConflict, err, "uid already recorded")
	case errors.Is(err, ErrCyclicChain):
		return "cyclic_chain", pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, op+": cyclic chain")
	case errors.Is(err, ErrBrokenChain):
		return "broken_chain", pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, op+": broken chain")
	case errors.Is(err, ErrInvalidBlock):
		return "invalid", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid record")
	case errors.Is(err, ErrNotFound):
		return "not_found", pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "item not found")
	case errors.Is(err, ErrSuperseded):
		return "superseded", pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "item has a newer record; act on the latest uid")
	case errors.Is(err, ErrStatusChange):
		return "status_change", pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "sold items cannot change status")
	default:
		return "persistence", pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+": ledger storage unavailable")
	}
}
