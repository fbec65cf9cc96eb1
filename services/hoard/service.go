// Package hoardsvc keeps the off-chain hoard account: it loads the persisted
// account, applies oracle instructions through the processor and saves the result.
package hoardsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rub-lamp/oracle_layer/internal/hoard"
	"github.com/rub-lamp/oracle_layer/internal/logging"
	"github.com/rub-lamp/oracle_layer/internal/metrics"
	"github.com/rub-lamp/oracle_layer/internal/store"
)

const (
	ServiceID   = "hoard"
	ServiceName = "Hoard Account"
	Version     = "1.0.0"
)

// ErrNoAuthority is returned when no hoard authority is configured.
var ErrNoAuthority = errors.New("hoard authority not configured")

// BalanceSource reports the live treasury balance in whole tokens.
type BalanceSource interface {
	Balance(ctx context.Context) (float64, error)
}

// Config configures the hoard service.
type Config struct {
	Store     store.HoardStore
	Authority solana.PublicKey
	Processor *hoard.Processor
	Treasury  BalanceSource
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
	AccountID string
}

// Service serializes read-modify-write cycles on the hoard account.
type Service struct {
	mu        sync.Mutex
	store     store.HoardStore
	authority solana.PublicKey
	processor *hoard.Processor
	treasury  BalanceSource
	metrics   *metrics.Metrics
	logger    *logging.Logger
	id        string
	now       func() time.Time
}

// Snapshot is the hoard account together with its derived figures.
type Snapshot struct {
	Hoard     hoard.Hoard
	UpdatedAt time.Time
}

// GrantResult is the outcome of recording a payout.
type GrantResult struct {
	Hoard hoard.Hoard
	// Instruction is the encoded GrantWish that was applied.
	Instruction []byte
}

// New creates the hoard service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("hoard: store is required")
	}
	if cfg.Processor == nil {
		cfg.Processor = hoard.NewProcessor()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscard(ServiceID)
	}
	if cfg.AccountID == "" {
		cfg.AccountID = store.DefaultHoardID
	}
	return &Service{
		store:     cfg.Store,
		authority: cfg.Authority,
		processor: cfg.Processor,
		treasury:  cfg.Treasury,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		id:        cfg.AccountID,
		now:       time.Now,
	}, nil
}

// Authority returns the configured hoard authority.
func (s *Service) Authority() solana.PublicKey { return s.authority }

// Load returns the current hoard. A missing account reads as uninitialized.
func (s *Service) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Initialize claims the hoard account for the configured authority.
func (s *Service) Initialize(ctx context.Context) (hoard.Hoard, error) {
	if s.authority.IsZero() {
		return hoard.Hoard{}, ErrNoAuthority
	}
	return s.apply(ctx, "initialize", func(h hoard.Hoard) (hoard.Hoard, error) {
		return s.processor.Initialize(h, s.authority)
	})
}

// EnsureInitialized initializes the hoard unless it already is.
func (s *Service) EnsureInitialized(ctx context.Context) (hoard.Hoard, error) {
	h, err := s.Initialize(ctx)
	if errors.Is(err, hoard.ErrAlreadyInitialized) {
		return h, nil
	}
	return h, err
}

// Refill adds amount tokens of oil to the reserve.
func (s *Service) Refill(ctx context.Context, amount uint64) (hoard.Hoard, error) {
	return s.apply(ctx, "refill_lamp", func(h hoard.Hoard) (hoard.Hoard, error) {
		return s.processor.Process(h, s.authority, hoard.RefillLamp{Amount: amount})
	})
}

// Grant records a payout of amount tokens for a wish scored score, signed by the authority.
func (s *Service) Grant(ctx context.Context, amount uint64, score int) (GrantResult, error) {
	if score < 0 || score > 255 {
		return GrantResult{}, fmt.Errorf("%w: %d", hoard.ErrInvalidScore, score)
	}
	ix := hoard.GrantWish{Amount: amount, Score: uint8(score)}
	data, err := hoard.EncodeInstruction(ix)
	if err != nil {
		return GrantResult{}, err
	}
	h, err := s.apply(ctx, "grant_wish", func(h hoard.Hoard) (hoard.Hoard, error) {
		return s.processor.ProcessData(h, s.authority, data)
	})
	if err != nil {
		return GrantResult{}, err
	}
	return GrantResult{Hoard: h, Instruction: data}, nil
}

// Reconcile sets the reserve to the live treasury balance, capped at the
// processor's hoard cap. An unknown (zero) balance leaves the hoard untouched.
func (s *Service) Reconcile(ctx context.Context) error {
	if s.treasury == nil {
		return nil
	}
	balance, err := s.treasury.Balance(ctx)
	if err != nil {
		return fmt.Errorf("treasury balance: %w", err)
	}
	if balance <= 0 {
		s.logger.WithContext(ctx).Debug("treasury balance unknown, skipping hoard reconcile")
		return nil
	}
	_, err = s.apply(ctx, "reconcile", func(h hoard.Hoard) (hoard.Hoard, error) {
		reserve := uint64(balance)
		if c := s.processor.Cap; c > 0 && reserve > c {
			s.logger.WithContext(ctx).WithFields(map[string]interface{}{
				"balance": reserve,
				"cap":     c,
			}).Warn("treasury balance above hoard cap, clamping reserve")
			reserve = c
		}
		h.Reserve = reserve
		return h, nil
	})
	return err
}

func (s *Service) apply(ctx context.Context, op string, fn func(hoard.Hoard) (hoard.Hoard, error)) (hoard.Hoard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load(ctx)
	if err != nil {
		return hoard.Hoard{}, err
	}
	next, err := fn(snap.Hoard)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("op", op).Warn("hoard instruction rejected")
		return snap.Hoard, err
	}
	if err := s.save(ctx, next); err != nil {
		return snap.Hoard, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"op":            op,
		"reserve":       next.Reserve,
		"total_payouts": next.State.TotalPayouts,
	}).Info("hoard updated")
	if s.metrics != nil {
		s.metrics.SetHoard(next.Reserve, next.State.TotalPayouts)
	}
	return next, nil
}

func (s *Service) load(ctx context.Context) (Snapshot, error) {
	rec, err := s.store.LoadHoard(ctx, s.id)
	if errors.Is(err, store.ErrNotFound) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load hoard: %w", err)
	}
	state, err := hoard.DecodeState(rec.State)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode hoard %s: %w", s.id, err)
	}
	return Snapshot{Hoard: hoard.Hoard{State: state, Reserve: rec.Reserve}, UpdatedAt: rec.UpdatedAt}, nil
}

func (s *Service) save(ctx context.Context, h hoard.Hoard) error {
	data, err := h.State.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode hoard: %w", err)
	}
	rec := store.HoardRecord{ID: s.id, State: data, Reserve: h.Reserve, UpdatedAt: s.now().UTC()}
	if err := s.store.SaveHoard(ctx, rec); err != nil {
		return fmt.Errorf("save hoard: %w", err)
	}
	return nil
}
