// Package claim settles the payout of a worthy wish.
package claim

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	svcerrors "github.com/rub-lamp/oracle_layer/internal/errors"
	"github.com/rub-lamp/oracle_layer/internal/locks"
	"github.com/rub-lamp/oracle_layer/internal/logging"
	"github.com/rub-lamp/oracle_layer/internal/metrics"
	"github.com/rub-lamp/oracle_layer/internal/settlement"
	"github.com/rub-lamp/oracle_layer/internal/store"
	hoardsvc "github.com/rub-lamp/oracle_layer/services/hoard"
)

const (
	ServiceID   = "claim"
	ServiceName = "Reward Claims"
	Version     = "1.0.0"
)

// DefaultLockTTL bounds how long one claim may hold its wish.
const DefaultLockTTL = 2 * time.Minute

var (
	ErrMissingFields     = errors.New("missing wishId or walletAddress")
	ErrNotEligible       = errors.New("wish not found or not eligible for claim")
	ErrClaimInProgress   = errors.New("claim already in progress")
	ErrNoPayout          = errors.New("no payout amount for this wish")
	ErrNotConfigured     = errors.New("token transfer not configured")
	ErrSettlementFailed  = errors.New("transaction failed after multiple attempts")
	ErrRecipientAccount  = errors.New("recipient token account failed")
	ErrTreasuryNotFunded = errors.New("treasury not funded")
)

// Store is the persistence the claim flow needs.
type Store interface {
	store.WishStore
	store.AdminLogStore
}

// HoardLedger records granted payouts against the hoard account.
type HoardLedger interface {
	Grant(ctx context.Context, amount uint64, score int) (hoardsvc.GrantResult, error)
}

// Feed receives claimed wishes for the realtime ledger.
type Feed interface {
	Publish(event string, w store.Wish) int
}

// Request asks for the payout of a wish.
type Request struct {
	WishID        string
	WalletAddress string
}

// Result is a successful claim.
type Result struct {
	Success        bool   `json:"success"`
	TxSignature    string `json:"tx_signature"`
	AlreadyClaimed bool   `json:"already_claimed,omitempty"`
	Amount         uint64 `json:"amount,omitempty"`
}

// Config configures the claim service. A nil Driver leaves transfers unconfigured.
type Config struct {
	Store   Store
	Locks   locks.Locker
	Driver  settlement.SettlementDriver
	Hoard   HoardLedger
	Feed    Feed
	LockTTL time.Duration
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// Service implements reward claims.
type Service struct {
	store   Store
	locks   locks.Locker
	driver  settlement.SettlementDriver
	hoard   HoardLedger
	feed    Feed
	lockTTL time.Duration
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// New creates the claim service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("claim: store is required")
	}
	if cfg.Locks == nil {
		cfg.Locks = locks.NewMemory()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscard(ServiceID)
	}
	return &Service{
		store:   cfg.Store,
		locks:   cfg.Locks,
		driver:  cfg.Driver,
		hoard:   cfg.Hoard,
		feed:    cfg.Feed,
		lockTTL: cfg.LockTTL,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// Claim pays out a worthy wish once. Repeated claims return the recorded signature.
func (s *Service) Claim(ctx context.Context, req Request) (*Result, error) {
	req.WishID = strings.TrimSpace(req.WishID)
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	if req.WishID == "" || req.WalletAddress == "" {
		s.outcome("invalid")
		return nil, ErrMissingFields
	}
	ctx = logging.WithWallet(ctx, req.WalletAddress)
	log := s.logger.WithContext(ctx).WithField("wish_id", req.WishID)

	wish, err := s.eligibleWish(ctx, req)
	if err != nil {
		return nil, err
	}
	if wish.Claimed() {
		s.outcome("already_claimed")
		return &Result{Success: true, TxSignature: *wish.TxSignature, AlreadyClaimed: true}, nil
	}

	lease, err := s.locks.Acquire(ctx, "claim:"+req.WishID, s.lockTTL)
	if errors.Is(err, locks.ErrHeld) {
		s.outcome("in_progress")
		return nil, ErrClaimInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("acquire claim lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			log.WithError(err).Warn("release claim lock")
		}
	}()

	// Re-read under the lock; another instance may have settled it.
	if wish, err = s.eligibleWish(ctx, req); err != nil {
		return nil, err
	}
	if wish.Claimed() {
		s.outcome("already_claimed")
		return &Result{Success: true, TxSignature: *wish.TxSignature, AlreadyClaimed: true}, nil
	}

	amount := wish.Amount()
	if amount == 0 {
		s.outcome("no_payout")
		return nil, ErrNoPayout
	}
	if s.driver == nil {
		s.outcome("not_configured")
		log.Error("claim rejected: no settlement driver configured")
		return nil, ErrNotConfigured
	}

	handle, err := s.driver.PrepareSettlement(ctx, settlement.SettlementRequest{
		WishID:    wish.ID,
		Recipient: wish.WalletAddress,
		Amount:    amount,
	})
	if err != nil {
		log.WithError(err).Error("prepare settlement")
		switch {
		case errors.Is(err, settlement.ErrTreasuryNotFunded):
			s.outcome("treasury_not_funded")
			return nil, fmt.Errorf("%w: %v", ErrTreasuryNotFunded, err)
		case errors.Is(err, settlement.ErrRecipientAccount):
			s.outcome("recipient_failed")
			return nil, fmt.Errorf("%w: %v", ErrRecipientAccount, err)
		default:
			s.outcome("failed")
			return nil, fmt.Errorf("prepare settlement: %w", err)
		}
	}

	result, err := s.driver.ExecuteSettlement(ctx, handle)
	if err != nil {
		s.outcome("failed")
		log.WithError(err).Error("settlement failed")
		if abortErr := s.driver.AbortSettlement(ctx, handle); abortErr != nil {
			log.WithError(abortErr).Warn("abort settlement")
		}
		return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	s.finish(ctx, wish, result)
	return &Result{Success: true, TxSignature: result.TxID, Amount: amount}, nil
}

func (s *Service) eligibleWish(ctx context.Context, req Request) (store.Wish, error) {
	wish, err := s.store.GetWish(ctx, req.WishID)
	if errors.Is(err, store.ErrNotFound) {
		s.outcome("not_found")
		return store.Wish{}, ErrNotEligible
	}
	if err != nil {
		return store.Wish{}, fmt.Errorf("load wish: %w", err)
	}
	if wish.WalletAddress != req.WalletAddress || wish.Verdict != store.VerdictWorthy {
		s.outcome("not_found")
		return store.Wish{}, ErrNotEligible
	}
	return wish, nil
}

// finish records a confirmed transfer. Bookkeeping failures are logged, never returned.
func (s *Service) finish(ctx context.Context, wish store.Wish, result *settlement.SettlementResult) {
	log := s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"wish_id":      wish.ID,
		"tx_signature": result.TxID,
		"attempts":     result.Attempts,
	})

	if err := s.store.SetWishSignature(ctx, wish.ID, result.TxID); err != nil {
		log.WithError(err).Error("record wish signature")
	}
	if err := s.store.AttachAdminLogSignature(ctx, wish.WalletAddress, result.TxID); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.WithError(err).Warn("record admin log signature")
	}
	if s.hoard != nil {
		if _, err := s.hoard.Grant(ctx, wish.Amount(), wish.Score); err != nil {
			log.WithError(err).Error("hoard rejected grant")
		}
	}

	var tier string
	if wish.PayoutTier != nil {
		tier = *wish.PayoutTier
	}
	if s.metrics != nil {
		s.metrics.RecordSettlement(tier, wish.Amount(), result.Attempts)
	}
	s.outcome("success")

	wish.TxSignature = &result.TxID
	if s.feed != nil {
		s.feed.Publish("CLAIMED", wish)
	}
	log.Info("reward claimed")
}

func (s *Service) outcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordClaim(outcome)
	}
}

// ToServiceError maps claim errors to their HTTP form.
func ToServiceError(err error) *svcerrors.ServiceError {
	switch {
	case errors.Is(err, ErrMissingFields):
		return svcerrors.BadRequest("Missing wishId or walletAddress")
	case errors.Is(err, ErrNotEligible):
		return svcerrors.New(svcerrors.CodeNotFound, "Wish not found or not eligible for claim", http.StatusNotFound)
	case errors.Is(err, ErrClaimInProgress):
		return svcerrors.Conflict("Claim already in progress. Please wait.")
	case errors.Is(err, ErrNoPayout):
		return svcerrors.BadRequest("No payout amount for this wish")
	case errors.Is(err, ErrNotConfigured):
		return svcerrors.New(svcerrors.CodeNotConfigured, "Token transfer not configured", http.StatusInternalServerError)
	case errors.Is(err, ErrTreasuryNotFunded):
		return svcerrors.Wrap(err, svcerrors.CodeTreasuryNotFunded,
			"Treasury not funded. The lamp needs oil (tokens) before it can grant wishes.", http.StatusServiceUnavailable)
	case errors.Is(err, ErrRecipientAccount):
		return svcerrors.Wrap(err, svcerrors.CodeRecipientAccount,
			"Failed to create token account for your wallet. Please try again.", http.StatusInternalServerError)
	case errors.Is(err, ErrSettlementFailed):
		return svcerrors.Wrap(err, svcerrors.CodeSettlementFailed,
			"Transaction failed after multiple attempts. Please try again.", http.StatusInternalServerError).
			WithDetails("retryable", true)
	default:
		return svcerrors.Internal("Transfer failed", err)
	}
}
