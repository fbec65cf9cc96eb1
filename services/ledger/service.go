// Package ledger publishes the public record of granted wishes: live winners,
// the 24h legends board, the hall of the worthy and a realtime feed.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rub-lamp/oracle_layer/internal/logging"
	"github.com/rub-lamp/oracle_layer/internal/store"
)

const (
	ServiceID   = "ledger"
	ServiceName = "Winners Ledger"
	Version     = "1.0.0"
)

const (
	DefaultLiveLimit = 10
	MaxLiveLimit     = 50
	LegendsLimit     = 10
	LegendsWindow    = 24 * time.Hour
	MaxHallLimit     = 500
	// DefaultLiveDelay hides a claim from the live board until the claimer saw it first.
	DefaultLiveDelay = 6 * time.Second
)

// Winner is a claimed wish as shown publicly. The wallet is truncated.
type Winner struct {
	ID           string    `json:"id"`
	Wallet       string    `json:"wallet"`
	WishText     string    `json:"wish_text"`
	Score        int       `json:"score"`
	PayoutAmount uint64    `json:"payout_amount"`
	PayoutTier   string    `json:"payout_tier,omitempty"`
	IsJackpot    bool      `json:"is_jackpot"`
	TxSignature  string    `json:"tx_signature,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// WinnerFromWish converts a stored wish to its public form.
func WinnerFromWish(w store.Wish) Winner {
	out := Winner{
		ID:           w.ID,
		Wallet:       store.TruncateWallet(w.WalletAddress),
		WishText:     w.WishText,
		Score:        w.Score,
		PayoutAmount: w.Amount(),
		IsJackpot:    w.IsJackpot,
		CreatedAt:    w.CreatedAt,
	}
	if w.PayoutTier != nil {
		out.PayoutTier = *w.PayoutTier
	}
	if w.TxSignature != nil {
		out.TxSignature = *w.TxSignature
	}
	return out
}

// Config configures the ledger service.
type Config struct {
	Store     store.WishStore
	Logger    *logging.Logger
	LiveDelay time.Duration
}

// Service serves the winners ledger.
type Service struct {
	store     store.WishStore
	logger    *logging.Logger
	hub       *Hub
	liveDelay time.Duration
	now       func() time.Time
}

// New creates the ledger service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscard(ServiceID)
	}
	if cfg.LiveDelay <= 0 {
		cfg.LiveDelay = DefaultLiveDelay
	}
	return &Service{
		store:     cfg.Store,
		logger:    cfg.Logger,
		hub:       NewHub(cfg.Logger),
		liveDelay: cfg.LiveDelay,
		now:       time.Now,
	}, nil
}

// Hub returns the realtime feed.
func (s *Service) Hub() *Hub { return s.hub }

// Live returns the newest claimed winners, excluding claims younger than the live delay.
func (s *Service) Live(ctx context.Context, limit int) ([]Winner, error) {
	if limit <= 0 {
		limit = DefaultLiveLimit
	}
	if limit > MaxLiveLimit {
		limit = MaxLiveLimit
	}
	return s.list(ctx, store.WinnerQuery{
		Before: s.now().Add(-s.liveDelay),
		Limit:  limit,
	})
}

// Legends returns the largest payouts of the last 24 hours.
func (s *Service) Legends(ctx context.Context) ([]Winner, error) {
	return s.list(ctx, store.WinnerQuery{
		Since:    s.now().Add(-LegendsWindow),
		ByAmount: true,
		Limit:    LegendsLimit,
	})
}

// Hall returns every claimed winner by payout, largest first. A limit of zero
// returns up to MaxHallLimit entries.
func (s *Service) Hall(ctx context.Context, limit int) ([]Winner, error) {
	if limit <= 0 || limit > MaxHallLimit {
		limit = MaxHallLimit
	}
	return s.list(ctx, store.WinnerQuery{ByAmount: true, Limit: limit})
}

func (s *Service) list(ctx context.Context, q store.WinnerQuery) ([]Winner, error) {
	wishes, err := s.store.ListWinners(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	out := make([]Winner, 0, len(wishes))
	for _, w := range wishes {
		out = append(out, WinnerFromWish(w))
	}
	return out, nil
}

// Publish pushes a wish onto the realtime feed.
func (s *Service) Publish(event string, w store.Wish) int {
	n := s.hub.Broadcast(Event{Event: event, Topic: TopicWinners, Payload: WinnerFromWish(w)})
	s.logger.WithFields(map[string]interface{}{
		"event":       event,
		"wish_id":     w.ID,
		"subscribers": n,
	}).Debug("feed event published")
	return n
}

// Close disconnects feed subscribers.
func (s *Service) Close() { s.hub.Close() }
