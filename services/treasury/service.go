// Package treasury reports the reward treasury and network statistics.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rub-lamp/oracle_layer/internal/chain"
	"github.com/rub-lamp/oracle_layer/internal/logging"
	"github.com/rub-lamp/oracle_layer/internal/metrics"
	"github.com/rub-lamp/oracle_layer/internal/payout"
)

const (
	ServiceID   = "treasury"
	ServiceName = "Treasury Stats"
	Version     = "1.0.0"
)

const (
	DefaultCacheTTL = 10 * time.Second
	DefaultSymbol   = "RUB"
	NotConfigured   = "NOT_CONFIGURED"

	fallbackBalance  = 120_000_000
	fallbackSupply   = 1_000_000_000
	fallbackPercent  = 12.0
	fallbackDecimals = 9
)

// ErrNoRPC is returned when no chain client is configured.
var ErrNoRPC = errors.New("solana rpc not configured")

// ChainReader is the subset of chain.Client the treasury reads.
type ChainReader interface {
	TokenSupply(ctx context.Context, mint solana.PublicKey) (uint64, uint8, error)
	TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
	Slot(ctx context.Context) (uint64, error)
	TPS(ctx context.Context) (uint64, error)
}

// Stats is the treasury snapshot served to clients.
type Stats struct {
	TreasuryBalance float64 `json:"treasuryBalance"`
	TotalSupply     float64 `json:"totalSupply"`
	Percentage      float64 `json:"percentage"`
	Decimals        uint8   `json:"decimals"`
	Symbol          string  `json:"symbol"`
	TokenMint       string  `json:"tokenMint,omitempty"`
	TreasuryWallet  string  `json:"treasuryWallet,omitempty"`
	IsLive          bool    `json:"isLive"`
	Error           string  `json:"error,omitempty"`
}

// FallbackStats returns the static figures served when nothing live is known.
func FallbackStats() Stats {
	return Stats{
		TreasuryBalance: fallbackBalance,
		TotalSupply:     fallbackSupply,
		Percentage:      fallbackPercent,
		Decimals:        fallbackDecimals,
		Symbol:          DefaultSymbol,
		TokenMint:       NotConfigured,
		TreasuryWallet:  NotConfigured,
	}
}

// NetworkStats holds the current slot and throughput. Unknown values are nil.
type NetworkStats struct {
	Slot  *uint64 `json:"slot"`
	TPS   *uint64 `json:"tps"`
	Error string  `json:"error,omitempty"`
}

// Config configures the treasury service.
type Config struct {
	Chain          ChainReader
	TokenMint      string
	TreasuryWallet string
	Symbol         string
	CacheTTL       time.Duration
	Metrics        *metrics.Metrics
	Logger         *logging.Logger
}

type cacheEntry struct {
	stats Stats
	at    time.Time
}

// Service serves treasury statistics with a short-lived cache.
type Service struct {
	chain          ChainReader
	tokenMint      string
	treasuryWallet string
	symbol         string
	ttl            time.Duration
	metrics        *metrics.Metrics
	logger         *logging.Logger
	now            func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New creates the treasury service. A nil chain reader serves fallback values.
func New(cfg Config) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Symbol == "" {
		cfg.Symbol = DefaultSymbol
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscard(ServiceID)
	}
	return &Service{
		chain:          cfg.Chain,
		tokenMint:      cfg.TokenMint,
		treasuryWallet: cfg.TreasuryWallet,
		symbol:         cfg.Symbol,
		ttl:            cfg.CacheTTL,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		now:            time.Now,
		cache:          make(map[string]cacheEntry),
	}
}

// Stats returns treasury figures for mint and wallet, defaulting to the
// configured ones. Failures degrade to the last cached result or the static
// fallback; the returned error is informational.
func (s *Service) Stats(ctx context.Context, mint, wallet string) (Stats, error) {
	if mint == "" {
		mint = s.tokenMint
	}
	if wallet == "" {
		wallet = s.treasuryWallet
	}
	key := mint + "|" + wallet

	if cached, ok := s.cached(key, true); ok {
		return cached, nil
	}
	if mint == "" {
		return FallbackStats(), nil
	}

	stats, err := s.fetch(ctx, mint, wallet)
	if err != nil {
		log := s.logger.WithContext(ctx).WithError(err)
		if chain.IsRateLimited(err) {
			log.Warn("treasury rpc rate limited")
		} else {
			log.Error("fetch treasury stats")
		}
		if cached, ok := s.cached(key, false); ok {
			return cached, err
		}
		fb := FallbackStats()
		fb.TokenMint, fb.TreasuryWallet = "", ""
		fb.Error = "Failed to fetch treasury stats"
		return fb, err
	}

	if stats.TreasuryBalance > 0 {
		s.mu.Lock()
		s.cache[key] = cacheEntry{stats: stats, at: s.now()}
		s.mu.Unlock()
	}
	if s.metrics != nil {
		s.metrics.SetTreasuryBalance(stats.TreasuryBalance)
	}
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"balance":    stats.TreasuryBalance,
		"supply":     stats.TotalSupply,
		"percentage": stats.Percentage,
	}).Debug("treasury stats fetched")
	return stats, nil
}

func (s *Service) fetch(ctx context.Context, mint, wallet string) (Stats, error) {
	if s.chain == nil {
		return Stats{}, ErrNoRPC
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return Stats{}, fmt.Errorf("token mint %q: %w", mint, err)
	}

	rawSupply, decimals, err := s.chain.TokenSupply(ctx, mintKey)
	if err != nil {
		return Stats{}, err
	}
	supply := payout.FromBaseUnits(rawSupply, decimals)

	stats := Stats{
		Decimals:       decimals,
		Symbol:         s.symbol,
		TokenMint:      mint,
		TreasuryWallet: NotConfigured,
		IsLive:         true,
	}
	stats.TotalSupply, _ = supply.Float64()

	if wallet != "" {
		owner, err := solana.PublicKeyFromBase58(wallet)
		if err != nil {
			return Stats{}, fmt.Errorf("treasury wallet %q: %w", wallet, err)
		}
		rawBalance, err := s.chain.TokenBalance(ctx, owner, mintKey)
		if err != nil {
			return Stats{}, err
		}
		balance := payout.FromBaseUnits(rawBalance, decimals)
		stats.TreasuryBalance, _ = balance.Float64()
		stats.Percentage = payout.Percentage(balance, supply)
		stats.TreasuryWallet = wallet
	}
	return stats, nil
}

func (s *Service) cached(key string, freshOnly bool) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok {
		return Stats{}, false
	}
	if freshOnly && s.now().Sub(entry.at) >= s.ttl {
		return Stats{}, false
	}
	return entry.stats, true
}

// Balance returns the live treasury balance in whole tokens, or zero when it
// is not known.
func (s *Service) Balance(ctx context.Context) (float64, error) {
	stats, err := s.Stats(ctx, "", "")
	if !stats.IsLive {
		return 0, err
	}
	return stats.TreasuryBalance, nil
}

// Refresh drops the cached figures for the configured treasury and fetches them again.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	delete(s.cache, s.tokenMint+"|"+s.treasuryWallet)
	s.mu.Unlock()

	if s.tokenMint == "" {
		return nil
	}
	_, err := s.Stats(ctx, "", "")
	return err
}

// Network returns the current slot and TPS. Each value is nil when its call failed.
func (s *Service) Network(ctx context.Context) NetworkStats {
	var out NetworkStats
	if s.chain == nil {
		out.Error = "Failed to fetch Solana stats"
		return out
	}
	var failed bool
	if slot, err := s.chain.Slot(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("fetch slot")
		failed = true
	} else {
		out.Slot = &slot
	}
	if tps, err := s.chain.TPS(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("fetch tps")
		failed = true
	} else {
		out.TPS = &tps
	}
	if failed {
		out.Error = "Failed to fetch Solana stats"
	}
	return out
}
