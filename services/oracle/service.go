// Package oracle judges wishes. A wish passes the cooldown, treasury buffer,
// hype breaker and duplicate checks before the judge scores it; worthy wishes
// are assigned a payout that the claim service settles later.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rub-lamp/oracle_layer/internal/guard"
	"github.com/rub-lamp/oracle_layer/internal/judge"
	"github.com/rub-lamp/oracle_layer/internal/logging"
	"github.com/rub-lamp/oracle_layer/internal/metrics"
	"github.com/rub-lamp/oracle_layer/internal/payout"
	"github.com/rub-lamp/oracle_layer/internal/store"
)

const (
	ServiceID   = "oracle"
	ServiceName = "Wish Oracle"
	Version     = "1.0.0"
)

const (
	// TestCode grants the fixed test payout.
	TestCode = "1919191919"
	// DevCode grants a jackpot.
	DevCode = "193675193675"

	TestMessage       = "Test mode activated. Claim to receive."
	DevMessage        = "The Oracle recognizes its creator."
	BufferMessage     = "The Hoard is nearly empty. The cycle must refill."
	BreakerMessage    = "⚠️ HEAT WARNING: Treasury Overheated. Cooldown Active."
	HighlanderMessage = "There can be only one. This wish has already been granted."
	SleepingMessage   = "The Oracle sleeps. Your wish goes unheard."

	DefaultJudgeTimeout = 30 * time.Second
	highlanderWarmLimit = 1000
)

var (
	ErrInvalidWish   = errors.New("missing or invalid wish")
	ErrInvalidWallet = errors.New("missing or invalid wallet address")
	// ErrJudgeUnavailable wraps failures of the judge backend.
	ErrJudgeUnavailable = errors.New("judge unavailable")
)

// Store is the persistence the oracle needs.
type Store interface {
	store.WishStore
	store.AdminLogStore
}

// BalanceSource reports the live treasury balance; zero means unknown.
type BalanceSource interface {
	Balance(ctx context.Context) (float64, error)
}

// Feed receives worthy wishes for the realtime ledger.
type Feed interface {
	Publish(event string, w store.Wish) int
}

// Request is a wish submitted for judgment.
type Request struct {
	Wish          string
	WalletAddress string
	IPAddress     string
}

// Response is the oracle's answer.
type Response struct {
	Verdict           string  `json:"verdict"`
	Score             int     `json:"score"`
	Message           string  `json:"message"`
	PayoutAmount      *uint64 `json:"payout_amount"`
	PayoutTier        *string `json:"payout_tier"`
	IsJackpot         bool    `json:"is_jackpot"`
	WishID            *string `json:"wish_id,omitempty"`
	CooldownRemaining *int64  `json:"cooldown_remaining,omitempty"`
	Error             string  `json:"error,omitempty"`
}

// Config configures the oracle service. Zero guards take their defaults.
type Config struct {
	Store           Store
	Judge           judge.Judge
	Treasury        BalanceSource
	Feed            Feed
	Calculator      *payout.Calculator
	Cooldown        *guard.Cooldown
	Buffer          *guard.Buffer
	Breaker         *guard.HypeBreaker
	Highlander      *guard.Highlander
	WorthyThreshold int
	JudgeTimeout    time.Duration
	Metrics         *metrics.Metrics
	Logger          *logging.Logger
}

// Service implements the wish oracle.
type Service struct {
	store      Store
	judge      judge.Judge
	treasury   BalanceSource
	feed       Feed
	calc       *payout.Calculator
	cooldown   *guard.Cooldown
	buffer     guard.Buffer
	breaker    *guard.HypeBreaker
	highlander *guard.Highlander
	threshold  int
	timeout    time.Duration
	metrics    *metrics.Metrics
	logger     *logging.Logger
	now        func() time.Time
}

// New creates the oracle service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("oracle: store is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("oracle: judge is required")
	}
	if cfg.Calculator == nil {
		cfg.Calculator = payout.NewCalculator()
	}
	if cfg.Cooldown == nil {
		cfg.Cooldown = guard.NewCooldown()
	}
	if cfg.Buffer == nil {
		cfg.Buffer = &guard.Buffer{Minimum: payout.TreasuryMinimum}
	}
	if cfg.Breaker == nil {
		cfg.Breaker = guard.NewHypeBreaker()
	}
	if cfg.Highlander == nil {
		cfg.Highlander = guard.NewHighlander()
	}
	if cfg.WorthyThreshold <= 0 {
		cfg.WorthyThreshold = payout.WorthyThreshold
	}
	if cfg.JudgeTimeout <= 0 {
		cfg.JudgeTimeout = DefaultJudgeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscard(ServiceID)
	}
	return &Service{
		store:      cfg.Store,
		judge:      cfg.Judge,
		treasury:   cfg.Treasury,
		feed:       cfg.Feed,
		calc:       cfg.Calculator,
		cooldown:   cfg.Cooldown,
		buffer:     *cfg.Buffer,
		breaker:    cfg.Breaker,
		highlander: cfg.Highlander,
		threshold:  cfg.WorthyThreshold,
		timeout:    cfg.JudgeTimeout,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		now:        time.Now,
	}, nil
}

// WarmHighlander loads past winners so duplicates are caught after a restart.
func (s *Service) WarmHighlander(ctx context.Context) error {
	winners, err := s.store.RecentWinnerTexts(ctx, highlanderWarmLimit)
	if err != nil {
		return fmt.Errorf("load winners: %w", err)
	}
	s.highlander.Remember(winners...)
	s.logger.WithContext(ctx).WithField("winners", s.highlander.Len()).Info("highlander memory loaded")
	return nil
}

// Validate checks a request before any guard runs.
func Validate(req Request) error {
	if strings.TrimSpace(req.Wish) == "" {
		return ErrInvalidWish
	}
	if _, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.WalletAddress)); err != nil {
		return ErrInvalidWallet
	}
	return nil
}

// Judge runs a wish through the guards and the judge.
func (s *Service) Judge(ctx context.Context, req Request) (*Response, error) {
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	if err := Validate(req); err != nil {
		return nil, err
	}
	ctx = logging.WithWallet(ctx, req.WalletAddress)
	log := s.logger.WithContext(ctx)
	now := s.now()

	// Cooldown per wallet, and per IP when one is known.
	if remaining := s.cooldownRemaining(ctx, req, now); remaining > 0 {
		s.rejected("cooldown")
		ms := remaining.Milliseconds()
		log.WithField("remaining_ms", ms).Info("cooldown active")
		return &Response{
			Verdict:           store.VerdictUnworthy,
			Message:           guard.CooldownMessage(remaining),
			CooldownRemaining: &ms,
		}, nil
	}

	switch strings.TrimSpace(req.Wish) {
	case TestCode:
		log.Info("test code redeemed")
		return s.grant(ctx, req, 50, s.calc.Test(), TestMessage,
			store.JSON{"test_mode": true, "code": TestCode}), nil
	case DevCode:
		log.Info("dev code redeemed")
		p, _ := s.calc.Calculate(99)
		return s.grant(ctx, req, 99, p, DevMessage,
			store.JSON{"dev_mode": true, "code": DevCode}), nil
	}

	if s.treasury != nil {
		balance, err := s.treasury.Balance(ctx)
		if err != nil {
			log.WithError(err).Warn("treasury balance unavailable")
		}
		if s.buffer.Tripped(balance) {
			s.rejected("buffer")
			log.WithField("treasury_balance", balance).Warn("treasury buffer tripped")
			return s.reject(ctx, req, BufferMessage,
				store.JSON{"buffer_triggered": true, "treasury_balance": balance}), nil
		}
	}

	if status := s.breakerStatus(ctx, now); status.Active {
		s.rejected("breaker")
		remainingSec := int64((status.Remaining(now) + time.Second - 1) / time.Second)
		log.WithField("remaining_sec", remainingSec).Warn("hype breaker active")
		return s.reject(ctx, req, BreakerMessage,
			store.JSON{"circuit_breaker_triggered": true, "remaining_sec": remainingSec}), nil
	}

	winners, err := s.store.RecentWinnerTexts(ctx, judge.HistoryLimit)
	if err != nil {
		log.WithError(err).Warn("load recent winners")
	}
	s.highlander.Remember(winners...)
	if !s.highlander.IsOriginal(req.Wish) {
		s.rejected("highlander")
		log.Info("duplicate of a past winner")
		return s.reject(ctx, req, HighlanderMessage, store.JSON{"highlander": true}), nil
	}

	j, err := s.callJudge(ctx, req.Wish, winners)
	if err != nil {
		log.WithError(err).Error("judge failed")
		return nil, fmt.Errorf("%w: %v", ErrJudgeUnavailable, err)
	}

	score := clampScore(j.Score)
	verdict := judge.Decide(judge.Judgment{Verdict: j.Verdict, Score: score}, s.threshold)
	message := j.Message
	if message == "" {
		message = judge.DefaultMessage
	}
	raw := store.JSON{
		"content":  j.Raw,
		"judgment": map[string]interface{}{"verdict": j.Verdict, "score": j.ModelScore(), "message": j.Message},
		"judge":    s.judge.Name(),
	}

	if verdict == store.VerdictWorthy {
		if p, ok := s.calc.Calculate(score); ok {
			return s.grant(ctx, req, score, p, message, raw), nil
		}
	}
	return s.record(ctx, req, store.VerdictUnworthy, score, nil, message, raw), nil
}

func (s *Service) cooldownRemaining(ctx context.Context, req Request, now time.Time) time.Duration {
	since := s.cooldown.Since(now)
	latest := make([]time.Time, 0, 2)

	if t, ok, err := s.store.LatestWishByWallet(ctx, req.WalletAddress, since); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("wallet cooldown lookup")
	} else if ok {
		latest = append(latest, t)
	}
	if req.IPAddress != "" {
		if t, ok, err := s.store.LatestWishByIP(ctx, req.IPAddress, since); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("ip cooldown lookup")
		} else if ok {
			latest = append(latest, t)
		}
	}
	return s.cooldown.Remaining(now, latest...)
}

func (s *Service) breakerStatus(ctx context.Context, now time.Time) guard.BreakerStatus {
	wishes, err := s.store.PayoutsSince(ctx, s.breaker.Since(now))
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("breaker lookup")
		return guard.BreakerStatus{}
	}
	events := make([]guard.PayoutEvent, 0, len(wishes))
	for _, w := range wishes {
		events = append(events, guard.PayoutEvent{Amount: w.Amount(), CreatedAt: w.CreatedAt})
	}
	return s.breaker.Check(now, events)
}

func (s *Service) callJudge(ctx context.Context, wish string, winners []string) (judge.Judgment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	j, err := s.judge.Judge(ctx, wish, winners)
	if s.metrics != nil {
		s.metrics.RecordJudgeCall(s.judge.Name(), time.Since(start), err)
	}
	return j, err
}

func (s *Service) grant(ctx context.Context, req Request, score int, p *payout.Payout, message string, raw store.JSON) *Response {
	resp := s.record(ctx, req, store.VerdictWorthy, score, p, message, raw)
	s.highlander.Remember(req.Wish)
	return resp
}

func (s *Service) reject(ctx context.Context, req Request, message string, raw store.JSON) *Response {
	return s.record(ctx, req, store.VerdictUnworthy, 0, nil, message, raw)
}

// record persists the wish and its admin log. Storage failures are logged and
// the verdict is still returned, without a wish id.
func (s *Service) record(ctx context.Context, req Request, verdict string, score int, p *payout.Payout, message string, raw store.JSON) *Response {
	log := s.logger.WithContext(ctx)
	resp := &Response{Verdict: verdict, Score: score, Message: message}

	wish := store.Wish{
		WalletAddress: req.WalletAddress,
		WishText:      req.Wish,
		IPAddress:     req.IPAddress,
		Verdict:       verdict,
		Score:         score,
		CreatedAt:     s.now().UTC(),
	}
	var tier string
	if p != nil {
		tier = string(p.Tier)
		wish.PayoutAmount = store.Uint64Ptr(p.Amount)
		wish.PayoutTier = store.StringPtr(tier)
		wish.IsJackpot = p.IsJackpot
		resp.PayoutAmount = wish.PayoutAmount
		resp.PayoutTier = wish.PayoutTier
		resp.IsJackpot = p.IsJackpot
	}

	saved, err := s.store.CreateWish(ctx, wish)
	if err != nil {
		log.WithError(err).Error("save wish")
	} else {
		resp.WishID = &saved.ID
	}

	entry := store.AdminWishLog{
		WishText:      req.Wish,
		WalletAddress: req.WalletAddress,
		IPAddress:     req.IPAddress,
		Score:         score,
		Verdict:       verdict,
		PayoutTier:    wish.PayoutTier,
		PayoutAmount:  wish.PayoutAmount,
		RawAIResponse: raw,
		CreatedAt:     wish.CreatedAt,
	}
	if _, err := s.store.InsertAdminLog(ctx, entry); err != nil {
		log.WithError(err).Error("save admin wish log")
	}

	if s.metrics != nil {
		s.metrics.RecordJudgment(verdict, tier)
	}
	log.WithFields(map[string]interface{}{
		"verdict": verdict,
		"score":   score,
		"tier":    tier,
	}).Info("wish judged")

	if verdict == store.VerdictWorthy && err == nil && s.feed != nil {
		s.feed.Publish(store.VerdictWorthy, saved)
	}
	return resp
}

func (s *Service) rejected(guardName string) {
	if s.metrics != nil {
		s.metrics.RecordGuardRejection(guardName)
	}
}

// AdminLogs returns the newest private wish logs.
func (s *Service) AdminLogs(ctx context.Context, limit int) ([]store.AdminWishLog, error) {
	return s.store.ListAdminLogs(ctx, limit)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > payout.MaxScore {
		return payout.MaxScore
	}
	return score
}
