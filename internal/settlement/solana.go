// Package settlement pays granted wishes out of the treasury.
package settlement

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rub-lamp/oracle_layer/internal/chain"
	"github.com/rub-lamp/oracle_layer/internal/payout"
)

// RPC is the subset of chain.Client the Solana driver uses.
type RPC interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SignatureStatus(ctx context.Context, sig solana.Signature) (chain.SignatureStatus, error)
}

// SolanaConfig configures the Token-2022 transfer driver.
type SolanaConfig struct {
	Mint           solana.PublicKey
	Treasury       solana.PrivateKey
	Decimals       uint8
	PriorityFee    uint64
	Retry          RetryPolicy
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	MaxAmount      uint64
}

// SolanaDriver transfers reward tokens from the treasury token account.
type SolanaDriver struct {
	rpc    RPC
	cfg    SolanaConfig
	logger *logrus.Entry

	mu    sync.Mutex
	rnd   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewSolanaDriver creates a driver. Zero config values take the defaults.
func NewSolanaDriver(rpc RPC, cfg SolanaConfig, logger *logrus.Logger) (*SolanaDriver, error) {
	if rpc == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if cfg.Mint.IsZero() {
		return nil, fmt.Errorf("token mint is required")
	}
	if len(cfg.Treasury) == 0 {
		return nil, fmt.Errorf("treasury key is required")
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = payout.TokenDecimals
	}
	if cfg.PriorityFee == 0 {
		cfg.PriorityFee = chain.DefaultPriorityFeeMicro
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAmount == 0 {
		cfg.MaxAmount = payout.HoardCap
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SolanaDriver{
		rpc:    rpc,
		cfg:    cfg,
		logger: logger.WithField("component", "settlement"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
		now:    time.Now,
	}, nil
}

// TreasuryAccount returns the treasury wallet address.
func (d *SolanaDriver) TreasuryAccount() solana.PublicKey {
	return d.cfg.Treasury.PublicKey()
}

func (d *SolanaDriver) Capabilities() DriverCapabilities {
	return DriverCapabilities{MaxAmount: d.cfg.MaxAmount, Decimals: d.cfg.Decimals, SettlementType: DriverSolanaToken2022}
}

func (d *SolanaDriver) PrepareSettlement(ctx context.Context, req SettlementRequest) (*SettlementHandle, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if req.Amount > d.cfg.MaxAmount {
		return nil, fmt.Errorf("%w: %d", ErrAmountTooLarge, req.Amount)
	}

	treasury := d.cfg.Treasury.PublicKey()
	source, err := chain.AssociatedTokenAddress(treasury, d.cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTreasuryNotFunded, err)
	}
	exists, err := d.rpc.AccountExists(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTreasuryNotFunded, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: no token account %s", ErrTreasuryNotFunded, source)
	}

	recipient, err := solana.PublicKeyFromBase58(req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid wallet: %v", ErrRecipientAccount, err)
	}
	dest, err := chain.AssociatedTokenAddress(recipient, d.cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecipientAccount, err)
	}
	destExists, err := d.rpc.AccountExists(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecipientAccount, err)
	}

	return &SettlementHandle{
		ID:                 uuid.NewString(),
		WishID:             req.WishID,
		DriverType:         DriverSolanaToken2022,
		PreparedAt:         d.now(),
		Recipient:          req.Recipient,
		Amount:             req.Amount,
		RawAmount:          payout.ToBaseUnits(req.Amount, d.cfg.Decimals),
		SourceAccount:      source.String(),
		DestinationAccount: dest.String(),
		CreateDestination:  !destExists,
	}, nil
}

// ExecuteSettlement sends the transfer, retrying transient failures with a
// fresh blockhash each time.
func (d *SolanaDriver) ExecuteSettlement(ctx context.Context, h *SettlementHandle) (*SettlementResult, error) {
	if h == nil {
		return nil, fmt.Errorf("nil settlement handle")
	}
	instructions, err := d.instructions(h)
	if err != nil {
		return nil, err
	}

	log := d.logger.WithFields(logrus.Fields{"wish_id": h.WishID, "amount": h.Amount})
	var lastErr error
	for attempt := 1; attempt <= d.cfg.Retry.MaxAttempts; attempt++ {
		sig, err := d.attempt(ctx, instructions)
		if err == nil {
			log.WithFields(logrus.Fields{"attempt": attempt, "signature": sig.String()}).Info("Payout confirmed")
			return &SettlementResult{TxID: sig.String(), DriverType: DriverSolanaToken2022, FinalState: StateConfirmed, Attempts: attempt}, nil
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("Payout attempt failed")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryable(err) {
			break
		}
		if attempt < d.cfg.Retry.MaxAttempts {
			d.mu.Lock()
			delay := d.cfg.Retry.Delay(attempt, d.rnd)
			d.mu.Unlock()
			if err := d.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAttemptsExhausted, lastErr)
}

func (d *SolanaDriver) AbortSettlement(ctx context.Context, h *SettlementHandle) error {
	return nil
}

func (d *SolanaDriver) instructions(h *SettlementHandle) ([]solana.Instruction, error) {
	treasury := d.cfg.Treasury.PublicKey()
	source, err := solana.PublicKeyFromBase58(h.SourceAccount)
	if err != nil {
		return nil, fmt.Errorf("source account: %w", err)
	}
	dest, err := solana.PublicKeyFromBase58(h.DestinationAccount)
	if err != nil {
		return nil, fmt.Errorf("destination account: %w", err)
	}

	ixs := []solana.Instruction{chain.SetComputeUnitPrice(d.cfg.PriorityFee)}
	if h.CreateDestination {
		recipient, err := solana.PublicKeyFromBase58(h.Recipient)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRecipientAccount, err)
		}
		create, err := chain.CreateAssociatedTokenAccountIdempotent(treasury, recipient, d.cfg.Mint)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRecipientAccount, err)
		}
		ixs = append(ixs, create)
	}
	ixs = append(ixs, chain.TransferChecked(source, d.cfg.Mint, dest, treasury, h.RawAmount, d.cfg.Decimals))
	return ixs, nil
}

func (d *SolanaDriver) attempt(ctx context.Context, ixs []solana.Instruction) (solana.Signature, error) {
	blockhash, err := d.rpc.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	treasury := d.cfg.Treasury.PublicKey()
	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(treasury))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(treasury) {
			return &d.cfg.Treasury
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := d.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	return sig, d.confirm(ctx, sig)
}

func (d *SolanaDriver) confirm(ctx context.Context, sig solana.Signature) error {
	deadline := d.now().Add(d.cfg.ConfirmTimeout)
	for d.now().Before(deadline) {
		status, err := d.rpc.SignatureStatus(ctx, sig)
		if err != nil {
			return err
		}
		if status.Err != "" {
			return fmt.Errorf("transaction failed: %s", status.Err)
		}
		if status.Confirmed {
			return nil
		}
		if err := d.sleep(ctx, d.cfg.PollInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("transaction confirmation timeout - block height may have exceeded")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
