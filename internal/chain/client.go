// Package chain wraps the Solana JSON-RPC calls the oracle needs.
package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// RateLimitCode is the JSON-RPC error code returned when the node throttles us.
const RateLimitCode = -32429

// ErrRateLimited marks throttled RPC calls.
var ErrRateLimited = errors.New("rpc rate limited")

// Config holds connection settings for a Solana RPC endpoint.
type Config struct {
	RPCURL     string
	Commitment rpc.CommitmentType
	Timeout    time.Duration
}

// Client is a thin wrapper around the solana-go RPC client.
type Client struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	timeout    time.Duration
}

// NewClient creates a new Solana RPC client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{rpc: rpc.New(cfg.RPCURL), commitment: cfg.Commitment, timeout: cfg.Timeout}, nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.timeout)
}

// TokenSupply returns the raw supply and decimals of mint.
func (c *Client) TokenSupply(ctx context.Context, mint solana.PublicKey) (uint64, uint8, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	res, err := c.rpc.GetTokenSupply(ctx, mint, c.commitment)
	if err != nil {
		return 0, 0, wrapRPCError("getTokenSupply", err)
	}
	if res == nil || res.Value == nil {
		return 0, 0, fmt.Errorf("getTokenSupply: empty result")
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("getTokenSupply: parse amount %q: %w", res.Value.Amount, err)
	}
	return amount, res.Value.Decimals, nil
}

// TokenBalance sums the raw balance of every account owner holds for mint.
func (c *Client) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	res, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{Mint: mint.ToPointer()},
		&rpc.GetTokenAccountsOpts{Commitment: c.commitment, Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return 0, wrapRPCError("getTokenAccountsByOwner", err)
	}

	var total uint64
	for _, acc := range res.Value {
		if acc == nil || acc.Account.Data == nil {
			continue
		}
		amount, err := TokenAccountAmount(acc.Account.Data.GetBinary())
		if err != nil {
			return 0, fmt.Errorf("token account %s: %w", acc.Pubkey, err)
		}
		if total > math.MaxUint64-amount {
			return 0, fmt.Errorf("token balance overflow")
		}
		total += amount
	}
	return total, nil
}

// TokenAccountAmount reads the amount field of an SPL token account.
// The layout is mint(32) owner(32) amount(u64 LE) and is shared by Token-2022.
func TokenAccountAmount(data []byte) (uint64, error) {
	if len(data) < 72 {
		return 0, fmt.Errorf("token account data too small: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint64(data[64:72]), nil
}

// Slot returns the current slot.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	slot, err := c.rpc.GetSlot(ctx, c.commitment)
	if err != nil {
		return 0, wrapRPCError("getSlot", err)
	}
	return slot, nil
}

// TPS returns transactions per second from the latest performance sample.
func (c *Client) TPS(ctx context.Context) (uint64, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	limit := uint(1)
	samples, err := c.rpc.GetRecentPerformanceSamples(ctx, &limit)
	if err != nil {
		return 0, wrapRPCError("getRecentPerformanceSamples", err)
	}
	if len(samples) == 0 || samples[0] == nil || samples[0].SamplePeriodSecs == 0 {
		return 0, nil
	}
	s := samples[0]
	return uint64(math.Round(float64(s.NumTransactions) / float64(s.SamplePeriodSecs))), nil
}

// LatestBlockhash returns a fresh blockhash for signing.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, wrapRPCError("getLatestBlockhash", err)
	}
	if res == nil || res.Value == nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash: empty result")
	}
	return res.Value.Blockhash, nil
}

// AccountExists reports whether account holds data on chain.
func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{Commitment: c.commitment})
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, wrapRPCError("getAccountInfo", err)
	}
	return res != nil && res.Value != nil, nil
}

// SendTransaction submits tx without preflight and without node side retries.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	maxRetries := uint(0)
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: c.commitment,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		return solana.Signature{}, wrapRPCError("sendTransaction", err)
	}
	return sig, nil
}

// SignatureStatus describes the on-chain state of a submitted transaction.
type SignatureStatus struct {
	Found     bool
	Confirmed bool
	Err       string
}

// SignatureStatus looks up sig.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (SignatureStatus, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	res, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return SignatureStatus{}, wrapRPCError("getSignatureStatuses", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return SignatureStatus{}, nil
	}
	st := res.Value[0]
	out := SignatureStatus{Found: true}
	if st.Err != nil {
		out.Err = fmt.Sprintf("%v", st.Err)
	}
	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		out.Confirmed = true
	}
	return out, nil
}

func wrapRPCError(method string, err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == RateLimitCode {
		return fmt.Errorf("%s: %w: %v", method, ErrRateLimited, err)
	}
	if strings.Contains(err.Error(), "429") {
		return fmt.Errorf("%s: %w: %v", method, ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", method, err)
}

// IsRateLimited reports whether err came from a throttled RPC call.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
