package settlement

import (
	"context"
	"errors"
	"time"
)

// SettlementDriver is the chain-agnostic port that pays out a granted wish.
// The claim service talks only to this interface.
type SettlementDriver interface {
	// PrepareSettlement resolves the token accounts involved in the payout.
	PrepareSettlement(ctx context.Context, req SettlementRequest) (*SettlementHandle, error)

	// ExecuteSettlement submits the transfer and waits for confirmation.
	ExecuteSettlement(ctx context.Context, handle *SettlementHandle) (*SettlementResult, error)

	// AbortSettlement releases anything held by a prepared settlement.
	AbortSettlement(ctx context.Context, handle *SettlementHandle) error

	Capabilities() DriverCapabilities
}

// SettlementRequest is a payout to settle.
type SettlementRequest struct {
	WishID    string
	Recipient string
	// Amount is in whole tokens.
	Amount uint64
}

// SettlementHandle carries driver state between prepare and execute.
type SettlementHandle struct {
	ID                 string
	WishID             string
	DriverType         string
	PreparedAt         time.Time
	Recipient          string
	Amount             uint64
	RawAmount          uint64
	SourceAccount      string
	DestinationAccount string
	CreateDestination  bool
}

// SettlementResult is returned by a confirmed payout.
type SettlementResult struct {
	TxID       string
	DriverType string
	FinalState string
	Attempts   int
}

// DriverCapabilities describes the limits of a driver.
type DriverCapabilities struct {
	MaxAmount      uint64
	Decimals       uint8
	SettlementType string
}

const (
	DriverSolanaToken2022 = "SOLANA_TOKEN_2022"
	DriverMock            = "MOCK"

	StateConfirmed = "CONFIRMED"
)

var (
	// ErrTreasuryNotFunded means the treasury has no token account for the mint.
	ErrTreasuryNotFunded = errors.New("treasury not funded")
	// ErrRecipientAccount means the recipient token account cannot be resolved.
	ErrRecipientAccount = errors.New("recipient token account unavailable")
	// ErrAttemptsExhausted is returned when every attempt failed.
	ErrAttemptsExhausted = errors.New("settlement failed after all attempts")
	// ErrAmountTooLarge is returned for payouts above the driver limit.
	ErrAmountTooLarge = errors.New("amount exceeds driver limit")
)
