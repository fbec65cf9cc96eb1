package hoard

import "errors"

var (
	ErrUninitialized       = errors.New("hoard: account not initialized")
	ErrAlreadyInitialized  = errors.New("hoard: account already initialized")
	ErrUnauthorized        = errors.New("hoard: signer is not the hoard authority")
	ErrInvalidScore        = errors.New("hoard: score out of range")
	ErrUnworthyScore       = errors.New("hoard: score below paying tier")
	ErrZeroAmount          = errors.New("hoard: amount must be positive")
	ErrInsufficientReserve = errors.New("hoard: reserve cannot cover payout")
	ErrOverflow            = errors.New("hoard: arithmetic overflow")
	ErrHoardCapExceeded    = errors.New("hoard: refill exceeds hoard cap")
	ErrInvalidInstruction  = errors.New("hoard: invalid instruction data")
	ErrAccountDataTooSmall = errors.New("hoard: account data too small")
	ErrInvalidAccountData  = errors.New("hoard: invalid account data")
)
