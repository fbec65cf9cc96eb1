package hoard

import (
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	"github.com/rub-lamp/oracle_layer/internal/payout"
)

// Processor applies oracle instructions to a hoard. It holds no state; every
// call returns a new Hoard and leaves its input untouched.
type Processor struct {
	Cap uint64
}

// NewProcessor returns a processor enforcing payout.HoardCap.
func NewProcessor() *Processor {
	return &Processor{Cap: payout.HoardCap}
}

// Initialize claims an empty hoard account for authority.
func (p *Processor) Initialize(h Hoard, authority solana.PublicKey) (Hoard, error) {
	if h.State.IsInitialized {
		return h, ErrAlreadyInitialized
	}
	if authority.IsZero() {
		return h, fmt.Errorf("%w: zero authority", ErrUnauthorized)
	}
	h.State = HoardState{IsInitialized: true, Authority: authority}
	return h, nil
}

// Process applies ix signed by signer.
func (p *Processor) Process(h Hoard, signer solana.PublicKey, ix OracleInstruction) (Hoard, error) {
	if !h.State.IsInitialized {
		return h, ErrUninitialized
	}
	switch v := ix.(type) {
	case GrantWish:
		return p.grantWish(h, signer, v)
	case *GrantWish:
		return p.grantWish(h, signer, *v)
	case RefillLamp:
		return p.refillLamp(h, v)
	case *RefillLamp:
		return p.refillLamp(h, *v)
	default:
		return h, fmt.Errorf("%w: unsupported instruction %T", ErrInvalidInstruction, ix)
	}
}

// ProcessData decodes raw instruction data and applies it.
func (p *Processor) ProcessData(h Hoard, signer solana.PublicKey, data []byte) (Hoard, error) {
	ix, err := DecodeInstruction(data)
	if err != nil {
		return h, err
	}
	return p.Process(h, signer, ix)
}

func (p *Processor) grantWish(h Hoard, signer solana.PublicKey, g GrantWish) (Hoard, error) {
	if !signer.Equals(h.State.Authority) {
		return h, ErrUnauthorized
	}
	if int(g.Score) > payout.MaxScore {
		return h, fmt.Errorf("%w: %d", ErrInvalidScore, g.Score)
	}
	if _, ok := payout.TierFor(int(g.Score)); !ok {
		return h, fmt.Errorf("%w: %d", ErrUnworthyScore, g.Score)
	}
	if g.Amount == 0 {
		return h, ErrZeroAmount
	}
	if g.Amount > h.Reserve {
		return h, fmt.Errorf("%w: need %d, have %d", ErrInsufficientReserve, g.Amount, h.Reserve)
	}
	total, ok := addUint64(h.State.TotalPayouts, g.Amount)
	if !ok {
		return h, ErrOverflow
	}

	h.State.TotalPayouts = total
	h.Reserve -= g.Amount
	return h, nil
}

func (p *Processor) refillLamp(h Hoard, r RefillLamp) (Hoard, error) {
	if r.Amount == 0 {
		return h, ErrZeroAmount
	}
	reserve, ok := addUint64(h.Reserve, r.Amount)
	if !ok {
		return h, ErrOverflow
	}
	if p.Cap > 0 && reserve > p.Cap {
		return h, fmt.Errorf("%w: %d > %d", ErrHoardCapExceeded, reserve, p.Cap)
	}
	h.Reserve = reserve
	return h, nil
}

func addUint64(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}
