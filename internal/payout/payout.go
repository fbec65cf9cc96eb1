// Package payout maps oracle scores to reward tiers and amounts.
package payout

import (
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// HoardCap is the maximum number of tokens the hoard may hold.
	HoardCap uint64 = 90_000_000
	// BurnRateTarget is the share of supply the protocol aims to burn.
	BurnRateTarget = 0.15
	// TreasuryMinimum is the balance below which payouts stop.
	TreasuryMinimum uint64 = 7_000_000
	// TokenDecimals is the decimals of the reward mint.
	TokenDecimals uint8 = 6

	// WorthyThreshold is the lowest score a WORTHY verdict can carry.
	WorthyThreshold = 40
	// MinPayingScore is the lowest score that maps to a tier.
	MinPayingScore = 30
	// MaxScore is the highest score the oracle hands out.
	MaxScore = 100

	// TestPayout is paid for the test code.
	TestPayout uint64 = 100
)

// Tier names a payout band.
type Tier string

const (
	TierTest      Tier = "TEST"
	TierCommon    Tier = "COMMON"
	TierRare      Tier = "RARE"
	TierLegendary Tier = "LEGENDARY"
	TierMythic    Tier = "MYTHIC"
)

// Band is an inclusive score range paying a random amount in [Min, Max].
type Band struct {
	Tier     Tier
	MinScore int
	MaxScore int
	Min      uint64
	Max      uint64
	Jackpot  bool
}

// Bands lists the paying tiers from lowest to highest score.
var Bands = []Band{
	{Tier: TierCommon, MinScore: 30, MaxScore: 69, Min: 40_000, Max: 60_000},
	{Tier: TierRare, MinScore: 70, MaxScore: 89, Min: 200_000, Max: 300_000},
	{Tier: TierLegendary, MinScore: 90, MaxScore: 98, Min: 800_000, Max: 1_200_000},
	{Tier: TierMythic, MinScore: 99, MaxScore: MaxScore, Min: 4_000_000, Max: 6_000_000, Jackpot: true},
}

// BandFor returns the band for score, or false when score does not pay.
func BandFor(score int) (Band, bool) {
	for _, b := range Bands {
		if score >= b.MinScore && score <= b.MaxScore {
			return b, true
		}
	}
	return Band{}, false
}

// TierFor reports whether score pays and at which tier.
func TierFor(score int) (Tier, bool) {
	b, ok := BandFor(score)
	return b.Tier, ok
}

// Payout is a computed reward.
type Payout struct {
	Amount    uint64 `json:"amount"`
	Tier      Tier   `json:"tier"`
	IsJackpot bool   `json:"is_jackpot"`
}

// Calculator draws payout amounts within a band.
type Calculator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewCalculator returns a Calculator seeded from the clock.
func NewCalculator() *Calculator {
	return NewCalculatorWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewCalculatorWithSource returns a Calculator using src.
func NewCalculatorWithSource(src rand.Source) *Calculator {
	return &Calculator{rnd: rand.New(src)}
}

// Calculate returns the payout for score, or false when the score does not pay.
func (c *Calculator) Calculate(score int) (*Payout, bool) {
	band, ok := BandFor(score)
	if !ok {
		return nil, false
	}
	return &Payout{
		Amount:    c.between(band.Min, band.Max),
		Tier:      band.Tier,
		IsJackpot: band.Jackpot,
	}, true
}

// Test returns the fixed payout of the test code.
func (c *Calculator) Test() *Payout {
	return &Payout{Amount: TestPayout, Tier: TierTest}
}

func (c *Calculator) between(lo, hi uint64) uint64 {
	if hi <= lo {
		return lo
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo + uint64(c.rnd.Int63n(int64(hi-lo+1)))
}

// ToBaseUnits converts whole tokens to the mint's smallest unit.
func ToBaseUnits(amount uint64, decimals uint8) uint64 {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0).Shift(int32(decimals)).BigInt().Uint64()
}

// FromBaseUnits converts raw units into a decimal token amount.
func FromBaseUnits(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
}

// Percentage returns part/whole*100 rounded to one decimal place.
func Percentage(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	f, _ := part.Div(whole).Mul(decimal.NewFromInt(100)).Round(1).Float64()
	return f
}
