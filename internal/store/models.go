// Package store persists wishes, the private admin log and the hoard account.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

const (
	VerdictWorthy   = "WORTHY"
	VerdictUnworthy = "UNWORTHY"
)

// Wish is a judged wish as stored in the wishes table.
type Wish struct {
	ID            string    `db:"id" json:"id"`
	WalletAddress string    `db:"wallet_address" json:"wallet_address"`
	WishText      string    `db:"wish_text" json:"wish_text"`
	IPAddress     string    `db:"ip_address" json:"ip_address,omitempty"`
	Verdict       string    `db:"verdict" json:"verdict"`
	Score         int       `db:"score" json:"score"`
	PayoutAmount  *uint64   `db:"payout_amount" json:"payout_amount"`
	PayoutTier    *string   `db:"payout_tier" json:"payout_tier"`
	IsJackpot     bool      `db:"is_jackpot" json:"is_jackpot"`
	TxSignature   *string   `db:"tx_signature" json:"tx_signature"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Claimed reports whether the payout of the wish has an on-chain signature.
func (w Wish) Claimed() bool {
	return w.TxSignature != nil && strings.TrimSpace(*w.TxSignature) != ""
}

// Amount returns the payout amount or zero.
func (w Wish) Amount() uint64 {
	if w.PayoutAmount == nil {
		return 0
	}
	return *w.PayoutAmount
}

// AdminWishLog is the private record of a judgment, including the raw model output.
type AdminWishLog struct {
	ID            string    `db:"id" json:"id"`
	WishText      string    `db:"wish_text" json:"wish_text"`
	WalletAddress string    `db:"wallet_address" json:"wallet_address"`
	IPAddress     string    `db:"ip_address" json:"ip_address"`
	Score         int       `db:"score" json:"score"`
	Verdict       string    `db:"verdict" json:"verdict"`
	PayoutTier    *string   `db:"payout_tier" json:"payout_tier"`
	PayoutAmount  *uint64   `db:"payout_amount" json:"payout_amount"`
	RawAIResponse JSON      `db:"raw_ai_response" json:"raw_ai_response"`
	TxSignature   *string   `db:"tx_signature" json:"tx_signature"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// HoardRecord is the persisted hoard account.
type HoardRecord struct {
	ID        string    `db:"id"`
	State     []byte    `db:"state"`
	Reserve   uint64    `db:"reserve"`
	UpdatedAt time.Time `db:"updated_at"`
}

// DefaultHoardID names the single hoard account.
const DefaultHoardID = "default"

// WinnerQuery selects claimed WORTHY wishes for the public ledger.
type WinnerQuery struct {
	// Since and Before bound created_at; zero values are open.
	Since    time.Time
	Before   time.Time
	ByAmount bool
	Limit    int
}

// JSON is a JSON object column stored as jsonb or text.
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSON) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("store: cannot scan %T into JSON", src)
	}
	if len(raw) == 0 {
		*j = nil
		return nil
	}
	out := JSON{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*j = out
	return nil
}

// Uint64Ptr returns a pointer to v.
func Uint64Ptr(v uint64) *uint64 { return &v }

// StringPtr returns a pointer to s, or nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// TruncateWallet shortens a wallet address to its first and last four characters.
func TruncateWallet(wallet string) string {
	if len(wallet) <= 8 {
		return wallet
	}
	return wallet[:4] + "..." + wallet[len(wallet)-4:]
}
