// Package guard holds the abuse and treasury safety checks that run before a
// wish reaches the judge.
package guard

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	DefaultCooldown       = 5 * time.Minute
	DefaultHypeWindow     = 5 * time.Minute
	DefaultHypeLimit      = uint64(5_000_000)
	DefaultBreakerCooling = 2 * time.Minute
)

// ClientIP returns the caller address from proxy headers, or "" when none is set.
func ClientIP(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	for _, name := range []string{"CF-Connecting-IP", "X-Real-IP", "True-Client-IP"} {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// Cooldown rate limits wishes per wallet and per IP.
type Cooldown struct {
	Period time.Duration
}

// NewCooldown returns a Cooldown with the default period.
func NewCooldown() *Cooldown {
	return &Cooldown{Period: DefaultCooldown}
}

// Since returns the earliest creation time that still counts toward the cooldown.
func (c *Cooldown) Since(now time.Time) time.Time {
	return now.Add(-c.Period)
}

// Remaining returns how long the caller must still wait, given the latest wish
// times found for the wallet and the IP. Zero times are ignored.
func (c *Cooldown) Remaining(now time.Time, latest ...time.Time) time.Duration {
	var last time.Time
	for _, t := range latest {
		if t.After(last) {
			last = t
		}
	}
	if last.IsZero() {
		return 0
	}
	if remaining := last.Add(c.Period).Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// CooldownMessage formats the wait time the way the oracle speaks it.
func CooldownMessage(remaining time.Duration) string {
	ms := remaining.Milliseconds()
	minutes := ms / 60000
	seconds := (ms%60000 + 999) / 1000
	if minutes > 0 {
		return fmt.Sprintf("Patience, mortal. Return in %dm %ds.", minutes, seconds)
	}
	return fmt.Sprintf("Patience, mortal. Return in %ds.", seconds)
}

// Buffer stops payouts when the treasury runs low.
type Buffer struct {
	Minimum uint64
}

// Tripped reports whether a known, positive balance is below the minimum.
// A zero balance means the balance is unknown and does not trip the buffer.
func (b Buffer) Tripped(balance float64) bool {
	return balance > 0 && balance < float64(b.Minimum)
}

// PayoutEvent is a payout recorded at a point in time.
type PayoutEvent struct {
	Amount    uint64
	CreatedAt time.Time
}

// BreakerStatus is the result of a HypeBreaker check.
type BreakerStatus struct {
	Active    bool
	Total     uint64
	TriggerAt time.Time
	Until     time.Time
}

// Remaining returns the cooling time left at now.
func (s BreakerStatus) Remaining(now time.Time) time.Duration {
	if !s.Active {
		return 0
	}
	return s.Until.Sub(now)
}

// HypeBreaker pauses payouts after a burst of large rewards.
type HypeBreaker struct {
	Window  time.Duration
	Limit   uint64
	Cooling time.Duration
}

// NewHypeBreaker returns a breaker with the default window, limit and cooling time.
func NewHypeBreaker() *HypeBreaker {
	return &HypeBreaker{Window: DefaultHypeWindow, Limit: DefaultHypeLimit, Cooling: DefaultBreakerCooling}
}

// Since returns the start of the observation window.
func (b *HypeBreaker) Since(now time.Time) time.Time {
	return now.Add(-b.Window)
}

// Check evaluates the payouts made inside the window. The breaker trips at the
// payout that first pushes the running total to the limit and stays active for
// the cooling time from then.
func (b *HypeBreaker) Check(now time.Time, events []PayoutEvent) BreakerStatus {
	since := b.Since(now)
	inWindow := make([]PayoutEvent, 0, len(events))
	var total uint64
	for _, e := range events {
		if e.CreatedAt.Before(since) {
			continue
		}
		inWindow = append(inWindow, e)
		total += e.Amount
	}

	status := BreakerStatus{Total: total}
	if total < b.Limit {
		return status
	}

	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].CreatedAt.Before(inWindow[j].CreatedAt)
	})
	var running uint64
	for _, e := range inWindow {
		running += e.Amount
		if running >= b.Limit {
			status.TriggerAt = e.CreatedAt
			status.Until = e.CreatedAt.Add(b.Cooling)
			break
		}
	}
	status.Active = now.Before(status.Until)
	return status
}
