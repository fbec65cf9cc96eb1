package settlement

import (
	"math/rand"
	"strings"
	"time"
)

var retryablePatterns = []string{
	"blockhashnotfound",
	"accountinuse",
	"transactionexpiredblockheightexceedederror",
	"transactionexpiredtimeouterror",
	"blockhash not found",
	"block height exceeded",
	"timeout",
	"rate limit",
	"429",
	"503",
	"502",
}

// IsRetryable reports whether a failed attempt is worth repeating.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// RetryPolicy bounds the attempts of a payout.
type RetryPolicy struct {
	MaxAttempts int
	MaxJitter   time.Duration
	Step        time.Duration
}

// DefaultRetryPolicy makes three attempts with up to 500ms jitter plus 200ms per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, MaxJitter: 500 * time.Millisecond, Step: 200 * time.Millisecond}
}

// Delay returns the wait after a failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int, rnd *rand.Rand) time.Duration {
	var jitter time.Duration
	if p.MaxJitter > 0 {
		if rnd != nil {
			jitter = time.Duration(rnd.Int63n(int64(p.MaxJitter)))
		} else {
			jitter = time.Duration(rand.Int63n(int64(p.MaxJitter)))
		}
	}
	return jitter + time.Duration(attempt)*p.Step
}
