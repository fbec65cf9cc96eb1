package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"unicode"
)

// Highlander remembers winning wishes so the same idea can only win once.
type Highlander struct {
	mu      sync.RWMutex
	history map[string]struct{}
}

func NewHighlander() *Highlander {
	return &Highlander{history: make(map[string]struct{})}
}

// Fingerprint hashes the wish after folding case, punctuation and spacing.
func Fingerprint(wish string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(wish) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// IsOriginal reports whether wish has not won before.
func (h *Highlander) IsOriginal(wish string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, seen := h.history[Fingerprint(wish)]
	return !seen
}

// Remember records winning wishes.
func (h *Highlander) Remember(wishes ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, w := range wishes {
		h.history[Fingerprint(w)] = struct{}{}
	}
}

// Len returns the number of remembered winners.
func (h *Highlander) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.history)
}
