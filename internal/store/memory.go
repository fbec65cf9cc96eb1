package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a thread-safe in-memory Store for tests and local development.
type Memory struct {
	mu     sync.RWMutex
	wishes map[string]Wish
	logs   []AdminWishLog
	hoards map[string]HoardRecord
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		wishes: make(map[string]Wish),
		hoards: make(map[string]HoardRecord),
	}
}

// WishStore implementation ------------------------------------------------------

func (m *Memory) CreateWish(_ context.Context, w Wish) (Wish, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.NewString()
	} else if _, exists := m.wishes[w.ID]; exists {
		return Wish{}, fmt.Errorf("wish %s already exists", w.ID)
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	m.wishes[w.ID] = cloneWish(w)
	return cloneWish(w), nil
}

func (m *Memory) GetWish(_ context.Context, id string) (Wish, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wishes[id]
	if !ok {
		return Wish{}, ErrNotFound
	}
	return cloneWish(w), nil
}

func (m *Memory) SetWishSignature(_ context.Context, id, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wishes[id]
	if !ok {
		return ErrNotFound
	}
	w.TxSignature = &signature
	m.wishes[id] = w
	return nil
}

func (m *Memory) LatestWishByWallet(_ context.Context, wallet string, since time.Time) (time.Time, bool, error) {
	return m.latest(func(w Wish) bool { return w.WalletAddress == wallet }, since)
}

func (m *Memory) LatestWishByIP(_ context.Context, ip string, since time.Time) (time.Time, bool, error) {
	if ip == "" {
		return time.Time{}, false, nil
	}
	return m.latest(func(w Wish) bool { return w.IPAddress == ip }, since)
}

func (m *Memory) latest(match func(Wish) bool, since time.Time) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		latest time.Time
		found  bool
	)
	for _, w := range m.wishes {
		if !match(w) || w.CreatedAt.Before(since) {
			continue
		}
		if !found || w.CreatedAt.After(latest) {
			latest, found = w.CreatedAt, true
		}
	}
	return latest, found, nil
}

func (m *Memory) PayoutsSince(_ context.Context, since time.Time) ([]Wish, error) {
	out := m.filter(func(w Wish) bool {
		return w.PayoutAmount != nil && !w.CreatedAt.Before(since)
	})
	sortNewest(out)
	return out, nil
}

func (m *Memory) RecentWinnerTexts(_ context.Context, limit int) ([]string, error) {
	winners := m.filter(func(w Wish) bool { return w.Verdict == VerdictWorthy })
	sortNewest(winners)
	if limit > 0 && len(winners) > limit {
		winners = winners[:limit]
	}
	texts := make([]string, 0, len(winners))
	for _, w := range winners {
		texts = append(texts, w.WishText)
	}
	return texts, nil
}

func (m *Memory) ListWinners(_ context.Context, q WinnerQuery) ([]Wish, error) {
	out := m.filter(func(w Wish) bool {
		if w.Verdict != VerdictWorthy || w.Amount() == 0 || !w.Claimed() {
			return false
		}
		if !q.Since.IsZero() && w.CreatedAt.Before(q.Since) {
			return false
		}
		if !q.Before.IsZero() && !w.CreatedAt.Before(q.Before) {
			return false
		}
		return true
	})
	if q.ByAmount {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Amount() > out[j].Amount() })
	} else {
		sortNewest(out)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) filter(match func(Wish) bool) []Wish {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Wish, 0)
	for _, w := range m.wishes {
		if match(w) {
			out = append(out, cloneWish(w))
		}
	}
	return out
}

// AdminLogStore implementation --------------------------------------------------

func (m *Memory) InsertAdminLog(_ context.Context, l AdminWishLog) (AdminWishLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	m.logs = append(m.logs, l)
	return l, nil
}

func (m *Memory) ListAdminLogs(_ context.Context, limit int) ([]AdminWishLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]AdminWishLog(nil), m.logs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) AttachAdminLogSignature(_ context.Context, wallet, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, l := range m.logs {
		if l.WalletAddress != wallet {
			continue
		}
		if idx < 0 || !l.CreatedAt.Before(m.logs[idx].CreatedAt) {
			idx = i
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	m.logs[idx].TxSignature = &signature
	return nil
}

// HoardStore implementation -----------------------------------------------------

func (m *Memory) LoadHoard(_ context.Context, id string) (HoardRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.hoards[id]
	if !ok {
		return HoardRecord{}, ErrNotFound
	}
	rec.State = append([]byte(nil), rec.State...)
	return rec, nil
}

func (m *Memory) SaveHoard(_ context.Context, rec HoardRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = DefaultHoardID
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	rec.State = append([]byte(nil), rec.State...)
	m.hoards[rec.ID] = rec
	return nil
}

func cloneWish(w Wish) Wish {
	if w.PayoutAmount != nil {
		v := *w.PayoutAmount
		w.PayoutAmount = &v
	}
	if w.PayoutTier != nil {
		v := *w.PayoutTier
		w.PayoutTier = &v
	}
	if w.TxSignature != nil {
		v := *w.TxSignature
		w.TxSignature = &v
	}
	return w
}

func sortNewest(ws []Wish) {
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].CreatedAt.After(ws[j].CreatedAt) })
}
