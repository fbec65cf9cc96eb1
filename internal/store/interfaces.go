package store

import (
	"context"
	"time"
)

// WishStore persists judged wishes.
type WishStore interface {
	CreateWish(ctx context.Context, w Wish) (Wish, error)
	GetWish(ctx context.Context, id string) (Wish, error)
	SetWishSignature(ctx context.Context, id, signature string) error
	// LatestWishByWallet returns the newest created_at at or after since.
	LatestWishByWallet(ctx context.Context, wallet string, since time.Time) (time.Time, bool, error)
	LatestWishByIP(ctx context.Context, ip string, since time.Time) (time.Time, bool, error)
	// PayoutsSince returns wishes with a payout amount created at or after since, newest first.
	PayoutsSince(ctx context.Context, since time.Time) ([]Wish, error)
	// RecentWinnerTexts returns the texts of the newest WORTHY wishes.
	RecentWinnerTexts(ctx context.Context, limit int) ([]string, error)
	ListWinners(ctx context.Context, q WinnerQuery) ([]Wish, error)
}

// AdminLogStore persists the private judgment log.
type AdminLogStore interface {
	InsertAdminLog(ctx context.Context, l AdminWishLog) (AdminWishLog, error)
	ListAdminLogs(ctx context.Context, limit int) ([]AdminWishLog, error)
	// AttachAdminLogSignature sets the signature on the newest log of wallet.
	AttachAdminLogSignature(ctx context.Context, wallet, signature string) error
}

// HoardStore persists the hoard account.
type HoardStore interface {
	LoadHoard(ctx context.Context, id string) (HoardRecord, error)
	SaveHoard(ctx context.Context, rec HoardRecord) error
}

// Store aggregates every store the oracle layer uses.
type Store interface {
	WishStore
	AdminLogStore
	HoardStore
}
