package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const wishColumns = `id, wallet_address, wish_text, ip_address, verdict, score,
	payout_amount, payout_tier, is_jackpot, tx_signature, created_at`

const adminLogColumns = `id, wish_text, wallet_address, ip_address, score, verdict,
	payout_tier, payout_amount, raw_ai_response, tx_signature, created_at`

// SQLStore implements Store on PostgreSQL or SQLite through sqlx.
type SQLStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQL wraps an open database handle.
func NewSQL(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Open connects to driver ("postgres" or "sqlite") at dsn.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	return NewSQL(db), nil
}

// DB returns the underlying handle.
func (s *SQLStore) DB() *sqlx.DB { return s.db }

// DriverName returns the database driver in use.
func (s *SQLStore) DriverName() string { return s.db.DriverName() }

func (s *SQLStore) Close() error { return s.db.Close() }

// --- WishStore ---------------------------------------------------------------

func (s *SQLStore) CreateWish(ctx context.Context, w Wish) (Wish, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO wishes (`+wishColumns+`)
		VALUES (:id, :wallet_address, :wish_text, :ip_address, :verdict, :score,
			:payout_amount, :payout_tier, :is_jackpot, :tx_signature, :created_at)
	`, w)
	if err != nil {
		return Wish{}, fmt.Errorf("insert wish: %w", err)
	}
	return w, nil
}

func (s *SQLStore) GetWish(ctx context.Context, id string) (Wish, error) {
	var w Wish
	err := s.db.GetContext(ctx, &w, s.db.Rebind(`SELECT `+wishColumns+` FROM wishes WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Wish{}, ErrNotFound
	}
	return w, err
}

func (s *SQLStore) SetWishSignature(ctx context.Context, id, signature string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE wishes SET tx_signature = ? WHERE id = ?`), signature, id)
	if err != nil {
		return fmt.Errorf("update wish signature: %w", err)
	}
	return requireRows(res)
}

func (s *SQLStore) LatestWishByWallet(ctx context.Context, wallet string, since time.Time) (time.Time, bool, error) {
	return s.latest(ctx, "wallet_address", wallet, since)
}

func (s *SQLStore) LatestWishByIP(ctx context.Context, ip string, since time.Time) (time.Time, bool, error) {
	if ip == "" {
		return time.Time{}, false, nil
	}
	return s.latest(ctx, "ip_address", ip, since)
}

func (s *SQLStore) latest(ctx context.Context, column, value string, since time.Time) (time.Time, bool, error) {
	var createdAt time.Time
	err := s.db.GetContext(ctx, &createdAt, s.db.Rebind(`
		SELECT created_at FROM wishes
		WHERE `+column+` = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT 1
	`), value, since.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return createdAt, true, nil
}

func (s *SQLStore) PayoutsSince(ctx context.Context, since time.Time) ([]Wish, error) {
	var out []Wish
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT `+wishColumns+` FROM wishes
		WHERE created_at >= ? AND payout_amount IS NOT NULL
		ORDER BY created_at DESC
	`), since.UTC())
	return out, err
}

func (s *SQLStore) RecentWinnerTexts(ctx context.Context, limit int) ([]string, error) {
	var texts []string
	err := s.db.SelectContext(ctx, &texts, s.db.Rebind(`
		SELECT wish_text FROM wishes
		WHERE verdict = ?
		ORDER BY created_at DESC
		LIMIT ?
	`), VerdictWorthy, limit)
	return texts, err
}

func (s *SQLStore) ListWinners(ctx context.Context, q WinnerQuery) ([]Wish, error) {
	where := []string{
		"verdict = ?",
		"payout_amount > 0",
		"tx_signature IS NOT NULL",
		"tx_signature <> ''",
	}
	args := []interface{}{VerdictWorthy}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UTC())
	}
	if !q.Before.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, q.Before.UTC())
	}
	order := "created_at DESC"
	if q.ByAmount {
		order = "payout_amount DESC, created_at DESC"
	}
	query := `SELECT ` + wishColumns + ` FROM wishes WHERE ` + strings.Join(where, " AND ") + ` ORDER BY ` + order
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	var out []Wish
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...)
	return out, err
}

// --- AdminLogStore -----------------------------------------------------------

func (s *SQLStore) InsertAdminLog(ctx context.Context, l AdminWishLog) (AdminWishLog, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO admin_wish_logs (`+adminLogColumns+`)
		VALUES (:id, :wish_text, :wallet_address, :ip_address, :score, :verdict,
			:payout_tier, :payout_amount, :raw_ai_response, :tx_signature, :created_at)
	`, l)
	if err != nil {
		return AdminWishLog{}, fmt.Errorf("insert admin log: %w", err)
	}
	return l, nil
}

func (s *SQLStore) ListAdminLogs(ctx context.Context, limit int) ([]AdminWishLog, error) {
	var out []AdminWishLog
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT `+adminLogColumns+` FROM admin_wish_logs
		ORDER BY created_at DESC
		LIMIT ?
	`), limit)
	return out, err
}

func (s *SQLStore) AttachAdminLogSignature(ctx context.Context, wallet, signature string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE admin_wish_logs SET tx_signature = ?
		WHERE id = (
			SELECT id FROM admin_wish_logs
			WHERE wallet_address = ?
			ORDER BY created_at DESC
			LIMIT 1
		)
	`), signature, wallet)
	if err != nil {
		return fmt.Errorf("update admin log signature: %w", err)
	}
	return requireRows(res)
}

// --- HoardStore --------------------------------------------------------------

func (s *SQLStore) LoadHoard(ctx context.Context, id string) (HoardRecord, error) {
	var rec HoardRecord
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(`SELECT id, state, reserve, updated_at FROM hoard_accounts WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return HoardRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *SQLStore) SaveHoard(ctx context.Context, rec HoardRecord) error {
	if rec.ID == "" {
		rec.ID = DefaultHoardID
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO hoard_accounts (id, state, reserve, updated_at)
		VALUES (:id, :state, :reserve, :updated_at)
		ON CONFLICT (id) DO UPDATE
		SET state = excluded.state, reserve = excluded.reserve, updated_at = excluded.updated_at
	`, rec)
	if err != nil {
		return fmt.Errorf("save hoard: %w", err)
	}
	return nil
}

func requireRows(res sql.Result) error {
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}
