package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rub-lamp/oracle_layer/internal/platform/migrations"
)

var wishCols = []string{"id", "wallet_address", "wish_text", "ip_address", "verdict", "score",
	"payout_amount", "payout_tier", "is_jackpot", "tx_signature", "created_at"}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQL(sqlx.NewDb(db, "postgres")), mock
}

func TestMemoryWishes(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()

	old, err := m.CreateWish(ctx, Wish{WalletAddress: "w1", IPAddress: "1.1.1.1", WishText: "old", Verdict: VerdictWorthy, PayoutAmount: Uint64Ptr(40_000), CreatedAt: now.Add(-10 * time.Minute)})
	require.NoError(t, err)
	recent, err := m.CreateWish(ctx, Wish{WalletAddress: "w1", IPAddress: "2.2.2.2", WishText: "recent", Verdict: VerdictUnworthy, CreatedAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	assert.NotEmpty(t, recent.ID)

	_, err = m.CreateWish(ctx, Wish{ID: old.ID})
	assert.Error(t, err)

	at, ok, err := m.LatestWishByWallet(ctx, "w1", now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, recent.CreatedAt, at)

	_, ok, _ = m.LatestWishByIP(ctx, "1.1.1.1", now.Add(-5*time.Minute))
	assert.False(t, ok)
	_, ok, _ = m.LatestWishByIP(ctx, "", time.Time{})
	assert.False(t, ok)

	payouts, err := m.PayoutsSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, "old", payouts[0].WishText)

	texts, err := m.RecentWinnerTexts(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, texts)

	require.NoError(t, m.SetWishSignature(ctx, old.ID, "sig"))
	got, err := m.GetWish(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, got.Claimed())
	assert.ErrorIs(t, m.SetWishSignature(ctx, "missing", "sig"), ErrNotFound)

	_, err = m.GetWish(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListWinners(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()
	sig := "sig"

	for i, amount := range []uint64{40_000, 250_000, 1_000_000} {
		_, err := m.CreateWish(ctx, Wish{
			WalletAddress: "wallet", Verdict: VerdictWorthy, PayoutAmount: Uint64Ptr(amount),
			TxSignature: &sig, CreatedAt: now.Add(-time.Duration(i+1) * time.Hour),
		})
		require.NoError(t, err)
	}
	_, _ = m.CreateWish(ctx, Wish{Verdict: VerdictWorthy, PayoutAmount: Uint64Ptr(5_000_000), CreatedAt: now})
	_, _ = m.CreateWish(ctx, Wish{Verdict: VerdictWorthy, PayoutAmount: Uint64Ptr(99), TxSignature: &sig, CreatedAt: now.Add(-48 * time.Hour)})

	live, err := m.ListWinners(ctx, WinnerQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, uint64(40_000), live[0].Amount())

	legends, err := m.ListWinners(ctx, WinnerQuery{Since: now.Add(-24 * time.Hour), ByAmount: true})
	require.NoError(t, err)
	require.Len(t, legends, 3)
	assert.Equal(t, uint64(1_000_000), legends[0].Amount())

	before, err := m.ListWinners(ctx, WinnerQuery{Before: now.Add(-90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, before, 3)
}

func TestMemoryAdminLogs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()

	_, err := m.InsertAdminLog(ctx, AdminWishLog{WalletAddress: "w", WishText: "first", CreatedAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = m.InsertAdminLog(ctx, AdminWishLog{WalletAddress: "w", WishText: "second", CreatedAt: now, RawAIResponse: JSON{"test_mode": true}})
	require.NoError(t, err)

	require.NoError(t, m.AttachAdminLogSignature(ctx, "w", "sig"))
	assert.ErrorIs(t, m.AttachAdminLogSignature(ctx, "other", "sig"), ErrNotFound)

	logs, err := m.ListAdminLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "second", logs[0].WishText)
	require.NotNil(t, logs[0].TxSignature)
	assert.Nil(t, logs[1].TxSignature)
}

func TestMemoryHoard(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.LoadHoard(ctx, DefaultHoardID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SaveHoard(ctx, HoardRecord{State: []byte{1, 2}, Reserve: 10}))
	rec, err := m.LoadHoard(ctx, DefaultHoardID)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, rec.State)
	assert.Equal(t, uint64(10), rec.Reserve)
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestTruncateWallet(t *testing.T) {
	assert.Equal(t, "7xKX...AsU9", TruncateWallet("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU9"))
	assert.Equal(t, "short", TruncateWallet("short"))
}

func TestJSONScan(t *testing.T) {
	var j JSON
	require.NoError(t, j.Scan([]byte(`{"dev_mode":true}`)))
	assert.Equal(t, true, j["dev_mode"])
	require.NoError(t, j.Scan(`{"code":"1919191919"}`))
	assert.Equal(t, "1919191919", j["code"])
	require.NoError(t, j.Scan(nil))
	assert.Nil(t, j)
	assert.Error(t, j.Scan(42))

	v, err := JSON{"a": 1}.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)
}

func TestSQLGetWish(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT .* FROM wishes WHERE id = \$1`).
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows(wishCols).
			AddRow("w1", "wallet", "a wish", "1.2.3.4", "WORTHY", 72, int64(250_000), "RARE", false, nil, created))

	w, err := s.GetWish(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "wallet", w.WalletAddress)
	require.NotNil(t, w.PayoutAmount)
	assert.Equal(t, uint64(250_000), *w.PayoutAmount)
	assert.Equal(t, "RARE", *w.PayoutTier)
	assert.Nil(t, w.TxSignature)
	assert.Equal(t, created, w.CreatedAt)

	mock.ExpectQuery(`(?s)SELECT .* FROM wishes WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(wishCols))
	_, err = s.GetWish(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCreateWish(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO wishes`).WillReturnResult(sqlmock.NewResult(0, 1))

	w, err := s.CreateWish(context.Background(), Wish{WalletAddress: "wallet", WishText: "x", Verdict: VerdictUnworthy})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.False(t, w.CreatedAt.IsZero())

	mock.ExpectExec(`INSERT INTO wishes`).WillReturnError(errors.New("boom"))
	_, err = s.CreateWish(context.Background(), Wish{})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSignatures(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE wishes SET tx_signature = \$1 WHERE id = \$2`).
		WithArgs("sig", "w1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetWishSignature(context.Background(), "w1", "sig"))

	mock.ExpectExec(`UPDATE wishes SET tx_signature`).
		WithArgs("sig", "gone").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.SetWishSignature(context.Background(), "gone", "sig"), ErrNotFound)

	mock.ExpectExec(`UPDATE admin_wish_logs SET tx_signature = \$1`).
		WithArgs("sig", "wallet").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.AttachAdminLogSignature(context.Background(), "wallet", "sig"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLatestWish(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Now().Add(-5 * time.Minute)
	at := time.Now().Add(-time.Minute).UTC()

	mock.ExpectQuery(`SELECT created_at FROM wishes\s+WHERE wallet_address = \$1 AND created_at >= \$2`).
		WithArgs("wallet", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(at))
	got, ok, err := s.LatestWishByWallet(context.Background(), "wallet", since)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, got)

	mock.ExpectQuery(`WHERE ip_address = \$1`).
		WithArgs("9.9.9.9", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
	_, ok, err = s.LatestWishByIP(context.Background(), "9.9.9.9", since)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(`SELECT created_at`).WillReturnError(sql.ErrConnDone)
	_, _, err = s.LatestWishByWallet(context.Background(), "wallet", since)
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLListWinnersQuery(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Now().Add(-24 * time.Hour)
	before := time.Now().Add(-6 * time.Second)

	mock.ExpectQuery(`verdict = \$1 AND payout_amount > 0 AND tx_signature IS NOT NULL AND tx_signature <> '' AND created_at >= \$2 AND created_at < \$3 ORDER BY payout_amount DESC, created_at DESC LIMIT \$4`).
		WithArgs(VerdictWorthy, sqlmock.AnyArg(), sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows(wishCols).
			AddRow("w1", "wallet", "a", "", "WORTHY", 95, int64(1_000_000), "LEGENDARY", false, "sig", time.Now()))

	out, err := s.ListWinners(context.Background(), WinnerQuery{Since: since, Before: before, ByAmount: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Claimed())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRecentWinnerTexts(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT wish_text FROM wishes`).
		WithArgs(VerdictWorthy, 10).
		WillReturnRows(sqlmock.NewRows([]string{"wish_text"}).AddRow("peace").AddRow("a boat"))

	texts, err := s.RecentWinnerTexts(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"peace", "a boat"}, texts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLAdminLogs(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO admin_wish_logs`).WillReturnResult(sqlmock.NewResult(0, 1))
	_, err := s.InsertAdminLog(context.Background(), AdminWishLog{WalletAddress: "w", RawAIResponse: JSON{"test_mode": true}})
	require.NoError(t, err)

	cols := []string{"id", "wish_text", "wallet_address", "ip_address", "score", "verdict",
		"payout_tier", "payout_amount", "raw_ai_response", "tx_signature", "created_at"}
	mock.ExpectQuery(`FROM admin_wish_logs\s+ORDER BY created_at DESC\s+LIMIT \$1`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("l1", "wish", "w", "", 99, "WORTHY", "MYTHIC", int64(5_000_000), []byte(`{"dev_mode":true,"code":"193675193675"}`), nil, time.Now()))

	logs, err := s.ListAdminLogs(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, true, logs[0].RawAIResponse["dev_mode"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLHoard(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`(?s)INSERT INTO hoard_accounts .*ON CONFLICT \(id\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SaveHoard(context.Background(), HoardRecord{State: []byte{1}, Reserve: 7}))

	mock.ExpectQuery(`SELECT id, state, reserve, updated_at FROM hoard_accounts WHERE id = \$1`).
		WithArgs(DefaultHoardID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "state", "reserve", "updated_at"}).
			AddRow(DefaultHoardID, []byte{1, 0}, int64(7), time.Now()))
	rec, err := s.LoadHoard(context.Background(), DefaultHoardID)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rec.Reserve)
	assert.Equal(t, []byte{1, 0}, rec.State)

	mock.ExpectQuery(`FROM hoard_accounts`).
		WithArgs("none").
		WillReturnRows(sqlmock.NewRows([]string{"id", "state", "reserve", "updated_at"}))
	_, err = s.LoadHoard(context.Background(), "none")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "sqlite", "file::memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, migrations.Apply(ctx, s.DB().DB, migrations.DialectSQLite))

	w, err := s.CreateWish(ctx, Wish{WalletAddress: "wallet", WishText: "world peace", Verdict: VerdictWorthy, Score: 80,
		PayoutAmount: Uint64Ptr(210_000), PayoutTier: StringPtr("RARE")})
	require.NoError(t, err)

	got, err := s.GetWish(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(210_000), got.Amount())
	assert.False(t, got.Claimed())

	require.NoError(t, s.SetWishSignature(ctx, w.ID, "sig"))
	got, err = s.GetWish(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Claimed())

	texts, err := s.RecentWinnerTexts(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"world peace"}, texts)

	require.NoError(t, s.SaveHoard(ctx, HoardRecord{State: []byte{1, 2, 3}, Reserve: 5}))
	require.NoError(t, s.SaveHoard(ctx, HoardRecord{State: []byte{4}, Reserve: 6}))
	rec, err := s.LoadHoard(ctx, DefaultHoardID)
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, rec.State)
	assert.Equal(t, uint64(6), rec.Reserve)
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	s, err := Open(ctx, "postgres", dsn)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, migrations.Up(ctx, s.DB().DB, migrations.DialectPostgres))

	w, err := s.CreateWish(ctx, Wish{WalletAddress: "wallet", WishText: "integration", Verdict: VerdictUnworthy})
	require.NoError(t, err)
	_, ok, err := s.LatestWishByWallet(ctx, "wallet", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, s.SetWishSignature(ctx, w.ID, "sig"))
}
