package claim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rub-lamp/oracle_layer/internal/locks"
	"github.com/rub-lamp/oracle_layer/internal/metrics"
	"github.com/rub-lamp/oracle_layer/internal/settlement"
	"github.com/rub-lamp/oracle_layer/internal/store"
	hoardsvc "github.com/rub-lamp/oracle_layer/services/hoard"
)

const testWallet = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

type feedSpy struct{ events []string }

func (f *feedSpy) Publish(event string, w store.Wish) int {
	f.events = append(f.events, event+":"+w.ID)
	return 1
}

type fixture struct {
	svc    *Service
	store  *store.Memory
	driver *settlement.MockDriver
	locks  *locks.Memory
	hoard  *hoardsvc.Service
	feed   *feedSpy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:  store.NewMemory(),
		driver: settlement.NewMockDriver(),
		locks:  locks.NewMemory(),
		feed:   &feedSpy{},
	}

	authority := solana.PublicKeyFromBytes([]byte(strings.Repeat("a", 32)))
	hs, err := hoardsvc.New(hoardsvc.Config{Store: f.store, Authority: authority})
	require.NoError(t, err)
	_, err = hs.Initialize(ctx)
	require.NoError(t, err)
	_, err = hs.Refill(ctx, 10_000_000)
	require.NoError(t, err)
	f.hoard = hs

	f.svc, err = New(Config{
		Store:   f.store,
		Locks:   f.locks,
		Driver:  f.driver,
		Hoard:   hs,
		Feed:    f.feed,
		Metrics: metrics.New(),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) wish(t *testing.T, id, verdict string, amount uint64) {
	t.Helper()
	w := store.Wish{
		ID:            id,
		WalletAddress: testWallet,
		WishText:      "wish " + id,
		Verdict:       verdict,
		Score:         75,
		CreatedAt:     time.Now().UTC(),
	}
	if amount > 0 {
		w.PayoutAmount = store.Uint64Ptr(amount)
		w.PayoutTier = store.StringPtr("RARE")
	}
	_, err := f.store.CreateWish(context.Background(), w)
	require.NoError(t, err)
	_, err = f.store.InsertAdminLog(context.Background(), store.AdminWishLog{
		WishText: w.WishText, WalletAddress: testWallet, Verdict: verdict, CreatedAt: w.CreatedAt,
	})
	require.NoError(t, err)
}

func TestClaimSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.wish(t, "w1", store.VerdictWorthy, 250_000)

	res, err := f.svc.Claim(ctx, Request{WishID: "w1", WalletAddress: testWallet})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.AlreadyClaimed)
	assert.Equal(t, uint64(250_000), res.Amount)
	assert.True(t, strings.HasPrefix(res.TxSignature, "mock_"))

	saved, err := f.store.GetWish(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, saved.TxSignature)
	assert.Equal(t, res.TxSignature, *saved.TxSignature)

	logs, err := f.store.ListAdminLogs(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, logs[0].TxSignature)
	assert.Equal(t, res.TxSignature, *logs[0].TxSignature)

	snap, err := f.hoard.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(250_000), snap.Hoard.State.TotalPayouts)
	assert.Equal(t, uint64(9_750_000), snap.Hoard.Reserve)

	assert.Equal(t, []string{"CLAIMED:w1"}, f.feed.events)

	executed := f.driver.Executed()
	require.Len(t, executed, 1)
	assert.Equal(t, testWallet, executed[0].Recipient)
}

func TestClaimIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.wish(t, "w1", store.VerdictWorthy, 250_000)

	first, err := f.svc.Claim(ctx, Request{WishID: "w1", WalletAddress: testWallet})
	require.NoError(t, err)
	second, err := f.svc.Claim(ctx, Request{WishID: "w1", WalletAddress: testWallet})
	require.NoError(t, err)

	assert.True(t, second.AlreadyClaimed)
	assert.Equal(t, first.TxSignature, second.TxSignature)
	assert.Len(t, f.driver.Executed(), 1)
}

func TestClaimRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.wish(t, "worthy", store.VerdictWorthy, 250_000)
	f.wish(t, "unworthy", store.VerdictUnworthy, 0)
	f.wish(t, "empty", store.VerdictWorthy, 0)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"missing wish", Request{WalletAddress: testWallet}, ErrMissingFields},
		{"missing wallet", Request{WishID: "worthy"}, ErrMissingFields},
		{"unknown wish", Request{WishID: "nope", WalletAddress: testWallet}, ErrNotEligible},
		{"other wallet", Request{WishID: "worthy", WalletAddress: "someone-else"}, ErrNotEligible},
		{"unworthy", Request{WishID: "unworthy", WalletAddress: testWallet}, ErrNotEligible},
		{"no payout", Request{WishID: "empty", WalletAddress: testWallet}, ErrNoPayout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Claim(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.driver.Executed())
}

func TestClaimLockHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.wish(t, "w1", store.VerdictWorthy, 250_000)

	lease, err := f.locks.Acquire(ctx, "claim:w1", time.Minute)
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, Request{WishID: "w1", WalletAddress: testWallet})
	assert.ErrorIs(t, err, ErrClaimInProgress)

	require.NoError(t, lease.Release(ctx))
	_, err = f.svc.Claim(ctx, Request{WishID: "w1", WalletAddress: testWallet})
	assert.NoError(t, err)
}

func TestClaimWithoutDriver(t *testing.T) {
	f := newFixture(t)
	f.wish(t, "w1", store.VerdictWorthy, 250_000)
	svc, err := New(Config{Store: f.store})
	require.NoError(t, err)

	_, err = svc.Claim(context.Background(), Request{WishID: "w1", WalletAddress: testWallet})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, http.StatusInternalServerError, ToServiceError(err).HTTPStatus)
}

func TestClaimDriverFailures(t *testing.T) {
	tests := []struct {
		name       string
		prepareErr error
		executeErr error
		want       error
		status     int
		code       string
	}{
		{"treasury", fmt.Errorf("treasury ata: %w", settlement.ErrTreasuryNotFunded), nil, ErrTreasuryNotFunded, http.StatusServiceUnavailable, "TREASURY_NOT_FUNDED"},
		{"recipient", settlement.ErrRecipientAccount, nil, ErrRecipientAccount, http.StatusInternalServerError, "RECIPIENT_ACCOUNT_FAILED"},
		{"exhausted", nil, settlement.ErrAttemptsExhausted, ErrSettlementFailed, http.StatusInternalServerError, "SETTLEMENT_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.wish(t, "w1", store.VerdictWorthy, 250_000)
			f.driver.PrepareErr = tt.prepareErr
			f.driver.ExecuteErr = tt.executeErr

			_, err := f.svc.Claim(context.Background(), Request{WishID: "w1", WalletAddress: testWallet})
			require.ErrorIs(t, err, tt.want)

			se := ToServiceError(err)
			assert.Equal(t, tt.status, se.HTTPStatus)
			assert.Equal(t, tt.code, string(se.Code))

			saved, err := f.store.GetWish(context.Background(), "w1")
			require.NoError(t, err)
			assert.False(t, saved.Claimed())
			assert.Empty(t, f.feed.events)
		})
	}
}

func TestClaimAbortsOnExecuteFailure(t *testing.T) {
	f := newFixture(t)
	f.wish(t, "w1", store.VerdictWorthy, 250_000)
	f.driver.ExecuteErr = settlement.ErrAttemptsExhausted

	_, err := f.svc.Claim(context.Background(), Request{WishID: "w1", WalletAddress: testWallet})
	require.Error(t, err)
	assert.Len(t, f.driver.Aborted(), 1)

	// The lock is released so the user can retry.
	f.driver.ExecuteErr = nil
	_, err = f.svc.Claim(context.Background(), Request{WishID: "w1", WalletAddress: testWallet})
	assert.NoError(t, err)
}

func TestClaimHandler(t *testing.T) {
	f := newFixture(t)
	f.wish(t, "w1", store.VerdictWorthy, 250_000)
	r := mux.NewRouter()
	f.svc.RegisterRoutes(r)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/claim-reward", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"wishId":"w1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing wishId or walletAddress")

	rec = post(`{"wishId":"nope","walletAddress":"` + testWallet + `"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.driver.ExecuteErr = settlement.ErrAttemptsExhausted
	rec = post(`{"wishId":"w1","walletAddress":"` + testWallet + `"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var failed errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	assert.True(t, failed.Retryable)

	f.driver.ExecuteErr = nil
	rec = post(`{"wishId":"w1","walletAddress":"` + testWallet + `"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var ok Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.True(t, ok.Success)
	assert.Equal(t, uint64(250_000), ok.Amount)

	rec = post(`{"wishId":"w1","walletAddress":"` + testWallet + `"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"already_claimed":true`)
}
