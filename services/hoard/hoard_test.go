package hoardsvc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rub-lamp/oracle_layer/internal/hoard"
	"github.com/rub-lamp/oracle_layer/internal/metrics"
	"github.com/rub-lamp/oracle_layer/internal/store"
)

type staticBalance struct {
	balance float64
	err     error
}

func (b staticBalance) Balance(context.Context) (float64, error) { return b.balance, b.err }

func authority() solana.PublicKey {
	var k solana.PublicKey
	for i := range k {
		k[i] = byte(i + 1)
	}
	return k
}

func newTestHoard(t *testing.T, treasury BalanceSource) (*Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	svc, err := New(Config{Store: st, Authority: authority(), Treasury: treasury, Metrics: metrics.New()})
	require.NoError(t, err)
	return svc, st
}

func TestLoadMissingAccount(t *testing.T) {
	svc, _ := newTestHoard(t, nil)
	snap, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Hoard.State.IsInitialized)
	assert.Zero(t, snap.Hoard.Reserve)
}

func TestInitializeRefillGrant(t *testing.T) {
	svc, st := newTestHoard(t, nil)
	ctx := context.Background()

	_, err := svc.Refill(ctx, 100)
	assert.ErrorIs(t, err, hoard.ErrUninitialized)

	h, err := svc.Initialize(ctx)
	require.NoError(t, err)
	assert.True(t, h.State.IsInitialized)
	assert.Equal(t, authority(), h.State.Authority)

	_, err = svc.Initialize(ctx)
	assert.ErrorIs(t, err, hoard.ErrAlreadyInitialized)

	_, err = svc.Refill(ctx, 1_000_000)
	require.NoError(t, err)

	res, err := svc.Grant(ctx, 250_000, 75)
	require.NoError(t, err)
	assert.Equal(t, uint64(750_000), res.Hoard.Reserve)
	assert.Equal(t, uint64(250_000), res.Hoard.State.TotalPayouts)

	ix, err := hoard.DecodeInstruction(res.Instruction)
	require.NoError(t, err)
	assert.Equal(t, hoard.GrantWish{Amount: 250_000, Score: 75}, ix)

	rec, err := st.LoadHoard(ctx, store.DefaultHoardID)
	require.NoError(t, err)
	assert.Len(t, rec.State, hoard.HoardStateSize)
	assert.Equal(t, uint64(750_000), rec.Reserve)
}

func TestGrantRejections(t *testing.T) {
	svc, _ := newTestHoard(t, nil)
	ctx := context.Background()
	_, err := svc.Initialize(ctx)
	require.NoError(t, err)
	_, err = svc.Refill(ctx, 100)
	require.NoError(t, err)

	_, err = svc.Grant(ctx, 1_000, 75)
	assert.ErrorIs(t, err, hoard.ErrInsufficientReserve)
	_, err = svc.Grant(ctx, 10, 300)
	assert.ErrorIs(t, err, hoard.ErrInvalidScore)
	_, err = svc.Grant(ctx, 10, 10)
	assert.ErrorIs(t, err, hoard.ErrUnworthyScore)

	snap, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), snap.Hoard.Reserve)
}

func TestInitializeWithoutAuthority(t *testing.T) {
	svc, err := New(Config{Store: store.NewMemory()})
	require.NoError(t, err)
	_, err = svc.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrNoAuthority)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	svc, _ := newTestHoard(t, staticBalance{balance: 42_500_000.75})
	require.NoError(t, svc.Reconcile(ctx))
	snap, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42_500_000), snap.Hoard.Reserve)

	svc, _ = newTestHoard(t, staticBalance{})
	require.NoError(t, svc.Reconcile(ctx))
	snap, err = svc.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Hoard.Reserve)

	svc, _ = newTestHoard(t, staticBalance{err: errors.New("rpc down")})
	assert.Error(t, svc.Reconcile(ctx))
}

func TestReconcileClampsToCap(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestHoard(t, staticBalance{balance: 120_000_000})
	_, err := svc.Initialize(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Reconcile(ctx))
	snap, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, svc.processor.Cap, snap.Hoard.Reserve)

	_, err = svc.Refill(ctx, 1)
	assert.ErrorIs(t, err, hoard.ErrHoardCapExceeded)

	_, err = svc.Grant(ctx, 500_000, 90)
	require.NoError(t, err)
	h, err := svc.Refill(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, svc.processor.Cap-500_000+1, h.Reserve)
}

func TestEnsureInitialized(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestHoard(t, nil)

	h, err := svc.EnsureInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, h.State.IsInitialized)

	_, err = svc.Refill(ctx, 10)
	require.NoError(t, err)
	h, err = svc.EnsureInitialized(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), h.Reserve)

	none, err := New(Config{Store: store.NewMemory()})
	require.NoError(t, err)
	_, err = none.EnsureInitialized(ctx)
	assert.ErrorIs(t, err, ErrNoAuthority)
}

func TestHandlers(t *testing.T) {
	svc, _ := newTestHoard(t, nil)
	r := mux.NewRouter()
	svc.RegisterRoutes(r)
	svc.RegisterAdminRoutes(r.PathPrefix("/admin").Subrouter())

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	rec := do(http.MethodPost, "/admin/hoard/refill", `{"amount":5}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(http.MethodPost, "/admin/hoard/init", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodPost, "/admin/hoard/refill", `{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPost, "/admin/hoard/refill", `{"amount":95000000}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPost, "/admin/hoard/refill", `{"amount":5000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodGet, "/hoard", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view AccountView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.Initialized)
	assert.Equal(t, authority().String(), view.Authority)
	assert.Equal(t, uint64(5000), view.Reserve)
	assert.Equal(t, hoard.HoardStateSize, view.AccountSpace)
	assert.Equal(t, hoard.RentExemptionLamports(hoard.HoardStateSize), view.RentExemptionLamports)

	raw, err := base64.StdEncoding.DecodeString(view.AccountData)
	require.NoError(t, err)
	state, err := hoard.DecodeState(raw)
	require.NoError(t, err)
	assert.Equal(t, authority(), state.Authority)
}
