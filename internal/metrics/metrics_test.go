package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHTTPRequest(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("oracle", "POST", "/judge-wish", "200", 20*time.Millisecond)
	m.RecordHTTPRequest("oracle", "POST", "/judge-wish", "200", 30*time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("oracle", "POST", "/judge-wish", "200")); got != 2 {
		t.Fatalf("requests_total = %v, want 2", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.RecordJudgment("WORTHY", "RARE")
	m.RecordJudgment("UNWORTHY", "")
	m.RecordJudgeCall("anthropic", time.Second, errors.New("timeout"))
	m.RecordJudgeCall("anthropic", time.Second, nil)
	m.RecordGuardRejection("cooldown")
	m.RecordClaim("success")
	m.RecordSettlement("RARE", 250_000, 2)
	m.SetTreasuryBalance(12_345)
	m.SetHoard(80_000_000, 10_000_000)
	m.RecordJobRun("", time.Millisecond, true)

	if got := testutil.ToFloat64(m.judgments.WithLabelValues("UNWORTHY", "none")); got != 1 {
		t.Errorf("unworthy judgments = %v", got)
	}
	if got := testutil.ToFloat64(m.judgeErrors.WithLabelValues("anthropic")); got != 1 {
		t.Errorf("judge errors = %v", got)
	}
	if got := testutil.ToFloat64(m.payoutTokens.WithLabelValues("RARE")); got != 250_000 {
		t.Errorf("payout tokens = %v", got)
	}
	if got := testutil.ToFloat64(m.treasuryBalance); got != 12_345 {
		t.Errorf("treasury balance = %v", got)
	}
	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("unknown", "true")); got != 1 {
		t.Errorf("job runs = %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.RecordClaim("already_claimed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `oracle_layer_claim_claims_total{outcome="already_claimed"} 1`) {
		t.Fatalf("metric missing from output")
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordClaim("success")
	if got := testutil.ToFloat64(b.claims.WithLabelValues("success")); got != 0 {
		t.Fatalf("registries share state: %v", got)
	}
}
