package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsMiddleware_Basic(t *testing.T) {
	mw := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	before := testutil.CollectAndCount(HTTPRequestsTotal)
	rw := httptest.NewRecorder()
	mw.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/jobs/j1", nil))
	if rw.Code != http.StatusNoContent {
		t.Fatalf("status: got %d", rw.Code)
	}
	if after := testutil.CollectAndCount(HTTPRequestsTotal); after <= before {
		t.Fatalf("request counter not incremented: before=%d after=%d", before, after)
	}
}

func TestBusMetricHelpers(t *testing.T) {
	RecordPublish("job.jd.submitted")
	RecordConsume("job.jd.submitted", "jd-extractors", "ok")
	RecordRedelivery("job.jd.submitted")
	RecordDLQ("job.jd.submitted")

	if got := testutil.ToFloat64(BusPublishedTotal.WithLabelValues("job.jd.submitted")); got < 1 {
		t.Fatalf("published counter: got %v", got)
	}
	if got := testutil.ToFloat64(BusConsumedTotal.WithLabelValues("job.jd.submitted", "jd-extractors", "ok")); got < 1 {
		t.Fatalf("consumed counter: got %v", got)
	}
	if got := testutil.ToFloat64(BusDLQTotal.WithLabelValues("job.jd.submitted")); got < 1 {
		t.Fatalf("dlq counter: got %v", got)
	}
}

func TestObserveMatchScore_IgnoresOutOfRange(t *testing.T) {
	before := testutil.CollectAndCount(MatchScoreHistogram)
	ObserveMatchScore("strongMatch", 101)
	ObserveMatchScore("noMatch", -1)
	if after := testutil.CollectAndCount(MatchScoreHistogram); after != before {
		t.Fatalf("out-of-range scores must not be observed")
	}
	ObserveMatchScore("match", 72.5)
	if after := testutil.CollectAndCount(MatchScoreHistogram); after <= before {
		t.Fatalf("in-range score not observed")
	}
}
