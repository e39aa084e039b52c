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

func TestNewIsIndependent(t *testing.T) {
	a := New()
	b := New()

	a.ObserveCoinGecko("batch", time.Now(), nil)
	if got := testutil.ToFloat64(a.CoinGeckoRequests.WithLabelValues("success", "batch")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(b.CoinGeckoRequests.WithLabelValues("success", "batch")); got != 0 {
		t.Fatalf("registries should not share state, got %v", got)
	}
}

func TestObserveMessariFailure(t *testing.T) {
	m := New()
	m.ObserveMessari(time.Now(), errors.New("boom"))
	if got := testutil.ToFloat64(m.MessariRequests.WithLabelValues("failure")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestHandlerExposesSeries(t *testing.T) {
	m := New()
	m.SchedulerSuccess.Inc()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "scheduler_task_success_total 1") {
		t.Fatalf("expected scheduler counter in output")
	}
}
