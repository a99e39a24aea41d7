package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New("spotex_test")

	m.OrderSubmitted("buy")
	m.OrderSubmitted("buy")
	m.OrderSubmitted("sell")
	m.OrderRejected("validation")
	m.TradesExecuted(3)
	m.TradesExecuted(0) // no-op
	m.ObserveMatch(5 * time.Millisecond)

	if got := testutil.ToFloat64(m.ordersSubmitted.WithLabelValues("buy")); got != 2 {
		t.Errorf("orders_submitted_total{side=buy} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ordersSubmitted.WithLabelValues("sell")); got != 1 {
		t.Errorf("orders_submitted_total{side=sell} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ordersRejected.WithLabelValues("validation")); got != 1 {
		t.Errorf("orders_rejected_total{reason=validation} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tradesExecuted); got != 3 {
		t.Errorf("trades_executed_total = %v, want 3", got)
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.OrderSubmitted("buy")
	m.OrderRejected("validation")
	m.TradesExecuted(1)
	m.ObserveMatch(time.Millisecond)
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New("spotex_test")
	m.OrderSubmitted("buy")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "spotex_test_orders_submitted_total") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}
