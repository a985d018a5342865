package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/ledgersim/internal/bank"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesBankingMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.LoanDecision("alpha", "")
	metrics.LoanDecision("alpha", bank.RefusedCapital)
	metrics.LoanWrittenOff("alpha", 1500)
	metrics.BankZombie("beta")
	metrics.InterbankLoan("alpha", 1200)

	body := scrape(t, metrics)
	for _, want := range []string{
		`ledgersim_loan_decisions_total{bank="alpha",outcome="approved"} 1`,
		`ledgersim_loan_decisions_total{bank="alpha",outcome="capital"} 1`,
		`ledgersim_loan_written_off_total{bank="alpha"} 1500`,
		`ledgersim_bank_zombie{bank="beta"} 1`,
		`ledgersim_interbank_lent_total{lender="alpha"} 1200`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %s, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.LoanDecision("alpha", bank.RefusedReserve)
	metrics.LoanWrittenOff("alpha", 10)
	metrics.BankZombie("alpha")
	metrics.InterbankLoan("alpha", 10)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/banks/{bankID}")

	req := httptest.NewRequest(http.MethodGet, "/banks/alpha", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "ledgersim_http_requests_total{code=\"418\",route=\"/banks/{bankID}\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "ledgersim_http_request_duration_seconds_bucket{route=\"/banks/{bankID}\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}
