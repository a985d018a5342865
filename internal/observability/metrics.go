package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/ledgersim/internal/bank"
)

// Metrics mengumpulkan metrik Prometheus untuk server dan simulasi bank.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	loanDecisions   *prometheus.CounterVec
	writtenOff      *prometheus.CounterVec
	zombies         *prometheus.GaugeVec
	interbankLent   *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgersim_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgersim_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgersim_loan_decisions_total",
		Help: "Keputusan permohonan pinjaman per bank dan hasil.",
	}, []string{"bank", "outcome"})
	writtenOff := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgersim_loan_written_off_total",
		Help: "Pokok pinjaman yang dihapusbukukan per bank.",
	}, []string{"bank"})
	zombies := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledgersim_bank_zombie",
		Help: "Bernilai 1 ketika ekuitas bank habis.",
	}, []string{"bank"})
	interbank := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgersim_interbank_lent_total",
		Help: "Cadangan yang dipinjamkan antar bank per pemberi pinjaman.",
	}, []string{"lender"})
	registry.MustRegister(requests, duration, decisions, writtenOff, zombies, interbank)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		loanDecisions:   decisions,
		writtenOff:      writtenOff,
		zombies:         zombies,
		interbankLent:   interbank,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// LoanDecision mencatat persetujuan atau alasan penolakan pinjaman.
func (m *Metrics) LoanDecision(bankID string, refusal bank.Refusal) {
	if m == nil {
		return
	}
	outcome := "approved"
	if refusal != "" {
		outcome = string(refusal)
	}
	m.loanDecisions.WithLabelValues(bankID, outcome).Inc()
}

// LoanWrittenOff menambah pokok yang dihapusbukukan.
func (m *Metrics) LoanWrittenOff(bankID string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.writtenOff.WithLabelValues(bankID).Add(float64(amount))
}

// BankZombie menandai bank yang ekuitasnya habis.
func (m *Metrics) BankZombie(bankID string) {
	if m == nil {
		return
	}
	m.zombies.WithLabelValues(bankID).Set(1)
}

// InterbankLoan mencatat cadangan yang dipinjamkan.
func (m *Metrics) InterbankLoan(lender string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.interbankLent.WithLabelValues(lender).Add(float64(amount))
}

var _ bank.Recorder = (*Metrics)(nil)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
