package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	allocations     *prometheus.CounterVec
	invoices        *prometheus.CounterVec
	voids           prometheus.Counter
	payments        *prometheus.CounterVec
	rangePending    *prometheus.GaugeVec
}

// NewMetrics initialises the registry with HTTP and fiscal metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscalpos_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiscalpos_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscalpos_correlatives_allocated_total",
		Help: "Fiscal correlatives handed out per CAI range.",
	}, []string{"range"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscalpos_invoices_total",
		Help: "Invoices issued by status at creation.",
	}, []string{"status"})
	voids := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fiscalpos_invoice_voids_total",
		Help: "Invoices voided.",
	})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscalpos_invoice_payments_total",
		Help: "Payments applied to existing invoices by resulting status.",
	}, []string{"status"})
	pending := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fiscalpos_fiscal_range_pending",
		Help: "Correlatives left in each active CAI range.",
	}, []string{"range"})
	registry.MustRegister(requests, duration, allocations, invoices, voids, payments, pending)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		allocations:     allocations,
		invoices:        invoices,
		voids:           voids,
		payments:        payments,
		rangePending:    pending,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
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

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// CorrelativeAllocated counts one correlative taken from rangeID and
// publishes the range's remaining capacity.
func (m *Metrics) CorrelativeAllocated(rangeID, pending int64) {
	if m == nil {
		return
	}
	label := strconv.FormatInt(rangeID, 10)
	m.allocations.WithLabelValues(label).Inc()
	m.rangePending.WithLabelValues(label).Set(float64(pending))
}

// SetRangePending publishes the remaining capacity of a range.
func (m *Metrics) SetRangePending(rangeID, pending int64) {
	if m == nil {
		return
	}
	m.rangePending.WithLabelValues(strconv.FormatInt(rangeID, 10)).Set(float64(pending))
}

// InvoiceIssued counts an invoice by its status at creation.
func (m *Metrics) InvoiceIssued(status string) {
	if m == nil {
		return
	}
	m.invoices.WithLabelValues(status).Inc()
}

// PaymentApplied counts a payment by the invoice status it left behind.
func (m *Metrics) PaymentApplied(status string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
}

// InvoiceVoided counts a void.
func (m *Metrics) InvoiceVoided() {
	if m == nil {
		return
	}
	m.voids.Inc()
}

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
