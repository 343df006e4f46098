package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/payment"
)

// Metrics holds the payment collectors. Each instance registers on the
// registerer it is given so tests can use a private registry.
type Metrics struct {
	transitions *prometheus.CounterVec
	remoteCalls *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "session_transitions_total",
			Help:      "Payment session status transitions.",
		}, []string{"from", "to"}),
		remoteCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "payments",
			Name:      "open_payments_request_duration_seconds",
			Help:      "Latency of signed Open Payments requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}
	reg.MustRegister(m.transitions, m.remoteCalls)
	return m
}

func (m *Metrics) ObserveTransition(_ context.Context, t payment.Transition) {
	from := string(t.From)
	if from == "" {
		from = "NONE"
	}
	m.transitions.WithLabelValues(from, string(t.To)).Inc()
}

// RoundTripper times every outbound request. Transport errors are recorded
// with code "error".
func (m *Metrics) RoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(req)
		code := "error"
		if err == nil {
			code = strconv.Itoa(resp.StatusCode)
		}
		m.remoteCalls.WithLabelValues(req.Method, code).Observe(time.Since(start).Seconds())
		return resp, err
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
