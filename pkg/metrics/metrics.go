// Package metrics provides Prometheus instrumentation for the roll server.
//
// All metrics are registered in a custom [prometheus.Registry] so that only
// rollbot metrics appear on the /metrics endpoint.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abennett/rollbot/pkg/dice"
)

// Evaluation outcomes used as the "result" label.
const (
	ResultRolled      = "rolled"
	ResultNotDice     = "not_dice"
	ResultInvalidSize = "invalid_size"
	ResultBot         = "bot"
)

// Metrics holds all Prometheus collectors used by the roll server.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	EvaluationsTotal    *prometheus.CounterVec
	DiceRolledTotal     prometheus.Counter
	ActiveSessions      prometheus.Gauge
	DroppedUpdatesTotal prometheus.Counter
}

// New creates and registers all metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollbot_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollbot_evaluations_total",
			Help: "Total number of evaluated chat lines by outcome.",
		}, []string{"result"}),

		DiceRolledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollbot_dice_rolled_total",
			Help: "Total number of dice rolled, rerolls excluded.",
		}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rollbot_active_sessions",
			Help: "Number of connected websocket sessions.",
		}),

		DroppedUpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollbot_dropped_updates_total",
			Help: "Total number of room updates dropped because a session was not reading.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.EvaluationsTotal,
		m.DiceRolledTotal,
		m.ActiveSessions,
		m.DroppedUpdatesTotal,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordEvaluation counts one evaluation and the dice it rolled.
func (m *Metrics) RecordEvaluation(res dice.Result, err error) {
	switch {
	case errors.Is(err, dice.ErrInvalidDiceSize):
		m.EvaluationsTotal.WithLabelValues(ResultInvalidSize).Inc()
	case err != nil:
		m.EvaluationsTotal.WithLabelValues(ResultNotDice).Inc()
	default:
		m.EvaluationsTotal.WithLabelValues(ResultRolled).Inc()
		var n int
		for _, it := range res.Iterations {
			n += len(it.Rolls)
		}
		m.DiceRolledTotal.Add(float64(n))
	}
}

// RecordBot counts a request ignored because a bot sent it.
func (m *Metrics) RecordBot() {
	m.EvaluationsTotal.WithLabelValues(ResultBot).Inc()
}

// Middleware counts requests by chi route pattern and status.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := "hijacked"
		if ww.Status() != 0 {
			status = strconv.Itoa(ww.Status())
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}
