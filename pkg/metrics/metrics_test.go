package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shoenig/test/must"

	"github.com/abennett/rollbot/pkg/dice"
)

func TestRecordEvaluation(t *testing.T) {
	m := New()
	roller := dice.New(dice.NewSeededSource(1))

	m.RecordEvaluation(roller.Evaluate("4d6"))
	m.RecordEvaluation(roller.Evaluate("2d8*3"))
	m.RecordEvaluation(roller.Evaluate("hello"))
	m.RecordEvaluation(roller.Evaluate("d0"))
	m.RecordBot()

	must.EqOp(t, 2.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(ResultRolled)))
	must.EqOp(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(ResultNotDice)))
	must.EqOp(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(ResultInvalidSize)))
	must.EqOp(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(ResultBot)))
	must.EqOp(t, 10.0, testutil.ToFloat64(m.DiceRolledTotal))
}

func TestMiddleware(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/metrics", m.Handler().ServeHTTP)

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/things/7")
	must.NoError(t, err)
	resp.Body.Close()
	must.EqOp(t, http.StatusTeapot, resp.StatusCode)

	must.EqOp(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/things/{id}", "418")))

	resp, err = http.Get(srv.URL + "/metrics")
	must.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	must.NoError(t, err)
	must.True(t, strings.Contains(string(b), "rollbot_http_requests_total"))
}
