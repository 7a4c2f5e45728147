package server

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abennett/rollbot/pkg/dice"
)

const (
	// longest chat line accepted by /roll
	maxExpressionBytes = dice.MaxExpressionLength

	// largest frame a session may send, leaving room for the envelope and
	// user name
	maxFrameBytes = maxExpressionBytes + 1<<10
)

func health(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// handleRoll evaluates the expression in the expr query parameter, or in
// the body of a POST, and answers 204 when it is not a dice expression.
// Expressions over maxExpressionBytes are refused with 413.
func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("expr")
	if r.Method == http.MethodPost {
		b, err := io.ReadAll(io.LimitReader(r.Body, maxExpressionBytes+1))
		if err != nil {
			http.Error(w, "unable to read body", http.StatusBadRequest)
			return
		}
		expr = string(b)
	}
	if len(expr) > maxExpressionBytes {
		http.Error(w, "expression too long", http.StatusRequestEntityTooLarge)
		return
	}

	res, err := s.roller.Evaluate(expr)
	s.metrics.RecordEvaluation(res, err)
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(res.String()))
}

func NewMux(server *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.DefaultLogger)
	r.Use(server.metrics.Middleware)
	r.Get("/health", health)
	r.Get("/metrics", server.metrics.Handler().ServeHTTP)
	r.Get("/roll", server.handleRoll)
	r.Post("/roll", server.handleRoll)
	r.Get("/{roomName}", server.ServeHTTP)
	return r
}
