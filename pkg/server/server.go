package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/abennett/rollbot/pkg/dice"
	"github.com/abennett/rollbot/pkg/messages"
	"github.com/abennett/rollbot/pkg/metrics"
)

const (
	DefaultDice    = "1d20"
	DefaultHistory = 50
)

type Server struct {
	rw       *sync.RWMutex
	upgrader websocket.Upgrader

	roller      *dice.Roller
	metrics     *metrics.Metrics
	defaultDice string
	history     int

	rooms map[string]*Room
}

type Option func(*Server)

// WithRoller sets the roller shared by every room. Its source must be safe
// for concurrent use.
func WithRoller(r *dice.Roller) Option {
	return func(s *Server) {
		s.roller = r
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithDefaultDice sets the expression rolled for a request without one.
func WithDefaultDice(expr string) Option {
	return func(s *Server) {
		s.defaultDice = expr
	}
}

// WithHistory sets how many replies a room keeps.
func WithHistory(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.history = n
		}
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		rw:          &sync.RWMutex{},
		roller:      dice.New(dice.DefaultSource),
		defaultDice: DefaultDice,
		history:     DefaultHistory,
		rooms:       map[string]*Room{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s
}

func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomName := chi.URLParam(r, "roomName")
	if roomName == "" {
		http.Error(w, "room name is required", http.StatusBadRequest)
		return
	}
	slog.Info("serving request", "roomName", roomName)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrade failed", "room_name", roomName, "error", err)
		return
	}
	defer conn.Close()

	room := s.acquireRoom(roomName)
	defer s.releaseRoom(room)

	// Keep connection alive
	room.RunSession(r.Context(), conn)
}

// acquireRoom returns the named room, creating it on first use.
func (s *Server) acquireRoom(name string) *Room {
	s.rw.Lock()
	defer s.rw.Unlock()
	room, ok := s.rooms[name]
	if !ok {
		room = s.newRoom(name)
		s.rooms[name] = room
		slog.Info("opened room", "room", name)
	}
	room.refs++
	return room
}

// releaseRoom drops a reference and removes the room once it is unused.
func (s *Server) releaseRoom(room *Room) {
	s.rw.Lock()
	defer s.rw.Unlock()
	room.refs--
	if room.refs == 0 {
		delete(s.rooms, room.Name)
		slog.Info("closed room", "room", room.Name)
	}
}

func (s *Server) newRoom(name string) *Room {
	return &Room{
		mu:           new(sync.Mutex),
		logger:       slog.With("room", name),
		roller:       s.roller,
		metrics:      s.metrics,
		history:      s.history,
		userSessions: make(map[string]userSession),
		Version:      0,
		Name:         name,
		Dice:         s.defaultDice,
	}
}

// GetRooms snapshots the state of every open room.
func (s *Server) GetRooms() map[string]messages.RoomState {
	s.rw.RLock()
	defer s.rw.RUnlock()
	states := make(map[string]messages.RoomState, len(s.rooms))
	for name, room := range s.rooms {
		states[name] = room.ToState()
	}
	return states
}
