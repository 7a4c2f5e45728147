package server

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/rollbot/pkg/dice"
	"github.com/abennett/rollbot/pkg/messages"
	"github.com/abennett/rollbot/pkg/metrics"
)

const (
	PingInterval = 5 * time.Second

	// updates queued per session before new ones are dropped
	writeBuffer = 16

	niceNumber = "69"
)

type userSession struct {
	wg      *sync.WaitGroup
	logger  *slog.Logger
	id      string
	name    string
	writeCh chan []byte
}

type Room struct {
	mu           *sync.Mutex
	logger       *slog.Logger
	roller       *dice.Roller
	metrics      *metrics.Metrics
	history      int
	userSessions map[string]userSession

	// guarded by the server lock
	refs int

	Version int
	Name    string
	Dice    string
	Replies []messages.RollReply
}

func (r *Room) RunSession(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameBytes)
	_, b, err := conn.ReadMessage()
	if err != nil {
		r.logger.Error("failed to read initial message", "error", err)
		return
	}

	var msg messages.Message
	if err = msgpack.Unmarshal(b, &msg); err != nil {
		r.logger.Error("failed to parse initial message", "error", err, "payload", string(b))
		return
	}

	req, ok := msg.Payload.(messages.RollRequest)
	if !ok {
		r.logger.Error("initial message was incorrect", "type", msg.Type)
		return
	}

	id := uuid.NewString()
	r.logger.Debug("starting a session", "user", req.User, "session", id)
	session := userSession{
		wg:      new(sync.WaitGroup),
		logger:  r.logger.With("user", req.User, "session", id),
		id:      id,
		name:    req.User,
		writeCh: make(chan []byte, writeBuffer),
	}

	r.startUserSession(ctx, session, conn)

	if err = r.Handle(req); err != nil {
		session.logger.Error("failed handling initial roll", "error", err)
	}

	session.wg.Wait()
	r.stopUserSession(session)
	r.logger.Info("closing session", "active_sessions", r.sessionCount(), "user", req.User)
}

func (r *Room) startUserSession(ctx context.Context, session userSession, conn *websocket.Conn) {
	r.mu.Lock()
	r.userSessions[session.id] = session
	r.mu.Unlock()
	r.metrics.ActiveSessions.Inc()

	// Add to the waitGroup outside of goroutines here to avoid race condition on Add
	ctx, cancel := context.WithCancel(ctx)
	session.wg.Add(2)
	go r.userReadLoop(cancel, session, conn)
	go r.userWriteLoop(ctx, session, conn)
}

func (r *Room) stopUserSession(session userSession) {
	r.mu.Lock()
	delete(r.userSessions, session.id)
	r.mu.Unlock()
	r.metrics.ActiveSessions.Dec()
}

func (r *Room) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.userSessions)
}

func (r *Room) userReadLoop(cancel func(), session userSession, conn *websocket.Conn) {
	defer cancel()
	defer session.wg.Done()
	defer session.logger.Debug("closing read loop")

	for {
		t, b, err := conn.ReadMessage()
		if closeErr, ok := err.(*websocket.CloseError); ok {
			if closeErr.Code == websocket.CloseNormalClosure {
				session.logger.Info("close message received")
				return
			}
		}
		if err != nil {
			session.logger.Error("failure in user read loop", "error", err)
			return
		}

		switch t {
		case websocket.CloseMessage:
			session.logger.Info("close message received")
			return
		case websocket.BinaryMessage:
			session.logger.Debug("binary message received")
			if err := r.HandleBinaryMessage(b); err != nil {
				session.logger.Warn("ignoring message", "error", err)
			}
		}
	}
}

// HandleBinaryMessage decodes a frame sent by a session and handles it.
func (r *Room) HandleBinaryMessage(b []byte) error {
	var msg messages.Message
	if err := msgpack.Unmarshal(b, &msg); err != nil {
		return fmt.Errorf("%w: %w", messages.ErrMessageInvalid, err)
	}

	switch payload := msg.Payload.(type) {
	case messages.RollRequest:
		return r.Handle(payload)
	default:
		return fmt.Errorf("%w: %s", messages.ErrUnknownMessageType, msg.Type)
	}
}

// Handle evaluates a chat line. Lines from bots and lines that are not
// dice expressions produce no reply.
func (r *Room) Handle(req messages.RollRequest) error {
	logger := r.logger.With("user", req.User)
	if req.IsBot {
		r.metrics.RecordBot()
		logger.Debug("ignoring bot message")
		return nil
	}

	expr := req.Expression
	if strings.TrimSpace(expr) == "" {
		expr = r.Dice
	}
	res, err := r.roller.Evaluate(expr)
	r.metrics.RecordEvaluation(res, err)
	if err != nil {
		logger.Debug("no roll", "expression", expr, "reason", err)
		if req.Expression == niceNumber {
			return r.Update(messages.RollReply{
				User:       req.User,
				Expression: req.Expression,
				Text:       "nice",
			})
		}
		return nil
	}

	logger.Info("rolled", "expression", expr, "total", res.Total)
	return r.Update(messages.RollReply{
		User:       req.User,
		Expression: expr,
		Text:       res.String(),
		Total:      res.Total,
	})
}

func (r *Room) userWriteLoop(ctx context.Context, session userSession, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer session.wg.Done()
	defer session.logger.Debug("closing write loop")
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			session.logger.Debug("write loop is done")
			return
		case b := <-session.writeCh:
			session.logger.Debug("writing message")
			err := conn.WriteMessage(websocket.BinaryMessage, b)
			if err != nil {
				session.logger.Error("failed delivering update", "error", err)
				return
			}
		case <-ticker.C:
			session.logger.Debug("writing ping message")
			err := conn.WriteMessage(websocket.PingMessage, []byte{})
			if err == websocket.ErrCloseSent {
				session.logger.Debug("error close was sent")
				return
			}
			if err != nil {
				session.logger.Error("ping failed", "error", err)
				return
			}
		}
	}
}

func (r *Room) Update(update any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch u := update.(type) {
	case messages.RollReply:
		r.Replies = append(r.Replies, u)
		if over := len(r.Replies) - r.history; over > 0 {
			r.Replies = slices.Delete(r.Replies, 0, over)
		}
		r.logger.Debug("added reply", "active_sessions", len(r.userSessions), "user", u.User)
	default:
		err := fmt.Errorf("unknown update type: %T", update)
		r.logger.Error(err.Error())
		return err
	}

	r.Version++

	b, err := msgpack.Marshal(messages.NewState(r.toState()))
	if err != nil {
		r.logger.Error("failed marshalling room", "error", err)
		return err
	}

	for _, us := range r.userSessions {
		select {
		case us.writeCh <- b:
			us.logger.Debug("pushing update", "version", r.Version)
		default:
			us.logger.Warn("dropping update, session is not reading", "version", r.Version)
			r.metrics.DroppedUpdatesTotal.Inc()
		}
	}
	return nil
}

func (r *Room) ToState() messages.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.toState()
}

func (r *Room) toState() messages.RoomState {
	return messages.RoomState{
		Version: r.Version,
		Name:    r.Name,
		Dice:    r.Dice,
		Replies: slices.Clone(r.Replies),
	}
}
