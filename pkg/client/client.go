package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/rollbot/pkg/messages"
)

var (
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrClosed           = errors.New("connection closed")
)

type Client struct {
	mu   *sync.Mutex
	user string

	conn     *websocket.Conn
	logger   *slog.Logger
	messages chan messages.Message
	done     chan struct{}
	err      error

	Room messages.RoomState
}

// connectLoop dials wsUrl, following up to three redirects. The dialer
// reports a redirect as a bad handshake carrying the response.
func connectLoop(wsUrl string) (*websocket.Conn, error) {
	for range 3 {
		slog.Debug("attempting connection", "url", wsUrl)
		conn, resp, err := websocket.DefaultDialer.Dial(wsUrl, nil)
		slog.Debug("connection attempted",
			"resp", resp,
			"error", err)
		if err == nil {
			return conn, nil
		}
		if !errors.Is(err, websocket.ErrBadHandshake) || resp == nil || !isRedirect(resp.StatusCode) {
			if resp != nil {
				_, _ = io.Copy(os.Stderr, resp.Body)
			}
			return nil, err
		}
		wsUrl, err = redirectUrl(wsUrl, resp.Header.Get("Location"))
		if err != nil {
			return nil, err
		}
		slog.Debug("redirecting", "location", wsUrl)
	}

	return nil, ErrTooManyRedirects
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

// redirectUrl resolves location against the url that returned it and maps
// http schemes to their websocket counterparts.
func redirectUrl(wsUrl, location string) (string, error) {
	base, err := url.Parse(wsUrl)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid redirect location %q: %w", location, err)
	}
	next := base.ResolveReference(ref)
	switch next.Scheme {
	case "https":
		next.Scheme = "wss"
	case "http":
		next.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%s is not a valid protocol", next.Scheme)
	}
	return next.String(), nil
}

func hostUrl(endpoint, room string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	var scheme string
	switch parsed.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("%s is not a valid protocol", parsed.Scheme)
	}
	parsed.Scheme = scheme
	parsed.Path = "/" + room
	return parsed.String(), nil
}

// New connects to room on host. Client logs go to logWriter, or nowhere
// when it is nil.
func New(host, room, user string, logWriter io.Writer) (*Client, error) {
	if logWriter == nil {
		logWriter = io.Discard
	}
	h := slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(h).With("user", user, "room", room)

	endpoint, err := hostUrl(host, room)
	if err != nil {
		return nil, err
	}
	logger.Debug("using endpoint", "endpoint", endpoint)

	conn, err := connectLoop(endpoint)
	if err != nil {
		return nil, err
	}

	return &Client{
		mu:       new(sync.Mutex),
		user:     user,
		logger:   logger,
		conn:     conn,
		messages: make(chan messages.Message, 1),
		done:     make(chan struct{}),
		Room:     messages.RoomState{},
	}, nil
}

// Init joins the room, which rolls the room's default dice for the user,
// and starts reading updates.
func (c *Client) Init() error {
	c.logger.Debug("running Init")
	if err := c.send(messages.RollRequest{User: c.user}); err != nil {
		return err
	}
	go c.updateLoop(c.messages)
	return nil
}

// Roll sends a chat line to the room. Lines that are not dice expressions
// get no reply.
func (c *Client) Roll(expr string) error {
	return c.send(messages.RollRequest{User: c.user, Expression: expr})
}

func (c *Client) send(req messages.RollRequest) error {
	b, err := msgpack.Marshal(messages.NewRollRequest(req))
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err = c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("unable to write server: %w", err)
	}
	return nil
}

// State returns the latest room state received.
func (c *Client) State() messages.RoomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Room
}

// ReadUpdate blocks until the next room state arrives and returns its
// replies, or returns an error once the connection is gone.
func (c *Client) ReadUpdate() any {
	c.logger.Debug("reading update")
	select {
	case msg := <-c.messages:
		state, ok := msg.Payload.(messages.RoomState)
		if !ok {
			return fmt.Errorf("%w: %s", messages.ErrUnknownMessageType, msg.Type)
		}
		c.logger.Debug("room state message received", "version", state.Version)
		return state.Replies
	case <-c.done:
		if c.err != nil {
			return c.err
		}
		return ErrClosed
	}
}

func (c *Client) Close() error {
	c.logger.Debug("closing connection")
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err != nil {
		c.logger.Error("close control message failed", "error", err)
		return fmt.Errorf("close control message failed: %w", err)
	}
	return nil
}

func (c *Client) updateLoop(updates chan<- messages.Message) {
	defer close(c.done)
	c.logger.Debug("running update loop")
	for {
		t, b, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug("read loop finished", "error", err)
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.err = err
			}
			return
		}
		if t != websocket.BinaryMessage {
			continue
		}
		var msg messages.Message
		err = msgpack.Unmarshal(b, &msg)
		if err != nil {
			c.logger.Error("failed parsing message", "error", err, "payload", b)
			continue
		}
		c.logger.Debug("message received", "type", msg.Type)
		switch payload := msg.Payload.(type) {
		case messages.RoomState:
			c.logger.Debug("new room version", "version", payload.Version)
			c.mu.Lock()
			if payload.Version <= c.Room.Version {
				c.mu.Unlock()
				continue
			}
			c.Room = payload
			c.mu.Unlock()
		default:
			c.logger.Warn("unsupported message", "type", msg.Type)
			continue
		}
		// keep only the newest state for ReadUpdate
		select {
		case updates <- msg:
		default:
			select {
			case <-c.messages:
			default:
			}
			updates <- msg
		}
	}
}
