package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shoenig/test/must"
	"github.com/shoenig/test/wait"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/rollbot/pkg/dice"
	"github.com/abennett/rollbot/pkg/messages"
	"github.com/abennett/rollbot/pkg/metrics"
)

func testServer(opts ...Option) *Server {
	opts = append([]Option{WithRoller(dice.New(dice.NewSeededSource(1)))}, opts...)
	return NewServer(opts...)
}

func TestHandle(t *testing.T) {
	t.Parallel()
	srv := testServer()
	room := srv.newRoom("table")

	must.NoError(t, room.Handle(messages.RollRequest{User: "alice", Expression: "4d6k3"}))
	state := room.ToState()
	must.EqOp(t, 1, state.Version)
	must.SliceLen(t, 1, state.Replies)
	reply := state.Replies[0]
	must.EqOp(t, "alice", reply.User)
	must.EqOp(t, "4d6k3", reply.Expression)
	must.StrHasPrefix(t, "Rolling 4d6, keeping highest 3 rolls:\n", reply.Text)
	must.StrContains(t, reply.Text, "~~")
}

func TestHandle_NoReply(t *testing.T) {
	t.Parallel()
	srv := testServer()
	room := srv.newRoom("table")

	must.NoError(t, room.Handle(messages.RollRequest{User: "bot", Expression: "4d6", IsBot: true}))
	must.NoError(t, room.Handle(messages.RollRequest{User: "bob", Expression: "good game everyone"}))
	must.NoError(t, room.Handle(messages.RollRequest{User: "bob", Expression: "3d0"}))

	state := room.ToState()
	must.EqOp(t, 0, state.Version)
	must.SliceEmpty(t, state.Replies)

	m := srv.Metrics()
	must.EqOp(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(metrics.ResultBot)))
	must.EqOp(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(metrics.ResultNotDice)))
	must.EqOp(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(metrics.ResultInvalidSize)))
}

func TestHandle_Nice(t *testing.T) {
	t.Parallel()
	room := testServer().newRoom("table")

	must.NoError(t, room.Handle(messages.RollRequest{User: "gus", Expression: "69"}))
	must.NoError(t, room.Handle(messages.RollRequest{User: "gus", Expression: "6 9"}))
	state := room.ToState()
	must.SliceLen(t, 1, state.Replies)
	must.EqOp(t, "nice", state.Replies[0].Text)
	must.EqOp(t, 0, state.Replies[0].Total)
}

func TestHandle_DefaultDice(t *testing.T) {
	t.Parallel()
	srv := testServer(WithDefaultDice("2d6"))
	room := srv.newRoom("table")

	must.NoError(t, room.Handle(messages.RollRequest{User: "carol"}))
	state := room.ToState()
	must.SliceLen(t, 1, state.Replies)
	must.EqOp(t, "2d6", state.Replies[0].Expression)
	must.EqOp(t, "2d6", state.Dice)
}

func TestUpdate_HistoryIsCapped(t *testing.T) {
	t.Parallel()
	srv := testServer(WithHistory(3))
	room := srv.newRoom("table")

	for _, expr := range []string{"d4", "d6", "d8", "d10", "d12"} {
		must.NoError(t, room.Handle(messages.RollRequest{User: "dave", Expression: expr}))
	}
	state := room.ToState()
	must.EqOp(t, 5, state.Version)
	must.SliceLen(t, 3, state.Replies)
	must.EqOp(t, "d8", state.Replies[0].Expression)
	must.EqOp(t, "d12", state.Replies[2].Expression)
}

func TestUpdate_DropsWhenSessionIsNotReading(t *testing.T) {
	t.Parallel()
	srv := testServer()
	room := srv.newRoom("table")
	room.userSessions["stuck"] = userSession{
		logger:  slog.Default(),
		id:      "stuck",
		name:    "erin",
		writeCh: make(chan []byte),
	}

	must.NoError(t, room.Handle(messages.RollRequest{User: "erin", Expression: "d20"}))
	must.EqOp(t, 1.0, testutil.ToFloat64(srv.Metrics().DroppedUpdatesTotal))
}

func TestUpdate_UnknownType(t *testing.T) {
	t.Parallel()
	room := testServer().newRoom("table")
	must.Error(t, room.Update("nope"))
}

func TestHandleBinaryMessage(t *testing.T) {
	t.Parallel()
	room := testServer().newRoom("table")

	err := room.HandleBinaryMessage([]byte{0xc1})
	must.ErrorIs(t, err, messages.ErrMessageInvalid)

	b, err := msgpack.Marshal(messages.NewState(messages.RoomState{Name: "table"}))
	must.NoError(t, err)
	err = room.HandleBinaryMessage(b)
	must.ErrorIs(t, err, messages.ErrUnknownMessageType)

	b, err = msgpack.Marshal(messages.NewRollRequest(messages.RollRequest{User: "frank", Expression: "1d8+1"}))
	must.NoError(t, err)
	must.NoError(t, room.HandleBinaryMessage(b))
	must.SliceLen(t, 1, room.ToState().Replies)
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	must.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	must.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestMux(t *testing.T) {
	t.Parallel()
	srv := testServer()
	testSrv := httptest.NewServer(NewMux(srv))
	defer testSrv.Close()

	status, body := get(t, testSrv.URL+"/health")
	must.EqOp(t, http.StatusOK, status)
	must.EqOp(t, "ok", body)

	status, body = get(t, testSrv.URL+"/roll?expr=4d6")
	must.EqOp(t, http.StatusOK, status)
	must.StrHasPrefix(t, "Rolling 4d6:\n", body)

	status, body = get(t, testSrv.URL+"/roll?expr=hello")
	must.EqOp(t, http.StatusNoContent, status)
	must.EqOp(t, "", body)

	resp, err := http.Post(testSrv.URL+"/roll", "text/plain", strings.NewReader("2d8 + 1 adv"))
	must.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	must.NoError(t, err)
	must.EqOp(t, http.StatusOK, resp.StatusCode)
	must.StrHasPrefix(t, "Rolling 1d8 + 1 with advantage:\n", string(b))
	must.StrContains(t, string(b), " / ")

	status, body = get(t, testSrv.URL+"/metrics")
	must.EqOp(t, http.StatusOK, status)
	must.StrContains(t, body, `rollbot_evaluations_total{result="rolled"} 2`)
	must.StrContains(t, body, `rollbot_http_requests_total{method="GET",route="/roll",status="204"} 1`)
}

func TestRoll_ExpressionTooLong(t *testing.T) {
	t.Parallel()
	testSrv := httptest.NewServer(NewMux(testServer()))
	defer testSrv.Close()

	post := func(body string) (int, string) {
		resp, err := http.Post(testSrv.URL+"/roll", "text/plain", strings.NewReader(body))
		must.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		must.NoError(t, err)
		return resp.StatusCode, string(b)
	}

	fits := "d6" + strings.Repeat(" ", maxExpressionBytes-6) + "+100"
	must.EqOp(t, maxExpressionBytes, len(fits))
	status, body := post(fits)
	must.EqOp(t, http.StatusOK, status)
	must.StrHasPrefix(t, "Rolling 1d6 + 100:\n", body)

	status, _ = post("d6" + strings.Repeat(" ", maxExpressionBytes-2) + "+100")
	must.EqOp(t, http.StatusRequestEntityTooLarge, status)

	status, _ = get(t, testSrv.URL+"/roll?expr=d6"+strings.Repeat("%2B1", maxExpressionBytes))
	must.EqOp(t, http.StatusRequestEntityTooLarge, status)
}

func dialRoom(t *testing.T, baseURL, room string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(baseURL, "http")+"/"+room, nil)
	must.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendRoll(conn *websocket.Conn, req messages.RollRequest) error {
	b, err := msgpack.Marshal(messages.NewRollRequest(req))
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, b)
}

func readState(t *testing.T, conn *websocket.Conn) messages.RoomState {
	t.Helper()
	must.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, b, err := conn.ReadMessage()
	must.NoError(t, err)
	var msg messages.Message
	must.NoError(t, msgpack.Unmarshal(b, &msg))
	state, ok := msg.Payload.(messages.RoomState)
	must.True(t, ok)
	return state
}

func TestRunSession_OversizedFrame(t *testing.T) {
	t.Parallel()
	srv := testServer()
	testSrv := httptest.NewServer(NewMux(srv))
	defer testSrv.Close()

	conn := dialRoom(t, testSrv.URL, "table")
	must.NoError(t, sendRoll(conn, messages.RollRequest{User: "hana"}))
	must.SliceLen(t, 1, readState(t, conn).Replies)

	// the write may race the server closing the connection
	_ = sendRoll(conn, messages.RollRequest{
		User:       "hana",
		Expression: "d6" + strings.Repeat("+1", maxFrameBytes),
	})
	must.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	var netErr net.Error
	must.False(t, errors.As(err, &netErr) && netErr.Timeout(), must.Sprintf("session was not closed"))

	must.Wait(t, wait.InitialSuccess(wait.BoolFunc(func() bool {
		_, ok := srv.GetRooms()["table"]
		return !ok
	})))

	status, _ := get(t, testSrv.URL+"/health")
	must.EqOp(t, http.StatusOK, status)

	next := dialRoom(t, testSrv.URL, "table")
	must.NoError(t, sendRoll(next, messages.RollRequest{User: "ivan", Expression: "2d4"}))
	state := readState(t, next)
	must.SliceLen(t, 1, state.Replies)
	must.EqOp(t, "ivan", state.Replies[0].User)
}
