package server

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/npezzotti/go-mystery/internal/database"
	"github.com/npezzotti/go-mystery/internal/game"
	"github.com/npezzotti/go-mystery/internal/session"
	"github.com/npezzotti/go-mystery/internal/stats"
	"github.com/npezzotti/go-mystery/internal/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	gs      *GameServer
	store   *database.MemoryStore
	tickers *database.ManualTickers
	svc     *game.Service
}

func newTestGameServer(t *testing.T, su *stats.MockStatsUpdater) *testEnv {
	t.Helper()

	log := testutil.TestLogger(t)
	tickers := &database.ManualTickers{}
	store := database.NewMemoryStore(log, database.MemoryStoreOptions{NewTicker: tickers.NewTicker})
	t.Cleanup(func() { store.Close() })

	if su == nil {
		su = &stats.MockStatsUpdater{}
		su.On("Incr", mock.Anything).Maybe()
		su.On("Decr", mock.Anything).Maybe()
	}

	svc := game.NewService(store, log, su)
	return &testEnv{
		gs:      NewGameServer(log, store, svc, su),
		store:   store,
		tickers: tickers,
		svc:     svc,
	}
}

func newTestSession(n int) session.Session {
	c := n
	return session.Session{Identity: session.Identity{
		PlayerId:    fmt.Sprintf("player%d", n),
		Name:        fmt.Sprintf("Player %d", n),
		CharacterId: &c,
	}}
}

func newTestClient(t *testing.T, gs *GameServer, sess session.Session) *Client {
	return NewClient(sess, nil, gs, testutil.TestLogger(t))
}

// createRoom creates a room hosted by the first session and joins the rest.
func (e *testEnv) createRoom(t *testing.T, sessions ...session.Session) string {
	t.Helper()
	ctx := context.Background()

	room, _, err := e.svc.CreateRoom(ctx, sessions[0])
	require.NoError(t, err)
	for _, sess := range sessions[1:] {
		_, err := e.svc.JoinRoom(ctx, sess, room.Id)
		require.NoError(t, err)
	}
	return room.Id
}

// receive waits for the next message queued for c.
func receive(t *testing.T, c *Client) *ServerMessage {
	t.Helper()

	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("expected a message to be sent to the client, but none was sent")
		return nil
	}
}

// receiveWhere skips queued messages until one satisfies match.
func receiveWhere(t *testing.T, c *Client, match func(*ServerMessage) bool) *ServerMessage {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.send:
			if match(msg) {
				return msg
			}
		case <-deadline:
			t.Fatal("expected a matching message to be sent to the client")
			return nil
		}
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()

	select {
	case msg := <-c.send:
		t.Errorf("expected no message, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
