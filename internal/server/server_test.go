package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/npezzotti/go-mystery/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		gs := newTestGameServer(t, nil).gs

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		go func() {
			select {
			case req := <-gs.stop:
				assert.NotNil(t, req.done, "expected done channel in stop request")
				close(req.done)
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		err := gs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("shutdown timeout", func(t *testing.T) {
		gs := newTestGameServer(t, nil).gs

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		go func() {
			select {
			case <-gs.stop:
				// never close done to simulate a hang
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		err := gs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("server not running", func(t *testing.T) {
		gs := newTestGameServer(t, nil).gs

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := gs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestGameServerShutdown_Integration(t *testing.T) {
	t.Run("no rooms", func(t *testing.T) {
		gs := newTestGameServer(t, nil).gs
		go gs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		assert.NoError(t, gs.Shutdown(ctx))
		select {
		case <-gs.done:
		case <-time.After(time.Second):
			t.Error("expected Run to return after shutdown")
		}
	})

	t.Run("active rooms", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		su.On("Incr", stats.NumRoomsCreated).Maybe()
		su.On("Incr", stats.NumActiveRooms).Once()
		su.On("Decr", stats.NumActiveRooms).Once()
		su.On("Incr", stats.NumConnections).Once()
		defer su.AssertExpectations(t)

		env := newTestGameServer(t, su)
		gs := env.gs
		go gs.Run()

		host := newTestSession(1)
		roomId := env.createRoom(t, host)

		c := newTestClient(t, gs, host)
		gs.RegisterClient(c)
		c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Join: &Join{RoomId: roomId}, client: c})

		msg := receive(t, c)
		require.NotNil(t, msg.Response)
		require.Equal(t, http.StatusOK, msg.Response.ResponseCode)

		room, ok := gs.getRoom(roomId)
		require.True(t, ok, "expected room to be loaded")

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, gs.Shutdown(ctx))

		select {
		case <-room.done:
		default:
			t.Error("expected room to have exited")
		}
		select {
		case <-c.stop:
		default:
			t.Error("expected client to be stopped")
		}
		assert.Empty(t, gs.rooms, "expected rooms to be unloaded")
		assert.Empty(t, c.rooms, "expected room removed from client")
		for _, ticker := range env.tickers.All() {
			assert.True(t, ticker.Stopped(), "expected room subscriptions to be cancelled")
		}
	})
}

func TestGameServer_addClient_removeClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", stats.NumConnections).Once()
	su.On("Decr", stats.NumConnections).Once()
	defer su.AssertExpectations(t)

	gs := newTestGameServer(t, su).gs
	client := &Client{sess: newTestSession(1)}

	gs.addClient(client)
	assert.Len(t, gs.clients, 1, "expected 1 client after adding")
	assert.Contains(t, gs.clients, client, "expected client to be added to clients map")

	gs.removeClient(client)
	assert.Empty(t, gs.clients, "expected 0 clients after removing")

	// removing twice doesn't decrement again
	gs.removeClient(client)
}

func TestGameServer_handleJoin(t *testing.T) {
	t.Run("room not found", func(t *testing.T) {
		env := newTestGameServer(t, nil)
		c := newTestClient(t, env.gs, newTestSession(1))

		env.gs.handleJoin(&ClientMessage{BaseMessage: BaseMessage{Id: 3}, Join: &Join{RoomId: "nope"}, client: c})

		msg := receive(t, c)
		require.NotNil(t, msg.Response)
		assert.Equal(t, 3, msg.Id)
		assert.Equal(t, http.StatusNotFound, msg.Response.ResponseCode)
		assert.Empty(t, env.gs.rooms, "expected no room to be loaded")
	})

	t.Run("loads room once", func(t *testing.T) {
		env := newTestGameServer(t, nil)
		host, guest := newTestSession(1), newTestSession(2)
		roomId := env.createRoom(t, host, guest)

		c1 := newTestClient(t, env.gs, host)
		c2 := newTestClient(t, env.gs, guest)

		// room codes are normalized
		env.gs.handleJoin(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Join: &Join{RoomId: " " + roomId + " "}, client: c1})
		env.gs.handleJoin(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Join: &Join{RoomId: roomId}, client: c2})

		assert.Equal(t, http.StatusOK, receive(t, c1).Response.ResponseCode)
		assert.Equal(t, http.StatusOK, receive(t, c2).Response.ResponseCode)
		assert.Len(t, env.gs.rooms, 1, "expected a single loaded room")

		room, _ := env.gs.getRoom(roomId)
		room.exit <- exitReq{}
		<-room.done
	})
}

func TestGameServer_unloadRoom(t *testing.T) {
	env := newTestGameServer(t, nil)
	gs := env.gs
	go gs.Run()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		gs.Shutdown(ctx)
	}()

	room := newRoom(gs, "ROOM01")
	gs.addRoom(room.id, room)

	assert.False(t, room.handleRoomTimeout(), "expected unload request to be accepted")

	// the server sends exit once it receives the unload request
	select {
	case e := <-room.exit:
		room.handleRoomExit(e)
	case <-time.After(time.Second):
		t.Fatal("expected exit request")
	}
	_, ok := gs.getRoom(room.id)
	assert.False(t, ok, "expected room to be removed")
}
