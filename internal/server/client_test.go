package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/npezzotti/go-mystery/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		assert.True(t, c.queueMessage(&ServerMessage{}), "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})

	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		assert.False(t, c.queueMessage(&ServerMessage{}), "expected queueMessage to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	message := &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        1,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: 200,
			Data:         "test data",
		},
	}

	expected := `{"id":1,"timestamp":"` + message.Timestamp.Format(time.RFC3339Nano) +
		`","response":{"response_code":200,"data":"test data"}}`

	c := &Client{}
	bytes, err := c.serializeMessage(message)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected serialized message to match the expected format")
}

func Test_stopClient(t *testing.T) {
	c := &Client{stop: make(chan struct{})}

	c.stopClient()
	assert.NotPanics(t, c.stopClient, "expected stopping twice to be safe")

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_leaveAllRooms(t *testing.T) {
	env := newTestGameServer(t, nil)
	c := newTestClient(t, env.gs, newTestSession(1))

	open := newRoom(env.gs, "ROOM01")
	closed := newRoom(env.gs, "ROOM02")
	close(closed.done)
	// a full channel on an exited room must not block
	for range cap(closed.leaveChan) {
		closed.leaveChan <- &ClientMessage{}
	}

	c.addRoom(open)
	c.addRoom(closed)

	done := make(chan struct{})
	go func() {
		c.leaveAllRooms()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected leaveAllRooms to return")
	}

	require.Len(t, open.leaveChan, 1, "expected 1 leave message for the open room")
	msg := <-open.leaveChan
	require.NotNil(t, msg.Leave)
	assert.Equal(t, "ROOM01", msg.Leave.RoomId)
	assert.Equal(t, c, msg.client)
	assert.True(t, msg.disconnect, "expected disconnect leave")
}

func Test_joinRoom(t *testing.T) {
	t.Run("successful join", func(t *testing.T) {
		env := newTestGameServer(t, nil)
		c := newTestClient(t, env.gs, newTestSession(1))

		joinMsg := &ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Join:        &Join{RoomId: "testroom"},
			client:      c,
		}
		c.dispatch(joinMsg)

		select {
		case msg := <-env.gs.joinChan:
			assert.Equal(t, joinMsg, msg, "expected join message to be forwarded to the server")
		default:
			t.Error("expected join message to be sent to server join channel, but it was not")
		}
	})

	t.Run("join channel full", func(t *testing.T) {
		env := newTestGameServer(t, nil)
		env.gs.joinChan = make(chan *ClientMessage, 1)
		env.gs.joinChan <- &ClientMessage{}
		c := newTestClient(t, env.gs, newTestSession(1))

		c.joinRoom(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Join:        &Join{RoomId: "testroom"},
			client:      c,
		})

		msg := receive(t, c)
		require.NotNil(t, msg.Response)
		assert.Equal(t, 1, msg.Id)
		assert.Equal(t, http.StatusServiceUnavailable, msg.Response.ResponseCode)
	})
}

func Test_leaveRoom(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := newTestGameServer(t, nil)
		c := newTestClient(t, env.gs, newTestSession(1))
		room := newRoom(env.gs, "ROOM01")
		c.addRoom(room)

		leaveMsg := &ClientMessage{BaseMessage: BaseMessage{Id: 1}, Leave: &Leave{RoomId: "room01"}, client: c}
		c.dispatch(leaveMsg)

		select {
		case msg := <-room.leaveChan:
			assert.Equal(t, leaveMsg, msg)
		default:
			t.Error("expected message to be sent to room leave channel")
		}
	})

	t.Run("room not found", func(t *testing.T) {
		env := newTestGameServer(t, nil)
		c := newTestClient(t, env.gs, newTestSession(1))

		c.leaveRoom(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Leave: &Leave{RoomId: "notfound"}, client: c})

		msg := receive(t, c)
		require.NotNil(t, msg.Response)
		assert.Equal(t, http.StatusNotFound, msg.Response.ResponseCode)
	})

	t.Run("room unavailable", func(t *testing.T) {
		env := newTestGameServer(t, nil)
		c := newTestClient(t, env.gs, newTestSession(1))
		room := newRoom(env.gs, "ROOM01")
		room.leaveChan = make(chan *ClientMessage, 1)
		room.leaveChan <- &ClientMessage{}
		c.addRoom(room)

		c.leaveRoom(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Leave: &Leave{RoomId: "ROOM01"}, client: c})

		msg := receive(t, c)
		require.NotNil(t, msg.Response)
		assert.Equal(t, http.StatusServiceUnavailable, msg.Response.ResponseCode)
	})
}

func Test_dispatchPublish(t *testing.T) {
	t.Run("joined room", func(t *testing.T) {
		env := newTestGameServer(t, nil)
		c := newTestClient(t, env.gs, newTestSession(1))
		room := newRoom(env.gs, "ROOM01")
		c.addRoom(room)

		pub := &ClientMessage{BaseMessage: BaseMessage{Id: 5}, Publish: &Publish{RoomId: "ROOM01", Content: "hi"}, client: c}
		c.dispatch(pub)

		select {
		case msg := <-room.clientMsgChan:
			assert.Equal(t, pub, msg)
		default:
			t.Error("expected publish to be forwarded to the room")
		}
	})

	t.Run("room not joined", func(t *testing.T) {
		env := newTestGameServer(t, nil)
		c := newTestClient(t, env.gs, newTestSession(1))

		c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 5}, Publish: &Publish{RoomId: "ROOM01", Content: "hi"}, client: c})

		msg := receive(t, c)
		require.NotNil(t, msg.Response)
		assert.Equal(t, http.StatusNotFound, msg.Response.ResponseCode)
	})

	t.Run("empty message", func(t *testing.T) {
		env := newTestGameServer(t, nil)
		c := newTestClient(t, env.gs, newTestSession(1))

		c.dispatch(&ClientMessage{BaseMessage: BaseMessage{Id: 6}, client: c})

		msg := receive(t, c)
		require.NotNil(t, msg.Response)
		assert.Equal(t, 6, msg.Id)
		assert.Equal(t, http.StatusBadRequest, msg.Response.ResponseCode)
	})
}

func Test_addRoom_delRoom_getRoom(t *testing.T) {
	c := &Client{rooms: make(map[string]*Room)}
	room := &Room{id: "ROOM01"}

	c.addRoom(room)
	assert.Equal(t, room, c.getRoom("ROOM01"), "expected room to be found after adding")
	assert.Equal(t, room, c.getRoom(" room01"), "expected lookups to normalize the code")

	c.delRoom(room.id)
	assert.Nil(t, c.getRoom("ROOM01"), "expected room to be removed after deletion")
}
