package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/go-mystery/internal/game"
	"github.com/npezzotti/go-mystery/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	Publish *Publish `json:"publish,omitempty"`
	client  *Client
	// disconnect marks a leave generated by a closed connection; it gets
	// no response.
	disconnect bool
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

// Publish posts a chat message to a joined room.
type Publish struct {
	RoomId  string `json:"room_id"`
	Content string `json:"content"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response          `json:"response,omitempty"`
	Message      *types.ChatMessage `json:"message,omitempty"`
	Notification *Notification      `json:"notification,omitempty"`
	SkipClient   *Client            `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// Notification carries replicated state pushed from the store.
type Notification struct {
	Presence    *Presence      `json:"presence,omitempty"`
	Room        *types.Room    `json:"room,omitempty"`
	PhaseChange *PhaseChange   `json:"phase_change,omitempty"`
	Players     []types.Player `json:"players,omitempty"`
	Votes       *VoteCount     `json:"votes,omitempty"`
}

type Presence struct {
	Present  bool   `json:"present"`
	PlayerId string `json:"player_id"`
	RoomId   string `json:"room_id"`
}

// PhaseChange tells clients which flow to redirect to.
type PhaseChange struct {
	RoomId string      `json:"room_id"`
	From   types.Phase `json:"from"`
	To     types.Phase `json:"to"`
	Flow   game.Flow   `json:"flow"`
}

type VoteCount struct {
	RoomId string `json:"room_id"`
	Votes  int    `json:"votes"`
}

// JoinData is the payload of a successful join response.
type JoinData struct {
	View game.View           `json:"view"`
	Chat []types.ChatMessage `json:"chat"`
}

func response(id, code int, errMsg string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return response(id, http.StatusOK, "", data)
}

func NoErrAccepted(id int) *ServerMessage {
	return response(id, http.StatusAccepted, "", nil)
}

func ErrRoomNotFound(id int) *ServerMessage {
	return response(id, http.StatusNotFound, "room not found", nil)
}

func ErrNotJoined(id int) *ServerMessage {
	return response(id, http.StatusForbidden, "player has not joined the room", nil)
}

func ErrInternalError(id int) *ServerMessage {
	return response(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return response(id, http.StatusServiceUnavailable, "service unavailable", nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	if id < 0 {
		id = 0
	}
	return response(id, http.StatusBadRequest, "invalid message format", nil)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
