package database

import (
	"context"
	"errors"
	"time"

	"github.com/npezzotti/go-mystery/internal/types"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store is the persistence and change-notification contract shared by the
// durable postgres backend and the in-memory demo backend. Writes either
// commit completely or return an error; callers treat an error as "nothing
// changed".
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error)
	GetRoom(ctx context.Context, roomId string) (types.Room, error)
	UpdateRoom(ctx context.Context, roomId string, update RoomUpdate) error

	JoinRoom(ctx context.Context, params JoinRoomParams) (types.Player, error)
	GetPlayers(ctx context.Context, roomId string) ([]types.Player, error)
	UpdatePlayer(ctx context.Context, playerId string, update PlayerUpdate) error

	SubmitVote(ctx context.Context, params SubmitVoteParams) (types.Vote, error)
	DeleteVote(ctx context.Context, roomId, playerId string) error
	GetVotes(ctx context.Context, roomId string) ([]types.Vote, error)

	SendChatMessage(ctx context.Context, params ChatMessageParams) (types.ChatMessage, error)
	GetChatMessages(ctx context.Context, roomId string) ([]types.ChatMessage, error)

	SubscribeToRoom(roomId string, onChange func(types.Room)) Subscription
	SubscribeToPlayers(roomId string, onChange func([]types.Player)) Subscription
	SubscribeToVotes(roomId string, onChange func([]types.Vote)) Subscription
	SubscribeToChat(roomId string, onChange func(types.ChatMessage)) Subscription
}

// Subscription is the handle returned by the Subscribe methods. Unsubscribe
// is idempotent and no callback fires after it returns.
type Subscription interface {
	Unsubscribe()
}

type CreateRoomParams struct {
	Id     string
	HostId string
}

// RoomUpdate holds the room fields a phase transition may set. Nil fields
// are left untouched.
type RoomUpdate struct {
	Phase      *types.Phase
	TimerStart *time.Time
}

type JoinRoomParams struct {
	RoomId      string
	PlayerId    string
	Name        string
	CharacterId *int
}

// PlayerUpdate replaces the given fields wholesale (last write wins).
type PlayerUpdate struct {
	Items    []int
	Searches types.Searches
}

type SubmitVoteParams struct {
	RoomId   string
	PlayerId string
	Who      int
	Where    int
	What     int
	ToWhom   int
}

type ChatMessageParams struct {
	RoomId        string
	PlayerId      string
	PlayerName    string
	CharacterName string
	Content       string
}
