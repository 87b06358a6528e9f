// Package session holds the per-client identity and current-room pointer.
// It is never the source of truth for game state, only a pointer into it.
package session

import (
	"context"
	"fmt"

	"github.com/teris-io/shortid"
)

// Identity is the persistent part of a client: who the player is.
type Identity struct {
	PlayerId    string `json:"player_id"`
	Name        string `json:"name"`
	CharacterId *int   `json:"character_id,omitempty"`
}

// Session is an Identity plus the room the client is currently in.
type Session struct {
	Identity
	RoomId string `json:"room_id,omitempty"`
}

// NewPlayerId returns a short random player id.
func NewPlayerId() (string, error) {
	id, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate player id: %w", err)
	}
	return id, nil
}

// New creates a session with a freshly generated player id.
func New(name string, characterId *int) (Session, error) {
	id, err := NewPlayerId()
	if err != nil {
		return Session{}, err
	}

	return Session{
		Identity: Identity{
			PlayerId:    id,
			Name:        name,
			CharacterId: characterId,
		},
	}, nil
}

func (s Session) Valid() bool {
	return s.PlayerId != ""
}

func (s Session) InRoom() bool {
	return s.RoomId != ""
}

// EnterRoom points the session at roomId.
func (s Session) EnterRoom(roomId string) Session {
	s.RoomId = roomId
	return s
}

// Leave clears the room pointer but keeps the identity.
func (s Session) Leave() Session {
	s.RoomId = ""
	return s
}

// Restart forgets everything, including the player id.
func (s Session) Restart() Session {
	return Session{}
}

type contextKey string

const sessionKey contextKey = "session"

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}
