package types

import (
	"time"
)

// Phase is the persisted stage of a room's fixed game sequence.
type Phase string

const (
	PhaseWaiting           Phase = "waiting"
	PhaseDiscussion1       Phase = "discussion1"
	PhaseInvestigation1    Phase = "investigation1"
	PhaseDiscussion2       Phase = "discussion2"
	PhaseAdditionalHandout Phase = "additional_handout"
	PhaseDiscussion3       Phase = "discussion3"
	PhaseInvestigation2    Phase = "investigation2"
	PhaseDiscussion4       Phase = "discussion4"
	PhaseVoting            Phase = "voting"
	PhaseResult            Phase = "result"
)

type Room struct {
	Id         string     `json:"id" db:"id"`
	Phase      Phase      `json:"phase" db:"phase"`
	TimerStart *time.Time `json:"timer_start" db:"timer_start"`
	HostId     string     `json:"host_id" db:"host_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

type Player struct {
	Id          string    `json:"id"`
	RoomId      string    `json:"room_id"`
	Name        string    `json:"name"`
	CharacterId *int      `json:"character_id"`
	Items       []int     `json:"items"`
	Searches    Searches  `json:"searches"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasItem reports whether id is in the player's item set.
func (p Player) HasItem(id int) bool {
	for _, item := range p.Items {
		if item == id {
			return true
		}
	}
	return false
}

// Searches counts the search actions a player has spent, keyed by item stage.
type Searches map[int]int

type Vote struct {
	Id        string    `json:"id" db:"id"`
	RoomId    string    `json:"room_id" db:"room_id"`
	PlayerId  string    `json:"player_id" db:"player_id"`
	Who       int       `json:"who" db:"who"`
	Where     int       `json:"where" db:"where_location"`
	What      int       `json:"what" db:"what_item"`
	ToWhom    int       `json:"to_whom" db:"to_whom"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ChatMessage struct {
	Id            string    `json:"id" db:"id"`
	RoomId        string    `json:"room_id" db:"room_id"`
	PlayerId      string    `json:"player_id" db:"player_id"`
	PlayerName    string    `json:"player_name" db:"player_name"`
	CharacterName string    `json:"character_name" db:"character_name"`
	Content       string    `json:"content" db:"content"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
