package game

import (
	"math"
	"time"

	"github.com/npezzotti/go-mystery/internal/types"
)

// View is everything a client renders for a room, derived from replicated
// state and the viewer's identity.
type View struct {
	Room             types.Room     `json:"room"`
	Players          []types.Player `json:"players"`
	Me               *types.Player  `json:"me,omitempty"`
	Label            string         `json:"label"`
	RemainingSeconds *int           `json:"remaining_seconds"`
	IsHost           bool           `json:"is_host"`
	CanAdvance       bool           `json:"can_advance"`
	Flow             Flow           `json:"flow"`
	DarkTone         bool           `json:"dark_tone"`
	HandoutRevealed  bool           `json:"handout_revealed"`
	HandoutStage     HandoutStage   `json:"handout_stage,omitempty"`
	Demo             bool           `json:"demo"`
}

func BuildView(room types.Room, players []types.Player, playerId string, now time.Time) View {
	v := View{
		Room:            room,
		Players:         players,
		Label:           Label(room.Phase),
		IsHost:          IsHost(room, playerId),
		CanAdvance:      CanAdvance(room, playerId),
		Flow:            FlowFor(room.Phase),
		DarkTone:        DarkTone(room.Phase),
		HandoutRevealed: DarkTone(room.Phase),
	}

	if left, ok := Remaining(room, now); ok {
		secs := int(math.Ceil(left.Seconds()))
		v.RemainingSeconds = &secs
	}

	if room.Phase == types.PhaseAdditionalHandout && room.TimerStart != nil {
		v.HandoutStage = HandoutRevealStage(now.Sub(*room.TimerStart))
	}

	for i := range players {
		if players[i].Id == playerId {
			v.Me = &players[i]
			break
		}
	}

	return v
}
