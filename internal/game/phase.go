package game

import (
	"time"

	"github.com/npezzotti/go-mystery/internal/types"
)

// Phases is the fixed order every room moves through.
var Phases = []types.Phase{
	types.PhaseWaiting,
	types.PhaseDiscussion1,
	types.PhaseInvestigation1,
	types.PhaseDiscussion2,
	types.PhaseAdditionalHandout,
	types.PhaseDiscussion3,
	types.PhaseInvestigation2,
	types.PhaseDiscussion4,
	types.PhaseVoting,
	types.PhaseResult,
}

// SharedPhase may be advanced by any player. Its timer is a near-zero
// trigger for the tone shift, so waiting on the host would stall the game.
const SharedPhase = types.PhaseDiscussion2

var durations = map[types.Phase]time.Duration{
	types.PhaseDiscussion1: 600 * time.Second,
	types.PhaseDiscussion2: 1 * time.Second,
	types.PhaseDiscussion3: 600 * time.Second,
	types.PhaseDiscussion4: 300 * time.Second,
}

var labels = map[types.Phase]string{
	types.PhaseWaiting:           "Waiting for players",
	types.PhaseDiscussion1:       "First discussion",
	types.PhaseInvestigation1:    "First investigation",
	types.PhaseDiscussion2:       "Second discussion",
	types.PhaseAdditionalHandout: "Additional handout",
	types.PhaseDiscussion3:       "Third discussion",
	types.PhaseInvestigation2:    "Second investigation",
	types.PhaseDiscussion4:       "Final discussion",
	types.PhaseVoting:            "Voting",
	types.PhaseResult:            "Result",
}

// Index returns the position of p in Phases, or -1 for an unknown tag.
func Index(p types.Phase) int {
	for i, phase := range Phases {
		if phase == p {
			return i
		}
	}
	return -1
}

// Next returns the phase after p. ok is false for result and unknown tags.
func Next(p types.Phase) (next types.Phase, ok bool) {
	i := Index(p)
	if i < 0 || i == len(Phases)-1 {
		return "", false
	}
	return Phases[i+1], true
}

func Label(p types.Phase) string {
	return labels[p]
}

// Duration returns the countdown length of p, if it has one.
func Duration(p types.Phase) (time.Duration, bool) {
	d, ok := durations[p]
	return d, ok
}

// Remaining is the advisory time left in the room's current phase, floored
// at zero. ok is false when the phase has no countdown or none was started.
func Remaining(room types.Room, now time.Time) (left time.Duration, ok bool) {
	d, ok := Duration(room.Phase)
	if !ok || room.TimerStart == nil {
		return 0, false
	}

	left = d - now.Sub(*room.TimerStart)
	if left < 0 {
		left = 0
	}
	return left, true
}

// IsHost reports whether playerId holds the room's transition privilege.
func IsHost(room types.Room, playerId string) bool {
	return playerId != "" && room.HostId == playerId
}

// CanAdvance reports whether playerId may move the room past its phase.
func CanAdvance(room types.Room, playerId string) bool {
	if room.Phase == types.PhaseResult {
		return false
	}
	return IsHost(room, playerId) || room.Phase == SharedPhase
}

// DarkTone is on from the additional handout onward.
func DarkTone(p types.Phase) bool {
	return Index(p) >= Index(types.PhaseAdditionalHandout)
}

type Flow string

const (
	FlowLobby         Flow = "lobby"
	FlowGame          Flow = "game"
	FlowInvestigation Flow = "investigation"
	FlowVote          Flow = "vote"
	FlowResult        Flow = "result"
)

// FlowFor is the screen every client is redirected to while the room is in p.
func FlowFor(p types.Phase) Flow {
	switch p {
	case types.PhaseWaiting:
		return FlowLobby
	case types.PhaseInvestigation1, types.PhaseInvestigation2:
		return FlowInvestigation
	case types.PhaseVoting:
		return FlowVote
	case types.PhaseResult:
		return FlowResult
	default:
		return FlowGame
	}
}

// HandoutStage is the client-local animation played on entering the
// additional handout.
type HandoutStage string

const (
	HandoutEroding   HandoutStage = "eroding"
	HandoutRevealing HandoutStage = "revealing"
	HandoutRevealed  HandoutStage = "revealed"
)

const (
	handoutModalAt   = 2500 * time.Millisecond
	handoutRevealsAt = 5 * time.Second
)

// HandoutRevealStage returns the animation stage elapsed after entering the
// additional handout.
func HandoutRevealStage(elapsed time.Duration) HandoutStage {
	switch {
	case elapsed < handoutModalAt:
		return HandoutEroding
	case elapsed < handoutRevealsAt:
		return HandoutRevealing
	default:
		return HandoutRevealed
	}
}
