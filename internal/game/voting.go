package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"unicode"
	"unicode/utf16"

	"github.com/npezzotti/go-mystery/internal/database"
	"github.com/npezzotti/go-mystery/internal/scenario"
	"github.com/npezzotti/go-mystery/internal/session"
	"github.com/npezzotti/go-mystery/internal/stats"
	"github.com/npezzotti/go-mystery/internal/types"
	"go.uber.org/zap"
)

// Tie-break salts, one per vote dimension.
const (
	saltWho    = "who"
	saltWhere  = "where"
	saltWhat   = "what"
	saltToWhom = "toWhom"
)

// ValidateBallot rejects a ballot with an unset (zero) field or a value that
// is neither a catalog id nor scenario.Other.
func ValidateBallot(b scenario.Answer) error {
	if b.Who == 0 || b.Where == 0 || b.What == 0 || b.ToWhom == 0 {
		return ErrIncompleteBallot
	}

	isCharacter := func(id int) bool {
		_, ok := scenario.CharacterById(id)
		return ok || id == scenario.Other
	}
	isLocation := func(id int) bool {
		_, ok := scenario.LocationById(id)
		return ok || id == scenario.Other
	}
	isItem := func(id int) bool {
		_, ok := scenario.ItemById(id)
		return ok || id == scenario.Other
	}

	if !isCharacter(b.Who) || !isLocation(b.Where) || !isItem(b.What) || !isCharacter(b.ToWhom) {
		return ErrInvalidBallot
	}
	return nil
}

// Hash is the rolling string hash used to seed tie-breaks: h = h*31 + c over
// UTF-16 code units with 32-bit wraparound, returned as its absolute value.
func Hash(s string) int64 {
	var h int32
	for _, r := range s {
		if hi, lo := utf16.EncodeRune(r); hi != unicode.ReplacementChar {
			h = h*31 + hi
			h = h*31 + lo
			continue
		}
		h = h*31 + int32(r)
	}

	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// pick returns the most frequent value. Ties are broken by seeding Hash with
// roomCode+salt and indexing the ascending candidate list.
func pick(counts map[int]int, roomCode, salt string) int {
	top := 0
	for _, n := range counts {
		if n > top {
			top = n
		}
	}

	var candidates []int
	for v, n := range counts {
		if n == top {
			candidates = append(candidates, v)
		}
	}
	sort.Ints(candidates)

	if len(candidates) == 1 {
		return candidates[0]
	}
	return candidates[Hash(roomCode+salt)%int64(len(candidates))]
}

// Consensus tallies votes per dimension. It depends only on the set of
// votes and roomCode, never on their order. It returns nil for no votes.
func Consensus(votes []types.Vote, roomCode string) *scenario.Answer {
	if len(votes) == 0 {
		return nil
	}

	who := map[int]int{}
	where := map[int]int{}
	what := map[int]int{}
	toWhom := map[int]int{}
	for _, v := range votes {
		who[v.Who]++
		where[v.Where]++
		what[v.What]++
		toWhom[v.ToWhom]++
	}

	return &scenario.Answer{
		Who:    pick(who, roomCode, saltWho),
		Where:  pick(where, roomCode, saltWhere),
		What:   pick(what, roomCode, saltWhat),
		ToWhom: pick(toWhom, roomCode, saltToWhom),
	}
}

type Ending string

const (
	EndingTrue Ending = "true"
	EndingBad  Ending = "bad"
)

// Outcome compares a consensus against the answer key.
func Outcome(consensus *scenario.Answer) Ending {
	if consensus != nil && *consensus == scenario.CorrectAnswer {
		return EndingTrue
	}
	return EndingBad
}

// SubmitVote records the session player's ballot. Votes are accepted during
// voting and, for the retry path, after the result is shown.
func (s *Service) SubmitVote(ctx context.Context, sess session.Session, roomId string, ballot scenario.Answer) (types.Vote, error) {
	if err := ValidateBallot(ballot); err != nil {
		return types.Vote{}, err
	}

	room, _, err := s.member(ctx, sess, roomId)
	if err != nil {
		return types.Vote{}, err
	}
	if room.Phase != types.PhaseVoting && room.Phase != types.PhaseResult {
		return types.Vote{}, ErrInvalidPhase
	}

	vote, err := s.store.SubmitVote(ctx, database.SubmitVoteParams{
		RoomId:   roomId,
		PlayerId: sess.PlayerId,
		Who:      ballot.Who,
		Where:    ballot.Where,
		What:     ballot.What,
		ToWhom:   ballot.ToWhom,
	})
	if errors.Is(err, database.ErrConflict) {
		return types.Vote{}, ErrAlreadyVoted
	}
	if err != nil {
		return types.Vote{}, fmt.Errorf("%w: submit vote: %w", ErrWriteFailed, err)
	}

	s.stats.Incr(stats.NumVotes)
	s.log.Info("vote submitted", zap.String("room", roomId), zap.String("player", sess.PlayerId))

	if _, err := s.CheckVotingComplete(ctx, roomId); err != nil {
		s.log.Warn("check voting complete", zap.String("room", roomId), zap.Error(err))
	}

	return vote, nil
}

// RetryVote deletes the session player's vote so that it can be cast again.
func (s *Service) RetryVote(ctx context.Context, sess session.Session, roomId string) error {
	room, _, err := s.member(ctx, sess, roomId)
	if err != nil {
		return err
	}
	if room.Phase != types.PhaseVoting && room.Phase != types.PhaseResult {
		return ErrInvalidPhase
	}

	if err := s.store.DeleteVote(ctx, roomId, sess.PlayerId); err != nil {
		return fmt.Errorf("%w: delete vote: %w", ErrWriteFailed, err)
	}

	s.log.Info("vote withdrawn", zap.String("room", roomId), zap.String("player", sess.PlayerId))
	return nil
}

// CheckVotingComplete moves a voting room to result once there are at least
// as many votes as players. It acts for the host and reports whether
// voting is complete.
func (s *Service) CheckVotingComplete(ctx context.Context, roomId string) (bool, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return false, err
	}
	if room.Phase != types.PhaseVoting && room.Phase != types.PhaseResult {
		return false, nil
	}

	status, err := s.votingStatus(ctx, roomId, "")
	if err != nil {
		return false, err
	}
	if !status.Complete {
		return false, nil
	}
	if room.Phase == types.PhaseResult {
		return true, nil
	}

	if _, err := s.transition(ctx, room, types.PhaseResult); err != nil {
		return false, err
	}
	return true, nil
}

// ProceedToResult is the host's manual override of the vote barrier.
func (s *Service) ProceedToResult(ctx context.Context, sess session.Session, roomId string) (types.Room, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, err
	}
	if !IsHost(room, sess.PlayerId) {
		return types.Room{}, ErrNotHost
	}
	if room.Phase != types.PhaseVoting {
		return types.Room{}, ErrInvalidPhase
	}

	return s.transition(ctx, room, types.PhaseResult)
}

type VotingStatus struct {
	Votes    int  `json:"votes"`
	Players  int  `json:"players"`
	Voted    bool `json:"voted"`
	Complete bool `json:"complete"`
	IsHost   bool `json:"is_host"`
}

func (s *Service) VotingStatus(ctx context.Context, sess session.Session, roomId string) (VotingStatus, error) {
	room, _, err := s.member(ctx, sess, roomId)
	if err != nil {
		return VotingStatus{}, err
	}

	status, err := s.votingStatus(ctx, roomId, sess.PlayerId)
	if err != nil {
		return VotingStatus{}, err
	}
	status.IsHost = IsHost(room, sess.PlayerId)
	return status, nil
}

func (s *Service) votingStatus(ctx context.Context, roomId, playerId string) (VotingStatus, error) {
	votes, err := s.store.GetVotes(ctx, roomId)
	if err != nil {
		return VotingStatus{}, fmt.Errorf("get votes: %w", err)
	}
	players, err := s.store.GetPlayers(ctx, roomId)
	if err != nil {
		return VotingStatus{}, fmt.Errorf("get players: %w", err)
	}

	status := VotingStatus{
		Votes:    len(votes),
		Players:  len(players),
		Complete: len(players) > 0 && len(votes) >= len(players),
	}
	for _, v := range votes {
		if playerId != "" && v.PlayerId == playerId {
			status.Voted = true
		}
	}
	return status, nil
}

// Result is the ending screen.
type Result struct {
	Consensus *scenario.Answer `json:"consensus"`
	Ending    Ending           `json:"ending"`
	Votes     int              `json:"votes"`
	Players   int              `json:"players"`
}

func (s *Service) Result(ctx context.Context, sess session.Session, roomId string) (Result, error) {
	room, players, err := s.member(ctx, sess, roomId)
	if err != nil {
		return Result{}, err
	}
	if room.Phase != types.PhaseResult {
		return Result{}, ErrInvalidPhase
	}

	votes, err := s.store.GetVotes(ctx, roomId)
	if err != nil {
		return Result{}, fmt.Errorf("get votes: %w", err)
	}

	consensus := Consensus(votes, room.Id)
	return Result{
		Consensus: consensus,
		Ending:    Outcome(consensus),
		Votes:     len(votes),
		Players:   len(players),
	}, nil
}
