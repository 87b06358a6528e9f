package game

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/go-mystery/internal/database"
	"github.com/npezzotti/go-mystery/internal/scenario"
	"github.com/npezzotti/go-mystery/internal/session"
	"github.com/npezzotti/go-mystery/internal/stats"
	"github.com/npezzotti/go-mystery/internal/types"
	"go.uber.org/zap"
)

const (
	roomCodeLength   = 6
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeAttempts = 5
)

// Service applies game commands to the store on behalf of a session.
// Every check runs against freshly read state; nothing is cached between
// calls.
type Service struct {
	store database.Store
	log   *zap.Logger
	stats stats.StatsProvider

	now         func() time.Time
	newRoomCode func() (string, error)
	demo        bool
}

func NewService(store database.Store, log *zap.Logger, su stats.StatsProvider) *Service {
	svc := &Service{
		store:       store,
		log:         log.Named("game"),
		stats:       su,
		now:         time.Now,
		newRoomCode: NewRoomCode,
	}
	_, svc.demo = store.(*database.MemoryStore)
	return svc
}

// Demo reports whether the service runs on the in-memory store.
func (s *Service) Demo() bool {
	return s.demo
}

// NewRoomCode returns a random six character uppercase alphanumeric code.
func NewRoomCode() (string, error) {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf), nil
}

// NormalizeRoomCode upper-cases and trims a code typed by a player.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateIdentity(sess session.Session) error {
	if !sess.Valid() {
		return ErrNoSession
	}
	if strings.TrimSpace(sess.Name) == "" {
		return ErrNameRequired
	}
	if sess.CharacterId == nil {
		return ErrCharacterRequired
	}
	c, ok := scenario.CharacterById(*sess.CharacterId)
	if !ok || !c.Playable {
		return ErrCharacterInvalid
	}
	return nil
}

// CreateRoom allocates a fresh room hosted by sess and joins the host to it.
func (s *Service) CreateRoom(ctx context.Context, sess session.Session) (types.Room, types.Player, error) {
	if err := validateIdentity(sess); err != nil {
		return types.Room{}, types.Player{}, err
	}

	var (
		room types.Room
		err  error
	)
	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		var code string
		code, err = s.newRoomCode()
		if err != nil {
			return types.Room{}, types.Player{}, fmt.Errorf("room code: %w", err)
		}

		room, err = s.store.CreateRoom(ctx, database.CreateRoomParams{Id: code, HostId: sess.PlayerId})
		if errors.Is(err, database.ErrConflict) {
			s.log.Debug("room code collision", zap.String("room", code))
			continue
		}
		break
	}
	if err != nil {
		return types.Room{}, types.Player{}, fmt.Errorf("%w: create room: %w", ErrWriteFailed, err)
	}

	s.stats.Incr(stats.NumRoomsCreated)
	s.log.Info("created room", zap.String("room", room.Id), zap.String("host", sess.PlayerId))

	player, err := s.JoinRoom(ctx, sess, room.Id)
	if err != nil {
		return types.Room{}, types.Player{}, err
	}
	return room, player, nil
}

// JoinRoom adds the session's player to roomId. Joining a room the player
// is already in returns the existing record untouched.
func (s *Service) JoinRoom(ctx context.Context, sess session.Session, roomId string) (types.Player, error) {
	if err := validateIdentity(sess); err != nil {
		return types.Player{}, err
	}

	if _, err := s.getRoom(ctx, roomId); err != nil {
		return types.Player{}, err
	}

	players, err := s.store.GetPlayers(ctx, roomId)
	if err != nil {
		return types.Player{}, fmt.Errorf("get players: %w", err)
	}

	for _, p := range players {
		if p.Id == sess.PlayerId {
			return p, nil
		}
	}
	if len(players) >= scenario.MaxPlayers {
		return types.Player{}, ErrRoomFull
	}
	for _, p := range players {
		if p.CharacterId != nil && *p.CharacterId == *sess.CharacterId {
			return types.Player{}, ErrCharacterTaken
		}
	}

	player, err := s.store.JoinRoom(ctx, database.JoinRoomParams{
		RoomId:      roomId,
		PlayerId:    sess.PlayerId,
		Name:        strings.TrimSpace(sess.Name),
		CharacterId: sess.CharacterId,
	})
	if err != nil {
		return types.Player{}, fmt.Errorf("%w: join room: %w", ErrWriteFailed, err)
	}

	s.log.Info("player joined",
		zap.String("room", roomId),
		zap.String("player", player.Id),
		zap.Intp("character", player.CharacterId),
	)
	return player, nil
}

// Start moves a waiting room into the first discussion.
func (s *Service) Start(ctx context.Context, sess session.Session, roomId string) (types.Room, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, err
	}
	if !IsHost(room, sess.PlayerId) {
		return types.Room{}, ErrNotHost
	}
	if room.Phase != types.PhaseWaiting {
		return types.Room{}, ErrInvalidPhase
	}

	players, err := s.store.GetPlayers(ctx, roomId)
	if err != nil {
		return types.Room{}, fmt.Errorf("get players: %w", err)
	}
	if len(players) == 0 {
		return types.Room{}, ErrNoPlayers
	}

	return s.transition(ctx, room, types.PhaseDiscussion1)
}

// Advance moves the room one phase forward. from is the phase the caller
// saw; a stale view is rejected so that two players clicking at once cannot
// skip a phase. An empty from accepts the current phase.
func (s *Service) Advance(ctx context.Context, sess session.Session, roomId string, from types.Phase) (types.Room, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, err
	}
	if from != "" && room.Phase != from {
		return types.Room{}, ErrInvalidPhase
	}

	switch room.Phase {
	case types.PhaseResult:
		return types.Room{}, ErrFinalPhase
	case types.PhaseWaiting:
		return s.Start(ctx, sess, roomId)
	case types.PhaseInvestigation1, types.PhaseInvestigation2:
		return s.FinishInvestigation(ctx, sess, roomId)
	case types.PhaseVoting:
		return s.ProceedToResult(ctx, sess, roomId)
	}

	if !CanAdvance(room, sess.PlayerId) {
		return types.Room{}, ErrNotHost
	}

	next, _ := Next(room.Phase)
	return s.transition(ctx, room, next)
}

// transition persists room's move to next and stamps a new timer start.
func (s *Service) transition(ctx context.Context, room types.Room, next types.Phase) (types.Room, error) {
	if Index(next) <= Index(room.Phase) {
		return types.Room{}, ErrInvalidPhase
	}

	now := s.now().UTC()
	err := s.store.UpdateRoom(ctx, room.Id, database.RoomUpdate{Phase: &next, TimerStart: &now})
	if err != nil {
		return types.Room{}, fmt.Errorf("%w: update room: %w", ErrWriteFailed, err)
	}

	s.stats.Incr(stats.NumPhaseAdvances)
	s.log.Info("phase advanced",
		zap.String("room", room.Id),
		zap.String("from", string(room.Phase)),
		zap.String("to", string(next)),
	)

	room.Phase = next
	room.TimerStart = &now
	return room, nil
}

// Resume re-enters the session's room after a reload. When the room is gone,
// finished, or no longer lists the player, the returned session has its
// room pointer cleared.
func (s *Service) Resume(ctx context.Context, sess session.Session) (View, session.Session, error) {
	if !sess.Valid() || !sess.InRoom() {
		return View{}, sess.Leave(), ErrNotJoined
	}

	room, err := s.getRoom(ctx, sess.RoomId)
	if errors.Is(err, ErrRoomNotFound) {
		return View{}, sess.Leave(), err
	}
	if err != nil {
		return View{}, sess, err
	}
	if room.Phase == types.PhaseResult {
		return View{}, sess.Leave(), ErrFinalPhase
	}

	players, err := s.store.GetPlayers(ctx, room.Id)
	if err != nil {
		return View{}, sess, fmt.Errorf("get players: %w", err)
	}
	if !hasPlayer(players, sess.PlayerId) {
		return View{}, sess.Leave(), ErrNotJoined
	}

	v := BuildView(room, players, sess.PlayerId, s.now())
	v.Demo = s.demo
	return v, sess, nil
}

// View loads the room and derives the viewer's state.
func (s *Service) View(ctx context.Context, sess session.Session, roomId string) (View, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return View{}, err
	}

	players, err := s.store.GetPlayers(ctx, roomId)
	if err != nil {
		return View{}, fmt.Errorf("get players: %w", err)
	}

	v := BuildView(room, players, sess.PlayerId, s.now())
	v.Demo = s.demo
	return v, nil
}

// Chat returns the room's chat history, oldest first. Only members may read it.
func (s *Service) Chat(ctx context.Context, sess session.Session, roomId string) ([]types.ChatMessage, error) {
	if _, _, err := s.member(ctx, sess, roomId); err != nil {
		return nil, err
	}

	msgs, err := s.store.GetChatMessages(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("get chat messages: %w", err)
	}
	return msgs, nil
}

// Leave drops the room pointer. Room state is never touched.
func (s *Service) Leave(sess session.Session) session.Session {
	if sess.InRoom() {
		s.log.Info("player left", zap.String("room", sess.RoomId), zap.String("player", sess.PlayerId))
	}
	return sess.Leave()
}

// Restart forgets the identity and the room pointer.
func (s *Service) Restart(sess session.Session) session.Session {
	return sess.Restart()
}

func (s *Service) getRoom(ctx context.Context, roomId string) (types.Room, error) {
	room, err := s.store.GetRoom(ctx, roomId)
	if errors.Is(err, database.ErrNotFound) {
		return types.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return types.Room{}, fmt.Errorf("get room: %w", err)
	}
	return room, nil
}

// member loads the room and players and checks that sess is one of them.
func (s *Service) member(ctx context.Context, sess session.Session, roomId string) (types.Room, []types.Player, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, nil, err
	}

	players, err := s.store.GetPlayers(ctx, roomId)
	if err != nil {
		return types.Room{}, nil, fmt.Errorf("get players: %w", err)
	}
	if !hasPlayer(players, sess.PlayerId) {
		return types.Room{}, nil, ErrNotJoined
	}

	return room, players, nil
}

func hasPlayer(players []types.Player, playerId string) bool {
	for _, p := range players {
		if p.Id == playerId {
			return true
		}
	}
	return false
}
