package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-mystery/internal/types"
	"go.uber.org/zap"
)

// MemoryStoreOptions configures the in-memory fallback store.
type MemoryStoreOptions struct {
	// PollInterval drives room, player and vote subscriptions.
	PollInterval time.Duration
	// ChatPollInterval drives chat subscriptions.
	ChatPollInterval time.Duration
	// NewTicker defaults to NewTimeTicker.
	NewTicker TickerFactory
	// Now defaults to time.Now.
	Now func() time.Time
}

// MemoryStore is a process-local Store. Subscriptions are served by polling
// because there is no change feed to listen on.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]types.Room
	players  []types.Player
	votes    []types.Vote
	messages []types.ChatMessage

	log  *zap.Logger
	opts MemoryStoreOptions

	subsMu sync.Mutex
	subs   map[*poller]struct{}
	closed bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(log *zap.Logger, opts MemoryStoreOptions) *MemoryStore {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ChatPollInterval <= 0 {
		opts.ChatPollInterval = time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &MemoryStore{
		rooms: make(map[string]types.Room),
		log:   log,
		opts:  opts,
		subs:  make(map[*poller]struct{}),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close cancels every live subscription.
func (s *MemoryStore) Close() error {
	s.subsMu.Lock()
	s.closed = true
	pollers := make([]*poller, 0, len(s.subs))
	for p := range s.subs {
		pollers = append(pollers, p)
	}
	s.subsMu.Unlock()

	for _, p := range pollers {
		p.Unsubscribe()
	}
	return nil
}

func (s *MemoryStore) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[params.Id]; ok {
		return types.Room{}, ErrConflict
	}

	room := types.Room{
		Id:        params.Id,
		Phase:     types.PhaseWaiting,
		HostId:    params.HostId,
		CreatedAt: s.opts.Now(),
	}
	s.rooms[room.Id] = room

	return copyRoom(room), nil
}

func (s *MemoryStore) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomId]
	if !ok {
		return types.Room{}, ErrNotFound
	}
	return copyRoom(room), nil
}

func (s *MemoryStore) UpdateRoom(ctx context.Context, roomId string, update RoomUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomId]
	if !ok {
		return ErrNotFound
	}

	if update.Phase != nil {
		room.Phase = *update.Phase
	}
	if update.TimerStart != nil {
		ts := *update.TimerStart
		room.TimerStart = &ts
	}
	s.rooms[roomId] = room

	return nil
}

// JoinRoom upserts on player id; a rejoin replaces the previous record and
// clears its inventory.
func (s *MemoryStore) JoinRoom(ctx context.Context, params JoinRoomParams) (types.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[params.RoomId]; !ok {
		return types.Player{}, ErrNotFound
	}

	player := types.Player{
		Id:          params.PlayerId,
		RoomId:      params.RoomId,
		Name:        params.Name,
		CharacterId: copyInt(params.CharacterId),
		Items:       []int{},
		Searches:    types.Searches{},
		CreatedAt:   s.opts.Now(),
	}

	for i, p := range s.players {
		if p.Id == params.PlayerId {
			player.CreatedAt = p.CreatedAt
			s.players[i] = player
			return copyPlayer(player), nil
		}
	}

	s.players = append(s.players, player)
	return copyPlayer(player), nil
}

func (s *MemoryStore) GetPlayers(ctx context.Context, roomId string) ([]types.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := []types.Player{}
	for _, p := range s.players {
		if p.RoomId == roomId {
			players = append(players, copyPlayer(p))
		}
	}

	sort.SliceStable(players, func(i, j int) bool {
		return players[i].CreatedAt.Before(players[j].CreatedAt)
	})
	return players, nil
}

func (s *MemoryStore) UpdatePlayer(ctx context.Context, playerId string, update PlayerUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.players {
		if p.Id != playerId {
			continue
		}
		if update.Items != nil {
			p.Items = append([]int{}, update.Items...)
		}
		if update.Searches != nil {
			p.Searches = copySearches(update.Searches)
		}
		s.players[i] = p
		return nil
	}

	return ErrNotFound
}

func (s *MemoryStore) SubmitVote(ctx context.Context, params SubmitVoteParams) (types.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.votes {
		if v.RoomId == params.RoomId && v.PlayerId == params.PlayerId {
			return types.Vote{}, ErrConflict
		}
	}

	vote := types.Vote{
		Id:        uuid.NewString(),
		RoomId:    params.RoomId,
		PlayerId:  params.PlayerId,
		Who:       params.Who,
		Where:     params.Where,
		What:      params.What,
		ToWhom:    params.ToWhom,
		CreatedAt: s.opts.Now(),
	}
	s.votes = append(s.votes, vote)

	return vote, nil
}

func (s *MemoryStore) DeleteVote(ctx context.Context, roomId, playerId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.votes[:0]
	for _, v := range s.votes {
		if v.RoomId == roomId && v.PlayerId == playerId {
			continue
		}
		kept = append(kept, v)
	}
	s.votes = kept

	return nil
}

func (s *MemoryStore) GetVotes(ctx context.Context, roomId string) ([]types.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	votes := []types.Vote{}
	for _, v := range s.votes {
		if v.RoomId == roomId {
			votes = append(votes, v)
		}
	}
	return votes, nil
}

func (s *MemoryStore) SendChatMessage(ctx context.Context, params ChatMessageParams) (types.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[params.RoomId]; !ok {
		return types.ChatMessage{}, ErrNotFound
	}

	msg := types.ChatMessage{
		Id:            uuid.NewString(),
		RoomId:        params.RoomId,
		PlayerId:      params.PlayerId,
		PlayerName:    params.PlayerName,
		CharacterName: params.CharacterName,
		Content:       params.Content,
		CreatedAt:     s.opts.Now(),
	}
	s.messages = append(s.messages, msg)

	return msg, nil
}

func (s *MemoryStore) GetChatMessages(ctx context.Context, roomId string) ([]types.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := []types.ChatMessage{}
	for _, m := range s.messages {
		if m.RoomId == roomId {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (s *MemoryStore) SubscribeToRoom(roomId string, onChange func(types.Room)) Subscription {
	return s.poll(s.opts.PollInterval, func() {
		room, err := s.GetRoom(context.Background(), roomId)
		if err != nil {
			return
		}
		onChange(room)
	})
}

func (s *MemoryStore) SubscribeToPlayers(roomId string, onChange func([]types.Player)) Subscription {
	return s.poll(s.opts.PollInterval, func() {
		players, _ := s.GetPlayers(context.Background(), roomId)
		onChange(players)
	})
}

func (s *MemoryStore) SubscribeToVotes(roomId string, onChange func([]types.Vote)) Subscription {
	return s.poll(s.opts.PollInterval, func() {
		votes, _ := s.GetVotes(context.Background(), roomId)
		onChange(votes)
	})
}

// SubscribeToChat fires with the newest message whenever the room's
// message count has grown since the previous tick.
func (s *MemoryStore) SubscribeToChat(roomId string, onMessage func(types.ChatMessage)) Subscription {
	var seen int
	return s.poll(s.opts.ChatPollInterval, func() {
		msgs, _ := s.GetChatMessages(context.Background(), roomId)
		if len(msgs) > seen {
			seen = len(msgs)
			onMessage(msgs[len(msgs)-1])
		}
	})
}

func (s *MemoryStore) poll(interval time.Duration, fn func()) Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if s.closed {
		return noopSubscription{}
	}

	var p *poller
	p = startPoller(s.opts.NewTicker(interval), fn, func() {
		s.subsMu.Lock()
		delete(s.subs, p)
		s.subsMu.Unlock()
	})
	s.subs[p] = struct{}{}

	s.log.Debug("started polling subscription", zap.Duration("interval", interval))
	return p
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyRoom(r types.Room) types.Room {
	if r.TimerStart != nil {
		ts := *r.TimerStart
		r.TimerStart = &ts
	}
	return r
}

func copySearches(s types.Searches) types.Searches {
	c := make(types.Searches, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

func copyPlayer(p types.Player) types.Player {
	p.CharacterId = copyInt(p.CharacterId)
	p.Items = append([]int{}, p.Items...)
	p.Searches = copySearches(p.Searches)
	return p
}
