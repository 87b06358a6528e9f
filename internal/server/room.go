package server

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/go-mystery/internal/database"
	"github.com/npezzotti/go-mystery/internal/game"
	"github.com/npezzotti/go-mystery/internal/scenario"
	"github.com/npezzotti/go-mystery/internal/types"
	"go.uber.org/zap"
)

const (
	idleRoomTimeout = time.Second * 5
	storeTimeout    = time.Second * 5
	updateBuffer    = 16
)

type exitReq struct{}

// Room fans store changes for one game room out to the websocket clients
// watching it. All room state lives in the store; the room only remembers
// what it last broadcast so repeated snapshots are not re-sent.
type Room struct {
	id            string
	gs            *GameServer
	log           *zap.Logger
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	roomUpdates   chan types.Room
	playerUpdates chan []types.Player
	voteUpdates   chan []types.Vote
	chatUpdates   chan types.ChatMessage
	subs          []database.Subscription
	clients       map[*Client]struct{}
	clientLock    sync.RWMutex
	lastRoom      *types.Room
	lastPlayers   []types.Player
	lastVotes     int
	// killTimer unloads the room once no clients are watching it
	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func newRoom(gs *GameServer, id string) *Room {
	killTimer := time.NewTimer(idleRoomTimeout)
	killTimer.Stop()

	return &Room{
		id:            id,
		gs:            gs,
		log:           gs.log.Named("room").With(zap.String("room", id)),
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		roomUpdates:   make(chan types.Room, updateBuffer),
		playerUpdates: make(chan []types.Player, updateBuffer),
		voteUpdates:   make(chan []types.Vote, updateBuffer),
		chatUpdates:   make(chan types.ChatMessage, updateBuffer),
		clients:       make(map[*Client]struct{}),
		lastVotes:     -1,
		killTimer:     killTimer,
		exit:          make(chan exitReq),
		done:          make(chan struct{}),
	}
}

// offer never blocks so store callbacks can't stall the notifier.
func offer[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}

func (r *Room) subscribe() {
	store := r.gs.store
	r.subs = []database.Subscription{
		store.SubscribeToRoom(r.id, func(room types.Room) {
			if !offer(r.roomUpdates, room) {
				r.log.Warn("dropped room update")
			}
		}),
		store.SubscribeToPlayers(r.id, func(players []types.Player) {
			if !offer(r.playerUpdates, players) {
				r.log.Warn("dropped player update")
			}
		}),
		store.SubscribeToVotes(r.id, func(votes []types.Vote) {
			if !offer(r.voteUpdates, votes) {
				r.log.Warn("dropped vote update")
			}
		}),
		store.SubscribeToChat(r.id, func(msg types.ChatMessage) {
			if !offer(r.chatUpdates, msg) {
				r.log.Warn("dropped chat message")
			}
		}),
	}
}

func (r *Room) start() {
	r.log.Info("starting room")
	r.subscribe()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			if msg.Publish != nil {
				r.handlePublish(msg)
			}
		case room := <-r.roomUpdates:
			r.handleRoomUpdate(room)
		case players := <-r.playerUpdates:
			r.handlePlayersUpdate(players)
		case votes := <-r.voteUpdates:
			r.handleVotesUpdate(votes)
		case msg := <-r.chatUpdates:
			r.broadcast(&ServerMessage{Message: &msg})
		case <-r.killTimer.C:
			if r.handleRoomTimeout() {
				return
			}
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

// handleRoomTimeout asks the server to unload the room. It reports whether
// the room exited while waiting.
func (r *Room) handleRoomTimeout() bool {
	r.log.Info("room timed out")
	select {
	case r.gs.unloadRoomChan <- r.id:
		return false
	case e := <-r.exit:
		r.handleRoomExit(e)
		return true
	}
}

func (r *Room) handleRoomExit(exitReq) {
	r.log.Info("room is exiting")
	r.killTimer.Stop()

	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	r.subs = nil

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.id)
	}
	clear(r.clients)
	r.clientLock.Unlock()

	close(r.done)
}

func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()
	c := join.client

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	view, err := r.gs.game.View(ctx, c.sess, r.id)
	if err == nil && view.Me == nil {
		err = game.ErrNotJoined
	}
	if err != nil {
		r.resetTimerIfEmpty()
		r.log.Info("join rejected", zap.String("player", c.sess.PlayerId), zap.Error(err))
		switch {
		case errors.Is(err, game.ErrNotJoined):
			c.queueMessage(ErrNotJoined(join.Id))
		case errors.Is(err, game.ErrRoomNotFound):
			c.queueMessage(ErrRoomNotFound(join.Id))
		default:
			c.queueMessage(ErrInternalError(join.Id))
		}
		return
	}

	chat, err := r.gs.store.GetChatMessages(ctx, r.id)
	if err != nil {
		r.resetTimerIfEmpty()
		r.log.Error("get chat messages", zap.Error(err))
		c.queueMessage(ErrInternalError(join.Id))
		return
	}

	r.addClient(c)
	c.queueMessage(NoErrOK(join.Id, JoinData{View: view, Chat: chat}))

	r.broadcast(&ServerMessage{
		Notification: &Notification{
			Presence: &Presence{
				Present:  true,
				PlayerId: c.sess.PlayerId,
				RoomId:   r.id,
			},
		},
		SkipClient: c,
	})
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	client := leaveMsg.client
	if !r.removeClient(client) {
		if !leaveMsg.disconnect {
			client.queueMessage(ErrRoomNotFound(leaveMsg.Id))
		}
		return
	}

	if !leaveMsg.disconnect {
		client.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	if !r.playerPresent(client.sess.PlayerId) {
		r.broadcast(&ServerMessage{
			Notification: &Notification{
				Presence: &Presence{
					Present:  false,
					PlayerId: client.sess.PlayerId,
					RoomId:   r.id,
				},
			},
		})
	}
}

func (r *Room) handlePublish(msg *ClientMessage) {
	content := strings.TrimSpace(msg.Publish.Content)
	if content == "" {
		msg.client.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	sess := msg.client.sess
	params := database.ChatMessageParams{
		RoomId:     r.id,
		PlayerId:   sess.PlayerId,
		PlayerName: sess.Name,
		Content:    content,
	}
	if sess.CharacterId != nil {
		if ch, ok := scenario.CharacterById(*sess.CharacterId); ok {
			params.CharacterName = ch.Name
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	// delivery happens through the chat subscription
	if _, err := r.gs.store.SendChatMessage(ctx, params); err != nil {
		r.log.Error("send chat message", zap.Error(err))
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	msg.client.queueMessage(NoErrAccepted(msg.Id))
}

func (r *Room) handleRoomUpdate(room types.Room) {
	last := r.lastRoom
	if last != nil && last.Phase == room.Phase && timesEqual(last.TimerStart, room.TimerStart) {
		return
	}
	r.lastRoom = &room

	n := &Notification{Room: &room}
	if last != nil && last.Phase != room.Phase {
		n.PhaseChange = &PhaseChange{
			RoomId: r.id,
			From:   last.Phase,
			To:     room.Phase,
			Flow:   game.FlowFor(room.Phase),
		}
	}

	r.broadcast(&ServerMessage{Notification: n})
}

func (r *Room) handlePlayersUpdate(players []types.Player) {
	if r.lastPlayers != nil && reflect.DeepEqual(r.lastPlayers, players) {
		return
	}
	r.lastPlayers = players

	r.broadcast(&ServerMessage{
		Notification: &Notification{Players: players},
	})
}

func (r *Room) handleVotesUpdate(votes []types.Vote) {
	if len(votes) == r.lastVotes {
		return
	}
	r.lastVotes = len(votes)

	r.broadcast(&ServerMessage{
		Notification: &Notification{
			Votes: &VoteCount{RoomId: r.id, Votes: len(votes)},
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if _, err := r.gs.game.CheckVotingComplete(ctx, r.id); err != nil {
		r.log.Error("check voting complete", zap.Error(err))
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for c := range r.clients {
		if c == msg.SkipClient {
			continue
		}
		c.queueMessage(msg)
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	c.addRoom(r)
}

// removeClient reports whether c was watching the room.
func (r *Room) removeClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false
	}

	delete(r.clients, c)
	c.delRoom(r.id)
	r.log.Debug("removed client", zap.String("player", c.sess.PlayerId))

	if len(r.clients) == 0 {
		r.log.Debug("no clients left, starting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
	return true
}

func (r *Room) resetTimerIfEmpty() {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	if len(r.clients) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// playerPresent reports whether any connection for playerId is still here.
func (r *Room) playerPresent(playerId string) bool {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for c := range r.clients {
		if c.sess.PlayerId == playerId {
			return true
		}
	}
	return false
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
