package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/npezzotti/go-mystery/internal/database"
	"github.com/npezzotti/go-mystery/internal/game"
	"github.com/npezzotti/go-mystery/internal/stats"
	"go.uber.org/zap"
)

// GameServer owns the live rooms and the websocket clients attached to
// them. Rooms are loaded on first join and unloaded after sitting idle.
type GameServer struct {
	log            *zap.Logger
	store          database.Store
	game           *game.Service
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	registerChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan string
	rooms          map[string]*Room
	roomsLock      sync.RWMutex
	stop           chan stopReq
	done           chan struct{}
}

type stopReq struct {
	done chan struct{}
}

func NewGameServer(logger *zap.Logger, store database.Store, svc *game.Service, su stats.StatsProvider) *GameServer {
	return &GameServer{
		log:            logger.Named("hub"),
		store:          store,
		game:           svc,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan string),
		rooms:          make(map[string]*Room),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}
}

func (gs *GameServer) Run() {
	defer close(gs.done)

	for {
		select {
		case joinMsg := <-gs.joinChan:
			gs.handleJoin(joinMsg)
		case client := <-gs.registerChan:
			gs.log.Debug("adding connection", zap.String("player", client.sess.PlayerId))
			gs.addClient(client)
		case client := <-gs.deRegisterChan:
			gs.log.Debug("removing connection", zap.String("player", client.sess.PlayerId))
			gs.removeClient(client)
		case id := <-gs.unloadRoomChan:
			if r, ok := gs.getRoom(id); ok {
				gs.unloadRoom(r)
			}
		case req := <-gs.stop:
			gs.log.Info("shutting down rooms")
			gs.roomsLock.RLock()
			rooms := make([]*Room, 0, len(gs.rooms))
			for _, r := range gs.rooms {
				rooms = append(rooms, r)
			}
			gs.roomsLock.RUnlock()

			for _, r := range rooms {
				gs.unloadRoom(r)
			}

			close(req.done)
			return
		}
	}
}

func (gs *GameServer) handleJoin(joinMsg *ClientMessage) {
	roomId := game.NormalizeRoomCode(joinMsg.Join.RoomId)

	room, ok := gs.getRoom(roomId)
	if !ok {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		if _, err := gs.store.GetRoom(ctx, roomId); err != nil {
			if !errors.Is(err, database.ErrNotFound) {
				gs.log.Error("load room", zap.String("room", roomId), zap.Error(err))
				joinMsg.client.queueMessage(ErrInternalError(joinMsg.Id))
				return
			}
			joinMsg.client.queueMessage(ErrRoomNotFound(joinMsg.Id))
			return
		}

		room = newRoom(gs, roomId)
		gs.addRoom(roomId, room)
		go room.start()
	}

	select {
	case room.joinChan <- joinMsg:
	default:
		gs.log.Warn("join channel full", zap.String("room", room.id))
		joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
	}
}

// unloadRoom stops r and waits for it to release its subscriptions.
func (gs *GameServer) unloadRoom(r *Room) {
	gs.deleteRoom(r.id)
	r.exit <- exitReq{}
	<-r.done
}

func (gs *GameServer) addRoom(id string, r *Room) {
	gs.roomsLock.Lock()
	defer gs.roomsLock.Unlock()

	gs.rooms[id] = r
	gs.stats.Incr(stats.NumActiveRooms)
}

func (gs *GameServer) deleteRoom(id string) {
	gs.roomsLock.Lock()
	defer gs.roomsLock.Unlock()

	if _, ok := gs.rooms[id]; ok {
		gs.log.Info("unloading room", zap.String("room", id))
		delete(gs.rooms, id)
		gs.stats.Decr(stats.NumActiveRooms)
	}
}

func (gs *GameServer) getRoom(id string) (*Room, bool) {
	gs.roomsLock.RLock()
	defer gs.roomsLock.RUnlock()

	r, ok := gs.rooms[id]
	return r, ok
}

func (gs *GameServer) addClient(c *Client) {
	gs.clientsLock.Lock()
	defer gs.clientsLock.Unlock()

	gs.clients[c] = struct{}{}
	gs.stats.Incr(stats.NumConnections)
}

func (gs *GameServer) removeClient(c *Client) {
	gs.clientsLock.Lock()
	defer gs.clientsLock.Unlock()

	if _, ok := gs.clients[c]; ok {
		delete(gs.clients, c)
		gs.stats.Decr(stats.NumConnections)
	}
}

// RegisterClient hands a new connection to the server loop.
func (gs *GameServer) RegisterClient(c *Client) {
	select {
	case gs.registerChan <- c:
	case <-gs.done:
	}
}

func (gs *GameServer) deRegisterClient(c *Client) {
	select {
	case gs.deRegisterChan <- c:
	case <-gs.done:
	}
}

// Shutdown disconnects every client and unloads every room.
func (gs *GameServer) Shutdown(ctx context.Context) error {
	gs.log.Info("received shutdown signal")

	gs.clientsLock.Lock()
	for c := range gs.clients {
		c.stopClient()
	}
	gs.clientsLock.Unlock()

	req := stopReq{done: make(chan struct{})}
	select {
	case gs.stop <- req:
	case <-ctx.Done():
		return fmt.Errorf("send stop: %w", ctx.Err())
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
