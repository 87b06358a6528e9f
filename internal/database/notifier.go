package database

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	changeChannel     = "game_changes"
	listenerPingEvery = 90 * time.Second
	reloadTimeout     = 5 * time.Second
)

// change is the payload the notify_game_change trigger publishes.
type change struct {
	Table  string `json:"table"`
	Op     string `json:"op"`
	RoomId string `json:"room_id"`
	Id     string `json:"id"`
}

type topic struct {
	table  string
	roomId string
}

type listener struct {
	id   uint64
	fire func(ctx context.Context, c change)
}

// notifier multiplexes one LISTEN connection over every subscription.
type notifier struct {
	l   *pq.Listener
	log *zap.Logger

	mu     sync.Mutex
	nextId uint64
	topics map[topic]map[uint64]*listener

	// dispatchMu is held while callbacks run so that unsubscribing waits
	// for an in-flight delivery.
	dispatchMu sync.Mutex

	quit chan struct{}
	done chan struct{}
}

func newNotifier(dsn string, log *zap.Logger) (*notifier, error) {
	n := &notifier{
		log:    log,
		topics: make(map[topic]map[uint64]*listener),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	n.l = pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := n.l.Listen(changeChannel); err != nil {
		n.l.Close()
		return nil, err
	}

	go n.run()
	return n, nil
}

func (n *notifier) run() {
	defer close(n.done)

	ping := time.NewTicker(listenerPingEvery)
	defer ping.Stop()

	for {
		select {
		case notification := <-n.l.Notify:
			if notification == nil {
				// the connection was re-established; notifications may have
				// been lost, so every subscriber reloads.
				n.resync()
				continue
			}

			var c change
			if err := json.Unmarshal([]byte(notification.Extra), &c); err != nil {
				n.log.Error("decode change notification", zap.Error(err))
				continue
			}
			n.dispatch(c)
		case <-ping.C:
			go func() {
				if err := n.l.Ping(); err != nil {
					n.log.Warn("listener ping", zap.Error(err))
				}
			}()
		case <-n.quit:
			return
		}
	}
}

func (n *notifier) listeners(t topic) []*listener {
	n.mu.Lock()
	defer n.mu.Unlock()

	ls := make([]*listener, 0, len(n.topics[t]))
	for _, l := range n.topics[t] {
		ls = append(ls, l)
	}
	return ls
}

func (n *notifier) dispatch(c change) {
	ls := n.listeners(topic{table: c.Table, roomId: c.RoomId})
	if len(ls) == 0 {
		return
	}

	n.dispatchMu.Lock()
	defer n.dispatchMu.Unlock()

	for _, l := range ls {
		if !n.active(topic{table: c.Table, roomId: c.RoomId}, l.id) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		l.fire(ctx, c)
		cancel()
	}
}

func (n *notifier) resync() {
	n.mu.Lock()
	var changes []change
	for t := range n.topics {
		if t.table == "chat_messages" {
			continue
		}
		changes = append(changes, change{Table: t.table, Op: "RESYNC", RoomId: t.roomId})
	}
	n.mu.Unlock()

	for _, c := range changes {
		n.dispatch(c)
	}
}

func (n *notifier) active(t topic, id uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, ok := n.topics[t][id]
	return ok
}

func (n *notifier) subscribe(t topic, fire func(ctx context.Context, c change)) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextId++
	l := &listener{id: n.nextId, fire: fire}
	if n.topics[t] == nil {
		n.topics[t] = make(map[uint64]*listener)
	}
	n.topics[t][l.id] = l

	return &notifySubscription{n: n, topic: t, id: l.id}
}

func (n *notifier) unsubscribe(t topic, id uint64) {
	n.mu.Lock()
	delete(n.topics[t], id)
	if len(n.topics[t]) == 0 {
		delete(n.topics, t)
	}
	n.mu.Unlock()

	n.dispatchMu.Lock()
	n.dispatchMu.Unlock()
}

func (n *notifier) Close() {
	close(n.quit)
	<-n.done
	if err := n.l.Close(); err != nil {
		n.log.Warn("close listener", zap.Error(err))
	}
}

type notifySubscription struct {
	n     *notifier
	topic topic
	id    uint64
	once  sync.Once
}

func (s *notifySubscription) Unsubscribe() {
	s.once.Do(func() {
		s.n.unsubscribe(s.topic, s.id)
	})
}
