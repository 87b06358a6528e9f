package database

import (
	"sync"
	"sync/atomic"
	"time"
)

// ManualTicker is a Ticker that only fires when Tick is called.
type ManualTicker struct {
	Interval time.Duration
	c        chan time.Time
	stopped  atomic.Bool
}

func NewManualTicker(d time.Duration) *ManualTicker {
	return &ManualTicker{Interval: d, c: make(chan time.Time)}
}

func (t *ManualTicker) C() <-chan time.Time { return t.c }

func (t *ManualTicker) Stop() { t.stopped.Store(true) }

func (t *ManualTicker) Stopped() bool { return t.stopped.Load() }

// Tick delivers one tick. It returns false if nobody received the tick
// within a second, which happens once the poller has been cancelled.
func (t *ManualTicker) Tick() bool {
	if t.Stopped() {
		return false
	}
	select {
	case t.c <- time.Now():
		return true
	case <-time.After(time.Second):
		return false
	}
}

// ManualTickers is a TickerFactory that records every ticker it creates.
type ManualTickers struct {
	mu      sync.Mutex
	tickers []*ManualTicker
}

func (m *ManualTickers) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := NewManualTicker(d)
	m.tickers = append(m.tickers, t)
	return t
}

func (m *ManualTickers) All() []*ManualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*ManualTicker(nil), m.tickers...)
}

// Last returns the most recently created ticker, or nil.
func (m *ManualTickers) Last() *ManualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tickers) == 0 {
		return nil
	}
	return m.tickers[len(m.tickers)-1]
}
