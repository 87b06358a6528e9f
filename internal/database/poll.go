package database

import (
	"sync"
	"time"
)

// Ticker is the scheduling primitive behind polling subscriptions. It is
// satisfied by a wrapped time.Ticker in production and by ManualTicker in
// tests.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t *timeTicker) C() <-chan time.Time { return t.t.C }
func (t *timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the wall-clock TickerFactory.
func NewTimeTicker(d time.Duration) Ticker {
	return &timeTicker{t: time.NewTicker(d)}
}

// poller runs fn on every tick until it is cancelled. Cancelling stops the
// ticker and waits for an in-flight fn to return, so fn must not cancel its
// own poller.
type poller struct {
	ticker Ticker
	fn     func()
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	onStop func()
}

func startPoller(ticker Ticker, fn func(), onStop func()) *poller {
	p := &poller{
		ticker: ticker,
		fn:     fn,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		onStop: onStop,
	}

	go p.run()
	return p
}

func (p *poller) run() {
	defer close(p.done)
	defer p.ticker.Stop()

	for {
		select {
		case <-p.ticker.C():
			select {
			case <-p.stop:
				return
			default:
			}
			p.fn()
		case <-p.stop:
			return
		}
	}
}

func (p *poller) Unsubscribe() {
	p.once.Do(func() {
		close(p.stop)
		<-p.done
		if p.onStop != nil {
			p.onStop()
		}
	})
}
