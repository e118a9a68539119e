package task

import (
	"sync"
	"time"
)

// Clock abstracts time for the poll loop.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the part of time.Ticker the poll loop uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// ManualClock is a Clock whose ticks are fired explicitly. Interval
// arguments are ignored; every live ticker fires on Tick.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*manualTicker]struct{}
	// Wait bounds how long Tick waits for a loop to take a tick.
	Wait time.Duration
}

// NewManualClock returns a ManualClock reading start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{
		now:     start,
		tickers: make(map[*manualTicker]struct{}),
		Wait:    time.Second,
	}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward without firing tickers.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *ManualClock) NewTicker(time.Duration) Ticker {
	t := &manualTicker{
		clock:   c,
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
	}
	c.mu.Lock()
	c.tickers[t] = struct{}{}
	c.mu.Unlock()
	return t
}

// Tickers returns the number of live tickers.
func (c *ManualClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// Tick fires every live ticker once and returns how many loops took the tick.
func (c *ManualClock) Tick() int {
	c.mu.Lock()
	now := c.now
	live := make([]*manualTicker, 0, len(c.tickers))
	for t := range c.tickers {
		live = append(live, t)
	}
	c.mu.Unlock()

	delivered := 0
	for _, t := range live {
		select {
		case t.ch <- now:
			delivered++
		case <-t.stopped:
		case <-time.After(c.Wait):
		}
	}
	return delivered
}

type manualTicker struct {
	clock    *ManualClock
	ch       chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopped)
		t.clock.mu.Lock()
		delete(t.clock.tickers, t)
		t.clock.mu.Unlock()
	})
}
