// Package governor limits how often a single chat client may ask for a new
// completion: a cooldown between sends plus a small quota that refills one
// unit at a time after each successful send.
package governor

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	DefaultCooldown       = 10 * time.Second
	DefaultQuota          = 10
	DefaultReplenishAfter = 60 * time.Second
)

type Reason string

const (
	ReasonCooldown Reason = "cooldown"
	ReasonQuota    Reason = "quota"
)

// RateLimitedError is returned by CanSend when a send must be refused.
type RateLimitedError struct {
	Reason     Reason
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.Reason == ReasonCooldown {
		return fmt.Sprintf("Please wait %d seconds before sending another message", ceilSeconds(e.RetryAfter))
	}
	return "You've reached the message limit. Please wait before sending more messages."
}

// Scheduler runs fn once after d and returns a function that cancels it.
type Scheduler func(d time.Duration, fn func()) (stop func() bool)

func AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

type Config struct {
	Cooldown       time.Duration
	Quota          int
	ReplenishAfter time.Duration

	// Clock and Scheduler default to the wall clock and time.AfterFunc.
	Clock     func() time.Time
	Scheduler Scheduler
}

func (c Config) withDefaults() Config {
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.Quota <= 0 {
		c.Quota = DefaultQuota
	}
	if c.ReplenishAfter <= 0 {
		c.ReplenishAfter = DefaultReplenishAfter
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Scheduler == nil {
		c.Scheduler = AfterFunc
	}
	return c
}

type pendingReplenish struct {
	deadline time.Time
	stop     func() bool
}

// Governor holds the rate state of one client. It starts with a full quota
// and keeps nothing across restarts.
type Governor struct {
	cfg Config

	mu        sync.Mutex
	lastSend  time.Time
	sent      bool
	remaining int
	pending   map[uint64]pendingReplenish
	nextID    uint64
	stopped   bool
}

func New(cfg Config) *Governor {
	cfg = cfg.withDefaults()
	return &Governor{
		cfg:       cfg,
		remaining: cfg.Quota,
		pending:   make(map[uint64]pendingReplenish),
	}
}

// CanSend reports whether a send at now is allowed. The cooldown is checked
// before the quota.
func (g *Governor) CanSend(now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sent {
		if elapsed := now.Sub(g.lastSend); elapsed < g.cfg.Cooldown {
			return &RateLimitedError{Reason: ReasonCooldown, RetryAfter: g.cfg.Cooldown - elapsed}
		}
	}

	if g.remaining <= 0 {
		return &RateLimitedError{Reason: ReasonQuota, RetryAfter: g.nextReplenish(now)}
	}
	return nil
}

// RecordSend consumes one quota unit and starts the cooldown.
func (g *Governor) RecordSend(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastSend = now
	g.sent = true
	if g.remaining > 0 {
		g.remaining--
	}
}

// ScheduleReplenish arranges for one quota unit to come back after the
// replenish delay. Several replenishments may be pending at once.
func (g *Governor) ScheduleReplenish() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		return
	}

	id := g.nextID
	g.nextID++

	deadline := g.cfg.Clock().Add(g.cfg.ReplenishAfter)
	stop := g.cfg.Scheduler(g.cfg.ReplenishAfter, func() { g.replenish(id) })
	g.pending[id] = pendingReplenish{deadline: deadline, stop: stop}
}

func (g *Governor) replenish(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.pending[id]; !ok {
		return
	}
	delete(g.pending, id)

	if g.remaining < g.cfg.Quota {
		g.remaining++
	}
}

func (g *Governor) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.remaining
}

func (g *Governor) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.pending)
}

// Stop cancels every pending replenishment. Later ScheduleReplenish calls
// are ignored.
func (g *Governor) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopped = true
	for id, p := range g.pending {
		p.stop()
		delete(g.pending, id)
	}
}

// nextReplenish returns the wait until the earliest pending replenishment,
// or zero when none is pending. Callers hold g.mu.
func (g *Governor) nextReplenish(now time.Time) time.Duration {
	var earliest time.Time
	for _, p := range g.pending {
		if earliest.IsZero() || p.deadline.Before(earliest) {
			earliest = p.deadline
		}
	}
	if earliest.IsZero() || !earliest.After(now) {
		return 0
	}
	return earliest.Sub(now)
}

func ceilSeconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}
