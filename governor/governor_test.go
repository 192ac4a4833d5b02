package governor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTimer struct {
	fire    func()
	stopped bool
	fired   bool
}

// manualScheduler records scheduled callbacks so tests can fire them.
type manualScheduler struct {
	timers []*manualTimer
}

func (s *manualScheduler) schedule(_ time.Duration, fn func()) func() bool {
	timer := &manualTimer{fire: fn}
	s.timers = append(s.timers, timer)
	return func() bool {
		active := !timer.stopped && !timer.fired
		timer.stopped = true
		return active
	}
}

func (s *manualScheduler) fire(i int) {
	timer := s.timers[i]
	if timer.stopped || timer.fired {
		return
	}
	timer.fired = true
	timer.fire()
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestGovernor() (*Governor, *testClock, *manualScheduler) {
	clock := &testClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	scheduler := &manualScheduler{}
	g := New(Config{Clock: clock.Now, Scheduler: scheduler.schedule})
	return g, clock, scheduler
}

func rateLimited(t *testing.T, err error) *RateLimitedError {
	t.Helper()
	var limited *RateLimitedError
	require.True(t, errors.As(err, &limited), "expected RateLimitedError, got %v", err)
	return limited
}

func TestFirstSendAllowed(t *testing.T) {
	g, clock, _ := newTestGovernor()

	assert.NoError(t, g.CanSend(clock.Now()))
	assert.Equal(t, DefaultQuota, g.Remaining())
}

func TestCooldownDenial(t *testing.T) {
	g, clock, _ := newTestGovernor()

	g.RecordSend(clock.Now())
	clock.Advance(3*time.Second + 200*time.Millisecond)

	limited := rateLimited(t, g.CanSend(clock.Now()))
	assert.Equal(t, ReasonCooldown, limited.Reason)
	assert.Equal(t, 6*time.Second+800*time.Millisecond, limited.RetryAfter)
	assert.Equal(t, "Please wait 7 seconds before sending another message", limited.Error())

	clock.Advance(limited.RetryAfter)
	assert.NoError(t, g.CanSend(clock.Now()))
}

func TestCooldownAppliesRegardlessOfQuota(t *testing.T) {
	g, clock, _ := newTestGovernor()

	g.RecordSend(clock.Now())
	require.Equal(t, DefaultQuota-1, g.Remaining())

	clock.Advance(time.Second)
	limited := rateLimited(t, g.CanSend(clock.Now()))
	assert.Equal(t, ReasonCooldown, limited.Reason)
}

func TestQuotaExhaustion(t *testing.T) {
	g, clock, scheduler := newTestGovernor()

	for i := 0; i < DefaultQuota; i++ {
		require.NoError(t, g.CanSend(clock.Now()), "send %d", i+1)
		g.RecordSend(clock.Now())
		g.ScheduleReplenish()
		clock.Advance(DefaultCooldown)
	}
	require.Zero(t, g.Remaining())
	require.Len(t, scheduler.timers, DefaultQuota)

	limited := rateLimited(t, g.CanSend(clock.Now()))
	assert.Equal(t, ReasonQuota, limited.Reason)
	assert.Equal(t, "You've reached the message limit. Please wait before sending more messages.", limited.Error())
	// The first replenishment was scheduled at 09:00:00 and is due at 09:01:00;
	// the clock now reads 09:01:40.
	assert.Zero(t, limited.RetryAfter)

	scheduler.fire(0)
	assert.Equal(t, 1, g.Remaining())
	assert.NoError(t, g.CanSend(clock.Now()))
}

func TestQuotaRetryAfterUsesEarliestDeadline(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	scheduler := &manualScheduler{}
	g := New(Config{Quota: 2, Cooldown: time.Second, Clock: clock.Now, Scheduler: scheduler.schedule})

	g.RecordSend(clock.Now())
	g.ScheduleReplenish()
	clock.Advance(5 * time.Second)
	g.RecordSend(clock.Now())
	g.ScheduleReplenish()
	clock.Advance(5 * time.Second)

	limited := rateLimited(t, g.CanSend(clock.Now()))
	assert.Equal(t, ReasonQuota, limited.Reason)
	assert.Equal(t, 50*time.Second, limited.RetryAfter)
}

func TestQuotaWithoutPendingReplenishment(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	g := New(Config{Quota: 1, Clock: clock.Now, Scheduler: (&manualScheduler{}).schedule})

	g.RecordSend(clock.Now())
	clock.Advance(time.Minute)

	limited := rateLimited(t, g.CanSend(clock.Now()))
	assert.Equal(t, ReasonQuota, limited.Reason)
	assert.Zero(t, limited.RetryAfter)
}

func TestReplenishNeverExceedsCeiling(t *testing.T) {
	g, clock, scheduler := newTestGovernor()

	g.RecordSend(clock.Now())
	g.ScheduleReplenish()
	g.ScheduleReplenish()
	g.ScheduleReplenish()

	for i := range scheduler.timers {
		scheduler.fire(i)
	}
	assert.Equal(t, DefaultQuota, g.Remaining())
	assert.Zero(t, g.Pending())
}

func TestStopCancelsPendingReplenishments(t *testing.T) {
	g, clock, scheduler := newTestGovernor()

	g.RecordSend(clock.Now())
	g.ScheduleReplenish()
	require.Equal(t, 1, g.Pending())

	g.Stop()
	assert.Zero(t, g.Pending())
	assert.True(t, scheduler.timers[0].stopped)

	scheduler.fire(0)
	assert.Equal(t, DefaultQuota-1, g.Remaining())

	g.ScheduleReplenish()
	assert.Len(t, scheduler.timers, 1)
}

func TestReplenishWithRealTimers(t *testing.T) {
	g := New(Config{Quota: 1, ReplenishAfter: 10 * time.Millisecond})

	g.RecordSend(time.Now())
	g.ScheduleReplenish()

	assert.Eventually(t, func() bool { return g.Remaining() == 1 }, time.Second, 5*time.Millisecond)
	g.Stop()
}
