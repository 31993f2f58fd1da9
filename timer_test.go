package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalTimer(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timer := NewIntervalTimer(start, 100*time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, timer.Interval())

	assert.False(t, timer.Elapsed(start))
	assert.Equal(t, 100*time.Millisecond, timer.Remaining(start))
	assert.Equal(t, 40*time.Millisecond, timer.Remaining(start.Add(60*time.Millisecond)))

	now := start.Add(100 * time.Millisecond)
	assert.True(t, timer.Elapsed(now))
	assert.Zero(t, timer.Remaining(now.Add(time.Second)))

	// on schedule: the next deadline follows the previous one
	timer.Consume(now.Add(10 * time.Millisecond))
	assert.Equal(t, 90*time.Millisecond, timer.Remaining(now.Add(10*time.Millisecond)))

	// late: missed intervals are skipped
	late := start.Add(time.Second)
	assert.True(t, timer.Elapsed(late))
	timer.Consume(late)
	assert.False(t, timer.Elapsed(late))
	assert.Equal(t, 100*time.Millisecond, timer.Remaining(late))
}

func TestIntervalTimer_nonPositive(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timer := NewIntervalTimer(start, -time.Second)
	assert.Zero(t, timer.Interval())
	for i := 0; i < 3; i++ {
		assert.True(t, timer.Elapsed(start))
		timer.Consume(start)
	}
}

func TestDeadlineTimer(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timer := NewDeadlineTimer(start.Add(time.Minute))

	assert.False(t, timer.Elapsed(start))
	assert.Equal(t, time.Minute, timer.Remaining(start))
	assert.False(t, timer.Spent())

	now := start.Add(2 * time.Minute)
	assert.True(t, timer.Elapsed(now))
	assert.Zero(t, timer.Remaining(now))

	timer.Consume(now)
	assert.True(t, timer.Spent())
	assert.False(t, timer.Elapsed(now.Add(time.Hour)))
	assert.Equal(t, maxRemaining, timer.Remaining(now))
}

func TestClockFunc(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var c Clock = ClockFunc(func() time.Time { return at })
	assert.Equal(t, at, c.Now())
	assert.WithinDuration(t, time.Now(), systemClock.Now(), time.Minute)
}
