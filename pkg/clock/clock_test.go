package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, time.UTC, c.Location())

	c, err = New(Config{})
	require.NoError(t, err)
	assert.Equal(t, "UTC", c.Location().String())

	_, err = New(Config{Timezone: "Invalid/Zone"})
	assert.ErrorContains(t, err, "Invalid/Zone")

	assert.Panics(t, func() { MustNew(Config{Timezone: "Invalid/Zone"}) })
}

func TestNowIsCachedUntilTick(t *testing.T) {
	src := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newClock(time.UTC, func() time.Time { return src })

	first := c.Now()
	src = src.Add(time.Minute)
	assert.Equal(t, first, c.Now())

	c.Tick()
	assert.Equal(t, first.Add(time.Minute), c.Now())
}

func TestOffset(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewFixed(base)

	c.SetOffset(2 * time.Hour)
	assert.Equal(t, 2*time.Hour, c.Offset())
	assert.Equal(t, base.Add(2*time.Hour), c.Now())

	c.SetOffset(0)
	assert.Equal(t, base, c.Now())

	withOffset, err := New(Config{Timezone: "UTC", Offset: -time.Hour})
	require.NoError(t, err)
	assert.Equal(t, -time.Hour, withOffset.Offset())
}

func TestFixedClockIgnoresTick(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	at := time.Date(2024, 1, 1, 8, 0, 0, 0, loc)
	c := NewFixed(at)

	c.Tick()
	assert.True(t, at.Equal(c.Now()))
	assert.Equal(t, loc, c.Location())
}

func TestLocationApplied(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	c := newClock(loc, func() time.Time { return time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC) })

	now := c.Now()
	assert.Equal(t, loc, now.Location())
	assert.Equal(t, 22, now.Hour())
	assert.Equal(t, 31, now.Day())
}
