package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemTodayIsUTCMidnight(t *testing.T) {
	orig := time.Local
	time.Local = time.FixedZone("UTC-3", -3*60*60)
	defer func() { time.Local = orig }()

	before := Midnight(time.Now().UTC())
	today := System().Today()
	after := Midnight(time.Now().UTC())

	require.Equal(t, time.UTC, today.Location())
	assert.True(t, today.Equal(before) || today.Equal(after))
	assert.Equal(t, 0, today.Hour())
	assert.Equal(t, 0, today.Minute())
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)
	c := Fixed(at)

	assert.True(t, c.Now().Equal(at))
	assert.True(t, c.Today().Equal(time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC)
	b := time.Date(2026, time.March, 15, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, 33, DaysBetween(a, b))
	assert.Equal(t, -33, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(b, b))
}
