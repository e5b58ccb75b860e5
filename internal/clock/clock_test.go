package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfDayNormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	in := time.Date(2024, 1, 2, 3, 30, 0, 0, loc)

	got := StartOfDay(in)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestFakeClockAdvanceDays(t *testing.T) {
	c := NewFakeClock(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	c.AdvanceDays(1)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), c.Now())

	c.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	c.Advance(time.Hour)
	assert.Equal(t, 13, c.Now().Hour())
}
