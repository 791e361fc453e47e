package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/clock"
)

func TestRealClock_Now(t *testing.T) {
	now := clock.NewRealClock().Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.WithinDuration(t, time.Now(), now, time.Second)
}

func TestMockClock_SetAndAdd(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	c := clock.NewMockClock(start)
	assert.Equal(t, start, c.Now())

	c.Add(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	later := start.Add(24 * time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}
