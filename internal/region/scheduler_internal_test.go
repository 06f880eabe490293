package region

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextOccurrence_LaterToday(t *testing.T) {
	now := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)
	wait := nextOccurrence(now, 3, 0)
	assert.Equal(t, 2*time.Hour, wait)
}

func TestNextOccurrence_AlreadyPassedRollsToTomorrow(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	wait := nextOccurrence(now, 3, 0)
	assert.Equal(t, 17*time.Hour, wait)
}

func TestNextOccurrence_ExactlyNowRollsToTomorrow(t *testing.T) {
	now := time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)
	wait := nextOccurrence(now, 3, 0)
	assert.Equal(t, 24*time.Hour, wait)
}
