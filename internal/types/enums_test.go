package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHorizonsPartitionNonNegativeDays(t *testing.T) {
	// Every day up to well past the last closed bucket lands in exactly
	// one horizon, with no gaps at the boundaries.
	for days := 0; days <= 400; days++ {
		matches := 0
		for _, h := range Horizons {
			if days >= h.MinDays && days <= h.MaxDays {
				matches++
			}
		}
		require.Equalf(t, 1, matches, "day %d should be in exactly one bucket", days)
	}
}

func TestHorizonFor(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{-10, "0-30"},
		{0, "0-30"},
		{30, "0-30"},
		{31, "31-60"},
		{60, "31-60"},
		{61, "61-90"},
		{90, "61-90"},
		{91, "91+"},
		{365, "91+"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HorizonFor(tt.days).Name, "days=%d", tt.days)
	}
}

func TestHorizonEnds(t *testing.T) {
	assert.True(t, Horizons[0].IsNearest())
	assert.False(t, Horizons[0].IsFarthest())
	assert.True(t, Horizons[3].IsFarthest())
	assert.False(t, Horizons[3].IsNearest())
}

func TestDaysBetweenIgnoresTimeOfDay(t *testing.T) {
	from := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	to := time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(from, to))

	assert.Equal(t, 0, DaysBetween(to, to))
	assert.Equal(t, -1, DaysBetween(to, from))
}

func TestExposureDaysToMaturityFloorsOverdue(t *testing.T) {
	today := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	exp := Exposure{DueDate: today.AddDate(0, 0, -5)}
	assert.Equal(t, 0, exp.DaysToMaturity(today))

	exp.DueDate = today.AddDate(0, 0, 45)
	assert.Equal(t, 45, exp.DaysToMaturity(today))
}

func TestExposureTypeValid(t *testing.T) {
	assert.True(t, ExposurePayable.Valid())
	assert.True(t, ExposureReceivable.Valid())
	assert.False(t, ExposureType("loan").Valid())
	assert.False(t, ExposureType("").Valid())
}
