package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 30}, tod)
	assert.Equal(t, "09:30", tod.String())

	tod, err = ParseTimeOfDay("23:59")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 23, Minute: 59}, tod)

	for _, bad := range []string{"", "9:30:00", "24:00", "noon"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestDeadlineOn(t *testing.T) {
	def := &TaskDefinition{ScheduledTime: TimeOfDay{Hour: 17, Minute: 0}}
	date := time.Date(2026, time.September, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.September, 9, 17, 0, 0, 0, time.UTC), def.DeadlineOn(date))
}

func TestDateOf(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	afternoon := time.Date(2026, time.September, 9, 14, 23, 55, 120, loc)
	got := DateOf(afternoon)
	assert.Equal(t, time.Date(2026, time.September, 9, 0, 0, 0, 0, loc), got)
	assert.Equal(t, loc, got.Location(), "location preserved")

	midnight := time.Date(2026, time.September, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, midnight, DateOf(midnight))
}
