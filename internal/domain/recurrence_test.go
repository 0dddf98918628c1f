package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecurrence(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Recurrence
		wantErr string
	}{
		{
			name: "daily",
			raw:  `{"type":"daily"}`,
			want: Daily{},
		},
		{
			name: "weekly sorted and deduplicated",
			raw:  `{"type":"weekly","weekdays":[5,1,3,1]}`,
			want: Weekly{Weekdays: []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		},
		{
			name: "weekly single day",
			raw:  `{"type":"weekly","weekdays":[0]}`,
			want: Weekly{Weekdays: []time.Weekday{time.Sunday}},
		},
		{
			name:    "weekly empty set",
			raw:     `{"type":"weekly","weekdays":[]}`,
			wantErr: "empty weekday set",
		},
		{
			name:    "weekly out of range",
			raw:     `{"type":"weekly","weekdays":[7]}`,
			wantErr: "out of range",
		},
		{
			name:    "weekly negative",
			raw:     `{"type":"weekly","weekdays":[-1]}`,
			wantErr: "out of range",
		},
		{
			name: "monthly",
			raw:  `{"type":"monthly","day_of_month":31}`,
			want: Monthly{DayOfMonth: 31},
		},
		{
			name:    "monthly missing day",
			raw:     `{"type":"monthly"}`,
			wantErr: "missing day_of_month",
		},
		{
			name:    "monthly zero day",
			raw:     `{"type":"monthly","day_of_month":0}`,
			wantErr: "out of range",
		},
		{
			name:    "monthly day 32",
			raw:     `{"type":"monthly","day_of_month":32}`,
			wantErr: "out of range",
		},
		{
			name:    "unknown type",
			raw:     `{"type":"yearly"}`,
			wantErr: `unknown recurrence type "yearly"`,
		},
		{
			name:    "not JSON",
			raw:     `{{`,
			wantErr: "invalid recurrence JSON",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRecurrence("def-1", []byte(tt.raw))
			if tt.wantErr != "" {
				require.Error(t, err)
				var malformed *MalformedRuleError
				require.ErrorAs(t, err, &malformed)
				assert.Equal(t, "def-1", malformed.DefinitionID)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeRecurrence_RoundTrip(t *testing.T) {
	rules := []Recurrence{
		Daily{},
		Weekly{Weekdays: []time.Weekday{time.Tuesday, time.Thursday}},
		Monthly{DayOfMonth: 15},
	}
	for _, rule := range rules {
		raw, err := EncodeRecurrence(rule)
		require.NoError(t, err)
		got, err := DecodeRecurrence("def-1", raw)
		require.NoError(t, err)
		assert.Equal(t, rule, got)
	}
}

func TestEncodeRecurrence_UnknownVariantPanics(t *testing.T) {
	type rogue struct{ Recurrence }
	assert.Panics(t, func() {
		_, _ = EncodeRecurrence(rogue{})
	})
}

func TestWeeklyContains(t *testing.T) {
	w := Weekly{Weekdays: []time.Weekday{time.Monday, time.Friday}}
	assert.True(t, w.Contains(time.Monday))
	assert.True(t, w.Contains(time.Friday))
	assert.False(t, w.Contains(time.Sunday))
}
