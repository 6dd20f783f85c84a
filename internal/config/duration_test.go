package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"minutes", "30m", 30 * time.Minute, false},
		{"seconds", "45s", 45 * time.Second, false},
		{"combined", "1h30m", 90 * time.Minute, false},
		{"milliseconds", "250ms", 250 * time.Millisecond, false},
		{"days", "1d", day, false},
		{"days and hours", "1d12h", 36 * time.Hour, false},
		{"negative", "-5s", -5 * time.Second, false},
		{"padded", " 2h ", 2 * time.Hour, false},
		{"bad day count", "xd", 0, true},
		{"invalid", "invalid", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Duration())
		})
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		expected time.Duration
	}{
		{"string format", `"30m"`, 30 * time.Minute},
		{"with days", `"1d"`, day},
		{"nanoseconds int", `1000000000`, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			require.NoError(t, json.Unmarshal([]byte(tt.json), &d))
			assert.Equal(t, tt.expected, d.Duration())
		})
	}
}

func TestDuration_String(t *testing.T) {
	tests := []struct {
		name     string
		duration Duration
		expected string
	}{
		{"minutes", Duration(30 * time.Minute), "30m"},
		{"hour", Duration(time.Hour), "1h"},
		{"hour and minutes", Duration(90 * time.Minute), "1h30m"},
		{"seconds", Duration(10 * time.Second), "10s"},
		{"days and hours", Duration(36 * time.Hour), "1d12h"},
		{"whole day", Duration(day), "1d"},
		{"negative", Duration(-2 * time.Minute), "-2m"},
		{"zero", Duration(0), "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.duration.String())
		})
	}
}
