package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockTime(t *testing.T) {
	valid := map[string]int{"00:00": 0, "09:30": 570, "23:59": 1439}
	for raw, minutes := range valid {
		parsed, err := ParseClockTime(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, minutes, parsed.Minutes())
		assert.Equal(t, raw, parsed.String())
	}

	for _, raw := range []string{"", "9:30", "24:00", "12:60", "12-30", "ab:cd", "09:30:00", " 9:30"} {
		_, err := ParseClockTime(raw)
		assert.Error(t, err, raw)
	}
}

func TestClockTimeJSON(t *testing.T) {
	var payload struct {
		Start ClockTime `json:"start"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"08:05"}`), &payload))
	assert.Equal(t, MustClockTime("08:05"), payload.Start)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"08:05"}`, string(raw))

	assert.Error(t, json.Unmarshal([]byte(`{"start":"8:05"}`), &payload))
	_, err = json.Marshal(struct{ At ClockTime }{At: ClockTime(minutesPerDay)})
	assert.Error(t, err)
}

func TestTimeRangeOverlaps(t *testing.T) {
	r := func(start, end string) TimeRange {
		return TimeRange{Start: MustClockTime(start), End: MustClockTime(end)}
	}

	cases := []struct {
		name string
		a, b TimeRange
		want bool
	}{
		{"identical", r("09:00", "10:00"), r("09:00", "10:00"), true},
		{"partial", r("09:00", "10:00"), r("09:30", "10:30"), true},
		{"contained", r("09:00", "12:00"), r("10:00", "11:00"), true},
		{"touching end", r("09:00", "10:00"), r("10:00", "11:00"), false},
		{"touching start", r("10:00", "11:00"), r("09:00", "10:00"), false},
		{"disjoint", r("08:00", "09:00"), r("13:00", "14:00"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Overlaps(tc.b))
			assert.Equal(t, tc.want, tc.b.Overlaps(tc.a))
		})
	}
}

func TestParseWeekday(t *testing.T) {
	day, err := ParseWeekday(" wednesday ")
	require.NoError(t, err)
	assert.Equal(t, Wednesday, day)
	assert.Equal(t, 2, day.Index())
	assert.True(t, Sunday.Valid())

	_, err = ParseWeekday("Funday")
	assert.Error(t, err)
	assert.False(t, Weekday("monday").Valid())
	assert.Equal(t, -1, Weekday("Funday").Index())

	var decoded struct {
		Day Weekday `json:"day"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"day":"FRIDAY"}`), &decoded))
	assert.Equal(t, Friday, decoded.Day)
}
