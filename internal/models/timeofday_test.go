package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:05")
	require.NoError(t, err)
	assert.Equal(t, 9*60+5, tod.Minutes())
	assert.Equal(t, "09:05", tod.String())

	tod, err = ParseTimeOfDay("23:59:42")
	require.NoError(t, err)
	assert.Equal(t, "23:59", tod.String())

	for _, raw := range []string{"", "9:05", "24:00", "12:60", "ab:cd", "12-30", "12:30:99", "1230",
		"+9:00", "09:+5", "+0:+0", "23:59:+1", "-1:00", " 9:00", "0x:10"} {
		_, err := ParseTimeOfDay(raw)
		assert.ErrorIs(t, err, ErrInvalidTimeOfDay, raw)
	}
}

func TestTimeOfDayOrderingMatchesStringOrder(t *testing.T) {
	a := MustParseTimeOfDay("08:59")
	b := MustParseTimeOfDay("09:00")
	assert.True(t, b.After(a))
	assert.False(t, a.After(b))
	assert.False(t, b.After(b))
	assert.Less(t, a.String(), b.String())
}

func TestTimeOfDayOfUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	ts := time.Date(2024, 3, 1, 2, 30, 0, 0, time.UTC).In(loc)
	assert.Equal(t, "09:30", TimeOfDayOf(ts).String())
}

func TestTimeOfDayJSON(t *testing.T) {
	type payload struct {
		At *TimeOfDay `json:"at,omitempty"`
	}
	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"at":"10:30"}`), &p))
	require.NotNil(t, p.At)
	assert.Equal(t, "10:30", p.At.String())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"10:30"}`, string(out))

	err = json.Unmarshal([]byte(`{"at":"10.30"}`), &p)
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)

	err = json.Unmarshal([]byte(`{"at":"+8:30"}`), &p)
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)
}

func TestTimeOfDayScan(t *testing.T) {
	var tod TimeOfDay
	require.NoError(t, tod.Scan("07:15:00"))
	assert.Equal(t, "07:15", tod.String())
	require.NoError(t, tod.Scan([]byte("18:45:00")))
	assert.Equal(t, "18:45", tod.String())
	assert.Error(t, tod.Scan(42))

	v, err := MustParseTimeOfDay("06:00").Value()
	require.NoError(t, err)
	assert.Equal(t, "06:00:00", v)
}
