package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeOffset(t *testing.T) {
	var cases = []struct{ in, out string }{
		{"2024-01-02T03:04:05+00", "2024-01-02T03:04:05+00:00"},
		{"2024-01-02T03:04:05-05", "2024-01-02T03:04:05-05:00"},
		{"2024-01-02T03:04:05+00:00", "2024-01-02T03:04:05+00:00"},
		{"2024-01-02T03:04:05Z", "2024-01-02T03:04:05Z"},
		{"03:04:05", "03:04:05"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.out, NormalizeOffset(tc.in))
	}
}

func TestParseDateTimeNormalizesToUTC(t *testing.T) {
	parsed, zone, err := ParseDateTime("2024-06-01 10:30:00+02:00")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC), parsed)
	require.Equal(t, "+02:00", zone)

	// Short offsets parse after canonicalisation.
	parsed, zone, err = ParseDateTime("2024-06-01 10:30:00+00")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), parsed)
	require.Equal(t, "+00:00", zone)

	// No offset: the zone stays unknown.
	parsed, zone, err = ParseDateTime("2024-06-01T10:30:00.5")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 6, 1, 10, 30, 0, 500000000, time.UTC), parsed)
	require.Equal(t, "", zone)

	_, _, err = ParseDateTime("yesterday")
	require.Error(t, err)
}

func TestParseTimeOfDayAnchorsToEpoch(t *testing.T) {
	parsed, err := ParseTimeOfDay("10:30:45.123")
	require.NoError(t, err)
	require.Equal(t, "1970-01-01T10:30:45.123Z", parsed.Format(time.RFC3339Nano))
}

func TestParseInterval(t *testing.T) {
	d, err := ParseInterval("01:30:00")
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, d)

	d, err = ParseInterval("1h30m")
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, d)

	_, err = ParseInterval("soon")
	require.Error(t, err)
}
