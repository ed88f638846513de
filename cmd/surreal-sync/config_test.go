package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

func TestParseTimeout(t *testing.T) {
	var cases = []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"300", 300 * time.Second},
		{"300s", 300 * time.Second},
		{"30m", 30 * time.Minute},
		{"1h", time.Hour},
	}
	for _, tc := range cases {
		got, err := parseTimeout(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"1d", "-5", "h", "1.5h", "5 m"} {
		_, err := parseTimeout(bad)
		var cfgErr *core.ConfigError
		require.True(t, errors.As(err, &cfgErr), bad)
	}
}

func TestParseIncrementalBoundsRejectsCorruptCheckpoint(t *testing.T) {
	// A corrupt checkpoint string is a user error, raised before any source
	// connection is opened.
	_, _, _, err := parseIncrementalBounds(checkpoint.TypePostgresWal2json, IncrementalFlags{
		FromCheckpoint: "not-a-lsn",
	})
	var cfgErr *core.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, 1, exitCode(err))
}

func TestParseIncrementalBoundsParsesValidInput(t *testing.T) {
	from, until, deadline, err := parseIncrementalBounds(checkpoint.TypePostgresWal2json, IncrementalFlags{
		FromCheckpoint:  "0/1949850",
		UntilCheckpoint: "0/194A000",
		Timeout:         "30m",
	})
	require.NoError(t, err)
	require.Equal(t, checkpoint.PostgresLSN{LSN: "0/1949850"}, from)
	require.Equal(t, checkpoint.PostgresLSN{LSN: "0/194A000"}, until)
	require.Equal(t, 30*time.Minute, deadline)
}

func TestExitCodes(t *testing.T) {
	var cases = []struct {
		err  error
		want int
	}{
		{nil, 0},
		{&core.ConfigError{Msg: "bad flag"}, 1},
		{&core.SourceError{Op: "query", Err: fmt.Errorf("down")}, 2},
		{&core.SinkError{Op: "write", Err: fmt.Errorf("down")}, 3},
		{&core.TypeConversionError{Field: "t.f"}, 4},
		{context.Canceled, 5},
		{context.DeadlineExceeded, 5},
		{&core.UnsupportedError{What: "rename"}, 2},
		{&core.CheckpointError{Msg: "io"}, 3},
		{fmt.Errorf("wrapped: %w", &core.TypeConversionError{Field: "x"}), 4},
		{fmt.Errorf("unknown"), 1},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, exitCode(tc.err), "%v", tc.err)
	}
}
