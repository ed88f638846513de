package core

import (
	"errors"
	"fmt"
)

// The error taxonomy below is the stable contract between adapters and
// drivers: adapters return typed errors, drivers decide retry versus surface.
// Cancellation is represented by context.Canceled / context.DeadlineExceeded
// and is not a type of its own.

// ConfigError is a user or configuration mistake: a missing flag, an
// unparseable duration, a malformed URI. Fatal, never retried.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
	}
	return "config: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// SourceError wraps a failure talking to a source system. Position carries
// the source position at which the failure occurred, when known.
type SourceError struct {
	Op       string
	Position string
	Err      error
}

func (e *SourceError) Error() string {
	if e.Position != "" {
		return fmt.Sprintf("source: %s at %s: %v", e.Op, e.Position, e.Err)
	}
	return fmt.Sprintf("source: %s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// SinkError wraps a failure writing to the target.
type SinkError struct {
	Op  string
	Err error
}

func (e *SinkError) Error() string { return fmt.Sprintf("sink: %s: %v", e.Op, e.Err) }
func (e *SinkError) Unwrap() error { return e.Err }

// TypeConversionError reports that a source value cannot be represented as
// the declared universal type. It is fatal for the affected change: the
// incremental driver must not advance past it.
type TypeConversionError struct {
	Field    string
	Declared Type
	Got      string
	Err      error
}

func (e *TypeConversionError) Error() string {
	var msg = fmt.Sprintf("cannot convert %s to %s", e.Got, e.Declared)
	if e.Field != "" {
		msg = fmt.Sprintf("field %s: %s", e.Field, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "type conversion: " + msg
}

func (e *TypeConversionError) Unwrap() error { return e.Err }

// CheckpointError is a checkpoint store I/O failure or a malformed stored
// checkpoint. Fatal for the run. A malformed CLI checkpoint string is a
// ConfigError instead.
type CheckpointError struct {
	Msg string
	Err error
}

func (e *CheckpointError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("checkpoint: %s: %v", e.Msg, e.Err)
	}
	return "checkpoint: " + e.Msg
}

func (e *CheckpointError) Unwrap() error { return e.Err }

// UnsupportedError reports a source construct the engine refuses to handle
// silently: an unknown physical type tag, a MongoDB drop/rename event, and
// the like. The operator must redesign the pipeline.
type UnsupportedError struct {
	What string
}

func (e *UnsupportedError) Error() string { return "unsupported: " + e.What }

// IsRetriable reports whether err may be retried inside the driver's
// deadline. Only transient source and sink failures qualify.
func IsRetriable(err error) bool {
	var srcErr *SourceError
	var sinkErr *SinkError
	switch {
	case errors.As(err, &srcErr), errors.As(err, &sinkErr):
		// Typed sub-failures inside a source/sink error stay fatal.
		var tcErr *TypeConversionError
		var unsErr *UnsupportedError
		return !errors.As(err, &tcErr) && !errors.As(err, &unsErr)
	default:
		return false
	}
}
