package tui

import "errors"

// ErrMissingSamples is returned when the monitor has no sample channel.
var ErrMissingSamples = errors.New("tui: sample channel is required")
