package pager

import (
	"io"
	"log/slog"
)

// orDefaultLogger returns l, or a discard logger if l is nil, so OpenFile
// and NewMemoryPager can be called with no logger for "no logging"
// (SPEC_FULL §10.1).
func orDefaultLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
