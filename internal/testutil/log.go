package testutil

import (
	"io"
	"log/slog"
	"testing"
)

// DiscardLogs routes the default slog logger to io.Discard for the duration
// of the test.
func DiscardLogs(t testing.TB) {
	t.Helper()
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
}
