// Package testutil provides helpers shared by package tests.
package testutil

import (
	"log/slog"
	"testing"

	"github.com/Cipahi/ng-toolkit/internal/tree"
)

// NewTestLogger returns a logger that writes to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// NewTree seeds an in-memory tree with path/content pairs.
func NewTree(t testing.TB, files map[string]string) *tree.Mem {
	t.Helper()
	m := tree.NewMem()
	for p, c := range files {
		m.Add(p, c)
	}
	return m
}
