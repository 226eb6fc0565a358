package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	t.Parallel()
	var r Reporter = Nop{}
	assert.NoError(t, r.Notify(context.Background(), errors.New("boom"), nil))
}

func TestLoggingWritesMetadata(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	r := Logging{Log: slog.New(slog.NewTextHandler(&buf, nil))}

	err := r.Notify(context.Background(), errors.New("boom"), Metadata{
		"subsystem": {"package": "pwa"},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "error=boom")
	assert.Contains(t, buf.String(), "subsystem.package=pwa")
}

func TestLoggingNilLogger(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Logging{}.Notify(context.Background(), errors.New("boom"), nil))
}

func TestNewInvocationID(t *testing.T) {
	t.Parallel()
	a, b := NewInvocationID(), NewInvocationID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
