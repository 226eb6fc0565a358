// Package telemetry reports patcher failures to an optional error sink.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/bugsnag/bugsnag-go/v2"
	"github.com/google/uuid"
)

// Metadata is grouped diagnostic data attached to a report, keyed by tab.
type Metadata map[string]map[string]any

// Reporter receives fatal errors. Implementations must not panic on bad
// input; callers still treat any failure as best-effort.
type Reporter interface {
	Notify(ctx context.Context, err error, md Metadata) error
}

// Nop discards every report.
type Nop struct{}

func (Nop) Notify(context.Context, error, Metadata) error { return nil }

// Logging writes reports to a structured logger instead of a remote sink.
type Logging struct {
	Log *slog.Logger
}

func (l Logging) Notify(ctx context.Context, err error, md Metadata) error {
	log := l.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	attrs := []any{"error", err}
	for tab, values := range md {
		group := make([]any, 0, len(values)*2)
		for k, v := range values {
			group = append(group, k, v)
		}
		attrs = append(attrs, slog.Group(tab, group...))
	}
	log.WarnContext(ctx, "telemetry report", attrs...)
	return nil
}

// Bugsnag delivers reports through a bugsnag notifier.
type Bugsnag struct {
	notifier *bugsnag.Notifier
}

// NewBugsnag returns a reporter for apiKey. Delivery is synchronous so the
// report is sent before the process exits.
func NewBugsnag(apiKey, version string) *Bugsnag {
	return &Bugsnag{notifier: bugsnag.New(bugsnag.Configuration{
		APIKey:          apiKey,
		AppType:         "cli",
		AppVersion:      version,
		ProjectPackages: []string{"github.com/Cipahi/ng-toolkit/**"},
		Synchronous:     true,
		PanicHandler:    func() {},
	})}
}

func (b *Bugsnag) Notify(ctx context.Context, err error, md Metadata) error {
	meta := bugsnag.MetaData{}
	for tab, values := range md {
		for k, v := range values {
			meta.Add(tab, k, v)
		}
	}
	return b.notifier.Notify(err, ctx, meta)
}

// NewInvocationID returns an identifier tagging one patcher run.
func NewInvocationID() string {
	return uuid.NewString()
}
