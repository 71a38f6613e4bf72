package engine

import (
	"context"
	"log/slog"

	"github.com/wakefeed/wake/internal/activity"
)

// TransientSink receives deliveries for transient streams. These entries
// are never persisted; the platform hangs its immediate-consumption
// fan-out (websocket push, email digests) behind this boundary.
type TransientSink interface {
	Deliver(ctx context.Context, streamID string, entry *activity.FeedEntry) error
}

// discardSink is the default sink: transient deliveries vanish, with a
// debug line for development.
type discardSink struct {
	logger *slog.Logger
}

func (s discardSink) Deliver(_ context.Context, streamID string, entry *activity.FeedEntry) error {
	s.logger.Debug("transient delivery discarded",
		"stream", streamID, "type", entry.ActivityType, "verb", entry.Verb)
	return nil
}
