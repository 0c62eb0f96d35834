// Package realtime delivers audit event envelopes to live observers.
package realtime

import "context"

// Publisher is the real-time channel collaborator. Publish delivers one
// event to a logical channel and reports transport success; it makes no
// delivery guarantee beyond that. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, channel string, eventName string, payload []byte) error
	Close() error
}

// Noop discards every publish. Used in development when no Redis is
// configured; events are still recorded in the audit log.
type Noop struct{}

func (Noop) Publish(ctx context.Context, channel, eventName string, payload []byte) error {
	return nil
}

func (Noop) Close() error { return nil }
