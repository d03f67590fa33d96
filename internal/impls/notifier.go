package impls

import "context"

// Notifier delivers operator-facing notifications: idle reminders, shutdown
// notices and state-drift warnings. The chat integration provides the real
// implementation; a log-backed one is used otherwise.
type Notifier interface {
	Notify(ctx context.Context, message string)
	Warn(ctx context.Context, message string)
}
