// Package notify provides the fallback Notifier used when no chat
// integration is configured: notifications land in the structured log.
package notify

import (
	"context"
	"log/slog"
)

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, message string) {
	n.logger.Info("operator notification", "message", message)
}

func (n *LogNotifier) Warn(_ context.Context, message string) {
	n.logger.Warn("operator warning", "message", message)
}
