// Package notify delivers alerts for notable engine events, such as a
// MAJOR or CRITICAL energy regression.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Event is one notification.
type Event struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	Workload  string    `json:"workload,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier sends alerts when notable events occur.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the structured log. It is the default
// when no webhook is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a Notifier backed by logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.logger.Warn("notification",
		slog.String("type", event.Type),
		slog.String("severity", event.Severity),
		slog.String("branch", event.Branch),
		slog.String("workload", event.Workload),
		slog.String("message", event.Message),
	)
	return nil
}
