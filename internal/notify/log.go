package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notices to the log instead of sending email.
// Used in mock mode and whenever no API key is configured.
type LogNotifier struct {
	logger *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) SendSubmissionNotice(ctx context.Context, n Notification) error {
	l.logger.Info("submission notice",
		"company", n.CompanyName,
		"period", n.Month,
		"year", n.Year,
		"statements", len(n.Statements),
	)
	return nil
}

func (l *LogNotifier) SendCompletionNotice(ctx context.Context, n Notification) error {
	l.logger.Info("completion notice",
		"client_email", n.ClientEmail,
		"period", n.Month,
		"year", n.Year,
	)
	return nil
}
