// Package notify delivers lifecycle emails. Lifecycle services return
// pending Notification values; the route layer dispatches them after the
// state change has been persisted. Delivery failures are logged and never
// propagated to the operation that produced them.
package notify

import (
	"context"
	"log/slog"
)

// Kind identifies which lifecycle event a notification reports.
type Kind string

const (
	KindSubmission Kind = "submission"
	KindCompletion Kind = "completion"
)

// StatementLine summarizes one uploaded statement in a submission notice.
type StatementLine struct {
	InstitutionName string
	AccountLast4    string
	InstitutionType string
	FileName        string
}

// Notification is a pending email produced by a lifecycle transition.
type Notification struct {
	Kind        Kind
	ClientName  string
	ClientEmail string
	CompanyName string
	Month       string
	Year        int
	Statements  []StatementLine
}

// Notifier sends lifecycle notices.
type Notifier interface {
	SendSubmissionNotice(ctx context.Context, n Notification) error
	SendCompletionNotice(ctx context.Context, n Notification) error
}

// Dispatcher fans pending notifications out to a Notifier, swallowing
// delivery failures.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(notifier Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, logger: logger}
}

// Dispatch sends each pending notification, logging failures.
func (d *Dispatcher) Dispatch(ctx context.Context, pending []Notification) {
	if d == nil || d.notifier == nil {
		return
	}
	for _, n := range pending {
		var err error
		switch n.Kind {
		case KindSubmission:
			err = d.notifier.SendSubmissionNotice(ctx, n)
		case KindCompletion:
			err = d.notifier.SendCompletionNotice(ctx, n)
		default:
			d.logger.Warn("unknown notification kind", "kind", string(n.Kind))
			continue
		}
		if err != nil {
			d.logger.Error("failed to send notification", "kind", string(n.Kind), "client_email", n.ClientEmail, "error", err)
		}
	}
}
