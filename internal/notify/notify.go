// Package notify posts operational alerts (dispatch failures, reconcile
// repairs) to chat platforms.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zulandar/buildyard/internal/logging"
)

// Alert severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Alert is a platform-neutral operational message.
type Alert struct {
	Title    string
	Body     string
	Severity string
	Fields   []Field
}

// Field is a key-value pair shown with an alert.
type Field struct {
	Name  string
	Value string
	Short bool // render side-by-side with another field
}

// Color returns the sidebar color for the alert's severity.
func (a Alert) Color() string {
	switch a.Severity {
	case SeverityError:
		return "#e01e5a"
	case SeverityWarning:
		return "#ecb22e"
	default:
		return "#36a64f"
	}
}

// Nop discards alerts.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Alert) error { return nil }

// Multi fans an alert out to every notifier, returning the joined errors.
type Multi []Notifier

// Notify delivers alert to each notifier in turn.
func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send delivers alert through n and logs any delivery failure. Alerts are
// best effort; callers never fail because a chat platform is unreachable.
func Send(ctx context.Context, n Notifier, log *slog.Logger, alert Alert) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, alert); err != nil {
		logging.OrDefault(log).Warn("alert not delivered", "title", alert.Title, "error", err)
	}
}
