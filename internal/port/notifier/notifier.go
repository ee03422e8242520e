// Package notifier defines the port for pushing plan outcomes to chat
// channels.
package notifier

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned when a notifier has no destination.
var ErrNotConfigured = errors.New("notifier: not configured")

// Levels map plan outcomes to notification severity.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Field is one labelled value rendered next to the message.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Notification is the payload sent through a Notifier.
type Notification struct {
	Title   string  `json:"title"`
	Message string  `json:"message"`
	Level   string  `json:"level"`
	Source  string  `json:"source"` // event type, e.g. "plan.finished"
	PlanID  string  `json:"plan_id"`
	Fields  []Field `json:"fields,omitempty"`
}

// Notifier delivers notifications to one destination.
type Notifier interface {
	// Name identifies the notifier kind, e.g. "slack".
	Name() string

	// Send delivers a notification.
	Send(ctx context.Context, n Notification) error
}

// Spec configures one notifier instance.
type Spec struct {
	Kind       string
	WebhookURL string
	Timeout    time.Duration
}
