// Package broadcast defines the port for publishing plan lifecycle events.
package broadcast

import "context"

// Plan lifecycle event types.
const (
	EventPlanCreated       = "plan.created"
	EventPlanStarted       = "plan.started"
	EventPlanTaskCompleted = "plan.task_completed"
	EventPlanFinished      = "plan.finished"
	EventPlanAdapted       = "plan.adapted"
)

// Broadcaster sends typed events to interested consumers.
type Broadcaster interface {
	// BroadcastEvent delivers payload under eventType. Delivery is best effort.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Multi fans every event out to all non-nil broadcasters.
func Multi(bs ...Broadcaster) Broadcaster {
	var out multi
	for _, b := range bs {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

type multi []Broadcaster

func (m multi) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	for _, b := range m {
		b.BroadcastEvent(ctx, eventType, payload)
	}
}

// Nop discards all events.
type Nop struct{}

// BroadcastEvent does nothing.
func (Nop) BroadcastEvent(context.Context, string, any) {}
