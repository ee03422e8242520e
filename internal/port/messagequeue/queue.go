// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection.
	Close() error
}

// Subjects used by agentplan. Outbound plan events are published under
// SubjectPlanEvents + "." + event name without the "plan." prefix.
const (
	SubjectPlanEvents   = "plans"
	SubjectPlanFeedback = "plans.feedback" // inbound quality feedback from review agents
)

// PlanEventSubject maps an event type such as "plan.finished" to its subject.
func PlanEventSubject(eventType string) string {
	const prefix = "plan."
	if len(eventType) > len(prefix) && eventType[:len(prefix)] == prefix {
		eventType = eventType[len(prefix):]
	}
	return SubjectPlanEvents + "." + eventType
}
