package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/agentplan/internal/port/messagequeue"
)

// Publisher implements broadcast.Broadcaster by publishing plan events to
// plans.<event> subjects.
type Publisher struct {
	q messagequeue.Queue
}

// NewPublisher returns a Publisher over q.
func NewPublisher(q messagequeue.Queue) *Publisher {
	return &Publisher{q: q}
}

// BroadcastEvent publishes payload wrapped in a PlanEventPayload envelope.
// Payloads must carry a plan_id field. Failures are logged.
func (p *Publisher) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "event marshal failed", "type", eventType, "error", err)
		return
	}
	var ref struct {
		PlanID string `json:"plan_id"`
	}
	_ = json.Unmarshal(data, &ref)

	env, err := json.Marshal(messagequeue.PlanEventPayload{Type: eventType, PlanID: ref.PlanID, Data: data})
	if err != nil {
		slog.ErrorContext(ctx, "event envelope marshal failed", "type", eventType, "error", err)
		return
	}
	if err := p.q.Publish(ctx, messagequeue.PlanEventSubject(eventType), env); err != nil {
		slog.WarnContext(ctx, "event publish failed", "type", eventType, "plan_id", ref.PlanID, "error", err)
	}
}
