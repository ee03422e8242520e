package broadcast_test

import (
	"context"
	"testing"

	"github.com/Strob0t/agentplan/internal/port/broadcast"
)

type recorder struct {
	events []string
}

func (r *recorder) BroadcastEvent(_ context.Context, eventType string, _ any) {
	r.events = append(r.events, eventType)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := broadcast.Multi(a, nil, b)

	m.BroadcastEvent(context.Background(), broadcast.EventPlanCreated, nil)

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected one event each, got %v and %v", a.events, b.events)
	}
}

func TestMultiEmpty(t *testing.T) {
	broadcast.Multi().BroadcastEvent(context.Background(), broadcast.EventPlanFinished, nil)
}
