package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/port/messagequeue"
)

// StartFeedbackConsumer records quality feedback published on plans.feedback.
// The returned function stops the subscription.
func (s *OrchestratorService) StartFeedbackConsumer(ctx context.Context, q messagequeue.Queue) (func(), error) {
	cancel, err := q.Subscribe(ctx, messagequeue.SubjectPlanFeedback, s.handleFeedback)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectPlanFeedback, err)
	}
	slog.Info("feedback consumer started", "subject", messagequeue.SubjectPlanFeedback)
	return cancel, nil
}

func (s *OrchestratorService) handleFeedback(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.FeedbackPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal feedback: %w", err)
	}
	return s.AddFeedback(ctx, p.PlanID, plan.Feedback{
		TaskID:      p.TaskID,
		Success:     p.Success,
		Quality:     p.Quality,
		Notes:       p.Notes,
		Suggestions: p.Suggestions,
	})
}
