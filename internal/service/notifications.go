package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/port/broadcast"
	"github.com/Strob0t/agentplan/internal/port/notifier"
)

// PlanNotifier turns plan.finished and plan.adapted events into chat
// notifications. Sends run in the background so the coordinator never waits
// on a webhook.
type PlanNotifier struct {
	targets  []notifier.Notifier
	statuses map[plan.Status]bool
	adapted  bool
	wg       sync.WaitGroup
}

// NewPlanNotifier notifies targets when a plan finishes with one of statuses,
// and on adaptation when adapted is set.
func NewPlanNotifier(targets []notifier.Notifier, statuses []plan.Status, adapted bool) *PlanNotifier {
	set := make(map[plan.Status]bool, len(statuses))
	for _, st := range statuses {
		set[st] = true
	}
	return &PlanNotifier{targets: targets, statuses: set, adapted: adapted}
}

// BroadcastEvent implements broadcast.Broadcaster.
func (n *PlanNotifier) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	var note notifier.Notification
	switch eventType {
	case broadcast.EventPlanFinished:
		report, ok := payload.(*ExecutionReport)
		if !ok || !n.statuses[report.Status] {
			return
		}
		note = reportNotification(report)
	case broadcast.EventPlanAdapted:
		ev, ok := payload.(PlanEvent)
		if !ok || !n.adapted {
			return
		}
		note = adaptedNotification(&ev)
	default:
		return
	}
	note.Source = eventType

	bg := context.WithoutCancel(ctx)
	for _, t := range n.targets {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := t.Send(bg, note); err != nil {
				slog.WarnContext(bg, "plan notification failed", "notifier", t.Name(), "error", err)
			}
		}()
	}
}

// Wait blocks until all in-flight notifications are sent.
func (n *PlanNotifier) Wait() {
	n.wg.Wait()
}

func reportNotification(r *ExecutionReport) notifier.Notification {
	succeeded, failed := 0, 0
	for i := range r.Results {
		if r.Results[i].Success {
			succeeded++
		} else {
			failed++
		}
	}

	note := notifier.Notification{
		Title:  "Plan " + string(r.Status),
		PlanID: r.PlanID,
		Level:  statusLevel(r.Status),
		Fields: []notifier.Field{
			{Name: "Tasks", Value: fmt.Sprintf("%d succeeded, %d failed", succeeded, failed)},
			{Name: "Duration", Value: (time.Duration(r.DurationMS) * time.Millisecond).String()},
			{Name: "Iterations", Value: fmt.Sprint(r.Iterations)},
		},
	}
	if r.FailedTask != "" {
		note.Fields = append(note.Fields, notifier.Field{Name: "Failed task", Value: r.FailedTask})
	}
	if r.Error != "" {
		note.Message = r.Error
	}
	return note
}

func adaptedNotification(ev *PlanEvent) notifier.Notification {
	return notifier.Notification{
		Title:   "Plan adapted",
		Message: ev.Goal,
		Level:   notifier.LevelInfo,
		PlanID:  ev.PlanID,
		Fields: []notifier.Field{
			{Name: "Replaces", Value: ev.AdaptedFrom},
			{Name: "Tasks", Value: fmt.Sprint(ev.Tasks)},
		},
	}
}

func statusLevel(st plan.Status) string {
	switch st {
	case plan.StatusCompleted:
		return notifier.LevelSuccess
	case plan.StatusFailed:
		return notifier.LevelError
	case plan.StatusStalled:
		return notifier.LevelWarning
	}
	return notifier.LevelInfo
}
