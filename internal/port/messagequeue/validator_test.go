package messagequeue

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
		wantErr string
	}{
		{"valid feedback", SubjectPlanFeedback, `{"plan_id":"p1","task_id":"t1","success":true,"quality":0.4}`, ""},
		{"feedback missing task", SubjectPlanFeedback, `{"plan_id":"p1"}`, "task_id are required"},
		{"feedback quality out of range", SubjectPlanFeedback, `{"plan_id":"p1","task_id":"t1","quality":1.5}`, "outside [0,1]"},
		{"feedback wrong type", SubjectPlanFeedback, `{"plan_id":42}`, "schema validation failed"},
		{"valid event", "plans.finished", `{"type":"plan.finished","plan_id":"p1","data":{}}`, ""},
		{"event missing plan", "plans.created", `{"type":"plan.created"}`, "plan_id is required"},
		{"unknown subject", "other.subject", `{"anything":true}`, ""},
		{"invalid JSON", SubjectPlanFeedback, `{not json`, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.subject, []byte(tt.data))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPlanEventSubject(t *testing.T) {
	if got := PlanEventSubject("plan.task_completed"); got != "plans.task_completed" {
		t.Fatalf("got %s", got)
	}
	if got := PlanEventSubject("custom"); got != "plans.custom" {
		t.Fatalf("got %s", got)
	}
}
