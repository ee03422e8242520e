package messagequeue

import "encoding/json"

// PlanEventPayload is the envelope for every outbound plans.* event.
type PlanEventPayload struct {
	Type   string          `json:"type"`
	PlanID string          `json:"plan_id"`
	Data   json.RawMessage `json:"data"`
}

// FeedbackPayload is the schema for plans.feedback messages.
type FeedbackPayload struct {
	PlanID      string   `json:"plan_id"`
	TaskID      string   `json:"task_id"`
	Success     bool     `json:"success"`
	Quality     *float64 `json:"quality,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}
