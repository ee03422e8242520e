package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch {
	case subject == SubjectPlanFeedback:
		var p FeedbackPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.PlanID == "" || p.TaskID == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("plan_id and task_id are required"))
		}
		if p.Quality != nil && (*p.Quality < 0 || *p.Quality > 1) {
			return fmt.Errorf("schema validation failed for %s: quality %v outside [0,1]", subject, *p.Quality)
		}
	case strings.HasPrefix(subject, SubjectPlanEvents+"."):
		var p PlanEventPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.PlanID == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("plan_id is required"))
		}
	}
	return nil
}
