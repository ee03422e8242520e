package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// UnmarshalJSON decodes planner output leniently. References may be strings
// or numbers, durations may be numbers or numeric text, and a bare task list
// is accepted in place of the object form. Values that cannot be coerced are
// dropped and noted in Issues. Only a body that is neither an object nor a
// list is an error.
func (p *RawPlan) UnmarshalJSON(data []byte) error {
	*p = RawPlan{}
	d := &lenientDecoder{}

	if body := bytes.TrimSpace(data); len(body) > 0 && body[0] == '[' {
		p.Tasks = d.tasks(body)
		p.Issues = d.issues
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	p.Tasks = d.tasks(lookup(fields, "tasks"))
	p.ExecutionOrder = d.refs(lookup(fields, "executionOrder"), "executionOrder")

	var groups []json.RawMessage
	if d.list(lookup(fields, "parallelGroups"), "parallelGroups", &groups) {
		for i, g := range groups {
			if members := d.refs(g, fmt.Sprintf("parallelGroups[%d]", i)); len(members) > 0 {
				p.ParallelGroups = append(p.ParallelGroups, members)
			}
		}
	}

	// Issues survive a round trip through the planner cache.
	var prior []string
	if raw := fields["issues"]; !isNull(raw) {
		_ = json.Unmarshal(raw, &prior)
	}
	p.Issues = append(prior, d.issues...)
	return nil
}

type lenientDecoder struct {
	issues []string
}

func (d *lenientDecoder) note(format string, args ...any) {
	d.issues = append(d.issues, fmt.Sprintf(format, args...))
}

func (d *lenientDecoder) tasks(raw json.RawMessage) []RawTask {
	var items []json.RawMessage
	if !d.list(raw, "tasks", &items) {
		return nil
	}
	out := make([]RawTask, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("tasks[%d]", i)
		var fields map[string]json.RawMessage
		if isNull(item) || json.Unmarshal(item, &fields) != nil {
			d.note("%s: not an object, dropped", path)
			continue
		}
		out = append(out, RawTask{
			ID:                d.text(fields, "id", path),
			Name:              d.text(fields, "name", path),
			Description:       d.text(fields, "description", path),
			AgentType:         d.text(fields, "agentType", path),
			Priority:          d.text(fields, "priority", path),
			Dependencies:      d.refs(lookup(fields, "dependencies"), path+".dependencies"),
			EstimatedDuration: d.duration(lookup(fields, "estimatedDuration"), path+".estimatedDuration"),
			Params:            d.params(lookup(fields, "params"), path+".params"),
		})
	}
	return out
}

// list decodes a JSON array into items. Null or absent values yield false
// without a note.
func (d *lenientDecoder) list(raw json.RawMessage, path string, items *[]json.RawMessage) bool {
	if isNull(raw) {
		return false
	}
	if err := json.Unmarshal(raw, items); err != nil {
		d.note("%s: expected a list, dropped", path)
		return false
	}
	return true
}

func (d *lenientDecoder) text(fields map[string]json.RawMessage, key, path string) string {
	raw := lookup(fields, key)
	if isNull(raw) {
		return ""
	}
	s, ok := scalarText(raw)
	if !ok {
		d.note("%s.%s: expected text, dropped", path, key)
	}
	return s
}

// refs reads a list of task references. A single scalar counts as a list of
// one; numbers are kept as their decimal text for positional resolution.
func (d *lenientDecoder) refs(raw json.RawMessage, path string) []string {
	if isNull(raw) {
		return nil
	}
	if s, ok := scalarText(raw); ok {
		return []string{s}
	}
	var items []json.RawMessage
	if !d.list(raw, path, &items) {
		return nil
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := scalarText(item)
		if !ok {
			d.note("%s[%d]: not a task reference, dropped", path, i)
			continue
		}
		out = append(out, s)
	}
	return out
}

// duration reads a non-negative number of seconds. Text such as "90" or
// "5 minutes" contributes its leading number.
func (d *lenientDecoder) duration(raw json.RawMessage, path string) int {
	if isNull(raw) {
		return 0
	}
	s, ok := scalarText(raw)
	var f float64
	var err error
	if ok {
		if fields := strings.Fields(s); len(fields) > 0 {
			f, err = strconv.ParseFloat(fields[0], 64)
		} else {
			ok = false
		}
	}
	if !ok || err != nil || math.IsNaN(f) || f < 0 || f > math.MaxInt32 {
		d.note("%s: invalid duration %s, ignored", path, bytes.TrimSpace(raw))
		return 0
	}
	return int(math.Round(f))
}

func (d *lenientDecoder) params(raw json.RawMessage, path string) map[string]any {
	if isNull(raw) {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		d.note("%s: expected an object, dropped", path)
		return nil
	}
	return m
}

// lookup finds key exactly, then case-insensitively.
func lookup(fields map[string]json.RawMessage, key string) json.RawMessage {
	if raw, ok := fields[key]; ok {
		return raw
	}
	for k, raw := range fields {
		if strings.EqualFold(k, key) {
			return raw
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// scalarText renders a JSON string, number or boolean as text. Integral
// numbers lose their fraction so 1.0 reads as "1".
func scalarText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", false
		}
		return strconv.FormatBool(b), true
	case '{', '[', 'n':
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10), true
	}
	return n.String(), true
}
