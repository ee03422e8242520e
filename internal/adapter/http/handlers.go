package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/service"
)

// HealthChecker reports whether an upstream dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) (bool, error)
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Plans   *service.OrchestratorService
	LiteLLM HealthChecker // optional
}

// --- Request bodies ---

type generatePlanRequest struct {
	Goal    string         `json:"goal"`
	Context map[string]any `json:"context,omitempty"`
}

// rawPlanRequest carries goal and context next to the flat planner fields.
type rawPlanRequest struct {
	Goal    string
	Context map[string]any
	Plan    plan.RawPlan
}

func (r *rawPlanRequest) UnmarshalJSON(data []byte) error {
	var head generatePlanRequest
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	r.Goal, r.Context = head.Goal, head.Context
	return json.Unmarshal(data, &r.Plan)
}

type completedRequest struct {
	Completed []string `json:"completed"`
}

type adaptRequest struct {
	Feedback []plan.Feedback `json:"feedback"`
}

// --- Plans ---

// GeneratePlan handles POST /api/v1/plans
func (h *Handlers) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[generatePlanRequest](w, r)
	if !ok || !requireField(w, req.Goal, "goal") {
		return
	}
	p, err := h.Plans.Generate(r.Context(), plan.GenerateRequest{Goal: req.Goal, Context: req.Context})
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// CreateRawPlan handles POST /api/v1/plans/raw
func (h *Handlers) CreateRawPlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[rawPlanRequest](w, r)
	if !ok || !requireField(w, req.Goal, "goal") {
		return
	}
	p, err := h.Plans.CreateFromRaw(r.Context(), req.Goal, req.Context, &req.Plan)
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListPlans handles GET /api/v1/plans
func (h *Handlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Plans.ListPlans(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if plans == nil {
		plans = []plan.TaskPlan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

// GetPlan handles GET /api/v1/plans/{id}
func (h *Handlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.Plans.GetPlan(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetPlanGraph handles GET /api/v1/plans/{id}/graph
func (h *Handlers) GetPlanGraph(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	p, err := h.Plans.GetPlan(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	results, err := h.Plans.GetResults(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, buildGraph(p, results))
}

// --- Scheduling queries ---

// ReadyTasks handles POST /api/v1/plans/{id}/ready
func (h *Handlers) ReadyTasks(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[completedRequest](w, r)
	if !ok {
		return
	}
	tasks, err := h.Plans.GetReadyTasks(r.Context(), urlParam(r, "id"), req.Completed)
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	if tasks == nil {
		tasks = []plan.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// ParallelGroups handles POST /api/v1/plans/{id}/parallel
func (h *Handlers) ParallelGroups(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[completedRequest](w, r)
	if !ok {
		return
	}
	groups, err := h.Plans.GetParallelGroups(r.Context(), urlParam(r, "id"), req.Completed)
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	if groups == nil {
		groups = [][]plan.Task{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// IsComplete handles GET /api/v1/plans/{id}/complete
func (h *Handlers) IsComplete(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	done, err := h.Plans.IsComplete(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan_id": id, "complete": done})
}

// --- Results ---

// ListResults handles GET /api/v1/plans/{id}/results
func (h *Handlers) ListResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.Plans.GetResults(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	if results == nil {
		results = []plan.ExecutionResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// RecordResult handles POST /api/v1/plans/{id}/results
func (h *Handlers) RecordResult(w http.ResponseWriter, r *http.Request) {
	res, ok := readJSON[plan.ExecutionResult](w, r)
	if !ok || !requireField(w, res.TaskID, "task_id") {
		return
	}
	if err := h.Plans.RecordResult(r.Context(), urlParam(r, "id"), res); err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// --- Execution ---

// ExecutePlan handles POST /api/v1/plans/{id}/execute
// With ?wait=true the request blocks and returns the execution report;
// otherwise execution starts in the background and 202 is returned.
func (h *Handlers) ExecutePlan(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		report, err := h.Plans.Execute(r.Context(), id)
		if err != nil {
			writeDomainError(w, err, "plan not found")
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}
	if err := h.Plans.Start(r.Context(), id); err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"plan_id": id, "status": string(plan.StatusExecuting)})
}

// CancelPlan handles POST /api/v1/plans/{id}/cancel
func (h *Handlers) CancelPlan(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Plans.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"plan_id": id, "status": "cancelling"})
}

// --- Feedback & adaptation ---

// ListFeedback handles GET /api/v1/plans/{id}/feedback
func (h *Handlers) ListFeedback(w http.ResponseWriter, r *http.Request) {
	fb, err := h.Plans.GetFeedback(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	if fb == nil {
		fb = []plan.Feedback{}
	}
	writeJSON(w, http.StatusOK, fb)
}

// AddFeedback handles POST /api/v1/plans/{id}/feedback
func (h *Handlers) AddFeedback(w http.ResponseWriter, r *http.Request) {
	fb, ok := readJSON[plan.Feedback](w, r)
	if !ok || !requireField(w, fb.TaskID, "task_id") {
		return
	}
	if err := h.Plans.AddFeedback(r.Context(), urlParam(r, "id"), fb); err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

// AdaptPlan handles POST /api/v1/plans/{id}/adapt
// It returns 201 with the new plan, or 200 with adapted=false when nothing
// needed replanning.
func (h *Handlers) AdaptPlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[adaptRequest](w, r)
	if !ok {
		return
	}
	id := urlParam(r, "id")
	next, err := h.Plans.Adapt(r.Context(), id, req.Feedback)
	if err != nil {
		writeDomainError(w, err, "plan not found")
		return
	}
	if next == nil {
		writeJSON(w, http.StatusOK, map[string]any{"plan_id": id, "adapted": false})
		return
	}
	writeJSON(w, http.StatusCreated, next)
}

// --- Health ---

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if h.LiteLLM != nil {
		healthy, err := h.LiteLLM.Health(r.Context())
		resp["litellm"] = "healthy"
		if !healthy || err != nil {
			resp["litellm"] = "unhealthy"
			resp["status"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
