package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ai-testbench/core/models"
	"ai-testbench/core/orchestrator"
	"ai-testbench/core/repository"
	"ai-testbench/core/spec"

	"github.com/gorilla/mux"
)

// RunHandler handles run-related HTTP requests
type RunHandler struct {
	runRepo      *repository.RunRepository
	resultRepo   *repository.ResultRepository
	eventRepo    *repository.EventRepository
	orchestrator *orchestrator.Orchestrator
}

// NewRunHandler creates a new run handler
func NewRunHandler(
	runRepo *repository.RunRepository,
	resultRepo *repository.ResultRepository,
	eventRepo *repository.EventRepository,
	orch *orchestrator.Orchestrator,
) *RunHandler {
	return &RunHandler{
		runRepo:      runRepo,
		resultRepo:   resultRepo,
		eventRepo:    eventRepo,
		orchestrator: orch,
	}
}

// SubmitRunRequest represents the request to submit a test run
type SubmitRunRequest struct {
	SpecYAML string `json:"spec_yaml"`
}

// SubmitRunResponse represents the response after submitting a run
type SubmitRunResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RunResponse represents a run with its derived status
type RunResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	UserID      string     `json:"user_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SubmitRun handles POST /v1/runs
func (h *RunHandler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	var req SubmitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	suite, err := spec.ParseSuiteSpec(req.SpecYAML)
	if err != nil {
		http.Error(w, "Invalid suite spec: "+err.Error(), http.StatusBadRequest)
		return
	}

	run, err := h.orchestrator.Launch(r.Context(), userID(r), suite)
	if err != nil {
		http.Error(w, "Failed to start run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitRunResponse{
		ID:        run.ID,
		Name:      run.Name,
		Status:    string(models.RunStatusRunning),
		CreatedAt: run.CreatedAt,
	})
}

// GetRun handles GET /v1/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	run, err := h.runRepo.GetRun(r.Context(), runID)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to fetch run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	results, err := h.resultRepo.ListByRun(r.Context(), runID)
	if err != nil {
		http.Error(w, "Failed to fetch results: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, RunResponse{
		ID:          run.ID,
		Name:        run.Name,
		UserID:      run.UserID,
		Status:      string(models.DeriveRunStatus(results)),
		CreatedAt:   run.CreatedAt,
		CompletedAt: run.CompletedAt,
	})
}

// ListRuns handles GET /v1/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runRepo.ListRuns(r.Context(), userID(r), 100)
	if err != nil {
		http.Error(w, "Failed to list runs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		results, err := h.resultRepo.ListByRun(r.Context(), run.ID)
		if err != nil {
			http.Error(w, "Failed to fetch results: "+err.Error(), http.StatusInternalServerError)
			return
		}
		resp = append(resp, RunResponse{
			ID:          run.ID,
			Name:        run.Name,
			UserID:      run.UserID,
			Status:      string(models.DeriveRunStatus(results)),
			CreatedAt:   run.CreatedAt,
			CompletedAt: run.CompletedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// CancelRun handles POST /v1/runs/{id}/cancel
func (h *RunHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	if !h.orchestrator.Cancel(runID) {
		http.Error(w, "Run is not active", http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": runID, "status": "cancelling"})
}

// DeleteRun handles DELETE /v1/runs/{id}. Results, metrics and events
// cascade with the run.
func (h *RunHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	if h.orchestrator.Cancel(runID) {
		http.Error(w, "Run is still active", http.StatusConflict)
		return
	}

	if err := h.runRepo.DeleteRun(r.Context(), runID); err != nil {
		http.Error(w, "Failed to delete run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetRunResults handles GET /v1/runs/{id}/results
func (h *RunHandler) GetRunResults(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	results, err := h.resultRepo.ListByRun(r.Context(), runID)
	if err != nil {
		http.Error(w, "Failed to fetch results: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		resp = append(resp, resultResponse(res))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetResultEvents handles GET /v1/results/{id}/events
func (h *RunHandler) GetResultEvents(w http.ResponseWriter, r *http.Request) {
	resultID := mux.Vars(r)["id"]

	events, err := h.eventRepo.ListResultEvents(r.Context(), resultID, 100)
	if err != nil {
		http.Error(w, "Failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		resp = append(resp, map[string]interface{}{
			"id":          ev.ID,
			"result_id":   ev.ResultID,
			"from_status": ev.FromStatus,
			"to_status":   ev.ToStatus,
			"reason":      ev.Reason,
			"at":          ev.At,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func resultResponse(res *models.TestResult) map[string]interface{} {
	return map[string]interface{}{
		"id":               res.ID,
		"test_run_id":      res.TestRunID,
		"user_id":          res.UserID,
		"test_type":        res.TestType,
		"test_source":      res.TestSource,
		"ai_job":           res.AIJob,
		"status":           res.Status,
		"pass_fail_reason": res.PassFailReason,
		"ai_output":        res.AIOutput,
		"error_details":    res.ErrorDetails,
		"measurements": map[string]interface{}{
			"duration_ms":      res.DurationMs,
			"memory_usage_mb":  res.MemoryUsageMB,
			"api_calls_made":   res.APICallsMade,
			"tokens_used":      res.TokensUsed,
			"estimated_cost":   res.EstimatedCost,
			"confidence_score": res.ConfidenceScore,
		},
		"timestamps": map[string]interface{}{
			"created_at":   res.CreatedAt,
			"started_at":   res.StartedAt,
			"completed_at": res.CompletedAt,
		},
	}
}

// userID extracts the caller identity. Authentication is outside this
// engine; the header is trusted as-is.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "default-user"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
