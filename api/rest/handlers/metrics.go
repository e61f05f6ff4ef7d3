package handlers

import (
	"net/http"
	"strconv"

	"ai-testbench/core/models"
	"ai-testbench/core/repository"

	"github.com/gorilla/mux"
)

// MetricHandler handles metric-related HTTP requests
type MetricHandler struct {
	metricRepo *repository.MetricRepository
}

// NewMetricHandler creates a new metric handler
func NewMetricHandler(metricRepo *repository.MetricRepository) *MetricHandler {
	return &MetricHandler{metricRepo: metricRepo}
}

// GetRunMetrics handles GET /v1/runs/{id}/metrics
func (h *MetricHandler) GetRunMetrics(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	metrics, err := h.metricRepo.ListByRun(r.Context(), runID)
	if err != nil {
		http.Error(w, "Failed to fetch metrics: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, metricResponses(metrics))
}

// GetTrendSeries handles GET /v1/metrics/trends?metric_name=...&ai_job=...&period=...
func (h *MetricHandler) GetTrendSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	key := models.MetricKey{
		MetricName: q.Get("metric_name"),
		AIJob:      q.Get("ai_job"),
		TimePeriod: models.TimePeriod(q.Get("period")),
		UserID:     userID(r),
	}
	if key.MetricName == "" || key.AIJob == "" {
		http.Error(w, "metric_name and ai_job are required", http.StatusBadRequest)
		return
	}
	if key.TimePeriod == "" {
		key.TimePeriod = models.PeriodTest
	}

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	series, err := h.metricRepo.Series(r.Context(), key, limit)
	if err != nil {
		http.Error(w, "Failed to fetch trend series: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, metricResponses(series))
}

func metricResponses(metrics []*models.TestMetric) []map[string]interface{} {
	resp := make([]map[string]interface{}, 0, len(metrics))
	for _, m := range metrics {
		resp = append(resp, map[string]interface{}{
			"id":               m.ID,
			"test_run_id":      m.TestRunID,
			"user_id":          m.UserID,
			"metric_type":      m.MetricType,
			"metric_name":      m.MetricName,
			"ai_job":           m.AIJob,
			"metric_value":     m.MetricValue,
			"metric_unit":      m.MetricUnit,
			"aggregation_type": m.AggregationType,
			"time_period":      m.TimePeriod,
			"collected_at":     m.CollectedAt,
			"analysis": map[string]interface{}{
				"baseline_value":      m.BaselineValue,
				"threshold_min":       m.ThresholdMin,
				"threshold_max":       m.ThresholdMax,
				"is_within_threshold": m.IsWithinThreshold,
				"comparison_value":    m.ComparisonValue,
				"percentage_change":   m.PercentageChange,
				"trend_direction":     m.TrendDirection,
			},
		})
	}
	return resp
}
