package routes

import (
	"ai-testbench/api/rest/handlers"
	"ai-testbench/core/orchestrator"
	"ai-testbench/core/repository"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, db *repository.DB, orch *orchestrator.Orchestrator) {
	runRepo := repository.NewRunRepository(db)
	resultRepo := repository.NewResultRepository(db)
	eventRepo := repository.NewEventRepository(db)
	metricRepo := repository.NewMetricRepository(db)

	runHandler := handlers.NewRunHandler(runRepo, resultRepo, eventRepo, orch)
	metricHandler := handlers.NewMetricHandler(metricRepo)

	api := r.PathPrefix("/v1").Subrouter()

	// Run endpoints
	api.HandleFunc("/runs", runHandler.SubmitRun).Methods("POST")
	api.HandleFunc("/runs", runHandler.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", runHandler.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}", runHandler.DeleteRun).Methods("DELETE")
	api.HandleFunc("/runs/{id}/cancel", runHandler.CancelRun).Methods("POST")
	api.HandleFunc("/runs/{id}/results", runHandler.GetRunResults).Methods("GET")
	api.HandleFunc("/results/{id}/events", runHandler.GetResultEvents).Methods("GET")

	// Metric endpoints
	api.HandleFunc("/runs/{id}/metrics", metricHandler.GetRunMetrics).Methods("GET")
	api.HandleFunc("/metrics/trends", metricHandler.GetTrendSeries).Methods("GET")
}
