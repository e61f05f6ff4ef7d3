package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-testbench/api/rest/routes"
	"ai-testbench/config"
	"ai-testbench/core/aggregator"
	"ai-testbench/core/analyzer"
	"ai-testbench/core/executor"
	"ai-testbench/core/monitoring"
	"ai-testbench/core/orchestrator"
	"ai-testbench/core/recorder"
	"ai-testbench/core/repository"
	"ai-testbench/core/scheduler"
	"ai-testbench/providers/openai"
	"ai-testbench/providers/sim"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// Initialize database
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := db.InitSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize schema")
	}
	logger.Info().Msg("database connected")

	// Initialize repositories
	runRepo := repository.NewRunRepository(db)
	resultRepo := repository.NewResultRepository(db)
	metricRepo := repository.NewMetricRepository(db)

	// Select the analysis engine
	var engine executor.AnalysisEngine
	switch cfg.AnalysisEngine {
	case "openai":
		engine, err = openai.NewEngine(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize openai engine")
		}
	default:
		engine = sim.NewEngine(100 * time.Millisecond)
	}
	logger.Info().Str("engine", cfg.AnalysisEngine).Msg("analysis engine ready")

	// Initialize engine components
	exporter := monitoring.NewMetricsExporter()
	rec := recorder.NewRecorder(resultRepo, logger)
	exec := executor.NewExecutor(engine, cfg.TestCaseTimeout, logger)
	agg := aggregator.NewAggregator(resultRepo, metricRepo, logger)
	an := analyzer.NewAnalyzer(metricRepo, cfg.StabilityBandPct, logger)

	orch := orchestrator.NewOrchestrator(
		runRepo,
		resultRepo,
		rec,
		exec,
		agg,
		an,
		sim.Validator{},
		exporter,
		cfg.WorkerLimit,
		cfg.RunTimeout,
		logger,
	)

	// Stale-run monitor keeps crashed runs from staying in running forever
	monitor := monitoring.NewRunMonitor(runRepo, resultRepo, rec, cfg.RunTimeout+5*time.Minute, cfg.MonitorInterval, logger)
	go monitor.Start(ctx)

	// Periodic daily/weekly/monthly metric rollups
	if cfg.RollupsEnabled {
		rollups := scheduler.NewRollupScheduler(metricRepo, an, logger)
		if err := rollups.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start rollup scheduler")
		}
		defer rollups.Stop()
	}

	// Setup routes
	r := mux.NewRouter()
	routes.SetupRoutes(r, db, orch)
	r.Handle("/metrics", exporter.Handler()).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		logger.Info().Str("port", cfg.ServerPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server exited")
}
