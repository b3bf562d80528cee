package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"gymcore-backend/internal/config"
	"gymcore-backend/internal/jobs"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/repository/postgres"
	"gymcore-backend/internal/scheduler"
	"gymcore-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'sweep-processed-events', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting gymcore cronjob runner...", "log_level", cfg.Log.Level)

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	store := postgres.NewStore(db)

	analyticsService := service.NewAnalyticsService(
		store.AnalyticsRepository,
		service.NewMemoryKPICache(cfg.Analytics.KPICacheTTL, nil),
		service.AnalyticsOptions{DedupeTTL: cfg.Analytics.DedupeTTL},
	)

	jobRunner := jobs.NewJobRunner(jobs.Dependencies{
		Payments:    store.PaymentRepository,
		Memberships: store.MembershipRepository,
		Analytics:   analyticsService,
	}, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		log.Fatalf("Failed to register jobs: %v", err)
	}

	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "sweep-processed-events":
		jobRunner.SweepProcessedEvents()
	case "report-expired-memberships":
		jobRunner.ReportExpiredMemberships()
	case "report-stale-pending-payments":
		jobRunner.ReportStalePendingPayments()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - sweep-processed-events\n")
		fmt.Printf("  - report-expired-memberships\n")
		fmt.Printf("  - report-stale-pending-payments\n")
		fmt.Printf("  - all\n")
		os.Exit(1)
	}
}
