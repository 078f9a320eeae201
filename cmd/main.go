package main

import (
	"context"
	"fmt"
	"os"

	"github.com/soratone/counsel-backend/internal/app"
	"github.com/soratone/counsel-backend/internal/learning"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Wiring pipeline from main...")
	a, err := app.New(log)
	if err != nil {
		log.Error("Could not init pipeline", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	trigger, err := a.Learning.CheckTrigger(ctx)
	if err != nil {
		log.Error("Trigger check failed", "error", err)
		os.Exit(1)
	}
	log.Info("Trigger check",
		"should_trigger", trigger.ShouldTrigger,
		"reasons", trigger.Reasons,
		"new_vectors", trigger.NewVectorCount,
	)

	force := os.Getenv("FORCE_LEARNING") == "true"
	result, err := a.Learning.Execute(ctx, learning.Options{
		Force:     force,
		Algorithm: os.Getenv("CLUSTERING_ALGORITHM"),
	})
	if err != nil {
		log.Error("Learning run failed", "error", err)
		os.Exit(1)
	}

	if result.Status == learning.StatusSkipped {
		log.Info("Learning run skipped", "reason", result.SkipReason)
		return
	}
	log.Info("Learning run completed",
		"learning_id", result.LearningID.String(),
		"new_vectors", result.NewVectors,
		"clusters", result.ClusterCount,
		"representatives", result.Representatives,
		"anomalies", result.Anomalies,
		"baseline_quality", result.BaselineQuality,
		"new_quality", result.NewQuality,
		"action", result.ActionTaken,
		"elapsed_secs", result.ExecutionSecs,
	)
}
