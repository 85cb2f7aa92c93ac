package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foodsync/food-sync/app/api"
	"github.com/foodsync/food-sync/app/cfg"
	"github.com/foodsync/food-sync/app/drive"
	"github.com/foodsync/food-sync/app/imageproc"
	"github.com/foodsync/food-sync/app/ledger"
	"github.com/foodsync/food-sync/app/openai"
	"github.com/foodsync/food-sync/app/pipeline"
	"github.com/foodsync/food-sync/app/prompts"
	"github.com/foodsync/food-sync/app/sheets"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogger(appCfg.LogLevel)

	slog.Info("Starting Food Sync", "version", appCfg.Version)
	slog.Info("HEIF support", "enabled", imageproc.HEIFSupported())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promptCfg, err := prompts.Load(appCfg.PromptsFile)
	if err != nil {
		slog.Error("Failed to load prompts", "error", err)
		os.Exit(1)
	}

	driveClient, err := drive.NewClient(ctx, appCfg.ServiceAccountFile, appCfg.DriveFolderID)
	if err != nil {
		slog.Error("Failed to initialize Drive client", "error", err)
		os.Exit(1)
	}

	sheetsClient, err := sheets.NewClient(ctx, appCfg.ServiceAccountFile, appCfg.SheetID)
	if err != nil {
		slog.Error("Failed to initialize Sheets client", "error", err)
		os.Exit(1)
	}

	openaiClient := openai.NewClient(appCfg.OpenAIAPIKey, promptCfg.Options()...)

	processedLedger, err := ledger.NewLedger(appCfg.LedgerPath)
	if err != nil {
		slog.Error("Failed to load ledger", "error", err)
		os.Exit(1)
	}

	if err := sheetsClient.EnsureHeaders(ctx); err != nil {
		slog.Warn("Failed to ensure sheet headers", "error", err)
	}

	orchestrator := pipeline.NewOrchestrator(
		driveClient, sheetsClient, openaiClient, processedLedger,
		imageproc.Normalize, appCfg.MaxPhotosPerRun)

	slog.Info("Food Sync initialized", "ledger_entries", processedLedger.Count())

	if appCfg.Monitor {
		runMonitor(ctx, appCfg, orchestrator, sheetsClient)
		return
	}

	runOnce(ctx, appCfg, orchestrator)
}

func runOnce(ctx context.Context, appCfg *cfg.Cfg, orchestrator *pipeline.Orchestrator) {
	processed, err := orchestrator.RunOnce(ctx, appCfg.HoursBack)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("Interrupted, shutting down")
			return
		}
		slog.Error("Sync failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Sync complete", "processed", processed)
}

func runMonitor(ctx context.Context, appCfg *cfg.Cfg, orchestrator *pipeline.Orchestrator, sheetsClient *sheets.Client) {
	handler := api.NewHandler(orchestrator, sheetsClient, appCfg.Version)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Starting status server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Status server error", "error", err)
		}
	}()

	orchestrator.Monitor(ctx, time.Duration(appCfg.IntervalMinutes)*time.Minute)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Status server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func setupLogger(level string) {
	logLevel := slog.LevelInfo
	switch level {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
