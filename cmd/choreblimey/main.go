package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dje115/choreblimey-sub001/internal/database"
	"github.com/dje115/choreblimey-sub001/internal/logging"
	"github.com/dje115/choreblimey-sub001/internal/server"
	"github.com/dje115/choreblimey-sub001/internal/streak"
)

func main() {
	port := os.Getenv("CHOREBLIMEY_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("CHOREBLIMEY_DB_PATH")
	if dbPath == "" {
		dbPath = "choreblimey.db"
	}

	// Runs shortly after midnight UTC so yesterday's misses are final.
	sweepSpec := os.Getenv("CHOREBLIMEY_SWEEP_SPEC")
	if sweepSpec == "" {
		sweepSpec = "5 0 * * *"
	}

	logger := logging.Setup(os.Getenv("CHOREBLIMEY_LOG_LEVEL"), os.Getenv("CHOREBLIMEY_LOG_FORMAT"))

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, logger)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(sweepSpec, func() {
		runSweep(srv, logger)
	}); err != nil {
		logger.Error("schedule daily sweep", "spec", sweepSpec, "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.AddFunc("@hourly", func() {
		if n, err := srv.SessionStore().DeleteExpired(); err != nil {
			logger.Error("session cleanup", "error", err)
		} else if n > 0 {
			logger.Debug("session cleanup", "removed", n)
		}
		srv.RateLimiter().Cleanup()
	}); err != nil {
		logger.Error("schedule cleanup", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Catch up on any sweep missed while the process was down.
	go runSweep(srv, logger)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// runSweep applies yesterday's misses and streak bonuses for every
// family. Each family's sweep is idempotent per day, so running it twice
// is harmless.
func runSweep(srv *server.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ids, err := srv.FamilyStore().ListIDs()
	if err != nil {
		logger.Error("sweep list families", "error", err)
		return
	}

	day := streak.SweepDay(time.Now())
	for _, familyID := range ids {
		if err := srv.StreakCalculator().RunDailySweep(ctx, familyID, day); err != nil {
			logger.Error("daily sweep", "family_id", familyID, "error", err)
		}
	}
}
