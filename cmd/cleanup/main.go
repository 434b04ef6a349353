// Command cleanup drops snapshot shadow tables older than the configured
// retention period. It is intended to be invoked by an external cron job,
// not as an in-process goroutine.
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/heartmarshall/coursesync/internal/app"
	"github.com/heartmarshall/coursesync/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deps, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer deps.Close()

	cutoff := time.Now().Add(-cfg.Backup.Retention())

	dropped, err := deps.Recovery.Prune(ctx, cutoff)
	if err != nil {
		logger.Error("snapshot prune failed",
			slog.String("error", err.Error()),
			slog.Time("cutoff", cutoff),
			slog.Int("dropped", dropped),
		)
		os.Exit(1)
	}

	logger.Info("snapshot prune completed",
		slog.Int("dropped", dropped),
		slog.Time("cutoff", cutoff),
	)
}
