// Command coursesync reconciles a course with a CSV export and manages the
// snapshots and audit trail the reconciliation leaves behind.
//
// Exit codes: 0 = success, 1 = fatal error, 2 = verify found discrepancies.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heartmarshall/coursesync/internal/app"
	"github.com/heartmarshall/coursesync/internal/config"
)

// errDiscrepancies marks a verification that found discrepancies.
var errDiscrepancies = errors.New("verification found discrepancies")

// cli carries state resolved by the root command for its subcommands.
type cli struct {
	configPath string
	cfg        *config.Config
	log        *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, errDiscrepancies):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "coursesync",
		Short:         "Reconcile course content with a source export",
		Version:       app.BuildVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if c.configPath != "" {
				c.cfg, err = config.LoadFrom(c.configPath)
			} else {
				c.cfg, err = config.Load()
			}
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.log = app.NewLogger(c.cfg.Log)
			c.log.Debug("config loaded", slog.String("path", c.cfg.Path), slog.String("command", cmd.Name()))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to config file (default: $CONFIG_PATH or ./config.yaml)")

	root.AddCommand(
		newSyncCmd(c),
		newVerifyCmd(c),
		newDedupCmd(c),
		newSnapshotCmd(c),
		newSnapshotsCmd(c),
		newRestoreCmd(c),
		newHistoryCmd(c),
		newMigrateCmd(c),
	)
	return root
}

// connect opens the database for one command.
func (c *cli) connect(ctx context.Context) (*app.Deps, error) {
	deps, err := app.Connect(ctx, c.cfg, c.log)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return deps, nil
}
