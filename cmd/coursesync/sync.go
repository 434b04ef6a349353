package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/heartmarshall/coursesync/internal/app/coursesync"
	"github.com/heartmarshall/coursesync/internal/domain"
)

func newSyncCmd(c *cli) *cobra.Command {
	var (
		sourcePath string
		courseRef  string
		mode       string
		dryRun     bool
		preserve   bool
		skipDedup  bool
		keywords   string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile a course with a CSV export",
		Example: `  coursesync sync --source export.csv --course newborn-care
  coursesync sync --source export.csv --course newborn-care --mode exact --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), c.cfg.Sync.Timeout)
			defer cancel()

			deps, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			runCfg := coursesync.ConfigFrom(c.cfg)
			runCfg.SourcePath = sourcePath
			runCfg.CourseRef = courseRef
			runCfg.DryRun = dryRun
			if mode != "" {
				runCfg.Mode = domain.SyncMode(mode)
			}
			if cmd.Flags().Changed("preserve-progress") {
				runCfg.PreserveProgress = preserve
			}
			if cmd.Flags().Changed("skip-dedup") {
				runCfg.SkipDedup = skipDedup
			}
			if keywords != "" {
				runCfg.KeywordsPath = keywords
			}

			pipeline := coursesync.NewPipeline(c.log, deps.Backend(), runCfg)
			rep, err := pipeline.Run(ctx)
			if err != nil {
				c.log.Error("sync failed", slog.String("error", err.Error()))
				return err
			}

			// Row errors and discrepancies are in the report; they do not
			// change the exit code.
			return coursesync.WriteReport(cmd.OutOrStdout(), rep)
		},
	}

	f := cmd.Flags()
	f.StringVar(&sourcePath, "source", "", "Path to the CSV export (required)")
	f.StringVar(&courseRef, "course", "", "Course id or slug (required)")
	f.StringVar(&mode, "mode", "", "Sync mode: merge or exact (default from config)")
	f.BoolVar(&dryRun, "dry-run", false, "Run against an in-memory copy and write nothing")
	f.BoolVar(&preserve, "preserve-progress", false, "Carry learner progress across exact-mode rebuilds")
	f.BoolVar(&skipDedup, "skip-dedup", false, "Skip the corpus deduplication phase")
	f.StringVar(&keywords, "keywords", "", "Path to a YAML keyword topic table")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("course")

	return cmd
}
