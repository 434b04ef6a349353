package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heartmarshall/coursesync/internal/domain"
	"github.com/heartmarshall/coursesync/pkg/ctxutil"
)

func newSnapshotCmd(c *cli) *cobra.Command {
	var tables []string
	var reason string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Copy tables into timestamped shadow tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := ctxutil.WithRunID(cmd.Context(), uuid.New())
			deps, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			if len(tables) == 0 {
				tables = domain.BackupTables
			}
			snaps, err := deps.Recovery.SnapshotTables(ctx, tables, reason)
			printSnapshots(cmd, snaps)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&tables, "table", nil, "Table to back up, repeatable (default: all course tables)")
	cmd.Flags().StringVar(&reason, "reason", "manual", "Reason recorded with the snapshot")
	return cmd
}

func newSnapshotsCmd(c *cli) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List snapshots, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			deps, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			snaps, err := deps.Recovery.ListSnapshots(ctx, table)
			if err != nil {
				return err
			}
			printSnapshots(cmd, snaps)
			return nil
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Only list snapshots of this table")
	return cmd
}

func newRestoreCmd(c *cli) *cobra.Command {
	var snapshotID, runID string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore tables from a snapshot or from every snapshot of a run",
		Example: `  coursesync restore --snapshot 6f1c...
  coursesync restore --run 0b9e...`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if (snapshotID == "") == (runID == "") {
				return errors.New("exactly one of --snapshot or --run is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			deps, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			out := cmd.OutOrStdout()
			if snapshotID != "" {
				id, err := uuid.Parse(snapshotID)
				if err != nil {
					return fmt.Errorf("invalid snapshot id: %w", err)
				}
				res, err := deps.Recovery.Restore(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "restored %s from %s: %s rows (cleared %s)\n",
					res.Snapshot.SourceTable, res.Snapshot.ShadowTable,
					humanize.Comma(res.Restored), humanize.Comma(res.Cleared))
				return nil
			}

			id, err := uuid.Parse(runID)
			if err != nil {
				return fmt.Errorf("invalid run id: %w", err)
			}
			res, err := deps.Recovery.RestoreRun(ctx, id)
			if err != nil {
				return err
			}
			for _, t := range res.Tables {
				fmt.Fprintf(out, "restored %s from %s: %s rows (cleared %s)\n",
					t.Snapshot.SourceTable, t.Snapshot.ShadowTable,
					humanize.Comma(t.Restored), humanize.Comma(t.Cleared))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&snapshotID, "snapshot", "", "Snapshot id")
	cmd.Flags().StringVar(&runID, "run", "", "Run id")
	return cmd
}

func newHistoryCmd(c *cli) *cobra.Command {
	var table, recordID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the audit trail of one record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(recordID)
			if err != nil {
				return fmt.Errorf("invalid record id: %w", err)
			}

			ctx := cmd.Context()
			deps, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			entries, err := deps.Recovery.History(ctx, table, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no audit entries")
				return nil
			}
			for _, e := range entries {
				run := "-"
				if e.RunID != nil {
					run = e.RunID.String()
				}
				fmt.Fprintf(out, "%s  %-7s  %-10s  run %s\n",
					e.CreatedAt.Format(time.DateTime), e.Action, e.Source, run)
				if e.OldValue != nil {
					fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("    old: %v", e.OldValue)))
				}
				if e.NewValue != nil {
					fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("    new: %v", e.NewValue)))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Table name (required)")
	cmd.Flags().StringVar(&recordID, "id", "", "Record id (required)")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func printSnapshots(cmd *cobra.Command, snaps []domain.BackupSnapshot) {
	out := cmd.OutOrStdout()
	for _, s := range snaps {
		fmt.Fprintf(out, "%s  %-14s %10s rows  %s  %s\n",
			s.ID, s.SourceTable, humanize.Comma(s.RowCount),
			humanize.Time(s.CreatedAt), dimStyle.Render(s.Reason))
	}
}
