package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heartmarshall/coursesync/internal/app/coursesync/dedup"
	"github.com/heartmarshall/coursesync/internal/domain"
	"github.com/heartmarshall/coursesync/pkg/ctxutil"
)

func newDedupCmd(c *cli) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Make lesson content unique across every course",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := ctxutil.WithRunID(cmd.Context(), uuid.New())
			ctx = ctxutil.WithChangeSource(ctx, string(domain.ChangeSourceDedup))

			deps, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			d := dedup.New(c.log, deps.Courses, deps.Recovery, deps.Recovery, c.cfg.Sync.FingerprintPrefix)
			res, err := d.Run(ctx, dedup.Options{DryRun: dryRun, Snapshot: c.cfg.Backup.SnapshotBeforeDedup})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintln(out, headStyle.Render("Deduplication (dry run)"))
			} else {
				fmt.Fprintln(out, headStyle.Render("Deduplication"))
			}
			fmt.Fprintf(out, "  %-18s %8s\n", "lessons scanned", humanize.Comma(int64(res.Scanned)))
			fmt.Fprintf(out, "  %-18s %8s\n", "empty skipped", humanize.Comma(int64(res.SkippedEmpty)))
			fmt.Fprintf(out, "  %-18s %8s\n", "duplicate groups", humanize.Comma(int64(res.Groups)))
			fmt.Fprintf(out, "  %-18s %8s\n", "rewrites", humanize.Comma(int64(len(res.Rewrites))))
			fmt.Fprintf(out, "  %-18s %8s\n", "groups remaining", humanize.Comma(int64(res.Remaining)))
			for _, rw := range res.Rewrites {
				fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("    %s / %s", rw.Chapter, rw.Title)))
			}
			if res.Snapshot != nil {
				fmt.Fprintln(out, dimStyle.Render("  snapshot "+res.Snapshot.ID.String()))
			}
			for _, e := range res.Errors {
				fmt.Fprintln(out, "  "+e.Error())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the rewrites without applying them")
	return cmd
}
