package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heartmarshall/coursesync/internal/app/coursesync/source"
	"github.com/heartmarshall/coursesync/internal/app/coursesync/verify"
)

var (
	headStyle = lipgloss.NewStyle().Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func newVerifyCmd(c *cli) *cobra.Command {
	var sourcePath, courseRef string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare a course with a CSV export without changing anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			parsed, err := source.Parse(sourcePath, source.Options{MinContentLength: c.cfg.Sync.MinContentLength})
			if err != nil {
				return fmt.Errorf("parse source: %w", err)
			}

			deps, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			course, err := deps.Courses.FindCourse(ctx, courseRef)
			if err != nil {
				return fmt.Errorf("find course %q: %w", courseRef, err)
			}

			rep, err := verify.New(deps.Courses).Verify(ctx, course.ID, parsed.Records)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headStyle.Render("Verification: "+course.Title))
			fmt.Fprintf(out, "  %-18s %8s\n", "source lessons", humanize.Comma(int64(rep.Total)))
			fmt.Fprintf(out, "  %-18s %8s\n", "perfect", humanize.Comma(int64(rep.Perfect)))
			fmt.Fprintf(out, "  %-18s %8s\n", "content mismatch", humanize.Comma(int64(rep.ContentMismatch)))
			fmt.Fprintf(out, "  %-18s %8s\n", "missing", humanize.Comma(int64(rep.Missing)))
			fmt.Fprintf(out, "  %-18s %8s\n", "extra", humanize.Comma(int64(rep.Extra)))
			fmt.Fprintf(out, "  %-18s %7.1f%%\n", "match rate", rep.MatchRate)
			for _, d := range rep.Discrepancies {
				fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("    %s: %s / %s", d.Kind, d.Chapter, d.Lesson)))
			}

			if !rep.OK() {
				return errDiscrepancies
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourcePath, "source", "", "Path to the CSV export (required)")
	cmd.Flags().StringVar(&courseRef, "course", "", "Course id or slug (required)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}
