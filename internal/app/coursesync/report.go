package coursesync

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// maxListed bounds the drift, error and discrepancy lines printed per section.
const maxListed = 20

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	dryRunStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11")).Padding(0, 1)
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
)

var strategyOrder = []domain.MatchStrategy{
	domain.MatchStrategyExact,
	domain.MatchStrategyClean,
	domain.MatchStrategyContainment,
	domain.MatchStrategyKeyword,
	domain.MatchStrategyFallback,
	domain.MatchStrategyNone,
}

// WriteReport renders the console summary of a run.
func WriteReport(w io.Writer, rep *Report) error {
	var b strings.Builder

	head := titleStyle.Render(fmt.Sprintf("Course sync: %s (%s mode)", courseName(rep.Course), rep.Mode))
	if rep.DryRun {
		head += " " + dryRunStyle.Render("DRY RUN")
	}
	b.WriteString(head + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("run %s, %s", rep.RunID, rep.Duration.Round(time.Millisecond))) + "\n")

	if p := rep.Parse; p != nil {
		section(&b, "Source")
		line(&b, "rows", p.Stats.TotalRows)
		line(&b, "accepted", p.Stats.Accepted)
		line(&b, "skipped", p.Stats.Rejected)
		line(&b, "malformed", p.Stats.Malformed)
		for _, reason := range slices.Sorted(maps.Keys(p.Stats.RejectReasons)) {
			n := p.Stats.RejectReasons[reason]
			b.WriteString(dimStyle.Render(fmt.Sprintf("    %s: %s", reason, humanize.Comma(int64(n)))) + "\n")
		}
	}

	if pl := rep.Plan; pl != nil {
		section(&b, "Matches")
		for _, s := range strategyOrder {
			if n := pl.StrategyCounts[s]; n > 0 {
				b.WriteString(fmt.Sprintf("  %-14s %8s  %s\n", s, humanize.Comma(int64(n)), dimStyle.Render(string(s.Confidence()))))
			}
		}
	}

	if ex := rep.Exec; ex != nil {
		section(&b, "Changes")
		line(&b, "chapters created", ex.ChaptersCreated)
		line(&b, "chapters deleted", ex.ChaptersDeleted)
		line(&b, "lessons created", ex.LessonsCreated)
		line(&b, "lessons updated", ex.LessonsUpdated)
		line(&b, "lessons unchanged", ex.LessonsUnchanged)
		line(&b, "lessons deleted", ex.LessonsDeleted)
		line(&b, "dependents deleted", ex.DependentsDeleted)
		if ex.ProgressCarried > 0 {
			line(&b, "progress carried", ex.ProgressCarried)
		}
	}

	if pl := rep.Plan; pl != nil && len(pl.Drift) > 0 {
		section(&b, "Drift")
		for i, d := range pl.Drift {
			if i == maxListed {
				b.WriteString(dimStyle.Render(fmt.Sprintf("  ... and %d more", len(pl.Drift)-maxListed)) + "\n")
				break
			}
			what := d.ChapterTitle
			if !d.IsChapter() {
				what += " / " + d.LessonTitle
			}
			b.WriteString(fmt.Sprintf("  %-22s %s\n", d.Kind, what))
		}
		if !rep.Mode.IsDestructive() {
			b.WriteString(dimStyle.Render("  left in place (merge mode)") + "\n")
		}
	}

	if dd := rep.Dedup; dd != nil {
		section(&b, "Duplicates")
		line(&b, "lessons scanned", dd.Scanned)
		line(&b, "duplicate groups", dd.Groups)
		line(&b, "lessons rewritten", len(dd.Rewrites))
		line(&b, "groups remaining", dd.Remaining)
	}

	if vr := rep.Verify; vr != nil {
		section(&b, "Verification")
		line(&b, "source lessons", vr.Total)
		line(&b, "perfect", vr.Perfect)
		line(&b, "content mismatch", vr.ContentMismatch)
		line(&b, "missing", vr.Missing)
		line(&b, "extra", vr.Extra)
		b.WriteString(fmt.Sprintf("  %-20s %7.1f%%\n", "match rate", vr.MatchRate))
		for i, d := range vr.Discrepancies {
			if i == maxListed {
				b.WriteString(dimStyle.Render(fmt.Sprintf("  ... and %d more", len(vr.Discrepancies)-maxListed)) + "\n")
				break
			}
			b.WriteString(dimStyle.Render(fmt.Sprintf("    %s: %s / %s", d.Kind, d.Chapter, d.Lesson)) + "\n")
		}
	}

	if len(rep.Snapshots) > 0 {
		section(&b, "Snapshots")
		for _, s := range rep.Snapshots {
			b.WriteString(fmt.Sprintf("  %-44s %10s rows  %s\n", s.ShadowTable, humanize.Comma(s.RowCount), dimStyle.Render(s.ID.String())))
		}
	}

	errs := reportErrors(rep)
	if len(errs) > 0 {
		section(&b, "Errors")
		for i, e := range errs {
			if i == maxListed {
				b.WriteString(fmt.Sprintf("  ... and %d more\n", len(errs)-maxListed))
				break
			}
			b.WriteString("  " + e + "\n")
		}
	}

	b.WriteString("\n")
	if rep.Clean() {
		b.WriteString(okStyle.Render("✔ Sync completed successfully") + "\n")
	} else {
		b.WriteString(warnStyle.Render("⚠ Sync completed with warnings") + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func courseName(c domain.Course) string {
	if c.Title != "" {
		return c.Title
	}
	return c.Slug
}

func section(b *strings.Builder, name string) {
	b.WriteString("\n" + sectionStyle.Render(name) + "\n")
}

func line(b *strings.Builder, label string, n int) {
	b.WriteString(fmt.Sprintf("  %-20s %8s\n", label, humanize.Comma(int64(n))))
}

func reportErrors(rep *Report) []string {
	var out []string
	for _, name := range rep.Phases {
		if r := rep.Results[name]; r.Err != nil {
			out = append(out, fmt.Sprintf("%s: %v", name, r.Err))
		}
	}
	if rep.Exec != nil {
		for _, e := range rep.Exec.Errors {
			out = append(out, e.Error())
		}
	}
	if rep.Dedup != nil {
		for _, e := range rep.Dedup.Errors {
			out = append(out, e.Error())
		}
	}
	return out
}
