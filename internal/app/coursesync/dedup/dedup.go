// Package dedup removes duplicate lesson content across the whole corpus by
// prefixing every repeat with a disambiguation heading.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// DefaultFingerprintPrefix is the number of content runes fingerprinted.
const DefaultFingerprintPrefix = 500

// maxCounter bounds the numbered headings tried for one lesson.
const maxCounter = 1000

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type corpusRepo interface {
	ListAllLessons(ctx context.Context) ([]domain.CorpusLesson, error)
	UpdateLessonContent(ctx context.Context, id uuid.UUID, content string) error
}

type snapshotter interface {
	Snapshot(ctx context.Context, table, reason string) (domain.BackupSnapshot, error)
}

type auditRecorder interface {
	Record(ctx context.Context, e domain.AuditEntry)
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Options controls one deduplication run.
type Options struct {
	DryRun bool
	// Snapshot takes a lessons backup before the first rewrite.
	Snapshot bool
}

// Rewrite is one lesson whose content gets a disambiguation heading.
type Rewrite struct {
	LessonID   uuid.UUID
	Title      string
	Chapter    string
	KeptID     uuid.UUID
	OldContent string
	NewContent string
}

// Result summarises a run.
type Result struct {
	DryRun       bool
	Scanned      int
	SkippedEmpty int
	// Groups is the number of fingerprints shared by more than one lesson
	// before the run.
	Groups   int
	Rewrites []Rewrite
	// Remaining is the number of shared fingerprints after the run. It is
	// zero on success.
	Remaining int
	Snapshot  *domain.BackupSnapshot
	Errors    []error
}

// Deduplicator fingerprints lesson content and rewrites repeats.
type Deduplicator struct {
	log    *slog.Logger
	repo   corpusRepo
	snaps  snapshotter
	audit  auditRecorder
	prefix int
}

// New creates a Deduplicator. A prefix of zero or less means
// DefaultFingerprintPrefix.
func New(logger *slog.Logger, repo corpusRepo, snaps snapshotter, audit auditRecorder, prefix int) *Deduplicator {
	if prefix <= 0 {
		prefix = DefaultFingerprintPrefix
	}
	return &Deduplicator{
		log:    logger.With("component", "dedup"),
		repo:   repo,
		snaps:  snaps,
		audit:  audit,
		prefix: prefix,
	}
}

// Fingerprint hashes the first prefix runes of the lower-cased, normalised
// content.
func Fingerprint(content string, prefix int) uint64 {
	norm := strings.ToLower(domain.NormalizeContent(content))
	n := 0
	for i := range norm {
		if n == prefix {
			norm = norm[:i]
			break
		}
		n++
	}
	return xxhash.Sum64String(norm)
}

// Run deduplicates the corpus. The first lesson of each group in corpus
// order (course, chapter position, lesson position, id) keeps its content.
// Lessons with empty content are ignored.
func (d *Deduplicator) Run(ctx context.Context, opts Options) (*Result, error) {
	lessons, err := d.repo.ListAllLessons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list corpus: %w", err)
	}

	res := &Result{DryRun: opts.DryRun, Scanned: len(lessons)}
	res.Rewrites, res.Groups, res.SkippedEmpty = d.planRewrites(lessons)

	d.log.Info("duplicates found",
		slog.Int("lessons", res.Scanned),
		slog.Int("groups", res.Groups),
		slog.Int("rewrites", len(res.Rewrites)),
		slog.Bool("dry_run", opts.DryRun),
	)

	if opts.DryRun || len(res.Rewrites) == 0 {
		res.Remaining = d.countGroups(applied(lessons, res.Rewrites))
		return res, nil
	}

	if opts.Snapshot && d.snaps != nil {
		snap, err := d.snaps.Snapshot(ctx, domain.TableLessons, "before dedup")
		if err != nil {
			return nil, fmt.Errorf("snapshot lessons: %w", err)
		}
		res.Snapshot = &snap
	}

	done := res.Rewrites[:0]
	for _, rw := range res.Rewrites {
		if err := d.repo.UpdateLessonContent(ctx, rw.LessonID, rw.NewContent); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("rewrite lesson %s (%q): %w", rw.LessonID, rw.Title, err))
			d.log.Error("rewrite failed", slog.String("lesson_id", rw.LessonID.String()), slog.String("error", err.Error()))
			continue
		}
		done = append(done, rw)
		d.audit.Record(ctx, domain.AuditEntry{
			TableName: domain.TableLessons,
			RecordID:  rw.LessonID,
			Action:    domain.AuditActionUpdate,
			OldValue:  map[string]any{"content": rw.OldContent},
			NewValue:  map[string]any{"content": rw.NewContent},
			Source:    domain.ChangeSourceDedup,
		})
	}
	res.Rewrites = done

	after, err := d.repo.ListAllLessons(ctx)
	if err != nil {
		return res, fmt.Errorf("re-read corpus: %w", err)
	}
	res.Remaining = d.countGroups(after)
	if res.Remaining > 0 {
		d.log.Warn("duplicate content remains", slog.Int("groups", res.Remaining))
	}
	return res, nil
}

// planRewrites returns the rewrites that make every non-empty fingerprint
// unique, the number of duplicate groups and the number of empty lessons.
func (d *Deduplicator) planRewrites(lessons []domain.CorpusLesson) ([]Rewrite, int, int) {
	taken := make(map[uint64]bool, len(lessons))
	for _, l := range lessons {
		if strings.TrimSpace(l.Content) != "" {
			taken[Fingerprint(l.Content, d.prefix)] = true
		}
	}

	keeper := make(map[uint64]uuid.UUID)
	grouped := make(map[uint64]bool)
	var rewrites []Rewrite
	empty := 0
	for _, l := range lessons {
		if strings.TrimSpace(l.Content) == "" {
			empty++
			continue
		}
		fp := Fingerprint(l.Content, d.prefix)
		kept, seen := keeper[fp]
		if !seen {
			keeper[fp] = l.ID
			continue
		}
		grouped[fp] = true

		content := d.disambiguate(l, taken)
		rewrites = append(rewrites, Rewrite{
			LessonID:   l.ID,
			Title:      l.Title,
			Chapter:    l.ChapterTitle,
			KeptID:     kept,
			OldContent: l.Content,
			NewContent: content,
		})
	}
	return rewrites, len(grouped), empty
}

// disambiguate prefixes the lesson's content with a heading made of its
// title, then its chapter title, then a counter, until the fingerprint is
// free. The chosen fingerprint is marked taken.
func (d *Deduplicator) disambiguate(l domain.CorpusLesson, taken map[uint64]bool) string {
	body := domain.StripDisambiguation(l.Content, l.Title)
	try := func(qualifiers ...string) (string, bool) {
		c := domain.DisambiguationHeading(l.Title, qualifiers...) + body
		fp := Fingerprint(c, d.prefix)
		if taken[fp] {
			return "", false
		}
		taken[fp] = true
		return c, true
	}

	if c, ok := try(); ok {
		return c
	}
	chapter := strings.TrimSpace(l.ChapterTitle)
	if c, ok := try(chapter); ok {
		return c
	}
	for n := 2; n <= maxCounter; n++ {
		if c, ok := try(chapter, strconv.Itoa(n)); ok {
			return c
		}
	}
	// The fingerprint prefix is too short to tell headings apart; the
	// post-check reports the leftover group.
	return domain.DisambiguationHeading(l.Title, chapter) + body
}

// countGroups returns how many fingerprints are shared by more than one
// non-empty lesson.
func (d *Deduplicator) countGroups(lessons []domain.CorpusLesson) int {
	counts := make(map[uint64]int)
	for _, l := range lessons {
		if strings.TrimSpace(l.Content) == "" {
			continue
		}
		counts[Fingerprint(l.Content, d.prefix)]++
	}
	n := 0
	for _, c := range counts {
		if c > 1 {
			n++
		}
	}
	return n
}

func applied(lessons []domain.CorpusLesson, rewrites []Rewrite) []domain.CorpusLesson {
	byID := make(map[uuid.UUID]string, len(rewrites))
	for _, rw := range rewrites {
		byID[rw.LessonID] = rw.NewContent
	}
	out := make([]domain.CorpusLesson, len(lessons))
	for i, l := range lessons {
		if c, ok := byID[l.ID]; ok {
			l.Content = c
		}
		out[i] = l
	}
	return out
}
