package execute

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// exactRun is the state shared by the chapter transactions of one
// exact-replace execution.
type exactRun struct {
	plan *domain.Plan
	opts Options
	// owner maps a persisted lesson id to the index of the chapter plan
	// whose record matched it.
	owner map[uuid.UUID]int
	// removed holds lesson ids deleted by committed transactions.
	removed map[uuid.UUID]bool
	// carry holds progress rows of deleted lessons waiting for the chapter
	// that owns their replacement, keyed by chapter plan index.
	carry map[int][]domain.LessonProgress
}

// chapterOutcome is what one committed chapter transaction did.
type chapterOutcome struct {
	chapter  domain.Chapter
	created  bool
	deleted  []domain.Lesson
	inserted []domain.Lesson
	deps     domain.DependentCounts
	carried  int
	dropped  int
	pending  map[int][]domain.LessonProgress
}

// executeExact replaces the lessons of every source chapter with the source
// rows, one transaction per chapter, then deletes chapters that are no
// longer in the source. Dependent rows are removed before their lessons.
func (e *Executor) executeExact(ctx context.Context, p *domain.Plan, opts Options, res *Result) {
	run := &exactRun{
		plan:    p,
		opts:    opts,
		owner:   make(map[uuid.UUID]int),
		removed: make(map[uuid.UUID]bool),
		carry:   make(map[int][]domain.LessonProgress),
	}
	for i, cp := range p.Chapters {
		for _, op := range cp.Lessons {
			if op.Existing != nil {
				run.owner[op.Existing.ID] = i
			}
		}
	}

	for i, cp := range p.Chapters {
		if ctx.Err() != nil {
			e.fail(res, OpError{Op: "replace", Chapter: cp.Title, Err: ctx.Err()})
			return
		}

		out, err := e.replaceChapter(ctx, run, i)
		if err != nil {
			e.fail(res, OpError{Op: "replace", Chapter: cp.Title, Err: err})
			continue
		}

		delete(run.carry, i)
		for j, rows := range out.pending {
			run.carry[j] = append(run.carry[j], rows...)
		}
		for _, l := range out.deleted {
			run.removed[l.ID] = true
		}

		if out.created {
			res.ChaptersCreated++
			e.auditChapter(ctx, domain.AuditActionCreate, out.chapter)
		}
		res.LessonsDeleted += len(out.deleted)
		res.LessonsCreated += len(out.inserted)
		res.DependentsDeleted += out.deps.Total()
		res.ProgressCarried += out.carried
		if out.dropped > 0 {
			e.log.Warn("progress rows could not be carried over",
				slog.String("chapter", cp.Title),
				slog.Int("rows", out.dropped),
				slog.String("reason", "target chapter transaction failed"),
			)
		}
		for i := range out.deleted {
			e.auditLesson(ctx, domain.AuditActionDelete, &out.deleted[i], nil)
		}
		for i := range out.inserted {
			e.auditLesson(ctx, domain.AuditActionCreate, nil, &out.inserted[i])
		}

		e.log.Debug("chapter replaced",
			slog.String("chapter", cp.Title),
			slog.Int("deleted", len(out.deleted)),
			slog.Int("inserted", len(out.inserted)),
			slog.Int("progress_carried", out.carried),
		)
	}

	for _, stale := range p.StaleChapters {
		if ctx.Err() != nil {
			e.fail(res, OpError{Op: "delete", Chapter: stale.Title, Err: ctx.Err()})
			return
		}
		e.deleteStaleChapter(ctx, run, stale, res)
	}

	if n := countRows(run.carry); n > 0 {
		e.log.Warn("progress rows could not be carried over",
			slog.Int("rows", n),
			slog.String("reason", "target chapter transaction failed"),
		)
	}
}

// replaceChapter runs the transaction for chapter plan i.
func (e *Executor) replaceChapter(ctx context.Context, run *exactRun, i int) (chapterOutcome, error) {
	cp := run.plan.Chapters[i]
	var out chapterOutcome

	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		out = chapterOutcome{pending: make(map[int][]domain.LessonProgress)}

		ch, created, err := e.resolveChapter(ctx, run.plan.Course.ID, cp)
		if err != nil {
			return err
		}
		out.chapter, out.created = ch, created

		out.deleted = run.lessonsToReplace(cp)
		ids := lessonIDs(out.deleted)

		var stash []domain.LessonProgress
		if run.opts.PreserveProgress && len(ids) > 0 {
			rows, err := e.repo.ListProgressByLessonIDs(ctx, ids)
			if err != nil {
				return fmt.Errorf("list progress: %w", err)
			}
			for _, row := range rows {
				switch j, ok := run.owner[row.LessonID]; {
				case !ok:
					// Lesson has no replacement; its progress goes.
				case j == i:
					stash = append(stash, row)
				case j > i:
					out.pending[j] = append(out.pending[j], row)
				default:
					// The owning chapter already failed; its replacement
					// does not exist.
					out.dropped++
				}
			}
		}

		if out.deps, err = e.repo.DeleteDependentsByLessonIDs(ctx, ids); err != nil {
			return fmt.Errorf("delete dependents: %w", err)
		}
		if _, err := e.repo.DeleteLessons(ctx, ids); err != nil {
			return fmt.Errorf("delete lessons: %w", err)
		}
		if !created {
			// Lessons added after the plan was built.
			late, err := e.repo.DeleteDependentsByChapter(ctx, ch.ID)
			if err != nil {
				return fmt.Errorf("delete chapter dependents: %w", err)
			}
			out.deps.Add(late)
			if _, err := e.repo.DeleteLessonsByChapter(ctx, ch.ID); err != nil {
				return fmt.Errorf("delete chapter lessons: %w", err)
			}
		}

		replacement := make(map[uuid.UUID]uuid.UUID)
		out.inserted = make([]domain.Lesson, 0, len(cp.Lessons))
		for _, op := range cp.Lessons {
			l := newLesson(ch, op)
			l.ID = uuid.New()
			inserted, err := e.repo.CreateLesson(ctx, l)
			if err != nil {
				return fmt.Errorf("create lesson %q: %w", op.Record.LessonName, err)
			}
			out.inserted = append(out.inserted, inserted)
			if op.Existing != nil {
				replacement[op.Existing.ID] = inserted.ID
			}
		}

		moved := append(stash, run.carry[i]...)
		rows := make([]domain.LessonProgress, 0, len(moved))
		for _, row := range moved {
			if id, ok := replacement[row.LessonID]; ok {
				row.LessonID = id
				rows = append(rows, row)
			}
		}
		if err := e.repo.InsertProgress(ctx, rows); err != nil {
			return fmt.Errorf("carry progress: %w", err)
		}
		out.carried = len(rows)
		return nil
	})
	if err != nil {
		return chapterOutcome{}, err
	}
	return out, nil
}

// lessonsToReplace returns the persisted lessons chapter plan cp removes:
// the lessons of its chapter and the lessons its records matched elsewhere,
// minus those already removed.
func (run *exactRun) lessonsToReplace(cp domain.ChapterPlan) []domain.Lesson {
	seen := make(map[uuid.UUID]bool)
	var out []domain.Lesson
	add := func(l domain.Lesson) {
		if seen[l.ID] || run.removed[l.ID] {
			return
		}
		seen[l.ID] = true
		out = append(out, l)
	}
	for _, l := range cp.Current {
		add(l)
	}
	for _, op := range cp.Lessons {
		if op.Existing != nil {
			add(*op.Existing)
		}
	}
	return out
}

func (e *Executor) deleteStaleChapter(ctx context.Context, run *exactRun, stale domain.ChapterWithLessons, res *Result) {
	var lessons []domain.Lesson
	for _, l := range stale.Lessons {
		if !run.removed[l.ID] {
			lessons = append(lessons, l)
		}
	}
	ids := lessonIDs(lessons)

	var deps domain.DependentCounts
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if deps, err = e.repo.DeleteDependentsByLessonIDs(ctx, ids); err != nil {
			return fmt.Errorf("delete dependents: %w", err)
		}
		if _, err := e.repo.DeleteLessons(ctx, ids); err != nil {
			return fmt.Errorf("delete lessons: %w", err)
		}
		late, err := e.repo.DeleteDependentsByChapter(ctx, stale.ID)
		if err != nil {
			return fmt.Errorf("delete chapter dependents: %w", err)
		}
		deps.Add(late)
		if _, err := e.repo.DeleteLessonsByChapter(ctx, stale.ID); err != nil {
			return fmt.Errorf("delete chapter lessons: %w", err)
		}
		if err := e.repo.DeleteChapter(ctx, stale.ID); err != nil {
			return fmt.Errorf("delete chapter: %w", err)
		}
		return nil
	})
	if err != nil {
		e.fail(res, OpError{Op: "delete", Chapter: stale.Title, Err: err})
		return
	}

	for _, l := range lessons {
		run.removed[l.ID] = true
	}
	res.ChaptersDeleted++
	res.LessonsDeleted += len(lessons)
	res.DependentsDeleted += deps.Total()
	for i := range lessons {
		e.auditLesson(ctx, domain.AuditActionDelete, &lessons[i], nil)
	}
	e.auditChapter(ctx, domain.AuditActionDelete, stale.Chapter)
}

func lessonIDs(lessons []domain.Lesson) []uuid.UUID {
	ids := make([]uuid.UUID, len(lessons))
	for i, l := range lessons {
		ids[i] = l.ID
	}
	return ids
}

func countRows(m map[int][]domain.LessonProgress) int {
	n := 0
	for _, rows := range m {
		n += len(rows)
	}
	return n
}
