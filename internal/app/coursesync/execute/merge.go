package execute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// executeMerge creates missing chapters and lessons and updates lessons that
// differ. Nothing is deleted and matched lessons keep their ids. Every
// operation commits on its own.
func (e *Executor) executeMerge(ctx context.Context, p *domain.Plan, res *Result) {
	planned := make(map[uuid.UUID]bool)
	for _, cp := range p.Chapters {
		for _, op := range cp.Lessons {
			if op.Existing != nil {
				planned[op.Existing.ID] = true
			}
		}
	}

	for _, cp := range p.Chapters {
		if ctx.Err() != nil {
			e.fail(res, OpError{Op: "merge", Chapter: cp.Title, Err: ctx.Err()})
			return
		}

		ch, created, err := e.resolveChapter(ctx, p.Course.ID, cp)
		if err != nil {
			e.fail(res, OpError{Op: "create", Chapter: cp.Title, Err: err})
			continue
		}
		if created {
			res.ChaptersCreated++
			e.auditChapter(ctx, domain.AuditActionCreate, ch)
		}

		for _, op := range cp.Lessons {
			switch op.Kind {
			case domain.LessonOpUnchanged:
				res.LessonsUnchanged++
			case domain.LessonOpUpdate:
				e.mergeUpdate(ctx, ch, op, res)
			case domain.LessonOpCreate:
				e.mergeCreate(ctx, ch, op, planned, res)
			}
		}
	}
}

func (e *Executor) mergeUpdate(ctx context.Context, ch domain.Chapter, op domain.LessonOp, res *Result) {
	upd := op.Update
	if upd.ChapterID != nil {
		id := ch.ID
		upd.ChapterID = &id
	}

	updated, err := e.repo.UpdateLesson(ctx, op.Existing.ID, upd)
	if err != nil {
		e.fail(res, OpError{Op: "update", Chapter: ch.Title, Lesson: op.Record.LessonName, Err: err})
		return
	}
	res.LessonsUpdated++
	e.auditLesson(ctx, domain.AuditActionUpdate, op.Existing, &updated)
}

// mergeCreate inserts a lesson unless one with the same title already sits
// in the chapter and is not claimed by another record, in which case that
// lesson is brought in line with the record.
func (e *Executor) mergeCreate(ctx context.Context, ch domain.Chapter, op domain.LessonOp, planned map[uuid.UUID]bool, res *Result) {
	title := strings.TrimSpace(op.Record.LessonName)

	existing, err := e.repo.FindLesson(ctx, ch.ID, title)
	switch {
	case err == nil && !planned[existing.ID]:
		planned[existing.ID] = true
		var upd domain.LessonUpdateParams
		if !domain.SameContent(existing.Content, op.Record.Content, title) {
			content := op.Record.Content
			upd.Content = &content
		}
		if existing.OrderIndex != op.OrderIndex {
			order := op.OrderIndex
			upd.OrderIndex = &order
		}
		if upd.IsEmpty() {
			res.LessonsUnchanged++
			return
		}
		e.mergeUpdate(ctx, ch, domain.LessonOp{Kind: domain.LessonOpUpdate, Record: op.Record, Existing: &existing, Update: upd}, res)
		return
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		e.fail(res, OpError{Op: "create", Chapter: ch.Title, Lesson: op.Record.LessonName, Err: fmt.Errorf("find lesson: %w", err)})
		return
	}

	created, err := e.repo.CreateLesson(ctx, newLesson(ch, op))
	if err != nil {
		e.fail(res, OpError{Op: "create", Chapter: ch.Title, Lesson: op.Record.LessonName, Err: err})
		return
	}
	res.LessonsCreated++
	e.auditLesson(ctx, domain.AuditActionCreate, nil, &created)
}
