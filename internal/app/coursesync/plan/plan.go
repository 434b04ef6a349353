// Package plan turns match results into a side-effect free reconciliation
// plan for one course.
package plan

import (
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// Build groups records by source chapter and decides, for every record,
// whether its lesson is created, updated or left unchanged. matches must be
// the matcher output for records, in the same order; a record without a
// match result is treated as a create.
//
// Chapters keep the order in which they first appear in the source. A source
// chapter is paired with the first persisted chapter of equal normalised
// title; unpaired chapters are created after the last persisted chapter.
// Lessons are numbered 1..n in source order within their chapter.
//
// Fallback pairs are planned like any match but stay in the drift report on
// both sides.
//
// For an update op whose target chapter is created by the plan,
// Update.ChapterID points at uuid.Nil: the executor substitutes the id of
// the chapter it creates.
func Build(course domain.Course, tree []domain.ChapterWithLessons, records []domain.SourceRecord, matches []domain.MatchResult) *domain.Plan {
	p := &domain.Plan{
		Course:         course,
		StrategyCounts: make(map[domain.MatchStrategy]int),
	}

	persisted := make(map[string]int, len(tree))
	nextOrder := 0
	for i, ch := range tree {
		norm := domain.NormalizeTitle(ch.Title)
		if _, ok := persisted[norm]; !ok {
			persisted[norm] = i
		}
		nextOrder = max(nextOrder, ch.OrderIndex)
	}
	nextOrder++

	chapterIdx := make(map[string]int)
	claimed := make(map[int]bool, len(tree))
	matchedLessons := make(map[uuid.UUID]bool)

	for i, rec := range records {
		m := domain.MatchResult{Record: rec, Strategy: domain.MatchStrategyNone, Confidence: domain.ConfidenceNone}
		if i < len(matches) {
			m = matches[i]
		}
		p.StrategyCounts[m.Strategy]++

		norm := domain.NormalizeTitle(rec.ChapterName)
		ci, ok := chapterIdx[norm]
		if !ok {
			cp := domain.ChapterPlan{Title: strings.TrimSpace(rec.ChapterName)}
			if ti, found := persisted[norm]; found {
				ch := tree[ti]
				existing := ch.Chapter
				cp.Existing = &existing
				cp.OrderIndex = ch.OrderIndex
				cp.Current = ch.Lessons
				claimed[ti] = true
			} else {
				cp.OrderIndex = nextOrder
				nextOrder++
				p.Drift = append(p.Drift, domain.DriftItem{
					Kind:         domain.DriftMissingFromDatabase,
					ChapterTitle: cp.Title,
				})
			}
			p.Chapters = append(p.Chapters, cp)
			ci = len(p.Chapters) - 1
			chapterIdx[norm] = ci
		}

		cp := &p.Chapters[ci]
		op := lessonOp(cp, rec, m, len(cp.Lessons)+1)
		switch {
		case op.Existing != nil && m.Strategy == domain.MatchStrategyFallback:
			// A fallback pair shares no title: the persisted lesson stays in
			// the missing-from-source list and the record is reported too.
			p.Drift = append(p.Drift, domain.DriftItem{
				Kind:         domain.DriftMissingFromDatabase,
				ChapterTitle: cp.Title,
				LessonTitle:  strings.TrimSpace(rec.LessonName),
			})
		case op.Existing != nil:
			matchedLessons[op.Existing.ID] = true
		default:
			p.Drift = append(p.Drift, domain.DriftItem{
				Kind:         domain.DriftMissingFromDatabase,
				ChapterTitle: cp.Title,
				LessonTitle:  strings.TrimSpace(rec.LessonName),
			})
		}
		cp.Lessons = append(cp.Lessons, op)
	}

	for i, ch := range tree {
		if !claimed[i] {
			chID := ch.ID
			p.StaleChapters = append(p.StaleChapters, ch)
			p.Drift = append(p.Drift, domain.DriftItem{
				Kind:         domain.DriftMissingFromSource,
				ChapterTitle: ch.Title,
				ChapterID:    &chID,
			})
			continue
		}
		for _, l := range ch.Lessons {
			if matchedLessons[l.ID] {
				continue
			}
			chID, lID := ch.ID, l.ID
			p.Drift = append(p.Drift, domain.DriftItem{
				Kind:         domain.DriftMissingFromSource,
				ChapterTitle: ch.Title,
				LessonTitle:  l.Title,
				ChapterID:    &chID,
				LessonID:     &lID,
			})
		}
	}

	return p
}

func lessonOp(cp *domain.ChapterPlan, rec domain.SourceRecord, m domain.MatchResult, order int) domain.LessonOp {
	op := domain.LessonOp{
		Kind:       domain.LessonOpCreate,
		Record:     rec,
		OrderIndex: order,
		Strategy:   m.Strategy,
	}
	if m.Lesson == nil {
		return op
	}

	l := *m.Lesson
	op.Existing = &l

	var upd domain.LessonUpdateParams
	if title := strings.TrimSpace(rec.LessonName); strings.TrimSpace(l.Title) != title {
		upd.Title = &title
	}
	if !domain.SameContent(l.Content, rec.Content, rec.LessonName) {
		content := rec.Content
		upd.Content = &content
	}
	if l.OrderIndex != order {
		upd.OrderIndex = &order
	}
	switch {
	case cp.IsNew():
		pending := uuid.Nil
		upd.ChapterID = &pending
	case l.ChapterID != cp.Existing.ID:
		id := cp.Existing.ID
		upd.ChapterID = &id
	}

	if upd.IsEmpty() {
		op.Kind = domain.LessonOpUnchanged
		return op
	}
	op.Kind = domain.LessonOpUpdate
	op.Update = upd
	return op
}
