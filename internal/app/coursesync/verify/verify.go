// Package verify compares a course tree with the source rows it was synced
// from. It never writes.
package verify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

type treeReader interface {
	ListChaptersAndLessons(ctx context.Context, courseID uuid.UUID) ([]domain.ChapterWithLessons, error)
}

// DiscrepancyKind classifies a verification finding.
type DiscrepancyKind string

const (
	DiscrepancyMissing         DiscrepancyKind = "missing"
	DiscrepancyContentMismatch DiscrepancyKind = "content-mismatch"
	DiscrepancyExtra           DiscrepancyKind = "extra"
)

// Discrepancy is one lesson that does not agree with the source. Row is zero
// for extra lessons; LessonID is nil for missing ones.
type Discrepancy struct {
	Kind     DiscrepancyKind
	Chapter  string
	Lesson   string
	Row      int
	LessonID *uuid.UUID
}

// Report is the outcome of a verification.
type Report struct {
	Total           int
	Perfect         int
	ContentMismatch int
	Missing         int
	Extra           int
	// MatchRate is Perfect as a percentage of Total.
	MatchRate     float64
	Discrepancies []Discrepancy
}

// OK reports whether every source row is present with the same content and
// nothing else is stored.
func (r *Report) OK() bool { return len(r.Discrepancies) == 0 }

type key struct {
	chapter string
	lesson  string
}

func keyOf(chapter, lesson string) key {
	return key{chapter: domain.NormalizeTitle(chapter), lesson: domain.NormalizeTitle(lesson)}
}

// Verifier checks persisted lessons against source rows.
type Verifier struct {
	repo treeReader
}

func New(repo treeReader) *Verifier {
	return &Verifier{repo: repo}
}

// Verify re-reads the course tree and checks every record. When several
// persisted lessons share a key, the first in tree order is compared and the
// rest count as extra.
func (v *Verifier) Verify(ctx context.Context, courseID uuid.UUID, records []domain.SourceRecord) (*Report, error) {
	tree, err := v.repo.ListChaptersAndLessons(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("verify: load tree: %w", err)
	}

	type stored struct {
		lesson  domain.Lesson
		chapter string
	}
	var order []key
	persisted := make(map[key][]stored)
	for _, ch := range tree {
		for _, l := range ch.Lessons {
			k := keyOf(ch.Title, l.Title)
			if _, ok := persisted[k]; !ok {
				order = append(order, k)
			}
			persisted[k] = append(persisted[k], stored{lesson: l, chapter: ch.Title})
		}
	}

	rep := &Report{Total: len(records)}
	claimed := make(map[uuid.UUID]bool)
	for _, rec := range records {
		k := keyOf(rec.ChapterName, rec.LessonName)
		var hit *stored
		for i := range persisted[k] {
			if !claimed[persisted[k][i].lesson.ID] {
				hit = &persisted[k][i]
				break
			}
		}

		switch {
		case hit == nil:
			rep.Missing++
			rep.Discrepancies = append(rep.Discrepancies, Discrepancy{
				Kind:    DiscrepancyMissing,
				Chapter: rec.ChapterName,
				Lesson:  rec.LessonName,
				Row:     rec.RowNumber,
			})
			continue
		case domain.SameContent(hit.lesson.Content, rec.Content, hit.lesson.Title):
			rep.Perfect++
		default:
			rep.ContentMismatch++
			id := hit.lesson.ID
			rep.Discrepancies = append(rep.Discrepancies, Discrepancy{
				Kind:     DiscrepancyContentMismatch,
				Chapter:  rec.ChapterName,
				Lesson:   rec.LessonName,
				Row:      rec.RowNumber,
				LessonID: &id,
			})
		}
		claimed[hit.lesson.ID] = true
	}

	for _, k := range order {
		for _, s := range persisted[k] {
			if claimed[s.lesson.ID] {
				continue
			}
			rep.Extra++
			id := s.lesson.ID
			rep.Discrepancies = append(rep.Discrepancies, Discrepancy{
				Kind:     DiscrepancyExtra,
				Chapter:  s.chapter,
				Lesson:   s.lesson.Title,
				LessonID: &id,
			})
		}
	}

	if rep.Total > 0 {
		rep.MatchRate = float64(rep.Perfect) / float64(rep.Total) * 100
	}
	return rep, nil
}
