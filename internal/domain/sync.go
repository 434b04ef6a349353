package domain

import "github.com/google/uuid"

// SourceRecord is one accepted row of the tabular source.
type SourceRecord struct {
	ChapterName string
	LessonName  string
	Content     string
	// RowNumber is the 1-based line of the record in the source file,
	// counting the header as line 1.
	RowNumber int
}

// MatchResult pairs a source record with an existing lesson. A nil Lesson
// means no lesson was available and the record must be created.
type MatchResult struct {
	Record     SourceRecord
	Lesson     *Lesson
	Strategy   MatchStrategy
	Confidence ConfidenceTier
}

// IsCreate reports whether the record has no persisted counterpart.
func (m MatchResult) IsCreate() bool { return m.Lesson == nil }

// LessonOpKind is the planned action for one source record.
type LessonOpKind string

const (
	LessonOpCreate    LessonOpKind = "create"
	LessonOpUpdate    LessonOpKind = "update"
	LessonOpUnchanged LessonOpKind = "unchanged"
)

// LessonOp is one planned lesson mutation.
type LessonOp struct {
	Kind       LessonOpKind
	Record     SourceRecord
	Existing   *Lesson
	OrderIndex int
	Strategy   MatchStrategy
	// Update is set for LessonOpUpdate and holds only the differing fields.
	Update LessonUpdateParams
}

// ChapterPlan groups the operations for one source chapter.
type ChapterPlan struct {
	Title string
	// Existing is nil when the chapter has to be created.
	Existing   *Chapter
	OrderIndex int
	Lessons    []LessonOp
	// Current holds the lessons persisted in Existing when the plan was built.
	Current []Lesson
}

// IsNew reports whether the chapter does not exist yet.
func (c ChapterPlan) IsNew() bool { return c.Existing == nil }

// DriftItem is a structural difference between source and database.
type DriftItem struct {
	Kind         DriftKind
	ChapterTitle string
	// LessonTitle is empty when the whole chapter drifted.
	LessonTitle string
	ChapterID   *uuid.UUID
	LessonID    *uuid.UUID
}

// IsChapter reports whether the drift concerns a whole chapter.
func (d DriftItem) IsChapter() bool { return d.LessonTitle == "" }

// Plan is the full, side-effect free outcome of reconciliation planning.
type Plan struct {
	Course   Course
	Chapters []ChapterPlan
	Drift    []DriftItem
	// StaleChapters are persisted chapters with no source counterpart,
	// together with their lessons. Exact-replace mode deletes them.
	StaleChapters []ChapterWithLessons
	// StrategyCounts counts matches per strategy, including "none".
	StrategyCounts map[MatchStrategy]int
}

// CountOps returns the number of lesson operations of the given kind.
func (p *Plan) CountOps(kind LessonOpKind) int {
	n := 0
	for _, ch := range p.Chapters {
		for _, op := range ch.Lessons {
			if op.Kind == kind {
				n++
			}
		}
	}
	return n
}

// NewChapters returns the number of chapters the plan creates.
func (p *Plan) NewChapters() int {
	n := 0
	for _, ch := range p.Chapters {
		if ch.IsNew() {
			n++
		}
	}
	return n
}

// DriftOf returns the drift items of one kind.
func (p *Plan) DriftOf(kind DriftKind) []DriftItem {
	var out []DriftItem
	for _, d := range p.Drift {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
