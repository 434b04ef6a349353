package execute

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/coursesync/internal/adapter/memstore"
	"github.com/heartmarshall/coursesync/internal/app/coursesync/match"
	"github.com/heartmarshall/coursesync/internal/app/coursesync/plan"
	"github.com/heartmarshall/coursesync/internal/domain"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

var _ auditRecorder = &auditRecorderMock{}

type auditRecorderMock struct {
	mu    sync.Mutex
	calls []domain.AuditEntry
}

func (m *auditRecorderMock) Record(_ context.Context, e domain.AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, e)
}

func (m *auditRecorderMock) count(table string, action domain.AuditAction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.calls {
		if e.TableName == table && e.Action == action {
			n++
		}
	}
	return n
}

// failingStore fails CreateLesson for one title.
type failingStore struct {
	*memstore.Store
	failTitle string
}

func (f failingStore) CreateLesson(ctx context.Context, l domain.Lesson) (domain.Lesson, error) {
	if l.Title == f.failTitle {
		return domain.Lesson{}, errors.New("disk full")
	}
	return f.Store.CreateLesson(ctx, l)
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

const (
	roomContent     = "Keep the nursery between 16 and 20 degrees."
	positionContent = "Always place the baby on their back to sleep."
	latchingContent = "Line the nose up with the nipple before latching."
)

type fixture struct {
	store    *memstore.Store
	course   domain.Course
	sleep    domain.Chapter
	feeding  domain.Chapter
	room     domain.Lesson
	position domain.Lesson
	latching domain.Lesson
	user     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s := memstore.New()
	f := &fixture{store: s, user: uuid.New()}
	f.course = domain.Course{ID: uuid.New(), Slug: "newborn-care", Title: "Newborn Care"}
	s.PutCourse(f.course)

	f.sleep = domain.Chapter{ID: uuid.New(), CourseID: f.course.ID, Title: "Sleep", OrderIndex: 1}
	f.feeding = domain.Chapter{ID: uuid.New(), CourseID: f.course.ID, Title: "Feeding", OrderIndex: 2}
	s.PutChapter(f.sleep)
	s.PutChapter(f.feeding)

	lesson := func(ch domain.Chapter, title, content string, order int) domain.Lesson {
		l := domain.Lesson{ID: uuid.New(), ChapterID: ch.ID, CourseID: f.course.ID, Title: title, Content: content, OrderIndex: order}
		s.PutLesson(l)
		return l
	}
	f.room = lesson(f.sleep, "Room Temperature", roomContent, 1)
	f.position = lesson(f.sleep, "Safe Sleep Position", positionContent, 2)
	f.latching = lesson(f.feeding, "Latching", latchingContent, 1)

	s.PutProgress(domain.LessonProgress{ID: uuid.New(), LessonID: f.room.ID, UserID: f.user, Completed: true})
	s.PutProgress(domain.LessonProgress{ID: uuid.New(), LessonID: f.latching.ID, UserID: f.user})
	s.PutContentDetail(domain.LessonContentDetail{ID: uuid.New(), LessonID: f.room.ID, Kind: "summary", Body: "Cool room."})

	require.NoError(t, s.CheckIntegrity())
	return f
}

func (f *fixture) plan(t *testing.T, records ...domain.SourceRecord) *domain.Plan {
	t.Helper()
	tree, err := f.store.ListChaptersAndLessons(context.Background(), f.course.ID)
	require.NoError(t, err)
	matches := match.New(match.Options{}).Match(records, tree)
	return plan.Build(f.course, tree, records, matches)
}

func (f *fixture) executor(repo courseRepo, audit auditRecorder) *Executor {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), repo, f.store.TxManager(), audit)
}

func rec(chapter, lesson, content string) domain.SourceRecord {
	return domain.SourceRecord{ChapterName: chapter, LessonName: lesson, Content: content}
}

func lessonTitles(t *testing.T, s *memstore.Store, chapterID uuid.UUID) []string {
	t.Helper()
	var out []string
	lessons, err := s.ListAllLessons(context.Background())
	require.NoError(t, err)
	for _, l := range lessons {
		if l.ChapterID == chapterID {
			out = append(out, l.Title)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Merge
// ---------------------------------------------------------------------------

func TestExecute_Merge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	audit := &auditRecorderMock{}
	ctx := context.Background()

	records := []domain.SourceRecord{
		rec("Sleep", "Room Temperature", roomContent),
		rec("Sleep", "Safe Sleep Position", "Always on the back, in a clear cot."),
		rec("Sleep", "White Noise", "A steady background hum can help settling."),
		rec("Bathing", "First Bath", "Wait until the cord stump falls off."),
	}
	res := f.executor(f.store, audit).Execute(ctx, f.plan(t, records...), Options{Mode: domain.SyncModeMerge})

	require.Empty(t, res.Errors)
	assert.Equal(t, domain.SyncModeMerge, res.Mode)
	assert.Equal(t, 1, res.ChaptersCreated)
	assert.Equal(t, 2, res.LessonsCreated)
	assert.Equal(t, 1, res.LessonsUpdated)
	assert.Equal(t, 1, res.LessonsUnchanged)
	assert.Zero(t, res.LessonsDeleted)
	assert.Zero(t, res.ChaptersDeleted)

	// Identity preserved and nothing removed.
	got, ok := f.store.Lesson(f.position.ID)
	require.True(t, ok)
	assert.Equal(t, "Always on the back, in a clear cot.", got.Content)
	_, ok = f.store.Lesson(f.latching.ID)
	assert.True(t, ok, "merge never deletes")
	assert.Len(t, f.store.Progress(), 2)
	assert.Len(t, f.store.ContentDetails(), 1)

	assert.Equal(t, 1, audit.count(domain.TableChapters, domain.AuditActionCreate))
	assert.Equal(t, 2, audit.count(domain.TableLessons, domain.AuditActionCreate))
	assert.Equal(t, 1, audit.count(domain.TableLessons, domain.AuditActionUpdate))

	// Second run over the result changes nothing.
	again := f.executor(f.store, audit).Execute(ctx, f.plan(t, records...), Options{Mode: domain.SyncModeMerge})
	require.Empty(t, again.Errors)
	assert.Zero(t, again.ChaptersCreated)
	assert.Zero(t, again.LessonsCreated)
	assert.Zero(t, again.LessonsUpdated)
	assert.Equal(t, 4, again.LessonsUnchanged)
}

func TestExecute_MergeMovesLessonToNewChapter(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	p := f.plan(t, rec("Breastfeeding", "Latching", latchingContent))
	res := f.executor(f.store, &auditRecorderMock{}).Execute(context.Background(), p, Options{Mode: domain.SyncModeMerge})

	require.Empty(t, res.Errors)
	got, ok := f.store.Lesson(f.latching.ID)
	require.True(t, ok)
	assert.NotEqual(t, f.feeding.ID, got.ChapterID)
	assert.Equal(t, []string{"Latching"}, lessonTitles(t, f.store, got.ChapterID))
}

func TestExecute_MergeCreateReusesUnplannedLesson(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p := f.plan(t, rec("Feeding", "Burping", "Hold the baby upright against your shoulder."))
	// Someone adds the lesson between planning and execution.
	added, err := f.store.CreateLesson(ctx, domain.Lesson{
		ChapterID: f.feeding.ID, CourseID: f.course.ID, Title: "Burping", Content: "Old text about burping.", OrderIndex: 2,
	})
	require.NoError(t, err)

	res := f.executor(f.store, &auditRecorderMock{}).Execute(ctx, p, Options{Mode: domain.SyncModeMerge})

	require.Empty(t, res.Errors)
	assert.Zero(t, res.LessonsCreated)
	assert.Equal(t, 1, res.LessonsUpdated)
	got, _ := f.store.Lesson(added.ID)
	assert.Equal(t, "Hold the baby upright against your shoulder.", got.Content)
}

func TestExecute_MergeCollectsLessonErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	p := f.plan(t,
		rec("Sleep", "White Noise", "A steady background hum can help settling."),
		rec("Sleep", "Mobile Toys", "Hang mobiles well out of reach of the cot."),
	)
	repo := failingStore{Store: f.store, failTitle: "White Noise"}
	res := f.executor(repo, &auditRecorderMock{}).Execute(context.Background(), p, Options{Mode: domain.SyncModeMerge})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "create", res.Errors[0].Op)
	assert.Equal(t, "White Noise", res.Errors[0].Lesson)
	assert.True(t, res.HasErrors())
	assert.Equal(t, 1, res.LessonsCreated)
	assert.Contains(t, lessonTitles(t, f.store, f.sleep.ID), "Mobile Toys")
}

// ---------------------------------------------------------------------------
// Exact replace
// ---------------------------------------------------------------------------

func TestExecute_ExactReplace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	audit := &auditRecorderMock{}

	p := f.plan(t,
		rec("Sleep", "Room Temperature", roomContent),
		rec("Sleep", "Safe Sleep Position", positionContent),
		rec("Bathing", "First Bath", "Wait until the cord stump falls off."),
	)
	res := f.executor(f.store, audit).Execute(context.Background(), p, Options{Mode: domain.SyncModeExact})

	require.Empty(t, res.Errors)
	assert.Equal(t, 1, res.ChaptersCreated)
	assert.Equal(t, 1, res.ChaptersDeleted)
	assert.Equal(t, 3, res.LessonsCreated)
	assert.Equal(t, 3, res.LessonsDeleted)
	assert.Equal(t, 3, res.DependentsDeleted)
	assert.Zero(t, res.ProgressCarried)

	require.NoError(t, f.store.CheckIntegrity())
	assert.Empty(t, f.store.Progress())
	assert.Empty(t, f.store.ContentDetails())
	_, ok := f.store.Lesson(f.room.ID)
	assert.False(t, ok, "replaced lessons get new ids")

	var titles []string
	for _, ch := range f.store.Chapters(f.course.ID) {
		titles = append(titles, ch.Title)
	}
	assert.Equal(t, []string{"Sleep", "Bathing"}, titles)
	assert.Equal(t, []string{"Room Temperature", "Safe Sleep Position"}, lessonTitles(t, f.store, f.sleep.ID))

	assert.Equal(t, 3, audit.count(domain.TableLessons, domain.AuditActionDelete))
	assert.Equal(t, 3, audit.count(domain.TableLessons, domain.AuditActionCreate))
	assert.Equal(t, 1, audit.count(domain.TableChapters, domain.AuditActionDelete))
	assert.Equal(t, 1, audit.count(domain.TableChapters, domain.AuditActionCreate))
}

func TestExecute_ExactPreservesProgress(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// Room Temperature moves from Sleep to Feeding.
	p := f.plan(t,
		rec("Sleep", "Safe Sleep Position", positionContent),
		rec("Feeding", "Room Temperature", roomContent),
		rec("Feeding", "Latching", latchingContent),
	)
	res := f.executor(f.store, &auditRecorderMock{}).Execute(context.Background(), p, Options{
		Mode:             domain.SyncModeExact,
		PreserveProgress: true,
	})

	require.Empty(t, res.Errors)
	assert.Equal(t, 2, res.ProgressCarried)
	require.NoError(t, f.store.CheckIntegrity())
	assert.Empty(t, f.store.ContentDetails(), "content details are always removed")

	progress := f.store.Progress()
	require.Len(t, progress, 2)
	var carried []string
	for _, row := range progress {
		l, ok := f.store.Lesson(row.LessonID)
		require.True(t, ok)
		assert.Equal(t, f.feeding.ID, l.ChapterID)
		assert.Equal(t, f.user, row.UserID)
		carried = append(carried, l.Title)
		if l.Title == "Room Temperature" {
			assert.True(t, row.Completed)
		}
	}
	assert.ElementsMatch(t, []string{"Room Temperature", "Latching"}, carried)
}

func TestExecute_ExactRollsBackFailedChapterOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	p := f.plan(t,
		rec("Sleep", "Room Temperature", roomContent),
		rec("Sleep", "Safe Sleep Position", positionContent),
		rec("Feeding", "Latching", "Bring the baby to the breast, not the breast to the baby."),
	)
	repo := failingStore{Store: f.store, failTitle: "Safe Sleep Position"}
	res := f.executor(repo, &auditRecorderMock{}).Execute(context.Background(), p, Options{Mode: domain.SyncModeExact})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "replace", res.Errors[0].Op)
	assert.Equal(t, "Sleep", res.Errors[0].Chapter)

	// Sleep untouched.
	_, ok := f.store.Lesson(f.room.ID)
	assert.True(t, ok)
	_, ok = f.store.Lesson(f.position.ID)
	assert.True(t, ok)

	// Feeding replaced.
	_, ok = f.store.Lesson(f.latching.ID)
	assert.False(t, ok)
	assert.Equal(t, []string{"Latching"}, lessonTitles(t, f.store, f.feeding.ID))

	require.NoError(t, f.store.CheckIntegrity())
	progress := f.store.Progress()
	require.Len(t, progress, 1)
	assert.Equal(t, f.room.ID, progress[0].LessonID)
	assert.Len(t, f.store.ContentDetails(), 1)
}

func TestExecute_ExactClearsLessonsAddedAfterPlan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	p := f.plan(t,
		rec("Sleep", "Room Temperature", roomContent),
		rec("Sleep", "Safe Sleep Position", positionContent),
	)

	// Written by someone else between planning and execution.
	lateSleep := domain.Lesson{ID: uuid.New(), ChapterID: f.sleep.ID, CourseID: f.course.ID, Title: "Nap Schedule", Content: "Two naps a day by six months.", OrderIndex: 3}
	lateFeeding := domain.Lesson{ID: uuid.New(), ChapterID: f.feeding.ID, CourseID: f.course.ID, Title: "Bottle Prep", Content: "Sterilise bottles before the first use.", OrderIndex: 2}
	f.store.PutLesson(lateSleep)
	f.store.PutLesson(lateFeeding)
	f.store.PutProgress(domain.LessonProgress{ID: uuid.New(), LessonID: lateSleep.ID, UserID: f.user})
	f.store.PutContentDetail(domain.LessonContentDetail{ID: uuid.New(), LessonID: lateFeeding.ID, Kind: "summary", Body: "Boil for five minutes."})

	res := f.executor(f.store, &auditRecorderMock{}).Execute(context.Background(), p, Options{Mode: domain.SyncModeExact})

	require.Empty(t, res.Errors)
	assert.Equal(t, 1, res.ChaptersDeleted)
	assert.Equal(t, 5, res.DependentsDeleted)

	require.NoError(t, f.store.CheckIntegrity())
	_, ok := f.store.Lesson(lateSleep.ID)
	assert.False(t, ok)
	_, ok = f.store.Lesson(lateFeeding.ID)
	assert.False(t, ok)
	assert.Empty(t, f.store.Progress())
	assert.Empty(t, f.store.ContentDetails())
	assert.Equal(t, []string{"Room Temperature", "Safe Sleep Position"}, lessonTitles(t, f.store, f.sleep.ID))
}

func TestExecute_ExactWarnsWhenOwningChapterFailed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// Latching moves to Sleep, but the Sleep transaction fails.
	p := f.plan(t,
		rec("Sleep", "Room Temperature", roomContent),
		rec("Sleep", "Safe Sleep Position", positionContent),
		rec("Sleep", "Latching", latchingContent),
		rec("Feeding", "Burping", "Hold the baby upright against your shoulder."),
	)
	var logs bytes.Buffer
	repo := failingStore{Store: f.store, failTitle: "Safe Sleep Position"}
	e := New(slog.New(slog.NewTextHandler(&logs, nil)), repo, f.store.TxManager(), &auditRecorderMock{})
	res := e.Execute(context.Background(), p, Options{Mode: domain.SyncModeExact, PreserveProgress: true})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Sleep", res.Errors[0].Chapter)
	assert.Zero(t, res.ProgressCarried)

	// Feeding still replaced its own lessons; latching progress went with it.
	_, ok := f.store.Lesson(f.latching.ID)
	assert.False(t, ok)
	assert.Equal(t, []string{"Burping"}, lessonTitles(t, f.store, f.feeding.ID))
	require.NoError(t, f.store.CheckIntegrity())
	progress := f.store.Progress()
	require.Len(t, progress, 1)
	assert.Equal(t, f.room.ID, progress[0].LessonID)

	out := logs.String()
	assert.Contains(t, out, "progress rows could not be carried over")
	assert.Contains(t, out, "chapter=Feeding")
	assert.Contains(t, out, "rows=1")
}

func TestExecute_StopsWhenContextDone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := f.plan(t, rec("Sleep", "Room Temperature", "New text for the room lesson."))
	res := f.executor(f.store, &auditRecorderMock{}).Execute(ctx, p, Options{Mode: domain.SyncModeExact})

	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], context.Canceled)
	got, _ := f.store.Lesson(f.room.ID)
	assert.Equal(t, roomContent, got.Content)
}
