package dedup

import (
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
	"github.com/heartmarshall/coursesync/internal/domain"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

var _ snapshotter = &snapshotterMock{}

type snapshotterMock struct {
	SnapshotFunc func(ctx context.Context, table, reason string) (domain.BackupSnapshot, error)

	calls struct {
		Snapshot []struct {
			Table  string
			Reason string
		}
	}
	lockSnapshot sync.RWMutex
}

func (mock *snapshotterMock) Snapshot(ctx context.Context, table, reason string) (domain.BackupSnapshot, error) {
	if mock.SnapshotFunc == nil {
		panic("snapshotterMock.SnapshotFunc: method is nil but snapshotter.Snapshot was just called")
	}
	mock.lockSnapshot.Lock()
	mock.calls.Snapshot = append(mock.calls.Snapshot, struct {
		Table  string
		Reason string
	}{Table: table, Reason: reason})
	mock.lockSnapshot.Unlock()
	return mock.SnapshotFunc(ctx, table, reason)
}

func (mock *snapshotterMock) SnapshotCalls() []struct {
	Table  string
	Reason string
} {
	mock.lockSnapshot.RLock()
	defer mock.lockSnapshot.RUnlock()
	return mock.calls.Snapshot
}

var _ auditRecorder = &auditRecorderMock{}

type auditRecorderMock struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *auditRecorderMock) Record(_ context.Context, e domain.AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

const roomContent = "Keep the nursery between 16 and 20 degrees at night."

type corpus struct {
	store *memstore.Store
	// keeper, nursery, other, second share roomContent.
	keeper, nursery, other, second domain.Lesson
	unique, empty                  domain.Lesson
}

func newCorpus(t *testing.T) *corpus {
	t.Helper()
	s := memstore.New()
	c := &corpus{store: s}

	courseA := domain.Course{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000a"), Slug: "newborn-care"}
	courseB := domain.Course{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000b"), Slug: "toddler-care"}
	s.PutCourse(courseA)
	s.PutCourse(courseB)

	chapter := func(course domain.Course, title string, order int) domain.Chapter {
		ch := domain.Chapter{ID: uuid.New(), CourseID: course.ID, Title: title, OrderIndex: order}
		s.PutChapter(ch)
		return ch
	}
	lesson := func(ch domain.Chapter, title, content string, order int) domain.Lesson {
		l := domain.Lesson{ID: uuid.New(), ChapterID: ch.ID, CourseID: ch.CourseID, Title: title, Content: content, OrderIndex: order}
		s.PutLesson(l)
		return l
	}

	sleepA := chapter(courseA, "Sleep", 1)
	nurseryA := chapter(courseA, "Nursery", 2)
	sleepB := chapter(courseB, "Sleep", 1)

	c.keeper = lesson(sleepA, "Room Temperature", roomContent, 1)
	c.unique = lesson(sleepA, "Safe Sleep Position", "Always on the back, in a clear cot.", 2)
	c.empty = lesson(sleepA, "Placeholder", "   ", 3)
	// Formatting differences do not hide a duplicate.
	c.nursery = lesson(nurseryA, "Room Temperature", "keep the nursery  between 16 and 20\r\ndegrees at night.", 1)
	c.other = lesson(sleepB, "Room Temperature", roomContent, 1)
	c.second = lesson(sleepB, "Room Temperature", roomContent, 2)
	return c
}

func newDeduplicator(c *corpus, snaps snapshotter, audit auditRecorder) *Deduplicator {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), c.store, snaps, audit, 0)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestFingerprint(t *testing.T) {
	t.Parallel()

	base := Fingerprint("Keep it cool.", DefaultFingerprintPrefix)
	assert.Equal(t, base, Fingerprint("  KEEP it\n cool. ", DefaultFingerprintPrefix))
	assert.NotEqual(t, base, Fingerprint("Keep it warm.", DefaultFingerprintPrefix))

	// Only the prefix counts.
	assert.Equal(t, Fingerprint("0123456789 tail one", 10), Fingerprint("0123456789 tail two", 10))
	assert.Equal(t, Fingerprint("ééééé", 3), Fingerprint("éééxx", 3))
}

func TestRun_RewritesDuplicates(t *testing.T) {
	t.Parallel()
	c := newCorpus(t)
	audit := &auditRecorderMock{}
	snaps := &snapshotterMock{SnapshotFunc: func(_ context.Context, table, reason string) (domain.BackupSnapshot, error) {
		return domain.BackupSnapshot{ID: uuid.New(), SourceTable: table, Reason: reason}, nil
	}}
	ctx := context.Background()

	res, err := newDeduplicator(c, snaps, audit).Run(ctx, Options{Snapshot: true})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Scanned)
	assert.Equal(t, 1, res.SkippedEmpty)
	assert.Equal(t, 1, res.Groups)
	assert.Zero(t, res.Remaining)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Rewrites, 3)

	require.Len(t, snaps.SnapshotCalls(), 1)
	assert.Equal(t, domain.TableLessons, snaps.SnapshotCalls()[0].Table)
	require.NotNil(t, res.Snapshot)

	got := func(id uuid.UUID) string {
		l, ok := c.store.Lesson(id)
		require.True(t, ok)
		return l.Content
	}
	assert.Equal(t, roomContent, got(c.keeper.ID), "first lesson keeps its content")
	assert.Equal(t, domain.DisambiguationHeading("Room Temperature")+c.nursery.Content, got(c.nursery.ID))
	assert.Equal(t, domain.DisambiguationHeading("Room Temperature", "Sleep")+roomContent, got(c.other.ID))
	assert.Equal(t, domain.DisambiguationHeading("Room Temperature", "Sleep", "2")+roomContent, got(c.second.ID))
	assert.Equal(t, "   ", got(c.empty.ID))

	for _, rw := range res.Rewrites {
		assert.Equal(t, c.keeper.ID, rw.KeptID)
	}

	require.Len(t, audit.entries, 3)
	for _, e := range audit.entries {
		assert.Equal(t, domain.AuditActionUpdate, e.Action)
		assert.Equal(t, domain.ChangeSourceDedup, e.Source)
		assert.Equal(t, domain.TableLessons, e.TableName)
	}

	// A second pass finds nothing.
	again, err := newDeduplicator(c, snaps, audit).Run(ctx, Options{Snapshot: true})
	require.NoError(t, err)
	assert.Zero(t, again.Groups)
	assert.Empty(t, again.Rewrites)
	assert.Len(t, snaps.SnapshotCalls(), 1, "no snapshot without rewrites")
}

func TestRun_DryRun(t *testing.T) {
	t.Parallel()
	c := newCorpus(t)
	audit := &auditRecorderMock{}
	snaps := &snapshotterMock{}

	res, err := newDeduplicator(c, snaps, audit).Run(context.Background(), Options{DryRun: true, Snapshot: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Len(t, res.Rewrites, 3)
	assert.Zero(t, res.Remaining)
	assert.Empty(t, audit.entries)
	assert.Empty(t, snaps.SnapshotCalls())

	l, _ := c.store.Lesson(c.other.ID)
	assert.Equal(t, roomContent, l.Content)
}

func TestRun_SnapshotFailureStopsRun(t *testing.T) {
	t.Parallel()
	c := newCorpus(t)
	snaps := &snapshotterMock{SnapshotFunc: func(context.Context, string, string) (domain.BackupSnapshot, error) {
		return domain.BackupSnapshot{}, errors.New("disk full")
	}}

	_, err := newDeduplicator(c, snaps, &auditRecorderMock{}).Run(context.Background(), Options{Snapshot: true})
	require.Error(t, err)

	l, _ := c.store.Lesson(c.other.ID)
	assert.Equal(t, roomContent, l.Content)
}

func TestRun_NoDuplicates(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	course := domain.Course{ID: uuid.New(), Slug: "c"}
	ch := domain.Chapter{ID: uuid.New(), CourseID: course.ID, Title: "Sleep", OrderIndex: 1}
	s.PutCourse(course)
	s.PutChapter(ch)
	s.PutLesson(domain.Lesson{ID: uuid.New(), ChapterID: ch.ID, CourseID: course.ID, Title: "A", Content: "First text.", OrderIndex: 1})
	s.PutLesson(domain.Lesson{ID: uuid.New(), ChapterID: ch.ID, CourseID: course.ID, Title: "B", Content: "Second text.", OrderIndex: 2})

	d := New(slog.New(slog.NewTextHandler(io.Discard, nil)), s, &snapshotterMock{}, &auditRecorderMock{}, 0)
	res, err := d.Run(context.Background(), Options{Snapshot: true})
	require.NoError(t, err)
	assert.Zero(t, res.Groups)
	assert.Empty(t, res.Rewrites)
	assert.Nil(t, res.Snapshot)
}
