package coursesync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/adapter/memstore"
	"github.com/heartmarshall/coursesync/internal/app/coursesync/dedup"
	"github.com/heartmarshall/coursesync/internal/app/coursesync/execute"
	"github.com/heartmarshall/coursesync/internal/app/coursesync/match"
	"github.com/heartmarshall/coursesync/internal/app/coursesync/plan"
	"github.com/heartmarshall/coursesync/internal/app/coursesync/source"
	"github.com/heartmarshall/coursesync/internal/app/coursesync/verify"
	"github.com/heartmarshall/coursesync/internal/domain"
	"github.com/heartmarshall/coursesync/internal/service/recovery"
	"github.com/heartmarshall/coursesync/pkg/ctxutil"
)

// Phase names in execution order.
const (
	PhaseParse    = "parse"
	PhaseMatch    = "match"
	PhasePlan     = "plan"
	PhaseSnapshot = "snapshot"
	PhaseExecute  = "execute"
	PhaseDedup    = "dedup"
	PhaseVerify   = "verify"
)

// PhaseResult holds the outcome of a single pipeline phase.
type PhaseResult struct {
	Inserted int
	Updated  int
	Deleted  int
	Skipped  int
	Errors   int
	Duration time.Duration
	Err      error
}

// Report is everything one run produced.
type Report struct {
	RunID  uuid.UUID
	Course domain.Course
	Mode   domain.SyncMode
	DryRun bool

	Parse     *source.Result
	Plan      *domain.Plan
	Snapshots []domain.BackupSnapshot
	Exec      *execute.Result
	// Dedup is nil when deduplication was skipped or failed.
	Dedup  *dedup.Result
	Verify *verify.Report

	Phases   []string
	Results  map[string]PhaseResult
	Duration time.Duration
}

// Clean reports whether the run finished without any error, duplicate or
// verification discrepancy.
func (r *Report) Clean() bool {
	for _, res := range r.Results {
		if res.Err != nil || res.Errors > 0 {
			return false
		}
	}
	if r.Dedup != nil && r.Dedup.Remaining > 0 {
		return false
	}
	return r.Verify == nil || r.Verify.OK()
}

// Pipeline orchestrates one sync run.
type Pipeline struct {
	log     *slog.Logger
	live    Backend
	cfg     Config
	results map[string]PhaseResult
	phases  []string
}

// NewPipeline creates a new Pipeline writing through live. Dry runs read
// from live and write to an in-memory copy.
func NewPipeline(log *slog.Logger, live Backend, cfg Config) *Pipeline {
	if cfg.Mode == "" {
		cfg.Mode = domain.SyncModeMerge
	}
	return &Pipeline{
		log:     log.With("component", "pipeline"),
		live:    live,
		cfg:     cfg,
		results: make(map[string]PhaseResult),
	}
}

// Results returns phase results after Run completes.
func (p *Pipeline) Results() map[string]PhaseResult {
	return p.results
}

// HasErrors returns true if any phase recorded errors.
func (p *Pipeline) HasErrors() bool {
	for _, r := range p.results {
		if r.Err != nil || r.Errors > 0 {
			return true
		}
	}
	return false
}

// Run executes the pipeline. It returns an error only for fatal conditions:
// invalid settings, an unreadable source, an unknown course, a failed tree
// load or a failed snapshot before an exact run. Everything else is
// reported.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	rep := &Report{RunID: uuid.New(), Mode: p.cfg.Mode, DryRun: p.cfg.DryRun, Results: p.results}
	ctx = ctxutil.WithRunID(ctx, rep.RunID)
	ctx = ctxutil.WithChangeSource(ctx, string(domain.ChangeSourceBulkSync))
	log := p.log.With(slog.String("run_id", rep.RunID.String()))

	// Step 1: Parse the source. Nothing is touched when this fails.
	err := p.phase(log, PhaseParse, func() PhaseResult {
		parsed, err := source.Parse(p.cfg.SourcePath, source.Options{MinContentLength: p.cfg.MinContentLength})
		if err != nil {
			return PhaseResult{Err: err}
		}
		rep.Parse = parsed
		return PhaseResult{Inserted: parsed.Stats.Accepted, Skipped: parsed.Stats.Rejected + parsed.Stats.Malformed}
	})
	if err != nil {
		return rep, fmt.Errorf("parse source: %w", err)
	}

	// Step 2: Resolve the course and pick the backend.
	course, err := p.live.Repo.FindCourse(ctx, p.cfg.CourseRef)
	if err != nil {
		return rep, fmt.Errorf("find course %q: %w", p.cfg.CourseRef, err)
	}
	rep.Course = course
	log = log.With(slog.String("course", course.Slug))

	be := p.live
	if p.cfg.DryRun {
		if be, err = p.dryRunBackend(ctx, course); err != nil {
			return rep, err
		}
		log.Info("dry run: writes go to an in-memory copy")
	}

	tree, err := be.Repo.ListChaptersAndLessons(ctx, course.ID)
	if err != nil {
		return rep, fmt.Errorf("load course tree: %w", err)
	}

	// Step 3: Match records to persisted lessons.
	var matches []domain.MatchResult
	err = p.phase(log, PhaseMatch, func() PhaseResult {
		topics := match.DefaultTopics()
		if p.cfg.KeywordsPath != "" {
			t, err := match.LoadTopics(p.cfg.KeywordsPath)
			if err != nil {
				return PhaseResult{Err: err}
			}
			topics = t
		}
		m := match.New(match.Options{
			FallbackEnabled:      p.cfg.FallbackEnabled,
			MinContainmentLength: p.cfg.MinContainmentLength,
			MinKeywordScore:      p.cfg.MinKeywordScore,
			Topics:               topics,
		})
		matches = m.Match(rep.Parse.Records, tree)

		var res PhaseResult
		for _, mr := range matches {
			if mr.IsCreate() {
				res.Skipped++
			} else {
				res.Updated++
			}
		}
		return res
	})
	if err != nil {
		return rep, fmt.Errorf("load keyword table: %w", err)
	}

	// Step 4: Plan.
	_ = p.phase(log, PhasePlan, func() PhaseResult {
		rep.Plan = plan.Build(course, tree, rep.Parse.Records, matches)
		return PhaseResult{
			Inserted: rep.Plan.CountOps(domain.LessonOpCreate),
			Updated:  rep.Plan.CountOps(domain.LessonOpUpdate),
			Skipped:  rep.Plan.CountOps(domain.LessonOpUnchanged),
			Deleted:  len(rep.Plan.DriftOf(domain.DriftMissingFromSource)),
		}
	})

	// Step 5: Back up every table an exact run may touch.
	if p.cfg.Mode.IsDestructive() {
		err = p.phase(log, PhaseSnapshot, func() PhaseResult {
			snaps, err := be.Recovery.SnapshotTables(ctx, domain.BackupTables, fmt.Sprintf("before exact sync of %s", course.Slug))
			rep.Snapshots = append(rep.Snapshots, snaps...)
			return PhaseResult{Inserted: len(snaps), Err: err}
		})
		if err != nil {
			return rep, fmt.Errorf("backup before exact sync: %w", err)
		}
	}

	// Step 6: Execute.
	_ = p.phase(log, PhaseExecute, func() PhaseResult {
		ex := execute.New(log, be.Repo, be.Tx, be.Recovery)
		rep.Exec = ex.Execute(ctx, rep.Plan, execute.Options{Mode: p.cfg.Mode, PreserveProgress: p.cfg.PreserveProgress})
		return PhaseResult{
			Inserted: rep.Exec.ChaptersCreated + rep.Exec.LessonsCreated,
			Updated:  rep.Exec.LessonsUpdated,
			Deleted:  rep.Exec.ChaptersDeleted + rep.Exec.LessonsDeleted,
			Skipped:  rep.Exec.LessonsUnchanged,
			Errors:   len(rep.Exec.Errors),
		}
	})

	// Step 7: Deduplicate the whole corpus.
	if !p.cfg.SkipDedup {
		_ = p.phase(log, PhaseDedup, func() PhaseResult {
			d := dedup.New(log, be.Repo, be.Recovery, be.Recovery, p.cfg.FingerprintPrefix)
			res, err := d.Run(ctx, dedup.Options{Snapshot: p.cfg.SnapshotBeforeDedup})
			if err != nil {
				return PhaseResult{Err: err}
			}
			rep.Dedup = res
			if res.Snapshot != nil {
				rep.Snapshots = append(rep.Snapshots, *res.Snapshot)
			}
			return PhaseResult{Updated: len(res.Rewrites), Errors: len(res.Errors) + res.Remaining}
		})
	}

	// Step 8: Verify. Advisory only.
	_ = p.phase(log, PhaseVerify, func() PhaseResult {
		vr, err := verify.New(be.Repo).Verify(ctx, course.ID, rep.Parse.Records)
		if err != nil {
			return PhaseResult{Err: err}
		}
		rep.Verify = vr
		return PhaseResult{Inserted: vr.Perfect, Skipped: vr.Extra, Errors: vr.ContentMismatch + vr.Missing}
	})

	rep.Phases = p.phases
	rep.Duration = time.Since(start)
	log.Info("pipeline completed",
		slog.Int("phases_run", len(p.phases)),
		slog.Bool("dry_run", p.cfg.DryRun),
		slog.Duration("duration", rep.Duration),
	)
	return rep, nil
}

// phase runs fn, records its result and returns its error.
func (p *Pipeline) phase(log *slog.Logger, name string, fn func() PhaseResult) error {
	start := time.Now()
	log.Info("starting phase", slog.String("phase", name))

	result := fn()
	result.Duration = time.Since(start)
	p.results[name] = result
	p.phases = append(p.phases, name)

	if result.Err != nil {
		log.Warn("phase failed",
			slog.String("phase", name),
			slog.String("error", result.Err.Error()),
			slog.Duration("duration", result.Duration),
		)
		return result.Err
	}
	log.Info("phase completed",
		slog.String("phase", name),
		slog.Int("inserted", result.Inserted),
		slog.Int("updated", result.Updated),
		slog.Int("deleted", result.Deleted),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)
	return nil
}

// dryRunBackend copies the course and the corpus into memory.
func (p *Pipeline) dryRunBackend(ctx context.Context, course domain.Course) (Backend, error) {
	store, err := memstore.Load(ctx, p.live.Repo, course)
	if err != nil {
		return Backend{}, fmt.Errorf("dry run: %w", err)
	}
	tx := store.TxManager()
	return Backend{
		Repo:     store,
		Tx:       tx,
		Recovery: recovery.NewManager(p.log, store.Backups(), store.Audit(), tx),
	}, nil
}
