package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/coursesync/internal/adapter/postgres"
	"github.com/heartmarshall/coursesync/internal/adapter/postgres/audit"
	"github.com/heartmarshall/coursesync/internal/adapter/postgres/backup"
	"github.com/heartmarshall/coursesync/internal/adapter/postgres/course"
	"github.com/heartmarshall/coursesync/internal/app/coursesync"
	"github.com/heartmarshall/coursesync/internal/config"
	"github.com/heartmarshall/coursesync/internal/service/recovery"
)

var _ coursesync.CourseRepo = (*course.Repo)(nil)

// Deps holds the wired collaborators shared by every command.
type Deps struct {
	Log      *slog.Logger
	Pool     *pgxpool.Pool
	Courses  *course.Repo
	Tx       *postgres.TxManager
	Recovery *recovery.Manager
}

// Connect opens the database pool and builds repositories and services on
// top of it. The caller must Close the result.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	logger.Info("connected to database",
		slog.String("version", BuildVersion()),
		slog.Int("max_conns", int(cfg.Database.MaxConns)),
	)

	tx := postgres.NewTxManager(pool)
	return &Deps{
		Log:      logger,
		Pool:     pool,
		Courses:  course.New(pool),
		Tx:       tx,
		Recovery: recovery.NewManager(logger, backup.New(pool), audit.New(pool), tx),
	}, nil
}

// Backend returns the live backend for the sync pipeline.
func (d *Deps) Backend() coursesync.Backend {
	return coursesync.Backend{Repo: d.Courses, Tx: d.Tx, Recovery: d.Recovery}
}

// Close releases the pool.
func (d *Deps) Close() {
	d.Pool.Close()
}
