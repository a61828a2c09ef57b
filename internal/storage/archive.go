package storage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose"

	"github.com/SirClappington/wheelsched/internal/domain"
	_ "github.com/SirClappington/wheelsched/internal/storage/migrations"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Archive is a write-only audit trail of lifecycle events in Postgres. The
// scheduler never reads it back.
type Archive struct{ db execer }

func NewArchive(db execer) *Archive { return &Archive{db} }

// Connect opens a pool and applies the archive migrations.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if err := Migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate runs the registered goose migrations over a database/sql handle
// borrowed from the pool.
func Migrate(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "goose dialect")
	}
	// migrations are compiled in; the directory only matters for .sql files
	if err := goose.Up(db, "."); err != nil {
		return errors.Wrap(err, "migrate archive")
	}
	return nil
}

func (a *Archive) Name() string { return "postgres" }

func (a *Archive) Write(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return errors.Wrapf(err, "encode event %s", evt.ID)
	}
	var jobID *string
	if v, ok := evt.Payload["jobId"].(string); ok {
		jobID = &v
	}
	_, err = a.db.Exec(ctx, `insert into job_events(id, type, job_id, payload, at)
values ($1, $2, $3, $4::jsonb, $5)
on conflict (id) do nothing`,
		evt.ID, string(evt.Type), jobID, string(payload), evt.At,
	)
	return errors.Wrapf(err, "archive event %s", evt.ID)
}
