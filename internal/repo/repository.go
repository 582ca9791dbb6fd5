// Package repo is the item repository: the only entry point that reads or
// changes item state. Every write validates, persists the row, appends
// history and re-synchronizes the search index in one SQLite transaction.
package repo

import (
	"context"
	"crypto/rand"
	"database/sql"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/hpungsan/grimoire/internal/config"
	"github.com/hpungsan/grimoire/internal/db"
	"github.com/hpungsan/grimoire/internal/errors"
	"github.com/hpungsan/grimoire/internal/metrics"
)

// Repository owns the item store, history ledger and search index.
type Repository struct {
	db      *sql.DB
	owned   bool
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// mu serializes writes in this process; SQLite's file lock covers the rest.
	mu      sync.Mutex
	entropy io.Reader
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Repository) {
		r.log = l.With().Str("component", "repository").Logger()
	}
}

// WithMetrics sets the metrics sink. The default uses a private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Repository) {
		r.metrics = m
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// Open initializes the database in baseDir and returns a repository that
// owns it. Close releases the handle.
func Open(ctx context.Context, baseDir string, cfg *config.Config, opts ...Option) (*Repository, error) {
	database, err := db.Init(baseDir)
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	db.ConfigurePool(database, cfg)

	r := New(database, opts...)
	r.owned = true

	if err := r.checkIndexOnOpen(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an already initialized database handle. The caller keeps
// ownership of the handle; Close does not close it.
func New(database *sql.DB, opts ...Option) *Repository {
	r := &Repository{
		db:      database,
		log:     zerolog.Nop(),
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	return r
}

// Close releases the database handle if the repository opened it.
func (r *Repository) Close() error {
	if !r.owned {
		return nil
	}
	return r.db.Close()
}

// DB exposes the handle for collaborators that keep their own tables (settings).
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Metrics returns the repository's metrics sink.
func (r *Repository) Metrics() *metrics.Metrics {
	return r.metrics
}

// withTx runs fn in one transaction under the writer lock.
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runTx(ctx, fn)
}

// runTx runs fn in one transaction. Callers must hold r.mu.
// Any error rolls back every change fn made; errors that are not already
// structured become STORAGE_FAILURE.
func (r *Repository) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageFailure(err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewStorageFailure(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStorageFailure(err)
	}
	return nil
}

// nowMillis returns the current time as Unix milliseconds.
func (r *Repository) nowMillis() int64 {
	return r.now().UnixMilli()
}

// newID generates a ULID. Callers must hold r.mu (the entropy source is not safe for concurrent use).
func (r *Repository) newID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(r.now()), r.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// observe records metrics and a structured log line for one operation.
func (r *Repository) observe(op, id string, start time.Time, err error) {
	d := time.Since(start)

	status := "ok"
	var event *zerolog.Event
	switch gErr, ok := errors.As(err); {
	case err == nil:
		event = r.log.Debug()
	case ok && gErr.Status < 500:
		status = string(gErr.Code)
		event = r.log.Warn().Str("code", status)
	case ok:
		status = string(gErr.Code)
		event = r.log.Error().Str("code", status).AnErr("cause", gErr.Cause)
	default:
		status = "error"
		event = r.log.Error().Err(err)
	}

	r.metrics.RecordOperation(op, status, d)

	event.Str("operation", op).
		Str("item_id", id).
		Dur("duration", d).
		Msg("repository operation")
}
