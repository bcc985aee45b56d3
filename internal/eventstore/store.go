package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	_ "modernc.org/sqlite"
)

// Job is a recorded stitch request. Only metadata is kept, never audio.
type Job struct {
	ID         int64
	RequestID  string
	Transport  string
	Texts      int
	Segments   int
	DurationMS int64
	Bytes      int
	Completed  bool
	ErrorKind  string
	Error      string
	CreatedAt  time.Time
}

// Store wraps a SQLite-backed job log.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config. Ephemeral mode keeps
// nothing and never touches disk.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL UNIQUE,
    transport TEXT,
    texts INTEGER NOT NULL,
    segments INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    bytes INTEGER NOT NULL,
    completed INTEGER NOT NULL,
    error_kind TEXT,
    error TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Report records the outcome of one stitch request.
func (s *Store) Report(ctx context.Context, status protocol.StitchStatus) error {
	return s.AppendJob(ctx, Job{
		RequestID:  status.RequestID,
		Transport:  status.Transport,
		Texts:      status.Texts,
		Segments:   status.Segments,
		DurationMS: status.DurationMS,
		Bytes:      status.Bytes,
		Completed:  status.Completed,
		ErrorKind:  status.ErrorKind,
		Error:      status.Error,
		CreatedAt:  status.Timestamp,
	})
}

// AppendJob writes a job into the store.
func (s *Store) AppendJob(ctx context.Context, job Job) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if job.RequestID == "" {
		return errors.New("job request id must not be empty")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(request_id, transport, texts, segments, duration_ms, bytes, completed, error_kind, error, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.RequestID, job.Transport, job.Texts, job.Segments, job.DurationMS, job.Bytes, job.Completed, job.ErrorKind, job.Error, job.CreatedAt.UTC())
	return err
}

// ListJobs retrieves up to limit jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, transport, texts, segments, duration_ms, bytes, completed, error_kind, error, created_at
		 FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var transport, errorKind, errMsg sql.NullString
		if err := rows.Scan(&j.ID, &j.RequestID, &transport, &j.Texts, &j.Segments, &j.DurationMS, &j.Bytes, &j.Completed, &errorKind, &errMsg, &j.CreatedAt); err != nil {
			return nil, err
		}
		j.Transport = transport.String
		j.ErrorKind = errorKind.String
		j.Error = errMsg.String
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM jobs WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxJobs > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM jobs WHERE id IN (
			SELECT id FROM jobs ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxJobs)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
