package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/givlyn/backupd/internal/backup"
	"github.com/givlyn/backupd/internal/db"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrRunNotFound = errors.New("backup run not found")
	ErrNotOpen     = errors.New("history journal not open")
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 500
)

// startedAtLayout is fixed width so started_at sorts chronologically as text
const startedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS backup_runs (
    id TEXT PRIMARY KEY,
    run_trigger TEXT NOT NULL,
    target TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL, -- fixed width nanoseconds, UTC
    duration_ms INTEGER NOT NULL,
    base_commit TEXT NOT NULL DEFAULT '',
    commit_id TEXT NOT NULL DEFAULT '',
    total INTEGER NOT NULL DEFAULT 0,
    reused INTEGER NOT NULL DEFAULT 0,
    uploaded INTEGER NOT NULL DEFAULT 0,
    modified INTEGER NOT NULL DEFAULT 0,
    added INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    dropped INTEGER NOT NULL DEFAULT 0,
    unlisted INTEGER NOT NULL DEFAULT 0,
    bytes_uploaded INTEGER NOT NULL DEFAULT 0,
    failures TEXT NOT NULL DEFAULT '[]',
    error TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS idx_backup_runs_started_at ON backup_runs(started_at)`,
}

type runRow struct {
	ID            string `db:"id"`
	Trigger       string `db:"run_trigger"`
	Target        string `db:"target"`
	Status        string `db:"status"`
	StartedAt     string `db:"started_at"`
	DurationMs    int64  `db:"duration_ms"`
	BaseCommit    string `db:"base_commit"`
	CommitID      string `db:"commit_id"`
	Total         int    `db:"total"`
	Reused        int    `db:"reused"`
	Uploaded      int    `db:"uploaded"`
	Modified      int    `db:"modified"`
	Added         int    `db:"added"`
	Failed        int    `db:"failed"`
	Dropped       int    `db:"dropped"`
	Unlisted      int    `db:"unlisted"`
	BytesUploaded int64  `db:"bytes_uploaded"`
	Failures      string `db:"failures"`
	Error         string `db:"error"`
}

const selectRuns = `SELECT id, run_trigger, target, status, started_at, duration_ms, base_commit, commit_id,
	total, reused, uploaded, modified, added, failed, dropped, unlisted, bytes_uploaded, failures, error
	FROM backup_runs`

// Journal keeps finished backup runs in sqlite
type Journal struct {
	db   *sqlx.DB
	path string
}

func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

func (j *Journal) Open(ctx context.Context) error {
	if j.db != nil {
		return fmt.Errorf("history journal already open")
	}

	conn, err := db.Open(db.WithPath(j.path))
	if err != nil {
		return fmt.Errorf("failed to open history journal: %w", err)
	}

	if err := db.Migrate(ctx, conn, schema...); err != nil {
		conn.Close()
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}

	j.db = conn
	slog.Debug("history journal open", "path", j.path)
	return nil
}

func (j *Journal) Close() error {
	if j.db == nil {
		return ErrNotOpen
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Record stores report. Recording the same run id twice replaces the row.
func (j *Journal) Record(ctx context.Context, report *backup.RunReport) error {
	if j.db == nil {
		return ErrNotOpen
	}

	row, err := toRow(report)
	if err != nil {
		return err
	}

	query := `INSERT OR REPLACE INTO backup_runs (id, run_trigger, target, status, started_at, duration_ms,
		base_commit, commit_id, total, reused, uploaded, modified, added, failed, dropped, unlisted, bytes_uploaded, failures, error)
		VALUES (:id, :run_trigger, :target, :status, :started_at, :duration_ms,
		:base_commit, :commit_id, :total, :reused, :uploaded, :modified, :added, :failed, :dropped, :unlisted, :bytes_uploaded, :failures, :error)`
	if _, err := j.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to record run %s: %w", report.ID, err)
	}
	return nil
}

// List returns the most recent runs first. limit is clamped to [1, MaxListLimit].
func (j *Journal) List(ctx context.Context, limit int) ([]*backup.RunReport, error) {
	if j.db == nil {
		return nil, ErrNotOpen
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	var rows []runRow
	if err := j.db.SelectContext(ctx, &rows, selectRuns+" ORDER BY started_at DESC LIMIT ?", limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	reports := make([]*backup.RunReport, 0, len(rows))
	for i := range rows {
		report, err := rows[i].toReport()
		if err != nil {
			slog.Warn("history skip corrupt row", "id", rows[i].ID, "error", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (j *Journal) Get(ctx context.Context, id uuid.UUID) (*backup.RunReport, error) {
	if j.db == nil {
		return nil, ErrNotOpen
	}

	var row runRow
	if err := j.db.GetContext(ctx, &row, selectRuns+" WHERE id = ?", id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return row.toReport()
}

// Last returns the most recent run, or ErrRunNotFound
func (j *Journal) Last(ctx context.Context) (*backup.RunReport, error) {
	runs, err := j.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return runs[0], nil
}

func toRow(r *backup.RunReport) (*runRow, error) {
	failures := r.Failures
	if failures == nil {
		failures = []backup.FileFailure{}
	}
	encoded, err := json.Marshal(failures)
	if err != nil {
		return nil, fmt.Errorf("encode failures: %w", err)
	}

	return &runRow{
		ID:            r.ID.String(),
		Trigger:       r.Trigger,
		Target:        r.Target,
		Status:        string(r.Status),
		StartedAt:     r.StartedAt.UTC().Format(startedAtLayout),
		DurationMs:    r.Duration.Milliseconds(),
		BaseCommit:    string(r.BaseCommit),
		CommitID:      string(r.Commit),
		Total:         r.Counts.Total,
		Reused:        r.Counts.Reused,
		Uploaded:      r.Counts.Uploaded,
		Modified:      r.Counts.Modified,
		Added:         r.Counts.Added,
		Failed:        r.Counts.Failed,
		Dropped:       r.Counts.Dropped,
		Unlisted:      r.Counts.Unlisted,
		BytesUploaded: r.Counts.BytesUploaded,
		Failures:      string(encoded),
		Error:         r.Error,
	}, nil
}

func (row *runRow) toReport() (*backup.RunReport, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}

	startedAt, err := time.Parse(startedAtLayout, row.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}

	var failures []backup.FileFailure
	if err := json.Unmarshal([]byte(row.Failures), &failures); err != nil {
		return nil, fmt.Errorf("decode failures: %w", err)
	}
	if len(failures) == 0 {
		failures = nil
	}

	return &backup.RunReport{
		ID:         id,
		Trigger:    row.Trigger,
		Target:     row.Target,
		Status:     backup.RunStatus(row.Status),
		StartedAt:  startedAt,
		Duration:   time.Duration(row.DurationMs) * time.Millisecond,
		BaseCommit: backup.ContentID(row.BaseCommit),
		Commit:     backup.ContentID(row.CommitID),
		Counts: backup.Counts{
			Total:         row.Total,
			Reused:        row.Reused,
			Uploaded:      row.Uploaded,
			Modified:      row.Modified,
			Added:         row.Added,
			Failed:        row.Failed,
			Dropped:       row.Dropped,
			Unlisted:      row.Unlisted,
			BytesUploaded: row.BytesUploaded,
		},
		Failures: failures,
		Error:    row.Error,
	}, nil
}

var _ backup.RunRecorder = (*Journal)(nil)
