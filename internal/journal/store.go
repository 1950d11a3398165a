package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/m-aliabbas/whisper-at-server/internal/config"
	"github.com/m-aliabbas/whisper-at-server/internal/engine"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ErrNotFound indicates the requested job has no journal entry.
var ErrNotFound = errors.New("journal: job not found")

// Store persists job lifecycle records in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "journal.db"))
}

// OpenPath opens the journal database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// migrate applies any embedded schema files not yet recorded, oldest first.
// The version row is claimed with INSERT OR IGNORE so a file runs at most
// once per database.
func (s *Store) migrate(ctx context.Context) error {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, name := range names {
		version := strings.TrimSuffix(path.Base(name), ".sql")
		claimed, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)", version)
		if err != nil {
			return fmt.Errorf("claim migration %s: %w", version, err)
		}
		affected, err := claimed.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim migration %s: %w", version, err)
		}
		if affected == 0 {
			continue
		}
		ddl, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, string(ddl)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// RecordQueued inserts a fresh entry for a job entering the queue.
func (s *Store) RecordQueued(ctx context.Context, id, sourceName string, params engine.Params, durationSeconds float64, sampleRate int, passThrough bool, submittedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (
            id, source_name, state, pass_through, sample_rate, duration_seconds,
            at_time_res, temperature, no_speech_threshold, submitted_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		nullableString(sourceName),
		"queued",
		boolToInt(passThrough),
		nullableInt(sampleRate),
		durationSeconds,
		params.AudioTaggingTimeResolution,
		params.Temperature,
		params.NoSpeechThreshold,
		submittedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", id, err)
	}
	return nil
}

// RecordStarted marks a job as running on the given model instance.
func (s *Store) RecordStarted(ctx context.Context, id string, instance int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = 'running', instance = ?, started_at = ? WHERE id = ?`,
		instance, now, id)
	if err != nil {
		return fmt.Errorf("mark job %s started: %w", id, err)
	}
	return nil
}

// RecordFinished closes out a job with its terminal state and timings.
func (s *Store) RecordFinished(ctx context.Context, id, state, errorKind string, queuedFor, ranFor time.Duration) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, error_kind = ?, finished_at = ?, queued_ms = ?, inference_ms = ? WHERE id = ?`,
		state,
		nullableString(errorKind),
		now,
		queuedFor.Milliseconds(),
		ranFor.Milliseconds(),
		id)
	if err != nil {
		return fmt.Errorf("mark job %s finished: %w", id, err)
	}
	return nil
}

const entryColumns = "id, source_name, state, error_kind, pass_through, sample_rate, duration_seconds, at_time_res, temperature, no_speech_threshold, instance, submitted_at, started_at, finished_at, queued_ms, inference_ms"

// GetByID fetches a single journal entry.
func (s *Store) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM jobs WHERE id = ?", id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return entry, nil
}

// Recent lists the newest entries first, capped at limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM jobs ORDER BY submitted_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Summarize returns counts grouped by terminal and live states.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(1) FROM jobs GROUP BY state")
	if err != nil {
		return Summary{}, fmt.Errorf("summarize jobs: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return Summary{}, err
		}
		summary.Total += count
		switch state {
		case "queued":
			summary.Queued += count
		case "running":
			summary.Running += count
		case "done":
			summary.Done += count
		case "failed":
			summary.Failed += count
		case "canceled":
			summary.Canceled += count
		}
	}
	return summary, rows.Err()
}

// Prune deletes entries whose submission is older than the retention window.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE submitted_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return deleted, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id          string
		sourceName  sql.NullString
		state       string
		errorKind   sql.NullString
		passThrough sql.NullInt64
		sampleRate  sql.NullInt64
		duration    sql.NullFloat64
		atTimeRes   int
		temperature float64
		noSpeech    float64
		instance    int
		submittedAt sql.NullString
		startedAt   sql.NullString
		finishedAt  sql.NullString
		queuedMs    int64
		inferenceMs int64
	)

	if err := scanner.Scan(
		&id,
		&sourceName,
		&state,
		&errorKind,
		&passThrough,
		&sampleRate,
		&duration,
		&atTimeRes,
		&temperature,
		&noSpeech,
		&instance,
		&submittedAt,
		&startedAt,
		&finishedAt,
		&queuedMs,
		&inferenceMs,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:                id,
		SourceName:        sourceName.String,
		State:             state,
		ErrorKind:         errorKind.String,
		SampleRate:        int(sampleRate.Int64),
		DurationSeconds:   duration.Float64,
		AtTimeRes:         atTimeRes,
		Temperature:       temperature,
		NoSpeechThreshold: noSpeech,
		Instance:          instance,
		QueuedMillis:      queuedMs,
		InferenceMillis:   inferenceMs,
	}
	if passThrough.Valid {
		entry.PassThrough = passThrough.Int64 != 0
	}
	if submitted, err := parseTimeString(submittedAt.String); err == nil {
		entry.SubmittedAt = submitted
	}
	if startedAt.Valid {
		if started, err := parseTimeString(startedAt.String); err == nil {
			entry.StartedAt = &started
		}
	}
	if finishedAt.Valid {
		if finished, err := parseTimeString(finishedAt.String); err == nil {
			entry.FinishedAt = &finished
		}
	}
	return entry, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty time")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
