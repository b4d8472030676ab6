package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const scheduleSQLiteSchema = `
CREATE TABLE IF NOT EXISTS plan_schedules (
	id TEXT PRIMARY KEY,
	name TEXT,
	cron_expr TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	scenario_json BLOB NOT NULL,
	next_run_at TEXT NOT NULL,
	last_run_at TEXT,
	last_run_id TEXT,
	last_result TEXT,
	last_status TEXT,
	last_error TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plan_schedules_due
ON plan_schedules(enabled, next_run_at);`

const scheduleColumns = `id, name, cron_expr, enabled, scenario_json, next_run_at, last_run_at, last_run_id, last_result, last_status, last_error, created_at, updated_at`

// SQLiteStoreConfig configures the SQLite schedule store.
type SQLiteStoreConfig struct {
	DSN string
}

// SQLiteStore persists plan schedules in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed schedule store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("schedule store sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("schedule sqlite store open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schedule sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec(scheduleSQLiteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schedule sqlite store create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+scheduleColumns+`
FROM plan_schedules
ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("schedule sqlite store list schedules: %w", err)
	}
	defer rows.Close()

	return scanSchedules(rows)
}

func (s *SQLiteStore) GetSchedule(ctx context.Context, id string) (Schedule, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+scheduleColumns+`
FROM plan_schedules
WHERE id = ?`, id)

	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Schedule{}, false, nil
		}
		return Schedule{}, false, err
	}
	return schedule, true, nil
}

func (s *SQLiteStore) CreateSchedule(ctx context.Context, schedule Schedule) error {
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	if schedule.UpdatedAt.IsZero() {
		schedule.UpdatedAt = schedule.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO plan_schedules
	(`+scheduleColumns+`)
VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID,
		nullIfEmpty(schedule.Name),
		schedule.Cron,
		boolToInt(schedule.Enabled),
		scenarioBytes(schedule.Scenario),
		schedule.NextRunAt.UTC().Format(time.RFC3339Nano),
		formatNullableTime(schedule.LastRunAt),
		nullIfEmpty(schedule.LastRunID),
		nullIfEmpty(schedule.LastResult),
		nullIfEmpty(schedule.LastStatus),
		nullIfEmpty(schedule.LastError),
		schedule.CreatedAt.UTC().Format(time.RFC3339Nano),
		schedule.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isScheduleSQLiteUniqueViolation(err) {
			return ErrScheduleExists
		}
		return fmt.Errorf("schedule sqlite store create schedule: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateSchedule(ctx context.Context, schedule Schedule) error {
	if schedule.UpdatedAt.IsZero() {
		schedule.UpdatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE plan_schedules
SET
	name = ?,
	cron_expr = ?,
	enabled = ?,
	scenario_json = ?,
	next_run_at = ?,
	last_run_at = ?,
	last_run_id = ?,
	last_result = ?,
	last_status = ?,
	last_error = ?,
	updated_at = ?
WHERE id = ?`,
		nullIfEmpty(schedule.Name),
		schedule.Cron,
		boolToInt(schedule.Enabled),
		scenarioBytes(schedule.Scenario),
		schedule.NextRunAt.UTC().Format(time.RFC3339Nano),
		formatNullableTime(schedule.LastRunAt),
		nullIfEmpty(schedule.LastRunID),
		nullIfEmpty(schedule.LastResult),
		nullIfEmpty(schedule.LastStatus),
		nullIfEmpty(schedule.LastError),
		schedule.UpdatedAt.UTC().Format(time.RFC3339Nano),
		schedule.ID,
	)
	if err != nil {
		return fmt.Errorf("schedule sqlite store update schedule: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule sqlite store update schedule affected rows: %w", err)
	}
	if affected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM plan_schedules
WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("schedule sqlite store delete schedule: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule sqlite store delete schedule affected rows: %w", err)
	}
	if affected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (s *SQLiteStore) ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]Schedule, error) {
	query := `
SELECT ` + scheduleColumns + `
FROM plan_schedules
WHERE enabled = 1 AND next_run_at <= ?
ORDER BY next_run_at ASC`
	args := []any{now.UTC().Format(time.RFC3339Nano)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("schedule sqlite store list due schedules: %w", err)
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type scheduleScanner interface {
	Scan(dest ...any) error
}

func scanSchedules(rows *sql.Rows) ([]Schedule, error) {
	var schedules []Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule sqlite store rows: %w", err)
	}
	return schedules, nil
}

func scanSchedule(scanner scheduleScanner) (Schedule, error) {
	var (
		id          string
		name        sql.NullString
		cronExpr    string
		enabledRaw  int
		scenarioRaw []byte
		nextRunAt   string
		lastRunAt   sql.NullString
		lastRunID   sql.NullString
		lastResult  sql.NullString
		lastStatus  sql.NullString
		lastError   sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := scanner.Scan(
		&id,
		&name,
		&cronExpr,
		&enabledRaw,
		&scenarioRaw,
		&nextRunAt,
		&lastRunAt,
		&lastRunID,
		&lastResult,
		&lastStatus,
		&lastError,
		&createdAt,
		&updatedAt,
	); err != nil {
		return Schedule{}, err
	}

	next, err := time.Parse(time.RFC3339Nano, nextRunAt)
	if err != nil {
		return Schedule{}, fmt.Errorf("schedule sqlite store parse next_run_at: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Schedule{}, fmt.Errorf("schedule sqlite store parse created_at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Schedule{}, fmt.Errorf("schedule sqlite store parse updated_at: %w", err)
	}

	var lastRunPtr *time.Time
	if lastRunAt.Valid && strings.TrimSpace(lastRunAt.String) != "" {
		parsed, err := time.Parse(time.RFC3339Nano, lastRunAt.String)
		if err != nil {
			return Schedule{}, fmt.Errorf("schedule sqlite store parse last_run_at: %w", err)
		}
		lastRunPtr = &parsed
	}

	return Schedule{
		ID:         id,
		Name:       name.String,
		Cron:       cronExpr,
		Enabled:    enabledRaw == 1,
		Scenario:   scenarioRaw,
		NextRunAt:  next,
		LastRunAt:  lastRunPtr,
		LastRunID:  lastRunID.String,
		LastResult: lastResult.String,
		LastStatus: lastStatus.String,
		LastError:  lastError.String,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}, nil
}

func isScheduleSQLiteUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: plan_schedules.id")
}

func scenarioBytes(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte(`{}`)
	}
	return raw
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatNullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

var _ ScheduleStore = (*SQLiteStore)(nil)
