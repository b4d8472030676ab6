package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrScheduleExists   = errors.New("schedule already exists")
	ErrScheduleNotFound = errors.New("schedule not found")
)

const (
	ScheduleRunStatusRunning        = "running"
	ScheduleRunStatusCompleted      = "completed"
	ScheduleRunStatusFailed         = "failed"
	ScheduleRunStatusSkippedOverlap = "skipped_overlap"
)

// Schedule is a persisted cron schedule that plans a scenario.
type Schedule struct {
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Cron     string          `json:"cron"`
	Enabled  bool            `json:"enabled"`
	Scenario json.RawMessage `json:"scenario"`

	NextRunAt  time.Time  `json:"next_run_at"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastRunID  string     `json:"last_run_id,omitempty"`
	LastResult string     `json:"last_result,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduleStore provides CRUD and due-schedule queries.
type ScheduleStore interface {
	ListSchedules(ctx context.Context) ([]Schedule, error)
	GetSchedule(ctx context.Context, id string) (Schedule, bool, error)
	CreateSchedule(ctx context.Context, schedule Schedule) error
	UpdateSchedule(ctx context.Context, schedule Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
	ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]Schedule, error)
}
