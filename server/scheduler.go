package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultSchedulePollInterval = 5 * time.Second
	defaultScheduleBatchLimit   = 100
)

// SchedulerConfig configures the background schedule runner.
type SchedulerConfig struct {
	Runner       *Server
	Store        ScheduleStore
	PollInterval time.Duration
	BatchLimit   int
	Now          func() time.Time
	Logger       *slog.Logger
}

// Scheduler periodically plans the scenarios of due schedules. A schedule
// whose previous run is still planning is skipped rather than run twice.
type Scheduler struct {
	runner       *Server
	store        ScheduleStore
	pollInterval time.Duration
	batchLimit   int
	now          func() time.Time
	logger       *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler instance.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, errors.New("scheduler runner is nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("scheduler store is nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultSchedulePollInterval
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultScheduleBatchLimit
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		runner:       cfg.Runner,
		store:        cfg.Store,
		pollInterval: cfg.PollInterval,
		batchLimit:   cfg.BatchLimit,
		now:          cfg.Now,
		logger:       cfg.Logger,
		active:       map[string]struct{}{},
	}, nil
}

// Start starts background polling. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() error {
	if s == nil {
		return errors.New("scheduler is nil")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.poll(loopCtx)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.poll(loopCtx)
			}
		}
	}()
	return nil
}

// Stop stops background polling and waits for in-flight runs, or for ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	finished := make(chan struct{})
	go func() {
		if done != nil {
			<-done
		}
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("schedule poll failed", "error", err)
	}
}

// RunOnce executes a single scheduler pass, starting every due schedule.
// The runs proceed in the background; Wait blocks until they are over.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s == nil || s.store == nil || s.runner == nil {
		return errors.New("scheduler is not configured")
	}

	now := s.now().UTC()
	due, err := s.store.ListDueSchedules(ctx, now, s.batchLimit)
	if err != nil {
		return err
	}

	for _, schedule := range due {
		s.processDueSchedule(ctx, schedule, now)
	}
	return nil
}

// Wait blocks until every run started by the scheduler has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) processDueSchedule(ctx context.Context, schedule Schedule, now time.Time) {
	if !schedule.Enabled {
		return
	}

	if s.isScheduleActive(schedule.ID) {
		s.markSkippedOverlap(ctx, schedule, now)
		return
	}

	nextRunAt, err := NextCronRun(schedule.Cron, now)
	if err != nil {
		s.markScheduleFailure(ctx, schedule, now, err)
		return
	}

	schedule.NextRunAt = nextRunAt
	schedule.LastStatus = ScheduleRunStatusRunning
	schedule.LastError = ""
	schedule.UpdatedAt = now
	if err := s.store.UpdateSchedule(ctx, schedule); err != nil {
		s.logger.Error("update schedule before run", "schedule_id", schedule.ID, "error", err)
		return
	}

	s.markScheduleActive(schedule.ID)
	s.wg.Add(1)
	go s.runSchedule(schedule, now)
}

func (s *Scheduler) runSchedule(schedule Schedule, scheduledAt time.Time) {
	defer s.wg.Done()
	defer s.unmarkScheduleActive(schedule.ID)

	s.logger.Info("running scheduled plan", "schedule_id", schedule.ID, "name", schedule.Name)
	resp, runErr := s.runner.runScheduledPlan(context.Background(), schedule, scheduledAt)

	finish := s.now().UTC()
	latest, found, err := s.store.GetSchedule(context.Background(), schedule.ID)
	if err != nil {
		s.logger.Error("load schedule after run", "schedule_id", schedule.ID, "error", err)
		return
	}
	if !found {
		return
	}

	latest.UpdatedAt = finish
	latest.LastRunAt = &finish
	if runErr != nil {
		latest.LastStatus = ScheduleRunStatusFailed
		latest.LastError = runErr.Error()
		latest.LastResult = ""
	} else {
		latest.LastStatus = ScheduleRunStatusCompleted
		latest.LastError = ""
		latest.LastRunID = resp.RunID
		latest.LastResult = resp.Result
	}

	if err := s.store.UpdateSchedule(context.Background(), latest); err != nil {
		s.logger.Error("persist schedule run result", "schedule_id", schedule.ID, "error", err)
	}
}

func (s *Scheduler) markSkippedOverlap(ctx context.Context, schedule Schedule, now time.Time) {
	nextRunAt, err := NextCronRun(schedule.Cron, now)
	if err != nil {
		s.markScheduleFailure(ctx, schedule, now, err)
		return
	}

	schedule.NextRunAt = nextRunAt
	schedule.LastStatus = ScheduleRunStatusSkippedOverlap
	schedule.LastError = "skipped because prior scheduled run is still active"
	schedule.UpdatedAt = now
	if err := s.store.UpdateSchedule(ctx, schedule); err != nil {
		s.logger.Error("persist overlap skip", "schedule_id", schedule.ID, "error", err)
	}
}

// markScheduleFailure records runErr. A schedule whose cron expression no
// longer parses is disabled so it stops coming up as due.
func (s *Scheduler) markScheduleFailure(ctx context.Context, schedule Schedule, now time.Time, runErr error) {
	if nextRunAt, err := NextCronRun(schedule.Cron, now); err == nil {
		schedule.NextRunAt = nextRunAt
	} else {
		schedule.Enabled = false
	}
	schedule.LastStatus = ScheduleRunStatusFailed
	schedule.LastError = runErr.Error()
	schedule.UpdatedAt = now
	if err := s.store.UpdateSchedule(ctx, schedule); err != nil {
		s.logger.Error("persist schedule failure", "schedule_id", schedule.ID, "error", err)
	}
}

func (s *Scheduler) isScheduleActive(scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[scheduleID]
	return ok
}

func (s *Scheduler) markScheduleActive(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[scheduleID] = struct{}{}
}

func (s *Scheduler) unmarkScheduleActive(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, scheduleID)
}
