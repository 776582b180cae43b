package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ragvault/config"
	"ragvault/internal/logging"
)

const (
	JobSnapshot  = "snapshot"
	JobRetention = "retention"
)

// ScheduledJob is a task run every Interval.
type ScheduledJob struct {
	Name      string
	Interval  time.Duration
	NextRun   time.Time
	LastRun   time.Time
	LastError string

	run func(ctx context.Context) error
}

// Scheduler wakes every tick and runs the jobs whose NextRun has passed.
// A job can fire up to one tick late.
type Scheduler struct {
	tick   time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	jobs    []*ScheduledJob
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewScheduler(tick time.Duration, logger *slog.Logger) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		tick:   tick,
		logger: logging.OrDefault(logger),
		now:    time.Now,
	}
}

// NewBackupScheduler schedules snapshots and retention sweeps for m.
func NewBackupScheduler(m *BackupManager, cfg config.BackupConfig, logger *slog.Logger) *Scheduler {
	s := NewScheduler(cfg.Tick, logger)
	s.Add(JobSnapshot, cfg.SnapshotInterval, func(ctx context.Context) error {
		_, err := m.Snapshot()
		return err
	})
	s.Add(JobRetention, cfg.SweepInterval, func(ctx context.Context) error {
		_, err := m.RetentionSweep(cfg.KeepDays)
		return err
	})
	return s
}

// Add registers a job whose first run is one interval from now.
func (s *Scheduler) Add(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &ScheduledJob{
		Name:     name,
		Interval: interval,
		NextRun:  s.now().Add(interval),
		run:      run,
	})
}

// Jobs returns a copy of the job table.
func (s *Scheduler) Jobs() []ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledJob, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = *j
		out[i].run = nil
	}
	return out
}

// Start runs the scheduler loop and blocks until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.logger.Info("scheduler started", "tick", s.tick, "jobs", len(s.Jobs()))

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.RunPending(ctx, s.now())
		}
	}
}

// Stop signals the loop and waits for it, including any job in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunPending runs every job due at now and returns how many ran. Job errors
// are logged and recorded on the job; they never stop the loop.
func (s *Scheduler) RunPending(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	var due []*ScheduledJob
	for _, j := range s.jobs {
		if j.Interval > 0 && !now.Before(j.NextRun) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		err := j.run(ctx)

		s.mu.Lock()
		j.LastRun = now
		j.NextRun = now.Add(j.Interval)
		if err != nil {
			j.LastError = err.Error()
		} else {
			j.LastError = ""
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("scheduled job failed", "job", j.Name, "error", err)
		} else {
			s.logger.Debug("scheduled job finished", "job", j.Name)
		}
	}
	return len(due)
}
