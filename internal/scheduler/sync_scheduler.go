// Package scheduler runs the periodic jobs of the daemon: a drain pass on a
// fixed interval as a backstop for missed connectivity transitions, and the
// daily activity log cleanup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/caresync/internal/syncengine"
)

const (
	DefaultInterval        = 5 * time.Minute
	DefaultCleanupSchedule = "@daily"
)

// Drainer runs one pass over the mutation queue.
type Drainer interface {
	Drain(ctx context.Context) (syncengine.Report, error)
}

type OnlineChecker interface {
	Online() bool
}

// CleanupFunc enqueues the activity log cleanup.
type CleanupFunc func(ctx context.Context) error

type Config struct {
	Enabled  bool
	Interval time.Duration

	// CleanupSchedule is a cron expression or descriptor. Empty means daily.
	CleanupSchedule string
}

// SyncScheduler triggers drain passes on a schedule.
type SyncScheduler struct {
	drainer Drainer
	online  OnlineChecker
	cleanup CleanupFunc
	cfg     Config

	cron           *cron.Cron
	entryID        cron.EntryID
	cleanupEntryID cron.EntryID
	mu             sync.RWMutex
	isRunning      bool
	cancelFunc     context.CancelFunc
	jobs           sync.WaitGroup
}

func NewSyncScheduler(cfg Config, drainer Drainer, online OnlineChecker) *SyncScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CleanupSchedule == "" {
		cfg.CleanupSchedule = DefaultCleanupSchedule
	}

	return &SyncScheduler{
		drainer: drainer,
		online:  online,
		cfg:     cfg,
		cron:    newCron(),
	}
}

func newCron() *cron.Cron {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.PrintfLogger(log.Default()))),
	)
}

// WithCleanup registers the activity log cleanup job.
func (s *SyncScheduler) WithCleanup(fn CleanupFunc) *SyncScheduler {
	s.cleanup = fn
	return s
}

// Schedule returns the cron spec used for drain passes.
func (s *SyncScheduler) Schedule() string {
	return fmt.Sprintf("@every %s", s.cfg.Interval)
}

// Start begins the scheduler if periodic sync is enabled.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if !s.cfg.Enabled {
		log.Printf("Sync scheduler: disabled")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.Schedule(), s.runSync)
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.entryID = entryID

	if s.cleanup != nil {
		if err := ValidateSchedule(s.cfg.CleanupSchedule); err != nil {
			s.cron.Remove(entryID)
			return fmt.Errorf("invalid cleanup schedule '%s': %w", s.cfg.CleanupSchedule, err)
		}
		cleanupID, err := s.cron.AddFunc(s.cfg.CleanupSchedule, s.runCleanup)
		if err != nil {
			s.cron.Remove(entryID)
			return fmt.Errorf("failed to schedule cleanup job: %w", err)
		}
		s.cleanupEntryID = cleanupID
	}

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Sync scheduler: started with schedule '%s'. Next run: %v", s.Schedule(), s.nextRun(s.entryID))

	go func() {
		<-cancelCtx.Done()
		// Only a cancelled parent stops the scheduler; Stop cancels cancelCtx itself.
		if ctx.Err() != nil {
			s.Stop()
		}
	}()

	return nil
}

// Stop waits for a running job to finish and stops the scheduler.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.jobs.Wait()

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.cron.Remove(s.entryID)
	if s.cleanupEntryID != 0 {
		s.cron.Remove(s.cleanupEntryID)
	}
	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("Sync scheduler: stopped")
}

// RunNow triggers an immediate pass in the background.
func (s *SyncScheduler) RunNow() {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		s.runSync()
	}()
}

// Wait blocks until passes started by RunNow have finished.
func (s *SyncScheduler) Wait() {
	s.jobs.Wait()
}

func (s *SyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRunTime returns when the next scheduled pass will occur.
func (s *SyncScheduler) NextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	return s.nextRun(s.entryID)
}

func (s *SyncScheduler) nextRun(id cron.EntryID) *time.Time {
	entry := s.cron.Entry(id)
	if !entry.Valid() || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

func (s *SyncScheduler) runSync() {
	if !s.online.Online() {
		log.Printf("Sync scheduler: skipped (offline)")
		return
	}

	report, err := s.drainer.Drain(context.Background())
	switch {
	case errors.Is(err, syncengine.ErrDrainInProgress):
		log.Printf("Sync scheduler: skipped (pass already running)")
	case errors.Is(err, syncengine.ErrOffline):
		log.Printf("Sync scheduler: skipped (offline)")
	case err != nil:
		log.Printf("Sync scheduler: drain failed: %v", err)
	case report.Total > 0:
		log.Printf("Sync scheduler: pass synced %d of %d entries", report.Synced, report.Total)
	}
}

func (s *SyncScheduler) runCleanup() {
	if err := s.cleanup(context.Background()); err != nil {
		log.Printf("Sync scheduler: failed to queue activity cleanup: %v", err)
	}
}

// ValidateSchedule checks a cron expression or descriptor.
func ValidateSchedule(spec string) error {
	if spec == "" {
		return errors.New("schedule is empty")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	_, err := parser.Parse(spec)
	return err
}
