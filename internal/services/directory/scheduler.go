package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrSchedulerStopped is returned by TriggerSyncNow and Start after Stop.
var ErrSchedulerStopped = errors.New("directory sync scheduler stopped")

// State reports whether a run is in flight.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// SessionCleaner deletes expired sessions; repository.SessionRepository satisfies it.
type SessionCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Interval time.Duration // sync interval, rounded down to whole seconds by cron

	// Sessions, when set, gets an hourly expired-session sweep on the same cron.
	Sessions        SessionCleaner
	CleanupInterval time.Duration // default 1h

	// OnRun is called after every finished run, outside the run lock. Runs
	// interrupted by Stop or a cancelled caller context do not call it.
	OnRun func(ctx context.Context, run SyncRun)
}

// Scheduler runs the Engine at startup, on a fixed interval and on demand.
//
// Runs are serialized by runMu whichever path starts them, so two syncs
// never touch the local store at the same time. Stop cancels the shared run
// context; an in-flight run notices at its next cancellation check.
type Scheduler struct {
	engine *Engine
	opts   SchedulerOptions
	logger *zap.Logger
	cron   *cron.Cron

	runMu sync.Mutex

	mu      sync.Mutex
	state   State
	lastRun *SyncRun
	started bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(engine *Engine, opts SchedulerOptions, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval < time.Second {
		opts.Interval = time.Second
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Hour
	}

	cl := cronLogger{logger.Named("cron").Sugar()}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		engine: engine,
		opts:   opts,
		logger: logger,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.DelayIfStillRunning(cl)),
		),
		state:  StateIdle,
		runCtx: runCtx,
		cancel: cancel,
	}
}

// Start performs one sync in the background right away and then schedules
// the interval job. Cancelling ctx has the same effect on runs as Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runCtx.Err() != nil {
		return ErrSchedulerStopped
	}
	if s.started {
		return errors.New("directory sync scheduler already started")
	}
	s.started = true
	context.AfterFunc(ctx, s.cancel)

	s.cron.Schedule(cron.Every(s.opts.Interval), cron.FuncJob(func() {
		_, _ = s.runOnce(s.runCtx, TriggerInterval)
	}))
	if s.opts.Sessions != nil {
		s.cron.Schedule(cron.Every(s.opts.CleanupInterval), cron.FuncJob(func() {
			_, _ = s.CleanupSessions(s.runCtx)
		}))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.runOnce(s.runCtx, TriggerStartup)
	}()
	s.cron.Start()

	s.logger.Info("directory sync scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Bool("session_cleanup", s.opts.Sessions != nil))
	return nil
}

// Stop cancels the run context, stops the cron and waits for any in-flight
// run to return or for ctx to expire. Stop is idempotent.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.wg.Wait()
		// Wait out a TriggerSyncNow caller as well.
		s.runMu.Lock()
		s.runMu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("directory sync scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight sync: %w", ctx.Err())
	}
}

// TriggerSyncNow runs a sync synchronously, after any run already in flight.
// The run is cancelled by ctx or by Stop, whichever comes first.
func (s *Scheduler) TriggerSyncNow(ctx context.Context) (SyncRun, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.runCtx, cancel)
	defer stop()

	return s.runOnce(ctx, TriggerManual)
}

// LastRun returns the most recently finished run.
func (s *Scheduler) LastRun() (SyncRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return SyncRun{}, false
	}
	return *s.lastRun, true
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CleanupSessions deletes expired and revoked sessions.
func (s *Scheduler) CleanupSessions(ctx context.Context) (int64, error) {
	if s.opts.Sessions == nil {
		return 0, nil
	}
	n, err := s.opts.Sessions.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("session cleanup failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired sessions deleted", zap.Int64("count", n))
	}
	return n, nil
}

func (s *Scheduler) runOnce(ctx context.Context, trigger string) (SyncRun, error) {
	run, err := s.runLocked(ctx, trigger)
	// A run cut short by Stop or the caller skips the hook.
	if err == nil && ctx.Err() == nil && s.opts.OnRun != nil {
		s.opts.OnRun(ctx, run)
	}
	return run, err
}

func (s *Scheduler) runLocked(ctx context.Context, trigger string) (run SyncRun, err error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.runCtx.Err() != nil {
		return SyncRun{}, ErrSchedulerStopped
	}
	if err := ctx.Err(); err != nil {
		return SyncRun{}, err
	}

	s.setState(StateRunning)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("directory sync panicked", zap.Any("panic", r), zap.String("trigger", trigger))
			run.Err = fmt.Errorf("directory sync panicked: %v", r)
			if run.FinishedAt.IsZero() {
				run.FinishedAt = time.Now().UTC()
			}
		}
		s.mu.Lock()
		s.state = StateIdle
		s.lastRun = &run
		s.mu.Unlock()
	}()

	run = s.engine.runSync(ctx, trigger)
	return run, nil
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// cronLogger adapts zap to cron.Logger. Routine scheduling chatter goes to debug.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
