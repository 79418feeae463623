package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestScheduler(t *testing.T, dir *fakeDirectory, opts SchedulerOptions) (*Scheduler, *observer.ObservedLogs) {
	t.Helper()
	engine, _, _ := newTestEngine(t, dir, Options{})
	core, logs := observer.New(zapcore.DebugLevel)
	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}
	s := NewScheduler(engine, opts, zap.New(core))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, logs
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("kc-alice", "alice", "admin")
	s, _ := newTestScheduler(t, dir, SchedulerOptions{})

	_, ok := s.LastRun()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		_, ok := s.LastRun()
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	run, _ := s.LastRun()
	assert.Equal(t, TriggerStartup, run.Trigger)
	assert.Equal(t, 1, run.Created)

	assert.Error(t, s.Start(context.Background()), "second Start is rejected")
}

func TestScheduler_TriggerSyncNow(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("kc-alice", "alice", "admin")
	s, _ := newTestScheduler(t, dir, SchedulerOptions{})

	run, err := s.TriggerSyncNow(context.Background())
	require.NoError(t, err)
	require.NoError(t, run.Err)
	assert.Equal(t, TriggerManual, run.Trigger)
	assert.Equal(t, 1, run.Created)

	last, ok := s.LastRun()
	require.True(t, ok)
	assert.Equal(t, run.ID, last.ID)
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_OnRunHook(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("kc-alice", "alice", "admin")

	var hooked []SyncRun
	s, _ := newTestScheduler(t, dir, SchedulerOptions{
		OnRun: func(_ context.Context, run SyncRun) { hooked = append(hooked, run) },
	})

	run, err := s.TriggerSyncNow(context.Background())
	require.NoError(t, err)
	require.Len(t, hooked, 1)
	assert.Equal(t, run.ID, hooked[0].ID)
}

func TestScheduler_OnRunSkippedWhenRunInterrupted(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("kc-alice", "alice", "admin")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir.onList = func(context.Context) { cancel() }

	var hooked int
	s, _ := newTestScheduler(t, dir, SchedulerOptions{
		OnRun: func(context.Context, SyncRun) { hooked++ },
	})

	_, err := s.TriggerSyncNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, hooked)

	_, ok := s.LastRun()
	assert.True(t, ok, "interrupted run is still recorded")
}

func TestScheduler_RunsNeverOverlap(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("kc-alice", "alice")

	var inFlight, maxInFlight atomic.Int32
	dir.onList = func(context.Context) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	s, _ := newTestScheduler(t, dir, SchedulerOptions{})
	require.NoError(t, s.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := s.TriggerSyncNow(context.Background())
			assert.NoError(t, err)
			assert.NoError(t, run.Err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.GreaterOrEqual(t, dir.tokenCalls.Load(), int32(4))
}

func TestScheduler_NoRunAfterStop(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("kc-alice", "alice")
	s, _ := newTestScheduler(t, dir, SchedulerOptions{})

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()), "Stop is idempotent")

	_, err := s.TriggerSyncNow(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerStopped)
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerStopped)
	assert.Equal(t, int32(0), dir.tokenCalls.Load())
}

func TestScheduler_StopAbandonsInFlightRun(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("kc-alice", "alice", "admin")
	dir.addUser("kc-bob", "bob")

	blocked := make(chan struct{})
	var once sync.Once
	dir.onRoles = func(ctx context.Context, _ string) error {
		once.Do(func() { close(blocked) })
		<-ctx.Done()
		return ctx.Err()
	}
	s, _ := newTestScheduler(t, dir, SchedulerOptions{})

	type result struct {
		run SyncRun
		err error
	}
	done := make(chan result, 1)
	go func() {
		run, err := s.TriggerSyncNow(context.Background())
		done <- result{run, err}
	}()

	select {
	case <-blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("sync never reached the role fetch")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	res := <-done
	require.NoError(t, res.err)
	assert.ErrorIs(t, res.run.Err, context.Canceled)
	assert.Zero(t, res.run.Created)
}

func TestScheduler_RecoversFromPanic(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("kc-alice", "alice")
	dir.panicOnToken = true
	s, _ := newTestScheduler(t, dir, SchedulerOptions{})

	run, err := s.TriggerSyncNow(context.Background())
	require.NoError(t, err)
	require.Error(t, run.Err)
	assert.Contains(t, run.Err.Error(), "panicked")
	assert.Equal(t, StateIdle, s.State())

	dir.panicOnToken = false
	run, err = s.TriggerSyncNow(context.Background())
	require.NoError(t, err)
	require.NoError(t, run.Err)
	assert.Equal(t, 1, run.Created)
}

type fakeSessions struct {
	deleted int64
	err     error
	calls   atomic.Int32
}

func (f *fakeSessions) DeleteExpired(context.Context) (int64, error) {
	f.calls.Add(1)
	return f.deleted, f.err
}

func TestScheduler_CleanupSessions(t *testing.T) {
	sessions := &fakeSessions{deleted: 3}
	s, logs := newTestScheduler(t, newFakeDirectory(), SchedulerOptions{Sessions: sessions})

	n, err := s.CleanupSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, logs.FilterMessage("expired sessions deleted").Len())

	sessions.err = errors.New("db locked")
	_, err = s.CleanupSessions(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("session cleanup failed").Len())
}
