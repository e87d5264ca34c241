package refresher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/open-sspm/connector-hub/internal/connections"
	"github.com/open-sspm/connector-hub/internal/store/pgstore"
)

type fakeSource struct {
	conns  []connections.Connection
	err    error
	before time.Time
	limit  int
}

func (f *fakeSource) ListExpiring(_ context.Context, before time.Time, limit int) ([]connections.Connection, error) {
	f.before = before
	f.limit = limit
	return f.conns, f.err
}

type refreshFunc func(ctx context.Context, id int64) error

func (f refreshFunc) Refresh(ctx context.Context, id int64) error { return f(ctx, id) }

type fakeLock struct{ released *atomic.Int32 }

func (l fakeLock) Release(context.Context) error {
	l.released.Add(1)
	return nil
}

type fakeLocker struct {
	held     bool
	err      error
	released atomic.Int32
}

func (f *fakeLocker) TryAcquire(context.Context, string, string) (pgstore.Lock, bool, error) {
	if f.err != nil || f.held {
		return nil, false, f.err
	}
	return fakeLock{released: &f.released}, true, nil
}

func conns(ids ...int64) []connections.Connection {
	out := make([]connections.Connection, 0, len(ids))
	for _, id := range ids {
		out = append(out, connections.Connection{ID: id, ConnectorKey: "jira", Status: connections.StatusActive})
	}
	return out
}

func TestRunOnceRefreshesEveryDueConnection(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{conns: conns(1, 2, 3, 4, 5)}
	locker := &fakeLocker{}

	var (
		mu        sync.Mutex
		refreshed []int64
		inFlight  atomic.Int32
		maxSeen   atomic.Int32
	)
	r := &Runner{
		Source: src,
		Refresher: refreshFunc(func(_ context.Context, id int64) error {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			refreshed = append(refreshed, id)
			mu.Unlock()
			return nil
		}),
		Locker:    locker,
		Window:    15 * time.Minute,
		BatchSize: 50,
		Workers:   2,
		Now:       func() time.Time { return now },
	}

	res, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if res.Attempted != 5 || res.Failed != 0 || res.Skipped {
		t.Fatalf("RunOnce() = %+v", res)
	}
	if len(refreshed) != 5 {
		t.Fatalf("refreshed = %v, want 5 ids", refreshed)
	}
	if got := maxSeen.Load(); got > 2 {
		t.Fatalf("max concurrent refreshes = %d, want <= 2", got)
	}
	if !src.before.Equal(now.Add(15*time.Minute)) || src.limit != 50 {
		t.Fatalf("ListExpiring(before=%v, limit=%d)", src.before, src.limit)
	}
	if locker.released.Load() != 1 {
		t.Fatalf("lock released %d times, want 1", locker.released.Load())
	}
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("provider down")
	var calls atomic.Int32
	r := &Runner{
		Source: &fakeSource{conns: conns(1, 2, 3)},
		Refresher: refreshFunc(func(_ context.Context, id int64) error {
			calls.Add(1)
			if id == 2 {
				return boom
			}
			return nil
		}),
	}

	res, err := r.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("RunOnce() error = %v, want %v", err, boom)
	}
	if res.Attempted != 3 || res.Failed != 1 || calls.Load() != 3 {
		t.Fatalf("RunOnce() = %+v, calls = %d", res, calls.Load())
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	src := &fakeSource{conns: conns(1)}
	r := &Runner{
		Source:    src,
		Refresher: refreshFunc(func(context.Context, int64) error { calls.Add(1); return nil }),
		Locker:    &fakeLocker{held: true},
	}

	res, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if !res.Skipped || calls.Load() != 0 || src.limit != 0 {
		t.Fatalf("RunOnce() = %+v, calls = %d", res, calls.Load())
	}
}

func TestRunOnceErrors(t *testing.T) {
	t.Parallel()

	noop := refreshFunc(func(context.Context, int64) error { return nil })
	tests := []struct {
		name string
		r    *Runner
	}{
		{name: "unconfigured", r: &Runner{}},
		{name: "lock error", r: &Runner{Source: &fakeSource{}, Refresher: noop, Locker: &fakeLocker{err: errors.New("db down")}}},
		{name: "list error", r: &Runner{Source: &fakeSource{err: errors.New("db down")}, Refresher: noop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := tt.r.RunOnce(context.Background()); err == nil {
				t.Fatalf("RunOnce() expected error")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	r := &Runner{}
	if r.window() != defaultWindow || r.batchSize() != defaultBatchSize || r.workers() != defaultWorkers {
		t.Fatalf("defaults = %v %d %d", r.window(), r.batchSize(), r.workers())
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	s := &Scheduler{
		Runner: &Runner{
			Source: &fakeSource{conns: conns(1)},
			Refresher: refreshFunc(func(context.Context, int64) error {
				if calls.Add(1) >= 2 {
					cancel()
				}
				return nil
			}),
		},
		Interval: time.Millisecond,
	}

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler.Run did not return after cancel")
	}
	if calls.Load() < 2 {
		t.Fatalf("calls = %d, want at least 2", calls.Load())
	}
}
