// Package refresher renews credentials that are about to expire.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-sspm/connector-hub/internal/connections"
	"github.com/open-sspm/connector-hub/internal/metrics"
	"github.com/open-sspm/connector-hub/internal/store/pgstore"
	"golang.org/x/sync/errgroup"
)

const (
	lockScope = "refresh"
	lockName  = "credentials"

	defaultWindow    = 10 * time.Minute
	defaultBatchSize = 100
	defaultWorkers   = 4
)

// Source lists connections whose credentials expire before a cutoff.
type Source interface {
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]connections.Connection, error)
}

// Refresher renews one connection's credential.
type Refresher interface {
	Refresh(ctx context.Context, connectionID int64) error
}

// Locker serializes sweeps across replicas. A nil Locker runs unlocked.
type Locker interface {
	TryAcquire(ctx context.Context, scope, name string) (pgstore.Lock, bool, error)
}

// Runner performs refresh sweeps.
type Runner struct {
	Source    Source
	Refresher Refresher
	Locker    Locker

	// Window is how far ahead of expiry a credential becomes eligible.
	Window    time.Duration
	BatchSize int
	Workers   int

	Now func() time.Time
}

// Result summarizes one sweep.
type Result struct {
	Skipped   bool
	Attempted int
	Failed    int
}

// RunOnce refreshes every eligible connection. Individual refresh failures are
// logged and joined into the returned error; they never stop the sweep.
func (r *Runner) RunOnce(ctx context.Context) (Result, error) {
	if r == nil || r.Source == nil || r.Refresher == nil {
		return Result{}, errors.New("refresher is not configured")
	}

	if r.Locker != nil {
		lock, ok, err := r.Locker.TryAcquire(ctx, lockScope, lockName)
		if err != nil {
			return Result{}, fmt.Errorf("acquire refresh lock: %w", err)
		}
		if !ok {
			slog.Debug("refresh sweep skipped, lock held elsewhere")
			return Result{Skipped: true}, nil
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("release refresh lock failed", "err", err)
			}
		}()
	}

	start := time.Now()
	defer func() {
		metrics.RefreshSweepDuration.Observe(time.Since(start).Seconds())
	}()

	cutoff := r.now().Add(r.window())
	due, err := r.Source.ListExpiring(ctx, cutoff, r.batchSize())
	if err != nil {
		return Result{}, fmt.Errorf("list expiring connections: %w", err)
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(r.workers())
	for _, conn := range due {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := r.Refresher.Refresh(ctx, conn.ID); err != nil {
				slog.Warn("credential refresh failed", "connection_id", conn.ID, "connector", conn.ConnectorKey, "err", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("connection %d: %w", conn.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Attempted: len(due), Failed: len(errs)}
	if res.Attempted > 0 {
		slog.Info("refresh sweep finished", "attempted", res.Attempted, "failed", res.Failed)
	}
	return res, errors.Join(errs...)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) window() time.Duration {
	if r.Window > 0 {
		return r.Window
	}
	return defaultWindow
}

func (r *Runner) batchSize() int {
	if r.BatchSize > 0 {
		return r.BatchSize
	}
	return defaultBatchSize
}

func (r *Runner) workers() int {
	if r.Workers > 0 {
		return r.Workers
	}
	return defaultWorkers
}
