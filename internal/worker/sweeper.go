// Package worker runs the periodic background passes: the alert sweep,
// the duplicate scan, and the state snapshot. Each pass is guarded by a
// distributed lock so that at most one instance performs it at a time.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/engine"
	"github.com/qntmpulse/relationship-engine/internal/pkg/distlock"
	"github.com/qntmpulse/relationship-engine/internal/pkg/logger"
)

// Sweeper drives the background passes over the relationship engine.
type Sweeper struct {
	eng         *engine.Engine
	redisClient *redis.Client // optional; nil falls back to PG advisory locks
	db          *sql.DB       // optional; only used for advisory lock fallback
	workerID    string

	sweepInterval    time.Duration
	scanInterval     time.Duration
	snapshotInterval time.Duration
	snapshotsEnabled bool

	// Stats
	sweepsRun      int64
	alertsCreated  int64
	groupsDetected int64
	snapshotsSaved int64
	errors         int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// SweeperStats is a point-in-time snapshot of the sweeper counters.
type SweeperStats struct {
	SweepsRun      int64 `json:"sweeps_run"`
	AlertsCreated  int64 `json:"alerts_created"`
	GroupsDetected int64 `json:"groups_detected"`
	SnapshotsSaved int64 `json:"snapshots_saved"`
	Errors         int64 `json:"errors"`
}

// NewSweeper creates a sweeper with cadences taken from the config.
func NewSweeper(eng *engine.Engine, cfg *config.Config) *Sweeper {
	hostname, _ := os.Hostname()
	return &Sweeper{
		eng:              eng,
		workerID:         fmt.Sprintf("sweeper-%s-%d", hostname, time.Now().UnixNano()%10000),
		sweepInterval:    cfg.Alerts.SweepInterval(),
		scanInterval:     cfg.Dedup.ScanInterval(),
		snapshotInterval: time.Duration(cfg.Snapshots.IntervalMinutes) * time.Minute,
		snapshotsEnabled: cfg.Snapshots.Enabled,
	}
}

// SetRedisClient sets the Redis client for distributed locking.
// If set, the sweeper uses Redis-based locks; otherwise it falls back
// to PostgreSQL advisory locks via SetDB.
func (s *Sweeper) SetRedisClient(client *redis.Client) {
	s.redisClient = client
}

// SetDB sets the database handle used for advisory lock fallback.
func (s *Sweeper) SetDB(db *sql.DB) {
	s.db = db
}

// Start launches the background loops.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	logger.Info("sweeper starting",
		"worker_id", s.workerID,
		"alert_sweep_interval", s.sweepInterval.String(),
		"duplicate_scan_interval", s.scanInterval.String())

	s.wg.Add(1)
	go s.loop(s.sweepInterval, s.runAlertSweep)

	s.wg.Add(1)
	go s.loop(s.scanInterval, s.runDuplicateScan)

	if s.snapshotsEnabled {
		s.wg.Add(1)
		go s.loop(s.snapshotInterval, s.runSnapshot)
	}

	return nil
}

// Stop gracefully stops the sweeper and waits for in-flight passes.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	logger.Info("sweeper stopped",
		"worker_id", s.workerID,
		"sweeps_run", atomic.LoadInt64(&s.sweepsRun),
		"alerts_created", atomic.LoadInt64(&s.alertsCreated),
		"errors", atomic.LoadInt64(&s.errors))
}

// Stats returns the current counters.
func (s *Sweeper) Stats() SweeperStats {
	return SweeperStats{
		SweepsRun:      atomic.LoadInt64(&s.sweepsRun),
		AlertsCreated:  atomic.LoadInt64(&s.alertsCreated),
		GroupsDetected: atomic.LoadInt64(&s.groupsDetected),
		SnapshotsSaved: atomic.LoadInt64(&s.snapshotsSaved),
		Errors:         atomic.LoadInt64(&s.errors),
	}
}

func (s *Sweeper) loop(interval time.Duration, pass func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pass(s.ctx)
		}
	}
}

// withLock runs fn under the named pass's distributed lock. If another
// instance holds the lock, the pass is skipped until the next tick.
func (s *Sweeper) withLock(ctx context.Context, pass string, fn func(context.Context)) {
	lock := distlock.NewSweepLock(s.redisClient, s.db, pass)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Warn("sweeper lock acquire failed", "pass", pass, "error", err.Error())
		atomic.AddInt64(&s.errors, 1)
		return
	}
	if !acquired {
		logger.Debug("sweeper pass held elsewhere", "pass", pass)
		return
	}
	defer lock.Release(ctx)

	fn(ctx)
}

// runAlertSweep evaluates triggers across all profiles and advances
// snoozed alerts whose window has elapsed.
func (s *Sweeper) runAlertSweep(ctx context.Context) {
	s.withLock(ctx, distlock.PassAlerts, func(ctx context.Context) {
		result := s.eng.SweepAlerts()
		atomic.AddInt64(&s.sweepsRun, 1)
		atomic.AddInt64(&s.alertsCreated, int64(result.Created))
		if len(result.Failures) > 0 {
			atomic.AddInt64(&s.errors, int64(len(result.Failures)))
		}
		if result.Created > 0 || result.Promoted > 0 || result.Expired > 0 {
			logger.Info("alert sweep completed",
				"evaluated", result.Evaluated,
				"created", result.Created,
				"promoted", result.Promoted,
				"expired", result.Expired)
		}
	})
}

// runDuplicateScan recomputes the candidate duplicate groups so the
// review queue stays current without an interactive request paying the
// detection cost.
func (s *Sweeper) runDuplicateScan(ctx context.Context) {
	s.withLock(ctx, distlock.PassDuplicates, func(ctx context.Context) {
		groups := s.eng.ListDuplicateGroups()
		atomic.StoreInt64(&s.groupsDetected, int64(len(groups)))
		if len(groups) > 0 {
			logger.Info("duplicate scan completed", "groups", fmt.Sprintf("%d", len(groups)))
		}
	})
}

// runSnapshot persists engine state to S3.
func (s *Sweeper) runSnapshot(ctx context.Context) {
	s.withLock(ctx, distlock.PassSnapshot, func(ctx context.Context) {
		if err := s.eng.Persist(ctx); err != nil {
			logger.Error("state snapshot failed", "error", err.Error())
			atomic.AddInt64(&s.errors, 1)
			return
		}
		atomic.AddInt64(&s.snapshotsSaved, 1)
	})
}
