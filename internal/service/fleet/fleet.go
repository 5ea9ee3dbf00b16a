// Package fleet runs the worker slots. Each slot is one goroutine
// holding one proxy-bound driver session, leasing tasks from the store
// and draining the queue until it is empty or shutdown is requested.
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/scrape-fleet/internal/adapter/observability"
	"github.com/fairyhunter13/scrape-fleet/internal/config"
	"github.com/fairyhunter13/scrape-fleet/internal/domain"
	"github.com/fairyhunter13/scrape-fleet/internal/usecase"
)

// Repos bundles the stores a slot talks to.
type Repos struct {
	Tasks   domain.TaskRepository
	Proxies domain.ProxyRepository
	Workers domain.WorkerRepository
	Results domain.ResultRepository
}

// Fleet fans one scraper out over WORKERS_COUNT slots.
type Fleet struct {
	repos   Repos
	driver  domain.Driver
	scraper usecase.Scraper
	cfg     config.Config
	log     *slog.Logger

	// shutdown is flipped once by the signal handler and read at every
	// loop head; in-flight work finishes before the slot exits.
	shutdown atomic.Bool
}

// New constructs a Fleet.
func New(repos Repos, driver domain.Driver, scraper usecase.Scraper, cfg config.Config, log *slog.Logger) *Fleet {
	return &Fleet{repos: repos, driver: driver, scraper: scraper, cfg: cfg, log: log}
}

// Shutdown asks every slot to stop after its current task.
func (f *Fleet) Shutdown() { f.shutdown.Store(true) }

// BaseWorkerID derives the fleet-wide worker identity prefix,
// "{program}:{hostname}:{pid}". Slots append their ordinal.
func BaseWorkerID(programID string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%s:%d", programID, host, os.Getpid())
}

// Run starts the slots and blocks until every one of them exits,
// either because the queue drained or Shutdown was called.
func (f *Fleet) Run(ctx domain.Context, baseWorkerID string) {
	var wg sync.WaitGroup
	for i := 0; i < f.cfg.WorkersCount; i++ {
		wg.Add(1)
		go func(ordinal int) {
			defer wg.Done()
			f.runSlot(ctx, fmt.Sprintf("%s:%d", baseWorkerID, ordinal), ordinal)
		}(i)
	}
	wg.Wait()
}

// slot is the mutable state of one worker goroutine.
type slot struct {
	fleet    *Fleet
	workerID string
	display  int

	// base carries worker_id and slot; log additionally carries the
	// current proxy once a session exists.
	base *slog.Logger
	log  *slog.Logger

	session  domain.Session
	proxy    *domain.Proxy
	lastBeat time.Time
}

func (f *Fleet) runSlot(ctx domain.Context, workerID string, display int) {
	observability.SlotsActive.Inc()
	defer observability.SlotsActive.Dec()

	base := f.log.With(slog.String("worker_id", workerID), slog.Int("slot", display))
	s := &slot{fleet: f, workerID: workerID, display: display, base: base, log: base}
	defer s.cleanup(ctx)

	s.log.Info("worker_start")
	if !s.register(ctx) {
		return
	}
	s.lastBeat = time.Now()

	if err := s.initSession(ctx); err != nil {
		s.log.Error("worker_fatal_error", slog.Any("error", err))
		return
	}

	s.loop(ctx)
}

// register upserts the worker row once; the store's internal retry
// budget is the registration retry.
func (s *slot) register(ctx domain.Context) bool {
	if err := s.fleet.repos.Workers.Heartbeat(ctx, s.workerID); err != nil {
		s.log.Error("worker_registration_failed", slog.Any("error", err))
		s.log.Info("worker_start_aborted")
		return false
	}
	s.log.Info("worker_registered")
	return true
}

// initSession leases a proxy and builds a fresh driver session bound
// to it on the slot's display.
func (s *slot) initSession(ctx domain.Context) error {
	proxy, err := s.fleet.repos.Proxies.Acquire(ctx, s.workerID)
	if err != nil {
		return fmt.Errorf("acquire proxy: %w", err)
	}
	if proxy == nil {
		return domain.ErrNoProxy
	}
	s.proxy = proxy

	addr, err := domain.ParseProxyAddr(proxy.Proxy)
	if err != nil {
		return fmt.Errorf("proxy %d: %w", proxy.ID, err)
	}
	sess, err := s.fleet.driver.NewSession(ctx, addr, s.display)
	if err != nil {
		return fmt.Errorf("driver session: %w", err)
	}
	s.session = sess
	s.log = s.base.With(slog.String("proxy", proxy.Proxy))
	s.log.Info("worker_page_ready", slog.Int("display", s.display))
	return nil
}

func (s *slot) loop(ctx domain.Context) {
	for !s.fleet.shutdown.Load() {
		s.beat(ctx)

		task, err := s.fleet.repos.Tasks.Acquire(ctx, s.workerID)
		if err != nil {
			s.log.Error("worker_error",
				slog.String("stage", "acquire_task"),
				slog.Any("error", err))
			return
		}
		if task == nil {
			s.log.Info("worker_no_tasks")
			return
		}

		start := time.Now()
		outcome := s.fleet.scraper.ProcessTask(ctx, s.log, *task, s.session)
		observability.ObserveTask(string(outcome.Status), time.Since(start))

		// Rotation comes before settling so task_success reports the
		// proxy the slot moved on to.
		if outcome.RotateProxy && s.fleet.cfg.ProxyRotationEnabled {
			if err := s.rotate(ctx); err != nil {
				s.releaseTask(ctx, task)
				s.log.Error("worker_fatal_error", slog.Any("error", err))
				return
			}
		}

		if err := s.settle(ctx, task, outcome); err != nil {
			s.log.Error("worker_error",
				slog.Int64("item_id", task.ItemID),
				slog.Any("error", err))
			return
		}
	}
}

// beat refreshes the worker row once per interval. Failures are logged
// and counted, never fatal; the row catches up on the next round.
func (s *slot) beat(ctx domain.Context) {
	if time.Since(s.lastBeat) <= s.fleet.cfg.HeartbeatInterval {
		return
	}
	if err := s.fleet.repos.Workers.Heartbeat(ctx, s.workerID); err != nil {
		observability.HeartbeatFailuresTotal.Inc()
		s.log.Warn("heartbeat_failed", slog.Any("error", err))
	}
	s.lastBeat = time.Now()
}

// rotate retires the current proxy and rebuilds the session on a
// fresh lease. The Release after MarkBlocked is a no-op on the
// already-blocked row and is kept for lease bookkeeping parity.
func (s *slot) rotate(ctx domain.Context) error {
	current := s.proxy
	s.log.Info("proxy_rotation", slog.String("blocked_proxy", current.Proxy))

	if err := s.fleet.repos.Proxies.MarkBlocked(ctx, current.Proxy); err != nil {
		return fmt.Errorf("mark proxy blocked: %w", err)
	}
	observability.ProxiesBlockedTotal.Inc()

	s.session.Close()
	s.session = nil
	if err := s.fleet.repos.Proxies.Release(ctx, current.Proxy); err != nil {
		s.log.Warn("proxy_release_failed",
			slog.String("proxy", current.Proxy),
			slog.Any("error", err))
	}
	s.proxy = nil
	s.log = s.base

	if err := s.initSession(ctx); err != nil {
		return err
	}
	observability.ProxyRotationsTotal.Inc()
	return nil
}

// settle persists one outcome. Error outcomes return the lease to the
// queue; success and unavailable outcomes complete it. A non-nil
// return means the slot must stop.
func (s *slot) settle(ctx domain.Context, task *domain.Task, outcome domain.Outcome) error {
	if outcome.Status == domain.OutcomeError {
		if err := s.fleet.repos.Tasks.Release(ctx, task.ID); err != nil {
			return fmt.Errorf("release task %d: %w", task.ID, err)
		}
		if err := s.fleet.repos.Workers.IncrementStats(ctx, s.workerID, false); err != nil {
			return fmt.Errorf("increment stats: %w", err)
		}
		return nil
	}

	if err := s.fleet.repos.Results.Upsert(ctx, *outcome.Result); err != nil {
		s.releaseTask(ctx, task)
		return fmt.Errorf("upsert result %d: %w", task.ItemID, err)
	}
	if err := s.fleet.repos.Tasks.MarkCompleted(ctx, task.ID); err != nil {
		s.releaseTask(ctx, task)
		return fmt.Errorf("mark task %d completed: %w", task.ID, err)
	}
	if err := s.fleet.repos.Workers.IncrementStats(ctx, s.workerID, true); err != nil {
		return fmt.Errorf("increment stats: %w", err)
	}
	s.log.Info("task_success", slog.Int64("item_id", task.ItemID))
	return nil
}

// releaseTask is the best-effort lease return on fatal paths.
func (s *slot) releaseTask(ctx domain.Context, task *domain.Task) {
	if err := s.fleet.repos.Tasks.Release(ctx, task.ID); err != nil {
		s.log.Warn("task_release_failed",
			slog.Int64("task_id", task.ID),
			slog.Any("error", err))
	}
}

// cleanup releases whatever the slot still holds. It runs on every
// exit path and must survive a canceled run context.
func (s *slot) cleanup(ctx domain.Context) {
	ctx = context.WithoutCancel(ctx)
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	if s.proxy != nil {
		if err := s.fleet.repos.Proxies.Release(ctx, s.proxy.Proxy); err != nil {
			s.log.Warn("proxy_release_failed",
				slog.String("proxy", s.proxy.Proxy),
				slog.Any("error", err))
		}
		s.proxy = nil
	}
	s.log.Info("worker_shutdown")
}
