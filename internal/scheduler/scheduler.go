// Package scheduler runs periodic background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of periodic work. It receives a context cancelled on Stop.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	active map[string]bool
}

// New creates a scheduler whose job runs are bounded by timeout.
func New(log *slog.Logger, timeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(),
		log:     log,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		active:  map[string]bool{},
	}
}

// Add registers job under name on a standard five-field cron spec.
// A run is skipped while the previous run of the same job is still going.
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	s.mu.Lock()
	if s.active[name] {
		s.mu.Unlock()
		s.log.Warn("job still running, skipping", "job", name)
		return
	}
	s.active[name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, name)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	start := time.Now()
	if err := job(ctx); err != nil {
		s.log.Error("job failed", "job", name, "err", err, "duration", time.Since(start))
		return
	}
	s.log.Info("job finished", "job", name, "duration", time.Since(start))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
