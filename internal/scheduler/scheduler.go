// Package scheduler implements the fixed-rate/fixed-delay/cron task
// scheduler (spec §4.7). Grounded on the teacher's worker.Pool/worker.Worker
// (worker/pool.go) for the one-goroutine-per-schedule supervised loop, and
// on coordinator.Coordinator's ctx/cancel/WaitGroup lifecycle (coordinator.go)
// for cooperative cancellation at the next suspension point.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/katalyst-run/katalyst/internal/cronexpr"
	"github.com/katalyst-run/katalyst/internal/errs"
	"github.com/katalyst-run/katalyst/klog"
)

var log = klog.For("scheduler")

// Task is the unit of scheduled work.
type Task func(ctx context.Context) error

// Config describes one schedule (spec §4.7's schedule descriptor).
type Config struct {
	TaskName        string
	InitialDelay    time.Duration
	MaxExecutionTime time.Duration
	TimeZone        *time.Location
	Tags            []string
	OnSuccess       func(name string, elapsed time.Duration)
	OnError         func(name string, err error, execution int)
}

func (c Config) timeZone() *time.Location {
	if c.TimeZone != nil {
		return c.TimeZone
	}
	return time.UTC
}

// Handle represents one live schedule. Cancellation is idempotent.
type Handle struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Cancel stops the loop at its next suspension point; an in-flight run is
// allowed to complete and its completion is not observed by the caller.
func (h *Handle) Cancel() {
	h.once.Do(func() { h.cancel() })
}

// Wait blocks until the schedule's loop has exited (test/shutdown helper).
func (h *Handle) Wait() { <-h.done }

// Scheduler runs schedules as supervised goroutines, one per schedule.
type Scheduler struct {
	mu      sync.Mutex
	handles []*Handle
	now     func() time.Time
}

func New() *Scheduler {
	return &Scheduler{now: time.Now}
}

func (s *Scheduler) track(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, h)
}

// CancelAll cancels every live schedule, idempotently.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	handles := append([]*Handle{}, s.handles...)
	s.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
}

func newHandle(ctx context.Context) (*Handle, context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	return &Handle{cancel: cancel, done: make(chan struct{})}, runCtx
}

// Schedule runs task with a period of fixedRate between successive starts,
// after waiting cfg.InitialDelay. fixedRate == 0 means one-shot.
func (s *Scheduler) Schedule(ctx context.Context, cfg Config, task Task, fixedRate time.Duration) *Handle {
	h, runCtx := newHandle(ctx)
	s.track(h)

	go func() {
		defer close(h.done)
		if !s.sleep(runCtx, cfg.InitialDelay) {
			return
		}

		execution := 0
		for {
			start := s.now()
			s.runOnce(runCtx, cfg, task, execution)
			execution++

			if fixedRate == 0 {
				return
			}
			elapsed := s.now().Sub(start)
			remaining := fixedRate - elapsed
			if !s.sleep(runCtx, remaining) {
				return
			}
		}
	}()

	return h
}

// ScheduleFixedDelay runs task repeatedly, waiting delay between the end of
// one run and the start of the next. delay must be > 0.
func (s *Scheduler) ScheduleFixedDelay(ctx context.Context, cfg Config, task Task, delay time.Duration) *Handle {
	h, runCtx := newHandle(ctx)
	s.track(h)

	go func() {
		defer close(h.done)
		if !s.sleep(runCtx, cfg.InitialDelay) {
			return
		}

		execution := 0
		for {
			s.runOnce(runCtx, cfg, task, execution)
			execution++
			if !s.sleep(runCtx, delay) {
				return
			}
		}
	}()

	return h
}

// ScheduleCron runs task at each instant the parsed cron expression fires,
// in cfg.TimeZone (default UTC). cronExpr is validated synchronously;
// CronInvalid is returned immediately rather than surfacing through OnError.
func (s *Scheduler) ScheduleCron(ctx context.Context, cfg Config, task Task, cronExpr string) (*Handle, error) {
	sched, err := cronexpr.Parse(cronExpr)
	if err != nil {
		return nil, errs.Wrap(errs.KindSchedulerCronInvalid, "invalid cron expression", err)
	}

	h, runCtx := newHandle(ctx)
	s.track(h)

	go func() {
		defer close(h.done)
		execution := 0
		for {
			next := sched.NextFire(s.now(), cfg.timeZone())
			wait := next.Sub(s.now())
			if !s.sleep(runCtx, wait) {
				return
			}
			s.runOnce(runCtx, cfg, task, execution)
			execution++
		}
	}()

	return h, nil
}

// sleep waits for d or ctx cancellation, whichever comes first; returns
// false if the context was cancelled (caller should stop looping).
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) runOnce(ctx context.Context, cfg Config, task Task, execution int) {
	runCtx := ctx
	var cancel context.CancelFunc
	if cfg.MaxExecutionTime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.MaxExecutionTime)
		defer cancel()
	}

	start := s.now()
	err := runTask(runCtx, task)
	elapsed := s.now().Sub(start)

	switch {
	case err != nil && runCtx.Err() == context.DeadlineExceeded:
		if cfg.OnError != nil {
			cfg.OnError(cfg.TaskName, errs.New(errs.KindSchedulerTaskTimeout, "task exceeded max-execution-time"), execution)
		}
	case err != nil:
		if cfg.OnError != nil {
			cfg.OnError(cfg.TaskName, errs.Wrap(errs.KindSchedulerTaskError, "task returned an error", err), execution)
		}
	default:
		if cfg.OnSuccess != nil {
			cfg.OnSuccess(cfg.TaskName, elapsed)
		}
	}
}

// runTask isolates a panicking task the same way the event bus isolates a
// panicking handler, converting it into an error the scheduler can report
// through OnError instead of crashing the process.
func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("scheduled task panicked: %v", r)
			err = errs.New(errs.KindSchedulerTaskError, "task panicked")
		}
	}()
	return task(ctx)
}
