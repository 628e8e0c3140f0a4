// Package scheduler runs background jobs on fixed intervals.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"case-market/internal/pkg/lock"
)

// Job names shared by the scheduler binary and the ops bot.
const (
	JobPriceSync      = "price_sync"
	JobWithdrawalPoll = "withdrawal_poll"
)

// Errors returned by RunNow.
var (
	ErrJobRunning = errors.New("job already running")
	ErrUnknownJob = errors.New("unknown job")
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means the interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// FailureFunc is told about every failed run.
type FailureFunc func(job string, err error)

// Scheduler runs each job once at start and then on its ticker. A job never
// overlaps with itself: a tick that finds the previous run still going is
// skipped.
type Scheduler struct {
	jobs      map[string]Job
	order     []string
	guard     *lock.Keyed[string]
	onFailure FailureFunc

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// New creates a scheduler for jobs. Jobs with a non-positive interval are
// only reachable through RunNow.
func New(jobs ...Job) *Scheduler {
	s := &Scheduler{
		jobs:  make(map[string]Job, len(jobs)),
		guard: lock.New[string](),
	}
	for _, j := range jobs {
		if _, dup := s.jobs[j.Name]; !dup {
			s.order = append(s.order, j.Name)
		}
		s.jobs[j.Name] = j
	}
	return s
}

// OnFailure registers fn to be called after a failed run.
func (s *Scheduler) OnFailure(fn FailureFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = fn
}

// Jobs returns job names in registration order.
func (s *Scheduler) Jobs() []string {
	return append([]string(nil), s.order...)
}

// Start launches every job loop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	for _, name := range s.order {
		j := s.jobs[name]
		if j.Interval <= 0 {
			continue
		}
		log.Info().Str("job", j.Name).Dur("interval", j.Interval).Msg("Job scheduled")

		s.wg.Add(1)
		go s.loop(ctx, j)
	}
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	s.tick(ctx, j)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx, j)
		case <-ctx.Done():
			log.Info().Str("job", j.Name).Msg("Job stopped")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, j Job) {
	if err := s.execute(ctx, j); errors.Is(err, ErrJobRunning) {
		log.Warn().Str("job", j.Name).Msg("Previous run still in progress, skipping tick")
	}
}

// Stop cancels running jobs and waits for their loops to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.isRunning = false
		s.mu.Unlock()
		s.wg.Wait()
	})
}

// RunNow runs the named job immediately and returns its error. It fails with
// ErrJobRunning when the job is already in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, j)
}

func (s *Scheduler) execute(ctx context.Context, j Job) error {
	if !s.guard.TryLock(j.Name) {
		return ErrJobRunning
	}
	defer s.guard.Unlock(j.Name)

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	err := j.Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("job", j.Name).Dur("took", time.Since(started)).Msg("Job failed")
		s.mu.Lock()
		fn := s.onFailure
		s.mu.Unlock()
		if fn != nil {
			fn(j.Name, err)
		}
		return err
	}
	log.Debug().Str("job", j.Name).Dur("took", time.Since(started)).Msg("Job finished")
	return nil
}
