package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/logger"
)

// JobStatus represents the outcome of the last run of a job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
	JobStatusSkipped JobStatus = "SKIPPED"
)

// Job is a named unit of periodic work
type Job struct {
	Name    string
	Trigger Trigger
	Run     func(ctx context.Context) error
}

// JobState is a snapshot of a job's bookkeeping
type JobState struct {
	Name       string     `json:"name"`
	Schedule   string     `json:"schedule"`
	Status     JobStatus  `json:"status"`
	Runs       int        `json:"runs"`
	Failures   int        `json:"failures"`
	LastRunID  string     `json:"last_run_id,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	LastTookMs int64      `json:"last_took_ms"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
}

type jobEntry struct {
	job     Job
	mu      sync.Mutex
	running bool
	state   JobState
}

// Config holds scheduler configuration
type Config struct {
	// JobTimeout bounds a single run; zero means no bound
	JobTimeout time.Duration
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler runs each job on its own trigger. A job never overlaps with
// itself: a tick that fires while the previous run is still going is
// skipped. Different jobs may run concurrently.
type Scheduler struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	jobs map[string]*jobEntry

	cancel    context.CancelFunc
	runCtx    context.Context
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// New creates a scheduler for jobs. Job names must be unique.
func New(config Config, jobs []Job, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		config: config,
		logger: zap.NewNop(),
		now:    time.Now,
		jobs:   make(map[string]*jobEntry, len(jobs)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, j := range jobs {
		if j.Name == "" || j.Run == nil || j.Trigger == nil {
			return nil, fmt.Errorf("job %q needs a name, a trigger and a run function", j.Name)
		}
		if _, ok := s.jobs[j.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, j.Name)
		}
		s.jobs[j.Name] = &jobEntry{
			job: j,
			state: JobState{
				Name:     j.Name,
				Schedule: j.Trigger.String(),
				Status:   JobStatusPending,
			},
		}
	}
	return s, nil
}

// Start starts one loop per job
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runCtx = ctx
	s.mu.Unlock()

	for _, entry := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, entry)
	}

	s.logger.Info("Scheduler started",
		zap.Int("jobs", len(s.jobs)),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the loops to exit
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// RunNow runs a job synchronously outside its schedule
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	ctx := s.runCtx
	s.mu.Unlock()

	entry, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.execute(ctx, entry)
}

// States returns a snapshot of every job, sorted by name
func (s *Scheduler) States() []JobState {
	states := make([]JobState, 0, len(s.jobs))
	for _, entry := range s.jobs {
		entry.mu.Lock()
		states = append(states, entry.state)
		entry.mu.Unlock()
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states
}

func (s *Scheduler) loop(ctx context.Context, entry *jobEntry) {
	defer s.wg.Done()

	for {
		next := entry.job.Trigger.Next(s.now())
		entry.mu.Lock()
		entry.state.NextRunAt = &next
		entry.mu.Unlock()

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.execute(ctx, entry); errors.Is(err, ErrJobAlreadyRunning) {
			s.logger.Warn("Skipping tick, previous run still in progress",
				zap.String("job", entry.job.Name),
			)
		}
	}
}

// execute runs the job once with the timeout, recovering panics. Errors
// are recorded and logged; only ErrJobAlreadyRunning is meant for callers
// that need to tell a skipped tick apart.
func (s *Scheduler) execute(ctx context.Context, entry *jobEntry) (err error) {
	entry.mu.Lock()
	if entry.running {
		entry.mu.Unlock()
		return ErrJobAlreadyRunning
	}
	entry.running = true
	startedAt := s.now()
	runID := uuid.NewString()
	entry.state.Status = JobStatusRunning
	entry.state.LastRunAt = &startedAt
	entry.state.LastRunID = runID
	entry.mu.Unlock()

	jobCtx, log := logger.WithRunID(ctx, s.logger.With(zap.String("job", entry.job.Name)), runID)
	var cancel context.CancelFunc = func() {}
	if s.config.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(jobCtx, s.config.JobTimeout)
	}
	defer cancel()

	log.Info("Job started")
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
		s.finish(entry, startedAt, err, log)
	}()

	return entry.job.Run(jobCtx)
}

func (s *Scheduler) finish(entry *jobEntry, startedAt time.Time, err error, log *zap.Logger) {
	took := s.now().Sub(startedAt)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.running = false
	entry.state.LastTookMs = took.Milliseconds()
	switch {
	case err == nil:
		entry.state.Runs++
		entry.state.Status = JobStatusSuccess
		entry.state.LastError = ""
		log.Info("Job completed", zap.Duration("took", took))
	case errors.Is(err, integration.ErrERPNotConfigured):
		entry.state.Status = JobStatusSkipped
		entry.state.LastError = err.Error()
		log.Warn("Job declined to run", zap.Error(err))
	default:
		entry.state.Runs++
		entry.state.Failures++
		entry.state.Status = JobStatusFailed
		entry.state.LastError = err.Error()
		log.Error("Job failed", zap.Duration("took", took), zap.Error(err))
	}
}
