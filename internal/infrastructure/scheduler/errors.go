package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to run a job on a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobNotFound is returned for unknown job names
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyRunning is returned when a job is triggered while its
	// previous run has not finished
	ErrJobAlreadyRunning = errors.New("job already running")

	// ErrDuplicateJob is returned when two jobs share a name
	ErrDuplicateJob = errors.New("duplicate job name")

	// ErrInvalidSchedule is returned for cron expressions the scheduler cannot run
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrJobPanicked wraps a recovered panic
	ErrJobPanicked = errors.New("job panicked")
)
