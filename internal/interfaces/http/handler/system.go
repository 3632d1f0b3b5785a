package handler

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/scheduler"
	"github.com/mendlyio/LaCabrade-V4/internal/interfaces/http/dto"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck checks one dependency
type HealthCheck func(ctx context.Context) error

// JobRunner exposes the background jobs
type JobRunner interface {
	States() []scheduler.JobState
	RunNow(name string) error
}

// SystemHandler serves health and job endpoints
type SystemHandler struct {
	BaseHandler
	version       string
	startTime     time.Time
	erpConfigured bool
	checks        map[string]HealthCheck
	jobs          JobRunner
}

// SystemHandlerOption configures a SystemHandler
type SystemHandlerOption func(*SystemHandler)

// WithHealthCheck adds a named dependency check; a failing check turns the
// health answer into 503
func WithHealthCheck(name string, check HealthCheck) SystemHandlerOption {
	return func(h *SystemHandler) {
		h.checks[name] = check
	}
}

// WithJobs exposes the scheduler through the handler
func WithJobs(jobs JobRunner) SystemHandlerOption {
	return func(h *SystemHandler) {
		h.jobs = jobs
	}
}

// WithERPConfigured reports whether ERP credentials are set
func WithERPConfigured(configured bool) SystemHandlerOption {
	return func(h *SystemHandler) {
		h.erpConfigured = configured
	}
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(version string, opts ...SystemHandlerOption) *SystemHandler {
	h := &SystemHandler{
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	GoVersion     string            `json:"go_version"`
	Uptime        string            `json:"uptime"`
	ERPConfigured bool              `json:"erp_configured"`
	Checks        map[string]string `json:"checks"`
}

// Health checks every dependency
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		GoVersion:     runtime.Version(),
		Uptime:        time.Since(h.startTime).Round(time.Second).String(),
		ERPConfigured: h.erpConfigured,
		Checks:        make(map[string]string, len(h.checks)),
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, dto.Response{Success: status == http.StatusOK, Data: resp})
}

// ListJobs returns the state of every background job
// GET /erp/jobs
func (h *SystemHandler) ListJobs(c *gin.Context) {
	if h.jobs == nil {
		h.Success(c, []scheduler.JobState{})
		return
	}
	h.Success(c, h.jobs.States())
}

// RunJob runs a background job now and waits for it
// POST /erp/jobs/:name/run
func (h *SystemHandler) RunJob(c *gin.Context) {
	if h.jobs == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeConflict, "Scheduler is disabled")
		return
	}

	name := c.Param("name")
	err := h.jobs.RunNow(name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, err.Error())
		return
	case errors.Is(err, scheduler.ErrJobAlreadyRunning):
		h.Error(c, http.StatusConflict, dto.ErrCodeConflict, err.Error())
		return
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeConflict, err.Error())
		return
	case err != nil:
		h.HandleError(c, err)
		return
	}

	for _, st := range h.jobs.States() {
		if st.Name == name {
			h.Success(c, st)
			return
		}
	}
	h.NoContent(c)
}
