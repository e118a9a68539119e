// Package task tracks fire-and-poll backend jobs. A Controller owns the
// state of one job kind and at most one poll loop; every way a loop can end
// (complete, failed, superseded, shutdown) releases it through its handle.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"marketingflow/backend"
	"marketingflow/logging"
)

const (
	// DefaultInterval is the poll period used when none is configured.
	DefaultInterval = 5 * time.Second
	// MinInterval is the shortest poll period accepted.
	MinInterval = time.Second
)

var (
	// ErrIntervalTooShort is returned for poll periods under MinInterval.
	ErrIntervalTooShort = fmt.Errorf("poll interval must be at least %s", MinInterval)
	// ErrStartSuperseded is returned by a Start whose job was replaced,
	// reset or stopped before the backend acknowledged it.
	ErrStartSuperseded = errors.New("job start superseded")
)

// StatusChecker reads the status of a job once.
type StatusChecker interface {
	JobStatus(ctx context.Context, jobID string) (backend.StatusReport, error)
}

// Starter begins one backend job. Validate runs before any state changes or
// network traffic.
type Starter interface {
	Validate() error
	Begin(ctx context.Context) (backend.Ack, error)
}

// StarterFunc adapts a function that needs no validation.
type StarterFunc func(ctx context.Context) (backend.Ack, error)

func (f StarterFunc) Validate() error { return nil }

func (f StarterFunc) Begin(ctx context.Context) (backend.Ack, error) { return f(ctx) }

// Config tunes polling.
type Config struct {
	// Interval between status requests. Constant for the controller's lifetime.
	Interval time.Duration
	// RequestTimeout bounds one status request. Zero disables it.
	RequestTimeout time.Duration
	// MaxDuration bounds total polling of one job. Zero disables it.
	MaxDuration time.Duration
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// Controller drives jobs of one kind.
type Controller struct {
	kind    Kind
	msgs    Messages
	checker StatusChecker
	cfg     Config
	clock   Clock
	logger  *slog.Logger

	// startMu serializes the state changes of Start, Reset and Stop so a
	// superseded loop is fully gone before the next job begins. It is not
	// held while the backend call of a start is in flight.
	startMu sync.Mutex

	mu   sync.Mutex
	job  Job
	loop *pollHandle
	// gen changes whenever the current job is abandoned; a start whose
	// generation is gone by the time its ack arrives is dropped.
	gen        uint64
	abortStart context.CancelFunc
}

// pollHandle is the cancellable lease of one poll loop.
type pollHandle struct {
	id        string
	jobID     string
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

func NewController(kind Kind, checker StatusChecker, cfg Config, opts ...Option) (*Controller, error) {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Interval < MinInterval {
		return nil, ErrIntervalTooShort
	}
	if checker == nil {
		return nil, errors.New("status checker is required")
	}

	c := &Controller{
		kind:    kind,
		msgs:    MessagesFor(kind),
		checker: checker,
		cfg:     cfg,
		clock:   SystemClock{},
		logger:  slog.Default(),
		job:     Job{Kind: kind, Status: StatusIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithKind(logging.WithComponent(c.logger, "poller"), string(kind))
	return c, nil
}

func (c *Controller) Kind() Kind { return c.kind }

// Snapshot returns a copy of the current job.
func (c *Controller) Snapshot() Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job
}

// Polling reports whether a poll loop is live.
func (c *Controller) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop != nil
}

// Start validates s, stops any loop still running for this kind, and
// begins a new job. A rejected start leaves the job failed with the
// backend's message or the kind's fallback; no loop is started. Validation
// errors are returned without touching the current job. Reset, Stop or a
// newer Start cancel a start still waiting on the backend; it then returns
// ErrStartSuperseded and leaves the state alone.
func (c *Controller) Start(ctx context.Context, s Starter) (Job, error) {
	if err := s.Validate(); err != nil {
		return c.Snapshot(), err
	}

	c.startMu.Lock()
	c.stopLoop("superseded")

	beginCtx, abort := context.WithCancel(ctx)
	defer abort()

	c.mu.Lock()
	gen := c.gen
	c.abortStart = abort
	c.job = Job{Kind: c.kind, Status: StatusStarting, StartedAt: c.clock.Now()}
	c.mu.Unlock()
	c.startMu.Unlock()

	ack, err := s.Begin(beginCtx)

	c.mu.Lock()
	if c.gen != gen {
		job := c.job
		c.mu.Unlock()
		c.logger.Info("job start abandoned", "job_id", ack.JobID)
		return job, ErrStartSuperseded
	}
	c.abortStart = nil

	if err != nil {
		c.job.Status = StatusFailed
		c.job.Error = backend.UserMessage(err, c.msgs.StartFailed)
		c.job.CompletedAt = c.clock.Now()
		job := c.job
		c.mu.Unlock()

		c.logger.Warn("job start failed", "error", err)
		return job, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	h := &pollHandle{
		id:        shortuuid.New(),
		jobID:     ack.JobID,
		ctx:       loopCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: c.clock.Now(),
	}
	c.job.ID = ack.JobID
	c.job.Status = StatusProcessing
	c.loop = h
	job := c.job
	c.mu.Unlock()

	logging.WithJobID(c.logger, ack.JobID).Info("job started", "loop", h.id, "interval", c.cfg.Interval)
	go c.poll(h)
	return job, nil
}

// Reset stops any loop and returns the controller to idle.
func (c *Controller) Reset() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.stopLoop("reset")
	c.mu.Lock()
	c.job = Job{Kind: c.kind, Status: StatusIdle}
	c.mu.Unlock()
}

// Stop ends any loop and keeps the last state. Used on shutdown.
func (c *Controller) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	c.stopLoop("stopped")
}

// stopLoop abandons the current job: a pending start is cancelled and the
// live handle is cancelled and waited for.
func (c *Controller) stopLoop(reason string) {
	c.mu.Lock()
	c.gen++
	h := c.loop
	c.loop = nil
	abort := c.abortStart
	c.abortStart = nil
	c.mu.Unlock()

	if abort != nil {
		abort()
		c.logger.Info("pending start cancelled", "reason", reason)
	}
	if h == nil {
		return
	}
	h.cancel()
	<-h.done
	logging.WithJobID(c.logger, h.jobID).Info("poll loop released", "loop", h.id, "reason", reason)
}

func (c *Controller) poll(h *pollHandle) {
	defer close(h.done)
	defer h.cancel()

	ticker := c.clock.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C():
			if c.pollOnce(h) {
				return
			}
		}
	}
}

// pollOnce issues one status request and applies it. It reports whether
// the loop is over.
func (c *Controller) pollOnce(h *pollHandle) bool {
	ctx, cancel := h.ctx, context.CancelFunc(func() {})
	if c.cfg.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(h.ctx, c.cfg.RequestTimeout)
	}
	report, err := c.checker.JobStatus(ctx, h.jobID)
	cancel()

	// Superseded while the request was in flight: the answer is stale.
	if h.ctx.Err() != nil {
		return true
	}

	logger := logging.WithJobID(c.logger, h.jobID)
	switch {
	case errors.Is(err, backend.ErrJobNotFound):
		logger.Warn("job not found")
		return c.finish(h, StatusFailed, func(j *Job) { j.Error = c.msgs.NotFound })
	case err != nil:
		logger.Warn("status check failed", "error", err)
		return c.finish(h, StatusFailed, func(j *Job) { j.Error = c.msgs.StatusFailed })
	}

	switch report.Status {
	case backend.JobComplete:
		logger.Info("job complete", "download_url", report.DownloadURL)
		return c.finish(h, StatusComplete, func(j *Job) {
			j.DownloadURL = report.DownloadURL
			if c.kind == KindRemix {
				j.ServerPath = report.ServerPath
			}
		})
	case backend.JobFailed:
		msg := report.Error
		if msg == "" {
			msg = c.msgs.JobFailed
		}
		logger.Warn("job failed", "error", msg)
		return c.finish(h, StatusFailed, func(j *Job) { j.Error = msg })
	}

	c.mu.Lock()
	if c.loop == h {
		c.job.Polls++
	}
	c.mu.Unlock()

	if c.cfg.MaxDuration > 0 && c.clock.Now().Sub(h.startedAt) >= c.cfg.MaxDuration {
		logger.Warn("job polling exceeded limit", "limit", c.cfg.MaxDuration)
		return c.finish(h, StatusFailed, func(j *Job) { j.Error = c.msgs.TimedOut })
	}
	logger.Debug("job still running", "status", report.Status)
	return false
}

// finish applies a terminal transition if h is still the live loop, then
// releases the handle. It always reports true.
func (c *Controller) finish(h *pollHandle, status Status, apply func(*Job)) bool {
	c.mu.Lock()
	if c.loop == h {
		c.job.Polls++
		c.job.Status = status
		apply(&c.job)
		c.job.CompletedAt = c.clock.Now()
		c.loop = nil
	}
	c.mu.Unlock()

	h.cancel()
	return true
}
