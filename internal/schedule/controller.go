package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"postforge/internal/models"
	"postforge/internal/policy"
)

// DefaultHistoryLimit is how many past runs the controller keeps.
const DefaultHistoryLimit = 10

// ErrToggleInFlight is returned when a toggle is requested while another one
// is still waiting on the scheduler.
var ErrToggleInFlight = errors.New("schedule: toggle already in flight")

// ToggleError is returned when the scheduler rejected a pause or resume.
// Message is the text surfaced for the failure.
type ToggleError struct {
	Action  string
	Message string
	Err     error
}

func (e *ToggleError) Error() string {
	return "schedule: " + e.Action + ": " + e.Err.Error()
}

func (e *ToggleError) Unwrap() error { return e.Err }

var (
	opRefreshStatus  = policy.Operation{Name: "schedule.status", Policy: policy.Silent}
	opRefreshHistory = policy.Operation{Name: "schedule.history", Policy: policy.Silent}
	opToggle         = policy.Operation{Name: "schedule.toggle", Policy: policy.Surfaced, Message: "Failed to update schedule status"}
)

// ToggleRecorder observes pause/resume requests (metrics).
type ToggleRecorder interface {
	ScheduleToggled(action string, success bool)
}

// State is a point-in-time copy of the controller's cached view.
type State struct {
	ScheduleID  string                  `json:"schedule_id"`
	Status      *models.ScheduleStatus  `json:"status,omitempty"`
	Description string                  `json:"description"`
	History     []models.RunHistoryItem `json:"history"`
	Toggling    bool                    `json:"toggling"`
	Error       string                  `json:"error,omitempty"`
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	ScheduleID string
	// Cron and Timezone describe the job until the scheduler reports its own.
	Cron         string
	Timezone     string
	HistoryLimit int
	Recorder     ToggleRecorder
	// OnChange runs after every state transition, without locks held.
	OnChange func()
}

// Controller caches the status and run history of one recurring job and
// toggles it between active and paused.
type Controller struct {
	gateway Gateway
	cfg     ControllerConfig

	mu       sync.Mutex
	status   *models.ScheduleStatus
	history  []models.RunHistoryItem
	toggling bool
	errMsg   string
}

// NewController creates a controller for cfg.ScheduleID.
func NewController(gw Gateway, cfg ControllerConfig) *Controller {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.OnChange == nil {
		cfg.OnChange = func() {}
	}
	return &Controller{gateway: gw, cfg: cfg}
}

// RefreshStatus reloads the job status. On failure the last known status is
// kept and nothing is surfaced.
func (c *Controller) RefreshStatus(ctx context.Context) {
	status, err := c.gateway.GetStatus(ctx, c.cfg.ScheduleID)
	if err != nil {
		opRefreshStatus.Fail(err, "schedule_id", c.cfg.ScheduleID)
		return
	}

	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.cfg.OnChange()
}

// RefreshHistory reloads the recent runs. On failure the list is emptied and
// nothing is surfaced.
func (c *Controller) RefreshHistory(ctx context.Context) {
	runs, err := c.gateway.GetHistory(ctx, c.cfg.ScheduleID, c.cfg.HistoryLimit)
	if err != nil {
		opRefreshHistory.Fail(err, "schedule_id", c.cfg.ScheduleID)
		runs = nil
	}
	if len(runs) > c.cfg.HistoryLimit {
		runs = runs[:c.cfg.HistoryLimit]
	}

	c.mu.Lock()
	c.history = runs
	c.mu.Unlock()
	c.cfg.OnChange()
}

// Refresh reloads status and history concurrently.
func (c *Controller) Refresh(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.RefreshStatus(gctx)
		return nil
	})
	g.Go(func() error {
		c.RefreshHistory(gctx)
		return nil
	})
	_ = g.Wait()
}

// Toggle pauses the job when the cached status says it is active and resumes
// it otherwise. Whatever the outcome, the status is reloaded once afterwards.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	if c.toggling {
		c.mu.Unlock()
		return ErrToggleInFlight
	}
	c.toggling = true
	c.errMsg = ""
	active := c.status != nil && c.status.IsActive
	c.mu.Unlock()
	c.cfg.OnChange()

	action, call := "resume", c.gateway.Resume
	if active {
		action, call = "pause", c.gateway.Pause
	}

	err := call(ctx, c.cfg.ScheduleID)
	if c.cfg.Recorder != nil {
		c.cfg.Recorder.ScheduleToggled(action, err == nil)
	}

	var msg string
	if err != nil {
		msg = opToggle.Fail(err, "schedule_id", c.cfg.ScheduleID, "action", action)
	} else {
		slog.Info("schedule toggled", "schedule_id", c.cfg.ScheduleID, "action", action)
	}

	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()

	c.RefreshStatus(ctx)

	c.mu.Lock()
	c.toggling = false
	c.mu.Unlock()
	c.cfg.OnChange()
	if err != nil {
		return &ToggleError{Action: action, Message: msg, Err: err}
	}
	return nil
}

// DismissError clears the surfaced toggle failure.
func (c *Controller) DismissError() {
	c.mu.Lock()
	c.errMsg = ""
	c.mu.Unlock()
	c.cfg.OnChange()
}

// State returns a copy of the cached view.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		ScheduleID: c.cfg.ScheduleID,
		Toggling:   c.toggling,
		Error:      c.errMsg,
		History:    make([]models.RunHistoryItem, len(c.history)),
	}
	copy(st.History, c.history)

	cron := c.cfg.Cron
	if c.status != nil {
		s := *c.status
		if s.NextRun != nil {
			t := *s.NextRun
			s.NextRun = &t
		}
		if s.CronExpression == "" {
			s.CronExpression = c.cfg.Cron
		}
		if s.Timezone == "" {
			s.Timezone = c.cfg.Timezone
		}
		cron = s.CronExpression
		st.Status = &s
	}
	st.Description = CronToHuman(cron)
	return st
}

// NextRunIn reports the time until the next run, or false if unknown.
func (s State) NextRunIn(now time.Time) (time.Duration, bool) {
	if s.Status == nil || s.Status.NextRun == nil || !s.Status.IsActive {
		return 0, false
	}
	return s.Status.NextRun.Sub(now), true
}
