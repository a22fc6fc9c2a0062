package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"postforge/internal/schedule"
	"postforge/internal/studio"
)

// Schedule groups the recurring-job handlers.
type Schedule struct {
	studio *Studio
	now    func() time.Time
}

// NewSchedule creates a new Schedule handler group sharing the studio's
// session resolution.
func NewSchedule(s *Studio) *Schedule {
	return &Schedule{studio: s, now: time.Now}
}

// scheduleView is the cached schedule state plus the time until the next run.
type scheduleView struct {
	schedule.State
	NextRunInSeconds *int64 `json:"next_run_in_seconds,omitempty"`
}

func (h *Schedule) view(s *studio.Session) scheduleView {
	st := s.Schedule()
	v := scheduleView{State: st}
	if d, ok := st.NextRunIn(h.now()); ok {
		secs := int64(d / time.Second)
		v.NextRunInSeconds = &secs
	}
	return v
}

// Status returns the cached schedule view.
func (h *Schedule) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view(h.studio.session(r)))
}

// Refresh reloads status and run history from the scheduler.
func (h *Schedule) Refresh(w http.ResponseWriter, r *http.Request) {
	s := h.studio.session(r)
	s.RefreshSchedule(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, h.view(s))
}

// Toggle pauses an active job or resumes a paused one.
func (h *Schedule) Toggle(w http.ResponseWriter, r *http.Request) {
	s := h.studio.session(r)
	err := s.ToggleSchedule(context.WithoutCancel(r.Context()))
	var toggleErr *schedule.ToggleError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.view(s))
	case errors.Is(err, schedule.ErrToggleInFlight):
		writeError(w, http.StatusConflict, "schedule update already in progress")
	case errors.As(err, &toggleErr):
		writeError(w, http.StatusBadGateway, toggleErr.Message)
	default:
		writeError(w, http.StatusBadGateway, "scheduler call failed")
	}
}
