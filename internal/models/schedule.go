package models

import "time"

// ScheduleStatus mirrors the remote state of the recurring generation job.
type ScheduleStatus struct {
	IsActive       bool       `json:"is_active"`
	NextRun        *time.Time `json:"next_run,omitempty"`
	CronExpression string     `json:"cron_expression,omitempty"`
	Timezone       string     `json:"timezone,omitempty"`
}

// RunStatus values reported by the scheduler for a single run.
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
	RunStatusRunning = "running"
)

// RunHistoryItem is one past execution of the scheduled job.
type RunHistoryItem struct {
	RunID        string     `json:"run_id"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Failed reports whether the run ended in an error.
func (r *RunHistoryItem) Failed() bool {
	return r.Status == RunStatusFailed || r.ErrorMessage != ""
}
