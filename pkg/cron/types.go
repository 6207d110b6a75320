package cron

import (
	"context"
	"time"
)

// ScheduleKind selects how a job's next run is computed.
type ScheduleKind string

const (
	ScheduleKindAt    ScheduleKind = "at"    // one-shot at a fixed time
	ScheduleKindEvery ScheduleKind = "every" // fixed interval, optionally anchored
	ScheduleKindCron  ScheduleKind = "cron"  // 5-field cron expression
)

// Schedule is a time specification for job execution.
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	// At is the run time for "at" schedules.
	At time.Time `json:"at,omitempty"`

	// Every is a Go duration string ("30s", "5m", "1h") for "every" schedules.
	Every string `json:"every,omitempty"`
	// Anchor, when set, aligns "every" runs to anchor + n*interval.
	Anchor *time.Time `json:"anchor,omitempty"`

	// Expr is the cron expression for "cron" schedules.
	Expr string `json:"expr,omitempty"`
	// TZ names the timezone the expression is evaluated in. Empty means local.
	TZ string `json:"tz,omitempty"`
}

// JobState tracks the runtime state of a job.
type JobState struct {
	NextRun           *time.Time `json:"next_run,omitempty"`
	RunningSince      *time.Time `json:"running_since,omitempty"`
	LastRun           *time.Time `json:"last_run,omitempty"`
	LastStatus        string     `json:"last_status,omitempty"` // "ok" or "error"
	LastError         string     `json:"last_error,omitempty"`
	LastDurationMs    int64      `json:"last_duration_ms,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors,omitempty"`
}

// Job is a persisted scheduled agent task.
type Job struct {
	ID             string    `json:"id"`
	Agent          string    `json:"agent,omitempty"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Enabled        bool      `json:"enabled"`
	DeleteAfterRun bool      `json:"delete_after_run,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Schedule       Schedule  `json:"schedule"`

	// Message is the synthetic user message the job's agent turn starts with.
	Message string `json:"message"`
	// MaxTurns caps the fired run's turn budget. Zero uses the runner default.
	MaxTurns int `json:"max_turns,omitempty"`

	State JobState `json:"state"`
}

// AddParams contains the fields for creating a job.
type AddParams struct {
	Agent          string   `json:"agent,omitempty"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Enabled        bool     `json:"enabled"`
	DeleteAfterRun bool     `json:"delete_after_run,omitempty"`
	Schedule       Schedule `json:"schedule"`
	Message        string   `json:"message"`
	MaxTurns       int      `json:"max_turns,omitempty"`
}

// JobPatch contains the updatable fields; nil fields are left unchanged.
type JobPatch struct {
	Name           *string   `json:"name,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Enabled        *bool     `json:"enabled,omitempty"`
	DeleteAfterRun *bool     `json:"delete_after_run,omitempty"`
	Schedule       *Schedule `json:"schedule,omitempty"`
	Message        *string   `json:"message,omitempty"`
	MaxTurns       *int      `json:"max_turns,omitempty"`
}

// EventAction identifies a job lifecycle event.
type EventAction string

const (
	EventActionAdded    EventAction = "added"
	EventActionUpdated  EventAction = "updated"
	EventActionDeleted  EventAction = "deleted"
	EventActionFinished EventAction = "finished"
)

// Event describes one job lifecycle change.
type Event struct {
	Action  EventAction `json:"action"`
	JobID   string      `json:"job_id"`
	Status  string      `json:"status,omitempty"`
	Error   string      `json:"error,omitempty"`
	NextRun *time.Time  `json:"next_run,omitempty"`
}

// RunFunc executes a due job's agent turn.
type RunFunc func(ctx context.Context, job *Job) error

// Options configures the scheduler service.
type Options struct {
	// StorePath is the path of the jobs JSON file.
	StorePath string
	// DefaultAgent names the agent used by jobs that do not set one.
	DefaultAgent string
	// RunAgentTurn fires a due job. Required unless Passive is set.
	RunAgentTurn RunFunc
	// OnEvent, when set, receives job lifecycle events.
	OnEvent func(Event)
	// Passive opens the store for inspection and edits without arming
	// timers or firing jobs.
	Passive bool
}
