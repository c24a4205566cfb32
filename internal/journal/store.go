package journal

import "time"

// Status is the recorded lifecycle status of a job
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
)

// Job is one journaled engine run
type Job struct {
	PromptID   string              `json:"prompt_id"`
	ClientID   string              `json:"client_id"`
	Status     Status              `json:"status"`
	CacheHit   bool                `json:"cache_hit"`
	Outputs    map[string][]string `json:"outputs,omitempty"`
	ErrorKind  string              `json:"error_kind,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

// Outcome is the terminal result of a job
type Outcome struct {
	Status     Status
	CacheHit   bool
	Outputs    map[string][]string
	ErrorKind  string
	FinishedAt time.Time
}

// Store defines the interface for job journal persistence
type Store interface {
	// Start records a newly submitted job
	Start(job Job) error

	// Finish records the terminal outcome; only the first call per job wins
	Finish(promptID string, outcome Outcome) error

	// Get returns a job by prompt id, or nil if unknown
	Get(promptID string) (*Job, error)

	// Close releases resources
	Close() error
}
