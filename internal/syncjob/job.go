// Package syncjob drives background city syncs: a queued job walks every
// discovery page for a city and platform and refreshes the cached
// partition in one pass.
package syncjob

import "time"

// Status represents the lifecycle state of a sync job.
type Status string

// Status values persisted in the job store.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// Parameters captures what a sync job should refresh.
type Parameters struct {
	City     string `json:"city"`
	Platform string `json:"platform"`
	Category string `json:"category,omitempty"`
}

// Counters tracks progress stats per job.
type Counters struct {
	PagesFetched int `json:"pages_fetched"`
	PagesFailed  int `json:"pages_failed"`
	Influencers  int `json:"influencers"`
}

// Job is the metadata persisted for each submitted sync request.
type Job struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Submitted  time.Time  `json:"submitted_at"`
	Started    *time.Time `json:"started_at,omitempty"`
	Finished   *time.Time `json:"finished_at,omitempty"`
	ErrorText  string     `json:"error_text,omitempty"`
	Parameters Parameters `json:"parameters"`
	Counters   Counters   `json:"counters"`
}

// Terminal reports whether the status ends the job's lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}
