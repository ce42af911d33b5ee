package syncjob

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrJobNotFound is returned when a job ID is unknown.
var ErrJobNotFound = errors.New("sync job not found")

// Store keeps job metadata in memory. Jobs are short-lived operational
// records, so a process-local store is sufficient.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]Job)}
}

// Create stores a new job in queued status.
func (s *Store) Create(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("sync job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateStatus moves a job through its lifecycle and records counters.
func (s *Store) UpdateStatus(_ context.Context, jobID string, status Status, errText string, counters Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := time.Now().UTC()
	if status == StatusRunning && job.Started == nil {
		job.Started = &now
	}
	if status.Terminal() {
		finished := now
		job.Finished = &finished
	}
	s.jobs[jobID] = job
	return nil
}

// Get fetches a job by ID.
func (s *Store) Get(_ context.Context, jobID string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}
