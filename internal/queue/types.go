package queue

import (
	"errors"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
)

// Terminal reports whether a job in status s will not run again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusDead
}

// Job is one spawn request: run Args on NProcs ranks of a group of the named
// subworld.
type Job struct {
	ID          string     `json:"id"`
	Subworld    string     `json:"subworld"`
	NProcs      int        `json:"nprocs"`
	Args        string     `json:"args"`
	Trace       bool       `json:"trace"`
	Status      Status     `json:"status"`
	SubmittedBy string     `json:"submitted_by"`
	Ranks       []int      `json:"ranks,omitempty"`
	ExitStatus  *int       `json:"exit_status,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
}

type EnqueueRequest struct {
	Subworld    string
	NProcs      int
	Args        string
	Trace       bool
	SubmittedBy string
}

// Report is the status one rank returned for a job.
type Report struct {
	JobID      string
	Rank       int
	Status     int32
	ReportedAt time.Time
}

var ErrJobNotFound = errors.New("job not found")
