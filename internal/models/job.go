package models

import "time"

type JobType string

const (
	JobFullRecalculation JobType = "full_recalculation"
	JobFounderUpdate     JobType = "founder_update"
	JobAdvisorUpdate     JobType = "advisor_update"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

const (
	JobRetention       = time.Hour
	JobCleanupInterval = 30 * time.Minute
)

// Job tracks one recalculation run. CompletedAt is set only once Status is terminal.
type Job struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Total       int        `json:"total"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	FounderID   string     `json:"founderId,omitempty"`
	AdvisorID   string     `json:"advisorId,omitempty"`
}

func (j Job) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
