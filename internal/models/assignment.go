package models

import "time"

type AssignmentStatus string

const (
	AssignmentPending           AssignmentStatus = "pending"
	AssignmentActive            AssignmentStatus = "active"
	AssignmentCompleted         AssignmentStatus = "completed"
	AssignmentMediationRequired AssignmentStatus = "mediation_required"
	AssignmentCancelled         AssignmentStatus = "cancelled"
)

// AssignedByAlgorithm marks assignments created by the matching pipeline.
const AssignedByAlgorithm = "matching-algorithm"

// Assignment is the durable pairing of a founder and an advisor.
type Assignment struct {
	ID         string           `json:"id" db:"id"`
	FounderID  string           `json:"founderId" db:"founder_id"`
	AdvisorID  string           `json:"advisorId" db:"advisor_id"`
	MatchScore int              `json:"matchScore" db:"match_score"`
	Status     AssignmentStatus `json:"status" db:"status"`
	AssignedBy string           `json:"assignedBy" db:"assigned_by"`
	CreatedAt  time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time        `json:"updatedAt" db:"updated_at"`
	DeletedAt  *time.Time       `json:"deletedAt,omitempty" db:"deleted_at"`
}
