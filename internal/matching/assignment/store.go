package assignment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/models"
)

// Store persists assignments and their per-component score rows.
type Store interface {
	// FindActive returns the non-deleted assignment for the pair, or nil.
	FindActive(ctx context.Context, founderID, advisorID string) (*models.Assignment, error)
	// Insert returns an error wrapping ErrAssignmentExists when an active
	// assignment for the pair already exists.
	Insert(ctx context.Context, a *models.Assignment) error
	UpsertCriteriaScores(ctx context.Context, assignmentID string, score models.MatchScore) error
	ListActiveForFounder(ctx context.Context, founderID string) ([]models.Assignment, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS advisor_founder_assignments (
    id           UUID PRIMARY KEY,
    founder_id   TEXT NOT NULL,
    advisor_id   TEXT NOT NULL,
    match_score  INTEGER NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending',
    assigned_by  TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at   TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_assignments_pair_active
    ON advisor_founder_assignments (founder_id, advisor_id)
    WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS matching_criteria_scores (
    assignment_id      UUID PRIMARY KEY REFERENCES advisor_founder_assignments (id),
    founder_id         TEXT NOT NULL,
    advisor_id         TEXT NOT NULL,
    sector_score       INTEGER NOT NULL,
    timezone_score     INTEGER NOT NULL,
    stage_score        INTEGER NOT NULL,
    availability_score INTEGER NOT NULL,
    experience_score   INTEGER NOT NULL,
    overall_score      INTEGER NOT NULL,
    reasoning          JSONB,
    algorithm_version  TEXT NOT NULL,
    calculated_at      TIMESTAMPTZ NOT NULL
);`

const (
	queryFindActive = `
		SELECT id, founder_id, advisor_id, match_score, status, assigned_by, created_at, updated_at
		FROM advisor_founder_assignments
		WHERE founder_id = $1 AND advisor_id = $2 AND deleted_at IS NULL
		LIMIT 1`

	queryInsert = `
		INSERT INTO advisor_founder_assignments
			(id, founder_id, advisor_id, match_score, status, assigned_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	queryUpsertCriteria = `
		INSERT INTO matching_criteria_scores
			(assignment_id, founder_id, advisor_id, sector_score, timezone_score, stage_score,
			 availability_score, experience_score, overall_score, reasoning, algorithm_version, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (assignment_id) DO UPDATE
		SET sector_score = EXCLUDED.sector_score,
		    timezone_score = EXCLUDED.timezone_score,
		    stage_score = EXCLUDED.stage_score,
		    availability_score = EXCLUDED.availability_score,
		    experience_score = EXCLUDED.experience_score,
		    overall_score = EXCLUDED.overall_score,
		    reasoning = EXCLUDED.reasoning,
		    algorithm_version = EXCLUDED.algorithm_version,
		    calculated_at = EXCLUDED.calculated_at`

	queryListActive = `
		SELECT id, founder_id, advisor_id, match_score, status, assigned_by, created_at, updated_at
		FROM advisor_founder_assignments
		WHERE founder_id = $1 AND deleted_at IS NULL
		ORDER BY match_score DESC, advisor_id`
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the assignment tables and the active-pair unique index.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return apperrors.NewQueryExecutionFailedError("ensure assignment schema", mapPostgresError(err))
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, founderID, advisorID string) (*models.Assignment, error) {
	a, err := scanAssignment(s.db.QueryRowContext(ctx, queryFindActive, founderID, advisorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("find active assignment", mapPostgresError(err))
	}
	return a, nil
}

func (s *PostgresStore) Insert(ctx context.Context, a *models.Assignment) error {
	_, err := s.db.ExecContext(ctx, queryInsert,
		a.ID, a.FounderID, a.AdvisorID, a.MatchScore, string(a.Status), a.AssignedBy, a.CreatedAt, a.UpdatedAt,
	)
	if err == nil {
		return nil
	}
	mapped := mapPostgresError(err)
	if errors.Is(mapped, apperrors.ErrAssignmentExists) {
		return apperrors.NewDuplicateAssignmentError(a.FounderID, a.AdvisorID)
	}
	return apperrors.NewAssignmentInsertFailedError(mapped)
}

func (s *PostgresStore) UpsertCriteriaScores(ctx context.Context, assignmentID string, score models.MatchScore) error {
	reasoning, err := json.Marshal(score.Reasoning)
	if err != nil {
		return fmt.Errorf("encode reasoning: %w", err)
	}
	c := score.Components
	if _, err := s.db.ExecContext(ctx, queryUpsertCriteria,
		assignmentID, score.FounderID, score.AdvisorID,
		c.Sector, c.Timezone, c.Stage, c.Availability, c.Experience,
		score.Overall, reasoning, score.AlgorithmVersion, score.CalculatedAt,
	); err != nil {
		return apperrors.NewQueryExecutionFailedError("upsert criteria scores", mapPostgresError(err))
	}
	return nil
}

func (s *PostgresStore) ListActiveForFounder(ctx context.Context, founderID string) ([]models.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, queryListActive, founderID)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list assignments", mapPostgresError(err))
	}
	defer rows.Close()

	var out []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan assignment", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list assignments", mapPostgresError(err))
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAssignment(row rowScanner) (*models.Assignment, error) {
	var a models.Assignment
	var status string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&a.ID, &a.FounderID, &a.AdvisorID, &a.MatchScore, &status, &a.AssignedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Status = models.AssignmentStatus(status)
	a.CreatedAt = createdAt
	a.UpdatedAt = updatedAt
	return &a, nil
}
