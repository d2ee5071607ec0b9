package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/models"
)

const (
	queryGetUser = `
		SELECT id, COALESCE(email, ''), COALESCE(full_name, ''), COALESCE(role, ''),
		       COALESCE(status, ''), profile_data
		FROM users
		WHERE id = $1`

	queryGetUnified = `
		SELECT user_id, role, profile_data, profile_completed
		FROM user_profiles
		WHERE user_id = $1`

	queryGetLegacyFounder = `
		SELECT COALESCE(company_name, ''), COALESCE(industry, ''), COALESCE(stage, ''),
		       COALESCE(challenge, ''), COALESCE(timezone, ''), availability
		FROM founder_profiles
		WHERE user_id = $1`

	queryGetLegacyAdvisor = `
		SELECT expertise_areas, COALESCE(experience_level, ''), COALESCE(years_experience, 0),
		       COALESCE(timezone, ''), COALESCE(challenge_preference, ''), availability
		FROM advisor_profiles
		WHERE user_id = $1`

	queryUpsertUnified = `
		INSERT INTO user_profiles (user_id, role, profile_data, profile_completed, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET role = EXCLUDED.role,
		    profile_data = EXCLUDED.profile_data,
		    profile_completed = EXCLUDED.profile_completed,
		    updated_at = NOW()`

	queryListByRole = `
		SELECT id FROM users
		WHERE role = $1 AND COALESCE(status, 'active') <> 'deleted'
		ORDER BY id`

	queryCountByRole = `
		SELECT COUNT(*) FROM users
		WHERE role = $1 AND COALESCE(status, 'active') <> 'deleted'`
)

// PostgresStore reads the users table, the canonical user_profiles table and
// the legacy founder_profiles/advisor_profiles tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	var rec UserRecord
	var data []byte
	err := s.db.QueryRowContext(ctx, queryGetUser, userID).Scan(
		&rec.ID, &rec.Email, &rec.FullName, &rec.Role, &rec.Status, &data,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get user", err)
	}
	rec.ProfileData = data
	return &rec, nil
}

func (s *PostgresStore) GetUnifiedProfile(ctx context.Context, userID string) (*UnifiedRecord, error) {
	var rec UnifiedRecord
	var role string
	err := s.db.QueryRowContext(ctx, queryGetUnified, userID).Scan(
		&rec.UserID, &role, &rec.ProfileData, &rec.ProfileCompleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get unified profile", err)
	}
	rec.Role = models.Role(role)
	return &rec, nil
}

func (s *PostgresStore) GetLegacyFounder(ctx context.Context, userID string) (*models.FounderAttributes, error) {
	var f models.FounderAttributes
	var availability []byte
	err := s.db.QueryRowContext(ctx, queryGetLegacyFounder, userID).Scan(
		&f.CompanyName, &f.Sector, &f.Stage, &f.Challenge, &f.Timezone, &availability,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get legacy founder", err)
	}
	f.Availability = decodeWindows(availability)
	return &f, nil
}

func (s *PostgresStore) GetLegacyAdvisor(ctx context.Context, userID string) (*models.AdvisorAttributes, error) {
	var a models.AdvisorAttributes
	var expertise, availability []byte
	err := s.db.QueryRowContext(ctx, queryGetLegacyAdvisor, userID).Scan(
		&expertise, &a.ExperienceLevel, &a.YearsExperience, &a.Timezone, &a.ChallengePreference, &availability,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get legacy advisor", err)
	}
	a.Expertise = decodeExpertise(expertise)
	a.Availability = decodeWindows(availability)
	return &a, nil
}

func (s *PostgresStore) UpsertUnifiedProfile(ctx context.Context, rec UnifiedRecord) error {
	if _, err := s.db.ExecContext(ctx, queryUpsertUnified,
		rec.UserID, string(rec.Role), rec.ProfileData, rec.ProfileCompleted,
	); err != nil {
		return apperrors.NewQueryExecutionFailedError("upsert unified profile", err)
	}
	return nil
}

func (s *PostgresStore) ListUserIDsByRole(ctx context.Context, role models.Role) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, queryListByRole, string(role))
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list users by role", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list users by role", err)
	}
	return ids, nil
}

func (s *PostgresStore) CountUsersByRole(ctx context.Context, role models.Role) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, queryCountByRole, string(role)).Scan(&n); err != nil {
		return 0, apperrors.NewQueryExecutionFailedError("count users by role", err)
	}
	return n, nil
}

// decodeWindows tolerates NULL and malformed availability columns.
func decodeWindows(raw []byte) []models.TimeWindow {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return parseWindows(v)
}

// decodeExpertise accepts a JSON array or a delimited text column.
func decodeExpertise(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	return splitList(strings.Trim(string(raw), "{}"))
}
