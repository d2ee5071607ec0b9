package profile

import (
	"context"

	"advisor-matching/internal/models"
)

// UserRecord is the identity row every user has.
type UserRecord struct {
	ID          string
	Email       string
	FullName    string
	Role        string
	Status      string
	ProfileData []byte
}

// UnifiedRecord is a row of the canonical profile store.
type UnifiedRecord struct {
	UserID           string
	Role             models.Role
	ProfileData      []byte
	ProfileCompleted bool
}

// Store is the data access the resolver needs. Lookups return nil, nil when
// the row does not exist.
type Store interface {
	GetUser(ctx context.Context, userID string) (*UserRecord, error)
	GetUnifiedProfile(ctx context.Context, userID string) (*UnifiedRecord, error)
	GetLegacyFounder(ctx context.Context, userID string) (*models.FounderAttributes, error)
	GetLegacyAdvisor(ctx context.Context, userID string) (*models.AdvisorAttributes, error)
	UpsertUnifiedProfile(ctx context.Context, rec UnifiedRecord) error
	ListUserIDsByRole(ctx context.Context, role models.Role) ([]string, error)
	CountUsersByRole(ctx context.Context, role models.Role) (int, error)
}
