// Package profile reconciles the historical profile storage shapes into one
// canonical models.Profile per user.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/models"
)

type Resolver struct {
	store  Store
	logger logger.Logger
}

func NewResolver(store Store, log logger.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "profile-resolver"}),
	}
}

// Resolve returns the canonical profile for userID, or nil when the user row
// does not exist. Sources are tried newest first: the unified store, the
// legacy per-role tables, then the JSON blob on the users row.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", userID, err)
	}
	if user == nil {
		return nil, nil
	}

	p := &models.Profile{
		ID:       user.ID,
		Role:     models.Role(strings.ToLower(strings.TrimSpace(user.Role))),
		Email:    user.Email,
		FullName: strings.TrimSpace(user.FullName),
		Status:   user.Status,
		Source:   models.SourceIdentity,
	}

	unified, err := r.store.GetUnifiedProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", userID, err)
	}
	if unified != nil {
		if p.Role == "" {
			p.Role = unified.Role
		}
		if data := r.decode(userID, unified.ProfileData); !data.empty() {
			r.applyPayload(p, data)
			p.ProfileCompleted = unified.ProfileCompleted
			p.Source = models.SourceUnified
			return r.finish(p), nil
		}
	}

	switch p.Role {
	case models.RoleFounder:
		legacy, err := r.store.GetLegacyFounder(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", userID, err)
		}
		if legacy != nil {
			p.Founder = legacy
			p.Source = models.SourceLegacy
			return r.finish(p), nil
		}
	case models.RoleAdvisor:
		legacy, err := r.store.GetLegacyAdvisor(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", userID, err)
		}
		if legacy != nil {
			p.Advisor = legacy
			p.Source = models.SourceLegacy
			return r.finish(p), nil
		}
	}

	if data := r.decode(userID, user.ProfileData); !data.empty() {
		r.applyPayload(p, data)
		p.Source = models.SourceUsersBlob
	}
	return r.finish(p), nil
}

// Migrate writes the resolved profile into the unified store and sets the
// completeness flag. Running it again rewrites the same row.
func (r *Resolver) Migrate(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := r.Resolve(ctx, userID)
	if err != nil {
		return nil, apperrors.NewProfileMigrationFailedError(err)
	}
	if p == nil {
		return nil, apperrors.NewProfileNotFoundError(userID)
	}
	if p.Role != models.RoleFounder && p.Role != models.RoleAdvisor {
		return nil, fmt.Errorf("%w: user %s has role %q", apperrors.ErrInvalidProfile, userID, p.Role)
	}

	data, err := canonicalPayload(p)
	if err != nil {
		return nil, apperrors.NewProfileMigrationFailedError(err)
	}

	completed := p.ReadyForMatching()
	if err := r.store.UpsertUnifiedProfile(ctx, UnifiedRecord{
		UserID:           p.ID,
		Role:             p.Role,
		ProfileData:      data,
		ProfileCompleted: completed,
	}); err != nil {
		return nil, apperrors.NewProfileMigrationFailedError(err)
	}

	r.logger.Info("Profile migrated to unified store", map[string]interface{}{
		"userId":           p.ID,
		"role":             string(p.Role),
		"fromSource":       string(p.Source),
		"profileCompleted": completed,
	})

	p.Source = models.SourceUnified
	p.ProfileCompleted = completed
	return p, nil
}

// ListIDs returns the ids of every active user with the given role.
func (r *Resolver) ListIDs(ctx context.Context, role models.Role) ([]string, error) {
	return r.store.ListUserIDsByRole(ctx, role)
}

// Count returns the number of active users with the given role.
func (r *Resolver) Count(ctx context.Context, role models.Role) (int, error) {
	return r.store.CountUsersByRole(ctx, role)
}

// decode treats an unreadable payload as absent so the next source is tried.
func (r *Resolver) decode(userID string, raw []byte) payload {
	data, err := decodePayload(raw)
	if err != nil {
		r.logger.Warn("Ignoring malformed profile payload", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
		return nil
	}
	return data
}

func (r *Resolver) applyPayload(p *models.Profile, data payload) {
	if p.FullName == "" {
		p.FullName = data.str(nameKeys)
	}
	switch p.Role {
	case models.RoleFounder:
		p.Founder = data.founder()
	case models.RoleAdvisor:
		p.Advisor = data.advisor()
	}
}

func (r *Resolver) finish(p *models.Profile) *models.Profile {
	if p.FullName == "" && p.Email != "" {
		p.FullName = nameFromEmail(p.Email)
	}
	if p.Source != models.SourceUnified {
		p.ProfileCompleted = p.ReadyForMatching()
	}
	return p
}

func canonicalPayload(p *models.Profile) ([]byte, error) {
	doc := map[string]interface{}{"fullName": p.FullName}
	var attrs interface{}
	switch p.Role {
	case models.RoleFounder:
		if p.Founder != nil {
			attrs = p.Founder
		}
	case models.RoleAdvisor:
		if p.Advisor != nil {
			attrs = p.Advisor
		}
	}
	if attrs != nil {
		raw, err := json.Marshal(attrs)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
	}
	return json.Marshal(doc)
}
