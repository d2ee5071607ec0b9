package profile

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/models"
)

// ==========================
// Test Helpers
// ==========================

type fakeStore struct {
	users    map[string]*UserRecord
	unified  map[string]*UnifiedRecord
	founders map[string]*models.FounderAttributes
	advisors map[string]*models.AdvisorAttributes
	upserts  int
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*UserRecord{},
		unified:  map[string]*UnifiedRecord{},
		founders: map[string]*models.FounderAttributes{},
		advisors: map[string]*models.AdvisorAttributes{},
	}
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*UserRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

func (f *fakeStore) GetUnifiedProfile(_ context.Context, id string) (*UnifiedRecord, error) {
	return f.unified[id], nil
}

func (f *fakeStore) GetLegacyFounder(_ context.Context, id string) (*models.FounderAttributes, error) {
	return f.founders[id], nil
}

func (f *fakeStore) GetLegacyAdvisor(_ context.Context, id string) (*models.AdvisorAttributes, error) {
	return f.advisors[id], nil
}

func (f *fakeStore) UpsertUnifiedProfile(_ context.Context, rec UnifiedRecord) error {
	f.upserts++
	r := rec
	f.unified[rec.UserID] = &r
	return nil
}

func (f *fakeStore) ListUserIDsByRole(_ context.Context, role models.Role) ([]string, error) {
	var ids []string
	for id, u := range f.users {
		if u.Role == string(role) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) CountUsersByRole(ctx context.Context, role models.Role) (int, error) {
	ids, err := f.ListUserIDsByRole(ctx, role)
	return len(ids), err
}

func newTestResolver(t *testing.T, store Store) *Resolver {
	return NewResolver(store, logger.NewTestLogger(t))
}

// ==========================
// Resolve Tests
// ==========================

func TestResolve_MissingUserIsNotAnError(t *testing.T) {
	r := newTestResolver(t, newFakeStore())

	p, err := r.Resolve(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestResolve_PrefersUnifiedStore(t *testing.T) {
	store := newFakeStore()
	store.users["f-1"] = &UserRecord{ID: "f-1", Email: "ada@example.com", Role: "founder"}
	store.unified["f-1"] = &UnifiedRecord{
		UserID:           "f-1",
		Role:             models.RoleFounder,
		ProfileData:      []byte(`{"sector":"fintech","stage":"seed","challenge":"hiring"}`),
		ProfileCompleted: true,
	}
	store.founders["f-1"] = &models.FounderAttributes{Sector: "legacy-sector"}

	p, err := newTestResolver(t, store).Resolve(context.Background(), "f-1")
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, models.SourceUnified, p.Source)
	assert.Equal(t, "fintech", p.Founder.Sector)
	assert.True(t, p.ProfileCompleted)
	assert.Equal(t, "Ada", p.FullName)
}

func TestResolve_FallsBackToLegacyTables(t *testing.T) {
	store := newFakeStore()
	store.users["a-1"] = &UserRecord{ID: "a-1", Email: "grace.hopper@example.com", Role: "Advisor"}
	store.advisors["a-1"] = &models.AdvisorAttributes{
		Expertise:           []string{"fintech"},
		ExperienceLevel:     "senior",
		Timezone:            "UTC",
		ChallengePreference: "seed",
	}

	p, err := newTestResolver(t, store).Resolve(context.Background(), "a-1")
	require.NoError(t, err)

	assert.Equal(t, models.RoleAdvisor, p.Role)
	assert.Equal(t, models.SourceLegacy, p.Source)
	assert.Equal(t, "Grace Hopper", p.FullName)
	assert.True(t, p.ProfileCompleted)
}

func TestResolve_FallsBackToUsersBlobWithAliases(t *testing.T) {
	store := newFakeStore()
	store.users["a-2"] = &UserRecord{
		ID:   "a-2",
		Role: "advisor",
		ProfileData: []byte(`{
			"name": "Linus",
			"expertise_areas": "saas, devtools",
			"experience_level": "executive",
			"years_experience": "20+",
			"time_zone": "Europe/Berlin",
			"availability": {"monday": ["09:00-11:00"]}
		}`),
	}

	p, err := newTestResolver(t, store).Resolve(context.Background(), "a-2")
	require.NoError(t, err)

	assert.Equal(t, models.SourceUsersBlob, p.Source)
	assert.Equal(t, "Linus", p.FullName)
	assert.Equal(t, []string{"saas", "devtools"}, p.Advisor.Expertise)
	assert.Equal(t, 20, p.Advisor.YearsExperience)
	assert.Equal(t, "Europe/Berlin", p.Advisor.Timezone)
	require.Len(t, p.Advisor.Availability, 1)
	assert.Equal(t, models.TimeWindow{Day: "monday", Start: "09:00", End: "11:00"}, p.Advisor.Availability[0])
	assert.False(t, p.ProfileCompleted, "challenge preference is missing")
}

func TestResolve_MalformedUnifiedPayloadFallsThrough(t *testing.T) {
	store := newFakeStore()
	store.users["f-2"] = &UserRecord{ID: "f-2", Role: "founder", Email: "x@example.com"}
	store.unified["f-2"] = &UnifiedRecord{UserID: "f-2", ProfileData: []byte(`{not json`)}
	store.founders["f-2"] = &models.FounderAttributes{Sector: "health"}

	p, err := newTestResolver(t, store).Resolve(context.Background(), "f-2")
	require.NoError(t, err)
	assert.Equal(t, models.SourceLegacy, p.Source)
	assert.Equal(t, "health", p.Founder.Sector)
}

func TestResolve_IdentityOnlyProfile(t *testing.T) {
	store := newFakeStore()
	store.users["f-3"] = &UserRecord{ID: "f-3", Role: "founder", Email: "solo@example.com"}

	p, err := newTestResolver(t, store).Resolve(context.Background(), "f-3")
	require.NoError(t, err)
	assert.Equal(t, models.SourceIdentity, p.Source)
	assert.Nil(t, p.Founder)
	assert.False(t, p.ReadyForMatching())
}

func TestResolve_PropagatesStorageErrors(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")

	_, err := newTestResolver(t, store).Resolve(context.Background(), "f-1")
	assert.ErrorContains(t, err, "connection refused")
}

// ==========================
// Migrate Tests
// ==========================

func TestMigrate_IsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.users["f-1"] = &UserRecord{ID: "f-1", Role: "founder", Email: "ada@example.com"}
	store.founders["f-1"] = &models.FounderAttributes{
		Sector:    "fintech",
		Stage:     "seed",
		Challenge: "first hires",
		Availability: []models.TimeWindow{
			{Day: "tuesday", Start: "10:00", End: "12:00"},
		},
	}
	r := newTestResolver(t, store)

	first, err := r.Migrate(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, models.SourceUnified, first.Source)
	assert.True(t, first.ProfileCompleted)
	firstPayload := string(store.unified["f-1"].ProfileData)

	second, err := r.Migrate(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, first.Founder, second.Founder)
	assert.Equal(t, firstPayload, string(store.unified["f-1"].ProfileData))
	assert.Equal(t, 2, store.upserts)

	resolved, err := r.Resolve(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, models.SourceUnified, resolved.Source)
	assert.Equal(t, first.Founder, resolved.Founder)
}

func TestMigrate_UnknownUser(t *testing.T) {
	_, err := newTestResolver(t, newFakeStore()).Migrate(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrProfileNotFound)
}

func TestMigrate_RejectsNonMatchingRole(t *testing.T) {
	store := newFakeStore()
	store.users["admin-1"] = &UserRecord{ID: "admin-1", Role: "admin"}

	_, err := newTestResolver(t, store).Migrate(context.Background(), "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidProfile)
	assert.Equal(t, 0, store.upserts)
}

func TestNameFromEmail(t *testing.T) {
	assert.Equal(t, "Jane Doe", nameFromEmail("jane.doe@example.com"))
	assert.Equal(t, "Ops Team", nameFromEmail("ops_team+alerts@example.com"))
	assert.Equal(t, "", nameFromEmail(""))

	accented := nameFromEmail("élise.dupont@example.com")
	assert.Equal(t, "Élise Dupont", accented)
	assert.True(t, utf8.ValidString(accented))
	assert.Equal(t, "Øystein", nameFromEmail("øystein@example.no"))
}
