package models

import "strings"

type Role string

const (
	RoleFounder Role = "founder"
	RoleAdvisor Role = "advisor"
)

// ProfileSource records which storage generation a profile was resolved from.
type ProfileSource string

const (
	SourceUnified   ProfileSource = "unified"
	SourceLegacy    ProfileSource = "legacy"
	SourceUsersBlob ProfileSource = "users_blob"
	SourceIdentity  ProfileSource = "identity"
)

// Profile is the canonical, role-aware view of a user used by matching.
type Profile struct {
	ID               string             `json:"id" db:"id"`
	Role             Role               `json:"role" db:"role"`
	Email            string             `json:"email" db:"email"`
	FullName         string             `json:"fullName" db:"full_name"`
	Status           string             `json:"status,omitempty" db:"status"`
	Founder          *FounderAttributes `json:"founder,omitempty"`
	Advisor          *AdvisorAttributes `json:"advisor,omitempty"`
	ProfileCompleted bool               `json:"profileCompleted" db:"profile_completed"`
	Source           ProfileSource      `json:"source"`
}

type FounderAttributes struct {
	CompanyName  string       `json:"companyName,omitempty"`
	Sector       string       `json:"sector,omitempty"`
	Stage        string       `json:"stage,omitempty"`
	Challenge    string       `json:"challenge,omitempty"`
	Timezone     string       `json:"timezone,omitempty"`
	Availability []TimeWindow `json:"availability,omitempty"`
}

type AdvisorAttributes struct {
	Expertise           []string     `json:"expertise,omitempty"`
	ExperienceLevel     string       `json:"experienceLevel,omitempty"`
	YearsExperience     int          `json:"yearsExperience,omitempty"`
	Timezone            string       `json:"timezone,omitempty"`
	ChallengePreference string       `json:"challengePreference,omitempty"`
	Availability        []TimeWindow `json:"availability,omitempty"`
}

// TimeWindow is a weekly recurring slot expressed in the owner's timezone.
type TimeWindow struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// ReadyForMatching reports whether every role-specific required field is set.
func (p *Profile) ReadyForMatching() bool {
	if p == nil {
		return false
	}
	switch p.Role {
	case RoleFounder:
		f := p.Founder
		return f != nil && notBlank(f.Sector) && notBlank(f.Stage) && notBlank(f.Challenge)
	case RoleAdvisor:
		a := p.Advisor
		return a != nil && len(a.Expertise) > 0 && notBlank(a.ExperienceLevel) &&
			notBlank(a.Timezone) && notBlank(a.ChallengePreference)
	}
	return false
}

func notBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}
