package profile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"advisor-matching/internal/models"
)

// Profile payloads were written by three generations of forms, so the same
// attribute appears under several keys. The first non-empty alias wins.
var (
	nameKeys         = []string{"fullName", "full_name", "name", "displayName", "display_name"}
	companyKeys      = []string{"companyName", "company_name", "company", "startup_name"}
	sectorKeys       = []string{"sector", "industry", "company_sector", "companySector"}
	stageKeys        = []string{"stage", "companyStage", "company_stage", "funding_stage"}
	challengeKeys    = []string{"challenge", "primary_challenge", "primaryChallenge", "challenge_narrative", "challenges"}
	timezoneKeys     = []string{"timezone", "time_zone", "timeZone", "tz"}
	availabilityKeys = []string{"availability", "available_times", "availableTimes"}
	expertiseKeys    = []string{"expertise", "expertise_areas", "expertiseAreas", "sectors", "industries"}
	levelKeys        = []string{"experienceLevel", "experience_level", "seniority"}
	yearsKeys        = []string{"yearsExperience", "years_experience", "experience_years"}
	stagePrefKeys    = []string{"challengePreference", "challenge_preference", "stage_preference", "preferred_stage", "preferredStage"}
)

type payload map[string]interface{}

func decodePayload(raw []byte) (payload, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile payload: %w", err)
	}
	// Some writers nested the attributes one level down.
	if nested, ok := p["profile"].(map[string]interface{}); ok {
		for k, v := range nested {
			if _, exists := p[k]; !exists {
				p[k] = v
			}
		}
	}
	return p, nil
}

func (p payload) empty() bool {
	return len(p) == 0
}

func (p payload) str(keys []string) string {
	for _, k := range keys {
		switch v := p[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case []interface{}:
			if list := toStrings(v); len(list) > 0 {
				return strings.Join(list, ", ")
			}
		}
	}
	return ""
}

func (p payload) list(keys []string) []string {
	for _, k := range keys {
		switch v := p[k].(type) {
		case []interface{}:
			if list := toStrings(v); len(list) > 0 {
				return list
			}
		case string:
			if list := splitList(v); len(list) > 0 {
				return list
			}
		}
	}
	return nil
}

func (p payload) integer(keys []string) int {
	for _, k := range keys {
		switch v := p[k].(type) {
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(v, "+"))); err == nil {
				return n
			}
		}
	}
	return 0
}

func (p payload) windows(keys []string) []models.TimeWindow {
	for _, k := range keys {
		if w := parseWindows(p[k]); len(w) > 0 {
			return w
		}
	}
	return nil
}

func (p payload) founder() *models.FounderAttributes {
	return &models.FounderAttributes{
		CompanyName:  p.str(companyKeys),
		Sector:       p.str(sectorKeys),
		Stage:        p.str(stageKeys),
		Challenge:    p.str(challengeKeys),
		Timezone:     p.str(timezoneKeys),
		Availability: p.windows(availabilityKeys),
	}
}

func (p payload) advisor() *models.AdvisorAttributes {
	return &models.AdvisorAttributes{
		Expertise:           p.list(expertiseKeys),
		ExperienceLevel:     p.str(levelKeys),
		YearsExperience:     p.integer(yearsKeys),
		Timezone:            p.str(timezoneKeys),
		ChallengePreference: p.str(stagePrefKeys),
		Availability:        p.windows(availabilityKeys),
	}
}

// parseWindows accepts either a list of {day,start,end} objects or a
// day-keyed object of "HH:MM-HH:MM" ranges.
func parseWindows(v interface{}) []models.TimeWindow {
	var out []models.TimeWindow
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			w := models.TimeWindow{
				Day:   strings.ToLower(asString(m["day"])),
				Start: asString(m["start"]),
				End:   asString(m["end"]),
			}
			if w.Day != "" && w.Start != "" && w.End != "" {
				out = append(out, w)
			}
		}
	case map[string]interface{}:
		days := make([]string, 0, len(t))
		for day := range t {
			days = append(days, day)
		}
		sort.Strings(days)
		for _, day := range days {
			ranges, ok := t[day].([]interface{})
			if !ok {
				ranges = []interface{}{t[day]}
			}
			for _, r := range ranges {
				start, end, found := strings.Cut(asString(r), "-")
				if !found {
					continue
				}
				out = append(out, models.TimeWindow{
					Day:   strings.ToLower(day),
					Start: strings.TrimSpace(start),
					End:   strings.TrimSpace(end),
				})
			}
		}
	}
	return out
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func toStrings(items []interface{}) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// nameFromEmail turns "jane.doe@example.com" into "Jane Doe".
func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	local, _, _ = strings.Cut(local, "+")
	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
