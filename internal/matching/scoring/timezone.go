package scoring

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// referenceInstant pins IANA offsets so scores do not drift with daylight saving.
var referenceInstant = time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)

var abbreviations = map[string]int{
	"UTC": 0, "GMT": 0, "Z": 0,
	"WET": 0, "BST": 60, "CET": 60, "CEST": 120, "EET": 120, "EEST": 180,
	"MSK": 180, "IST": 330, "SGT": 480, "HKT": 480, "CST": -360, "JST": 540,
	"KST": 540, "AEST": 600, "AEDT": 660, "NZST": 720,
	"EST": -300, "EDT": -240, "CDT": -300, "MST": -420, "MDT": -360,
	"PST": -480, "PDT": -420, "AKST": -540, "HST": -600,
	"ET": -300, "CT": -360, "MT": -420, "PT": -480,
}

// offsetMinutes resolves a declared timezone to a UTC offset in minutes.
// Accepted forms: IANA names, UTC/GMT with a signed offset, common abbreviations.
func offsetMinutes(tz string) (int, bool) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return 0, false
	}

	if loc, err := time.LoadLocation(tz); err == nil && strings.Contains(tz, "/") {
		_, offset := referenceInstant.In(loc).Zone()
		return offset / 60, true
	}

	upper := strings.ToUpper(tz)
	for _, prefix := range []string{"UTC", "GMT"} {
		if rest, ok := strings.CutPrefix(upper, prefix); ok && rest != "" {
			return parseSignedOffset(rest)
		}
	}
	if rest, ok := strings.CutPrefix(upper, "+"); ok {
		return parseSignedOffset("+" + rest)
	}
	if strings.HasPrefix(upper, "-") {
		return parseSignedOffset(upper)
	}

	if m, ok := abbreviations[upper]; ok {
		return m, true
	}
	return 0, false
}

// parseSignedOffset accepts "+5", "-03:30", "+0530".
func parseSignedOffset(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || (s[0] != '+' && s[0] != '-') {
		return 0, false
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	body := s[1:]

	var hours, minutes string
	switch {
	case strings.Contains(body, ":"):
		hours, minutes, _ = strings.Cut(body, ":")
	case len(body) == 4:
		hours, minutes = body[:2], body[2:]
	default:
		hours = body
	}

	h, err := strconv.Atoi(hours)
	if err != nil || h > 14 {
		return 0, false
	}
	m := 0
	if minutes != "" {
		if m, err = strconv.Atoi(minutes); err != nil || m >= 60 {
			return 0, false
		}
	}
	return sign * (h*60 + m), true
}
