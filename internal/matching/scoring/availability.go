package scoring

import (
	"strconv"
	"strings"

	"advisor-matching/internal/models"
)

const minutesPerWeek = 7 * 24 * 60

var dayIndex = map[string]int{
	"monday": 0, "mon": 0,
	"tuesday": 1, "tue": 1, "tues": 1,
	"wednesday": 2, "wed": 2,
	"thursday": 3, "thu": 3, "thurs": 3,
	"friday": 4, "fri": 4,
	"saturday": 5, "sat": 5,
	"sunday": 6, "sun": 6,
}

// interval is a half-open range of minutes since Monday 00:00 UTC.
type interval struct {
	start, end int
}

// weeklyIntervals converts windows declared in a local timezone to UTC
// minute-of-week intervals. Unparseable windows are dropped.
func weeklyIntervals(windows []models.TimeWindow, offset int) []interval {
	var out []interval
	for _, w := range windows {
		day, ok := dayIndex[strings.ToLower(strings.TrimSpace(w.Day))]
		if !ok {
			continue
		}
		start, ok1 := clockMinutes(w.Start)
		end, ok2 := clockMinutes(w.End)
		if !ok1 || !ok2 || end <= start {
			continue
		}
		base := day*24*60 - offset
		out = append(out, wrap(base+start, base+end)...)
	}
	return out
}

// wrap folds an interval that crosses the week boundary into range.
func wrap(start, end int) []interval {
	length := end - start
	start = ((start % minutesPerWeek) + minutesPerWeek) % minutesPerWeek
	end = start + length
	if end <= minutesPerWeek {
		return []interval{{start, end}}
	}
	return []interval{{start, minutesPerWeek}, {0, end - minutesPerWeek}}
}

func clockMinutes(s string) (int, bool) {
	h, m, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, false
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 24 {
		return 0, false
	}
	mins, err := strconv.Atoi(m)
	if err != nil || mins < 0 || mins >= 60 || hours*60+mins > 24*60 {
		return 0, false
	}
	return hours*60 + mins, true
}

func totalMinutes(ivs []interval) int {
	n := 0
	for _, iv := range ivs {
		n += iv.end - iv.start
	}
	return n
}

// overlapMinutes sums pairwise overlap. Intervals within one side are
// assumed not to overlap each other.
func overlapMinutes(a, b []interval) int {
	n := 0
	for _, x := range a {
		for _, y := range b {
			lo, hi := max(x.start, y.start), min(x.end, y.end)
			if hi > lo {
				n += hi - lo
			}
		}
	}
	return n
}
