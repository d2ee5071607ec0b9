package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
)

const CurrentVersion = "1.0"

// LoadRegistry reads a registry file. A missing file yields an empty registry.
func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &ActivityRegistry{Version: CurrentVersion}, nil
	}
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

func (r *ActivityRegistry) Find(taskType string) (Activity, bool) {
	for _, a := range r.Activities {
		if a.TaskType == taskType {
			return a, true
		}
	}
	return Activity{}, false
}

// Upsert replaces the activity with the same task type or appends it, keeping
// the list ordered by task type.
func (r *ActivityRegistry) Upsert(a Activity, now time.Time) {
	replaced := false
	for i := range r.Activities {
		if r.Activities[i].TaskType == a.TaskType {
			r.Activities[i] = a
			replaced = true
			break
		}
	}
	if !replaced {
		r.Activities = append(r.Activities, a)
	}
	sort.Slice(r.Activities, func(i, j int) bool { return r.Activities[i].TaskType < r.Activities[j].TaskType })
	r.LastUpdated = now.UTC().Format(time.RFC3339)
	if r.Version == "" {
		r.Version = CurrentVersion
	}
}

func (r *ActivityRegistry) Validate() error {
	seen := make(map[string]bool, len(r.Activities))
	for _, a := range r.Activities {
		if a.ID == "" || a.TaskType == "" {
			return fmt.Errorf("activity %q: id and taskType are required", a.DisplayName)
		}
		if seen[a.TaskType] {
			return fmt.Errorf("duplicate task type %q", a.TaskType)
		}
		seen[a.TaskType] = true
		if a.Timeout != "" {
			if _, err := time.ParseDuration(a.Timeout); err != nil {
				return fmt.Errorf("activity %s: invalid timeout %q", a.ID, a.Timeout)
			}
		}
	}
	return nil
}

func (r *ActivityRegistry) Save(path string) error {
	if err := r.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
