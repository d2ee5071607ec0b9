package recalculatematches

import (
	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/pkg/registry"
)

// Activity describes this worker for the activity registry.
func Activity(cfg *Config) registry.Activity {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	status := "completed"
	if !cfg.Enabled {
		status = "disabled"
	}
	return registry.Activity{
		ID:                   TaskType,
		DisplayName:          "Recalculate Matches",
		Description:          "Migrates an updated profile and starts the founder, advisor or full match recalculation it requires",
		Category:             "matching",
		Version:              "1.0.0",
		TaskType:             TaskType,
		ImplementationStatus: status,
		InputSchema:          inputSchemaDoc,
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"jobId":     map[string]interface{}{"type": "string"},
				"jobType":   map[string]interface{}{"type": "string"},
				"jobStatus": map[string]interface{}{"type": "string"},
				"progress":  map[string]interface{}{"type": "integer"},
				"total":     map[string]interface{}{"type": "integer"},
			},
		},
		ErrorCodes: []string{
			string(apperrors.ErrCodeInvalidTrigger),
			string(apperrors.ErrCodeProfileNotFound),
			string(apperrors.ErrCodeProfileMigrationFailed),
			string(apperrors.ErrCodeJobStartFailed),
			string(apperrors.ErrCodeScoringBoundaryFailed),
		},
		Timeout: cfg.Timeout.String(),
		Retries: 3,
		Tags:    []string{"matching", "zeebe"},
	}
}
