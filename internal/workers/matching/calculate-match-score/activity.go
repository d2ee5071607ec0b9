package calculatematchscore

import (
	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/pkg/registry"
)

func Activity(cfg *Config) registry.Activity {
	if cfg == nil {
		cfg = LoadConfig(nil)
	}
	status := "completed"
	if !cfg.Enabled {
		status = "disabled"
	}
	return registry.Activity{
		ID:                   TaskType,
		DisplayName:          "Calculate Match Score",
		Description:          "Scores a single founder/advisor pair and reports whether it clears the quality threshold",
		Category:             "matching",
		Version:              "1.0.0",
		TaskType:             TaskType,
		ImplementationStatus: status,
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []string{"founderId", "advisorId"},
			"properties": map[string]interface{}{
				"founderId": map[string]interface{}{"type": "string"},
				"advisorId": map[string]interface{}{"type": "string"},
				"skipCache": map[string]interface{}{"type": "boolean"},
			},
		},
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"status":           map[string]interface{}{"type": "string", "enum": []string{StatusScored, StatusDisabled}},
				"matchScore":       map[string]interface{}{"type": "integer"},
				"matchFactors":     map[string]interface{}{"type": "object"},
				"matchReasoning":   map[string]interface{}{"type": "object"},
				"meetsThreshold":   map[string]interface{}{"type": "boolean"},
				"algorithmVersion": map[string]interface{}{"type": "string"},
				"fromCache":        map[string]interface{}{"type": "boolean"},
			},
		},
		ErrorCodes: []string{
			string(apperrors.ErrCodeValidationFailed),
			string(apperrors.ErrCodeProfileNotFound),
			string(apperrors.ErrCodeProfileResolutionFailed),
			string(apperrors.ErrCodeScoringFailed),
		},
		Timeout: cfg.Timeout.String(),
		Retries: 3,
		Tags:    []string{"matching", "zeebe"},
	}
}
