package recalculatematches

import "advisor-matching/internal/common/validation"

const (
	TriggerFounderProfileUpdated = "founder_profile_updated"
	TriggerAdvisorProfileUpdated = "advisor_profile_updated"
	TriggerScheduled             = "scheduled_recalculation"
)

type Input struct {
	Trigger string `json:"trigger"`
	UserID  string `json:"userId,omitempty"`
}

type Output struct {
	JobID     string `json:"jobId"`
	JobType   string `json:"jobType"`
	JobStatus string `json:"jobStatus"`
	Progress  int    `json:"progress"`
	Total     int    `json:"total"`
}

var inputSchemaDoc = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"trigger"},
	"properties": map[string]interface{}{
		"trigger": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{TriggerFounderProfileUpdated, TriggerAdvisorProfileUpdated, TriggerScheduled},
		},
		"userId": map[string]interface{}{"type": "string"},
	},
}

var inputSchema = validation.MustCompile(inputSchemaDoc)
