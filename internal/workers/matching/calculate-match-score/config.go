package calculatematchscore

import (
	"time"

	"advisor-matching/internal/common/config"
	"advisor-matching/internal/models"
)

type Config struct {
	Enabled          bool
	MaxJobsActive    int
	Timeout          time.Duration
	QualityThreshold int
}

func LoadConfig(appCfg *config.Config) *Config {
	cfg := &Config{
		Enabled:          true,
		MaxJobsActive:    10,
		Timeout:          10 * time.Second,
		QualityThreshold: models.QualityThreshold,
	}
	if appCfg == nil {
		return cfg
	}
	if appCfg.Matching.QualityThreshold > 0 {
		cfg.QualityThreshold = appCfg.Matching.QualityThreshold
	}
	if wc, ok := appCfg.Workers[TaskType]; ok {
		cfg.Enabled = wc.Enabled
		if wc.MaxJobsActive > 0 {
			cfg.MaxJobsActive = wc.MaxJobsActive
		}
		if wc.Timeout > 0 {
			cfg.Timeout = config.GetDuration(wc.Timeout)
		}
	}
	return cfg
}
