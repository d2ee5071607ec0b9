package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Task types of the Zeebe workers.
const (
	RecalculateMatchesWorker  = "recalculate-matches"
	CalculateMatchScoreWorker = "calculate-match-score"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml, applies
// environment overrides (DATABASE_POSTGRES_HOST style) and validates the result.
// A non-empty cfgFile replaces the search path.
func Load(cfgFile string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../../configs")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading base config: %w", err)
			}
		}

		env := os.Getenv("APP_ENVIRONMENT")
		if env == "" {
			env = "development"
		}
		v.SetConfigName("config." + env)
		_ = v.MergeInConfig()
	}

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "advisor-matching")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("camunda.broker_address", "")
	v.SetDefault("camunda.max_jobs_active", 10)
	v.SetDefault("camunda.timeout", 30000)
	v.SetDefault("camunda.request_timeout", 30000)

	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.max_connections", 25)
	v.SetDefault("database.postgres.max_idle", 5)
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("matching.algorithm_version", "2.0")
	v.SetDefault("matching.quality_threshold", 60)
	v.SetDefault("matching.cache_ttl", "24h")
	v.SetDefault("matching.job_retention", "1h")
	v.SetDefault("matching.cleanup_interval", "30m")
	v.SetDefault("matching.max_candidates", 0)

	v.SetDefault("scoring.base_url", "")
	v.SetDefault("scoring.api_key", "")
	v.SetDefault("scoring.timeout", "2m")
	v.SetDefault("scoring.batch_timeout", "30m")
	v.SetDefault("scoring.max_retries", 3)

	v.SetDefault("workers."+RecalculateMatchesWorker+".enabled", false)
	v.SetDefault("workers."+RecalculateMatchesWorker+".max_jobs_active", 5)
	v.SetDefault("workers."+RecalculateMatchesWorker+".timeout", 30000)
	v.SetDefault("workers."+RecalculateMatchesWorker+".max_retries", 3)

	v.SetDefault("workers."+CalculateMatchScoreWorker+".enabled", false)
	v.SetDefault("workers."+CalculateMatchScoreWorker+".max_jobs_active", 10)
	v.SetDefault("workers."+CalculateMatchScoreWorker+".timeout", 10000)
	v.SetDefault("workers."+CalculateMatchScoreWorker+".max_retries", 3)

	v.SetDefault("integrations.aws.region", "us-east-1")
	v.SetDefault("integrations.aws.sns.enabled", false)
	v.SetDefault("integrations.aws.sns.topic_arn", "")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "$") {
			continue
		}
		if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
			v.Set(key, expanded)
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Matching.AlgorithmVersion == "" {
		cfg.Matching.AlgorithmVersion = "2.0"
	}
	if cfg.Matching.QualityThreshold <= 0 {
		cfg.Matching.QualityThreshold = 60
	}
	if cfg.Matching.CacheTTL <= 0 {
		cfg.Matching.CacheTTL = 24 * time.Hour
	}
	if cfg.Matching.JobRetention <= 0 {
		cfg.Matching.JobRetention = time.Hour
	}
	if cfg.Matching.CleanupInterval <= 0 {
		cfg.Matching.CleanupInterval = 30 * time.Minute
	}

	if cfg.Scoring.Timeout <= 0 {
		cfg.Scoring.Timeout = 2 * time.Minute
	}
	if cfg.Scoring.BatchTimeout <= 0 {
		cfg.Scoring.BatchTimeout = 30 * time.Minute
	}
	if cfg.Scoring.MaxRetries < 0 {
		cfg.Scoring.MaxRetries = 0
	}

	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Matching.QualityThreshold > 100 {
		return fmt.Errorf("matching.quality_threshold must be within 0-100, got %d", cfg.Matching.QualityThreshold)
	}
	if anyWorkerEnabled(cfg) && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when a worker is enabled")
	}
	if cfg.Integrations.AWS.SNS.Enabled && cfg.Integrations.AWS.SNS.TopicARN == "" {
		return fmt.Errorf("integrations.aws.sns.topic_arn is required when sns is enabled")
	}
	return nil
}

func anyWorkerEnabled(cfg *Config) bool {
	for _, w := range cfg.Workers {
		if w.Enabled {
			return true
		}
	}
	return false
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig returns the worker's settings, falling back to disabled defaults.
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       false,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}
