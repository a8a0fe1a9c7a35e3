// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Queue names known to the pipeline. Every one gets defaults even when absent from YAML.
var QueueNames = []string{"embedding", "application", "employer", "interview-prep", "salary-prediction"}

// Load reads configs/config.yaml, merges configs/config.<APP_ENVIRONMENT>.yaml and
// applies environment overrides (database.redis.address -> DATABASE_REDIS_ADDRESS).
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
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

// findProjectRoot walks up from the working directory looking for go.mod.
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

// expandEnvVars resolves ${VAR} placeholders in string values.
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

// overrideEmptyConfig fills secrets that are conventionally provided under short env names.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Gemini.APIKey == "" {
		if val := os.Getenv("GOOGLE_API_KEY"); val != "" {
			cfg.Gemini.APIKey = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Address == "" {
		if val := os.Getenv("REDIS_URL"); val != "" {
			cfg.Database.Redis.Address = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "match-pipeline"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.PoolSize == 0 {
		cfg.Database.Redis.PoolSize = 20
	}

	if cfg.Queues == nil {
		cfg.Queues = make(map[string]QueueConfig)
	}
	for _, name := range QueueNames {
		q := cfg.Queues[name]
		if q.Concurrency == 0 {
			q.Concurrency = 3
		}
		if q.LockDuration == 0 {
			q.LockDuration = 120000
		}
		if q.Attempts == 0 {
			q.Attempts = 1
		}
		if q.BackoffType == "" {
			q.BackoffType = "exponential"
		}
		if q.BackoffDelay == 0 {
			q.BackoffDelay = 2000
		}
		if q.MaxStalled == 0 {
			q.MaxStalled = 1
		}
		if q.Block == 0 {
			q.Block = 5000
		}
		if q.ReclaimInterval == 0 {
			q.ReclaimInterval = 30000
		}
		cfg.Queues[name] = q
	}

	for key, worker := range cfg.Workers {
		if worker.Timeout == 0 {
			worker.Timeout = 120000
		}
		cfg.Workers[key] = worker
	}

	if cfg.RateLimit.ID == "" {
		cfg.RateLimit.ID = "gemini-api-limit"
	}
	if cfg.RateLimit.MinTime == 0 {
		cfg.RateLimit.MinTime = 5000
	}
	if cfg.RateLimit.MaxConcurrent == 0 {
		cfg.RateLimit.MaxConcurrent = 1
	}
	if cfg.RateLimit.Lease == 0 {
		cfg.RateLimit.Lease = 120000
	}
	if cfg.RateLimit.PollInterval == 0 {
		cfg.RateLimit.PollInterval = 250
	}

	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.5-flash"
	}
	if cfg.Gemini.EmbeddingModel == "" {
		cfg.Gemini.EmbeddingModel = "gemini-embedding-001"
	}
	if cfg.Gemini.Dimensions == 0 {
		cfg.Gemini.Dimensions = 768
	}
	if cfg.Gemini.Timeout == 0 {
		cfg.Gemini.Timeout = 60000
	}

	if cfg.Salary.SimilarityThreshold == 0 {
		cfg.Salary.SimilarityThreshold = 70
	}
	if len(cfg.Salary.Percentiles) == 0 {
		cfg.Salary.Percentiles = []float64{25, 50, 75}
	}
	if cfg.Salary.HighSample == 0 {
		cfg.Salary.HighSample = 80
	}
	if cfg.Salary.MediumSample == 0 {
		cfg.Salary.MediumSample = 30
	}
	if cfg.Salary.PoolLimit == 0 {
		cfg.Salary.PoolLimit = 2000
	}
	if cfg.Salary.TopSkills == 0 {
		cfg.Salary.TopSkills = 3
	}

	if cfg.Search.JobsIndex == "" {
		cfg.Search.JobsIndex = "jobs"
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = 10000
	}

	if cfg.Sweeper.Interval == 0 {
		cfg.Sweeper.Interval = 60000
	}
	if cfg.Sweeper.StuckAfter == 0 {
		cfg.Sweeper.StuckAfter = 900000
	}

	if cfg.Notifications.AWSRegion == "" {
		cfg.Notifications.AWSRegion = "us-east-1"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":8080"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
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
	if len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required")
	}

	for name, q := range cfg.Queues {
		if q.Concurrency < 1 {
			return fmt.Errorf("queues.%s.concurrency must be at least 1", name)
		}
		if q.BackoffType != "fixed" && q.BackoffType != "exponential" {
			return fmt.Errorf("queues.%s.backoff_type must be fixed or exponential", name)
		}
	}

	if cfg.RateLimit.MaxConcurrent < 1 {
		return fmt.Errorf("rate_limit.max_concurrent must be at least 1")
	}
	if len(cfg.Salary.Percentiles) != 3 {
		return fmt.Errorf("salary.percentiles must list exactly 3 values (min, median, max)")
	}
	if cfg.Salary.MediumSample > cfg.Salary.HighSample {
		return fmt.Errorf("salary.medium_sample must not exceed salary.high_sample")
	}

	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
	}
	if cfg.Notifications.SES.Enabled && (cfg.Notifications.SES.From == "" || cfg.Notifications.SES.To == "") {
		return fmt.Errorf("notifications.ses.from and notifications.ses.to are required when ses is enabled")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves a kind's worker configuration, enabled by default.
func GetWorkerConfig(cfg *Config, kind string) WorkerConfig {
	if worker, exists := cfg.Workers[kind]; exists {
		return worker
	}
	return WorkerConfig{Enabled: true, Timeout: 120000}
}

// IsWorkerEnabled checks if a job kind is enabled.
func IsWorkerEnabled(cfg *Config, kind string) bool {
	return GetWorkerConfig(cfg, kind).Enabled
}
