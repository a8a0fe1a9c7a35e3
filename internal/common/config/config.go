// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Queues        map[string]QueueConfig  `mapstructure:"queues"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	RateLimit     RateLimitConfig         `mapstructure:"rate_limit"`
	Gemini        GeminiConfig            `mapstructure:"gemini"`
	Salary        SalaryConfig            `mapstructure:"salary"`
	Search        SearchConfig            `mapstructure:"search"`
	Sweeper       SweeperConfig           `mapstructure:"sweeper"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Metrics       MetricsConfig           `mapstructure:"metrics"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	// Instance names this replica in every consumer group. It must survive
	// restarts (a StatefulSet pod name, say); empty means the hostname.
	Instance string `mapstructure:"instance"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	MaxRetries int      `mapstructure:"max_retries"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// QueueConfig tunes one named queue and its consumer loop.
type QueueConfig struct {
	Concurrency     int    `mapstructure:"concurrency"`
	LockDuration    int    `mapstructure:"lock_duration"` // milliseconds
	Attempts        int    `mapstructure:"attempts"`
	BackoffType     string `mapstructure:"backoff_type"`  // fixed or exponential
	BackoffDelay    int    `mapstructure:"backoff_delay"` // milliseconds
	MaxStalled      int    `mapstructure:"max_stalled"`
	Block           int    `mapstructure:"block"`            // milliseconds
	ReclaimInterval int    `mapstructure:"reclaim_interval"` // milliseconds
}

// WorkerConfig toggles a single job kind.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Timeout int  `mapstructure:"timeout"` // milliseconds
}

// RateLimitConfig configures the limiter shared by every generative call.
type RateLimitConfig struct {
	ID            string `mapstructure:"id"`
	MinTime       int    `mapstructure:"min_time"` // milliseconds between call starts
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	Lease         int    `mapstructure:"lease"`         // milliseconds
	PollInterval  int    `mapstructure:"poll_interval"` // milliseconds
}

type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	Dimensions     int    `mapstructure:"dimensions"`
	Timeout        int    `mapstructure:"timeout"` // milliseconds
}

// SalaryConfig holds the salary prediction constants.
type SalaryConfig struct {
	SimilarityThreshold float64   `mapstructure:"similarity_threshold"`
	Percentiles         []float64 `mapstructure:"percentiles"`
	HighSample          int       `mapstructure:"high_sample"`
	MediumSample        int       `mapstructure:"medium_sample"`
	PoolLimit           int       `mapstructure:"pool_limit"`
	TopSkills           int       `mapstructure:"top_skills"`
}

type SearchConfig struct {
	JobsIndex string `mapstructure:"jobs_index"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds
}

// SweeperConfig controls detection of artifacts stuck in flight.
type SweeperConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Interval   int  `mapstructure:"interval"`    // milliseconds
	StuckAfter int  `mapstructure:"stuck_after"` // milliseconds
}

// NotificationConfig holds the AWS lifecycle event settings.
type NotificationConfig struct {
	AWSRegion string `mapstructure:"aws_region"`
	SNS       struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	SES struct {
		Enabled bool   `mapstructure:"enabled"`
		From    string `mapstructure:"from"`
		To      string `mapstructure:"to"`
	} `mapstructure:"ses"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
