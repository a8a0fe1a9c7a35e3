// internal/workers/employer/interview-kit/config.go
package interviewkit

import (
	"time"

	"match-pipeline/internal/artifact"
	"match-pipeline/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	// Heartbeat is how often the in-flight artifact is touched while the job runs.
	Heartbeat time.Duration
}

func LoadConfig(wc config.WorkerConfig) *Config {
	cfg := &Config{Timeout: 120 * time.Second, Heartbeat: artifact.DefaultHeartbeat}
	if wc.Timeout > 0 {
		cfg.Timeout = config.GetDuration(wc.Timeout)
	}
	return cfg
}
