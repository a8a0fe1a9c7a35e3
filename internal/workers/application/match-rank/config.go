// internal/workers/application/match-rank/config.go
package matchrank

import (
	"time"

	"match-pipeline/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	// MaxNotes caps how many generated notes are stored.
	MaxNotes int
}

func LoadConfig(wc config.WorkerConfig) *Config {
	cfg := &Config{
		Timeout:  120 * time.Second,
		MaxNotes: 5,
	}
	if wc.Timeout > 0 {
		cfg.Timeout = config.GetDuration(wc.Timeout)
	}
	return cfg
}
