package reminder

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from REMINDER_* environment variables.
type Config struct {
	Schedule    string        `envconfig:"SCHEDULE" default:"0 7 * * *"`
	Queue       string        `envconfig:"QUEUE" default:"clinic:reminders"`
	Concurrency int           `envconfig:"CONCURRENCY" default:"2"`
	Attempts    int           `envconfig:"ATTEMPTS" default:"5"`
	Backoff     time.Duration `envconfig:"BACKOFF" default:"1s"`
	PopTimeout  time.Duration `envconfig:"POP_TIMEOUT" default:"5s"`
	FailedLog   string        `envconfig:"FAILED_LOG" default:"failed-jobs.log"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("reminder", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read reminder config: %w", err)
	}
	if cfg.Concurrency <= 0 || cfg.Attempts <= 0 {
		return Config{}, fmt.Errorf("reminder concurrency and attempts must be positive")
	}
	return cfg, nil
}
