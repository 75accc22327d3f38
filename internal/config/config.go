package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN     string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL     string `env:"RABBITMQ_URL,required=true"`
	RedisURL        string `env:"REDIS_URL,required=true"`
	CRMBaseURL      string `env:"CRM_BASE_URL,required=true"`
	CRMAPIKey       string `env:"CRM_API_KEY,required=true"`
	DirectoryURL    string `env:"DIRECTORY_URL,required=true"`
	DirectoryAPIKey string `env:"DIRECTORY_API_KEY"`
	EmailBaseURL    string `env:"EMAIL_BASE_URL,required=true"`
	EmailAPIKey     string `env:"EMAIL_API_KEY,required=true"`

	MaxRetries           int `env:"MAX_RETRIES,default=2"`
	RetentionDays        int `env:"RETENTION_DAYS,default=7"`
	ProcessIntervalSecs  int `env:"PROCESS_INTERVAL_SECS,default=60"`
	RetentionIntervalMin int `env:"RETENTION_INTERVAL_MIN,default=60"`
	CRMRateLimitPerSec   int `env:"CRM_RATE_LIMIT_PER_SEC,default=10"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// ProcessInterval is the ticker cadence of the periodic processing run.
func (c *Config) ProcessInterval() time.Duration {
	return time.Duration(c.ProcessIntervalSecs) * time.Second
}

// RetentionInterval is the ticker cadence of the retention sweep.
func (c *Config) RetentionInterval() time.Duration {
	return time.Duration(c.RetentionIntervalMin) * time.Minute
}

// RetentionWindow is the age threshold after which processed records are purged.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
