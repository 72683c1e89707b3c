package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Role selects the console mode: "admin" (agent console) or "customer" (widget).
	Role string `env:"ROLE" envDefault:"admin"`

	Port             string   `env:"PORT" envDefault:"8082"`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	AllowCredentials bool     `env:"ALLOW_CREDENTIALS" envDefault:"false"`
	Environment      string   `env:"ENVIRONMENT" envDefault:"development"`

	// Backend collaborator.
	APIBaseURL  string        `env:"API_BASE_URL" envDefault:"http://localhost:8000"`
	WSBaseURL   string        `env:"WS_BASE_URL" envDefault:"ws://localhost:8000"`
	APIToken    string        `env:"API_TOKEN"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`

	HistoryLimit  int           `env:"HISTORY_LIMIT" envDefault:"10"`
	FeedbackDelay time.Duration `env:"FEEDBACK_DELAY" envDefault:"5m"`

	// Persisted client state.
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	ClientKey     string `env:"CLIENT_KEY" envDefault:"default"`

	// Kafka is optional; leaving KAFKA_BROKERS empty disables it.
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaEventsTopic string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"console-events"`
	KafkaFeedTopic   string   `env:"KAFKA_FEED_TOPIC"`
	KafkaGroupID     string   `env:"KAFKA_GROUP_ID" envDefault:"livechat-console"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile   string `env:"LOG_FILE"`
}

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	for i, broker := range cfg.KafkaBrokers {
		cfg.KafkaBrokers[i] = strings.TrimSpace(broker)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Role {
	case "admin", "customer":
	default:
		return fmt.Errorf("invalid ROLE %q (expected admin or customer)", c.Role)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if c.FeedbackDelay <= 0 {
		return fmt.Errorf("FEEDBACK_DELAY must be positive, got %s", c.FeedbackDelay)
	}
	return nil
}

// KafkaEnabled reports whether any broker is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaBrokers[0] != ""
}

// GetCORSOrigins returns CORS origins as a comma-separated string
func (c *Config) GetCORSOrigins() string {
	if c.Environment == "production" && len(c.AllowedOrigins) > 0 && c.AllowedOrigins[0] != "*" {
		return strings.Join(c.AllowedOrigins, ",")
	}
	return "*"
}

// IsDevelopment returns true if environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
