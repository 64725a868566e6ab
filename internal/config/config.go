package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	RulesPath      string `mapstructure:"RULES_PATH"`
	ModelPath      string `mapstructure:"MODEL_PATH"`
	FacilitiesPath string `mapstructure:"FACILITIES_PATH"`

	HighLoadThreshold      float64 `mapstructure:"HIGH_LOAD_THRESHOLD"`
	CriticalLoadThreshold  float64 `mapstructure:"CRITICAL_LOAD_THRESHOLD"`
	RuleOverrideConfidence float64 `mapstructure:"RULE_OVERRIDE_CONFIDENCE"`
	FallbackConfidence     float64 `mapstructure:"FALLBACK_CONFIDENCE"`

	ExplainTopK            int     `mapstructure:"EXPLAIN_TOP_K"`
	ExplainSignificance    float64 `mapstructure:"EXPLAIN_SIGNIFICANCE"`
	ExplainDetailThreshold float64 `mapstructure:"EXPLAIN_DETAIL_THRESHOLD"`

	MaxDistanceKm     float64 `mapstructure:"MAX_DISTANCE_KM"`
	MaxRoutingResults int     `mapstructure:"MAX_ROUTING_RESULTS"`

	MinutesPerPatient  int           `mapstructure:"MINUTES_PER_PATIENT"`
	LoadCacheTTL       time.Duration `mapstructure:"LOAD_CACHE_TTL"`
	LoadSimulationSeed int64         `mapstructure:"LOAD_SIMULATION_SEED"`
	QueueTimezone      string        `mapstructure:"QUEUE_TIMEZONE"`
}

var defaults = map[string]interface{}{
	"PORT":                     "8000",
	"ENV":                      "development",
	"LOG_LEVEL":                "info",
	"DB_MAX_CONNS":             20,
	"DB_MIN_CONNS":             5,
	"CORS_ORIGINS":             "http://localhost:3000",
	"HIGH_LOAD_THRESHOLD":      0.8,
	"CRITICAL_LOAD_THRESHOLD":  0.95,
	"RULE_OVERRIDE_CONFIDENCE": 0.95,
	"FALLBACK_CONFIDENCE":      0.75,
	"EXPLAIN_TOP_K":            10,
	"EXPLAIN_SIGNIFICANCE":     0.01,
	"EXPLAIN_DETAIL_THRESHOLD": 0.001,
	"MAX_DISTANCE_KM":          50,
	"MAX_ROUTING_RESULTS":      5,
	"MINUTES_PER_PATIENT":      15,
	"LOAD_CACHE_TTL":           "0s",
	"LOAD_SIMULATION_SEED":     42,
	"QUEUE_TIMEZONE":           "UTC",
}

// keys without a default that are still read from the environment.
var optional = []string{"DATABASE_URL", "REDIS_URL", "RULES_PATH", "MODEL_PATH", "FACILITIES_PATH"}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
		v.BindEnv(k)
	}
	for _, k := range optional {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves QUEUE_TIMEZONE. Token numbers restart at midnight in it.
func (c *Config) Location() (*time.Location, error) {
	if c.QueueTimezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.QueueTimezone)
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.HighLoadThreshold <= 0 || c.HighLoadThreshold > 1 {
		return fmt.Errorf("HIGH_LOAD_THRESHOLD must be in (0,1], got %v", c.HighLoadThreshold)
	}
	if c.CriticalLoadThreshold <= 0 || c.CriticalLoadThreshold > 1 {
		return fmt.Errorf("CRITICAL_LOAD_THRESHOLD must be in (0,1], got %v", c.CriticalLoadThreshold)
	}
	if c.HighLoadThreshold >= c.CriticalLoadThreshold {
		return fmt.Errorf("HIGH_LOAD_THRESHOLD (%v) must be below CRITICAL_LOAD_THRESHOLD (%v)",
			c.HighLoadThreshold, c.CriticalLoadThreshold)
	}
	if c.RuleOverrideConfidence <= 0 || c.RuleOverrideConfidence > 1 {
		return fmt.Errorf("RULE_OVERRIDE_CONFIDENCE must be in (0,1], got %v", c.RuleOverrideConfidence)
	}
	if c.FallbackConfidence <= 0 || c.FallbackConfidence > 1 {
		return fmt.Errorf("FALLBACK_CONFIDENCE must be in (0,1], got %v", c.FallbackConfidence)
	}
	if c.ExplainTopK <= 0 {
		return fmt.Errorf("EXPLAIN_TOP_K must be positive, got %d", c.ExplainTopK)
	}
	if c.ExplainSignificance < 0 || c.ExplainDetailThreshold < 0 {
		return fmt.Errorf("explanation thresholds must not be negative")
	}
	if c.MaxDistanceKm <= 0 {
		return fmt.Errorf("MAX_DISTANCE_KM must be positive, got %v", c.MaxDistanceKm)
	}
	if c.MaxRoutingResults <= 0 {
		return fmt.Errorf("MAX_ROUTING_RESULTS must be positive, got %d", c.MaxRoutingResults)
	}
	if c.MinutesPerPatient <= 0 {
		return fmt.Errorf("MINUTES_PER_PATIENT must be positive, got %d", c.MinutesPerPatient)
	}
	if c.LoadCacheTTL < 0 {
		return fmt.Errorf("LOAD_CACHE_TTL must not be negative, got %s", c.LoadCacheTTL)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("QUEUE_TIMEZONE: %w", err)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
