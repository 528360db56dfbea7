package credit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the credit engine configuration.
type Config struct {
	// ReportingLimitBytes caps the usage volume of a single non-termination
	// report. Pending usage above the cap is split across reporting cycles.
	ReportingLimitBytes uint64 `yaml:"reporting_limit_bytes"`

	// ShardCount sets the number of record shards in the manager.
	ShardCount int `yaml:"shard_count"`

	// MaxReportFailures is the number of report delivery failures within
	// the failure window after which a record is marked for cutoff instead
	// of retried.
	MaxReportFailures int `yaml:"max_report_failures"`
}

// Defaults applied by Validate for zero fields.
const (
	defaultShardCount        = 16
	defaultMaxReportFailures = 3
)

// LoadConfig reads and parses a YAML config file. Environment variables in
// the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("credit: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("credit: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for consistency and fills in defaults for zero
// fields.
func (c *Config) Validate() error {
	if c.ShardCount < 0 {
		return fmt.Errorf("credit: config: shard_count must not be negative")
	}
	if c.MaxReportFailures < 0 {
		return fmt.Errorf("credit: config: max_report_failures must not be negative")
	}

	if c.ReportingLimitBytes == 0 {
		c.ReportingLimitBytes = DefaultReportingLimit
	}
	if c.ShardCount == 0 {
		c.ShardCount = defaultShardCount
	}
	if c.MaxReportFailures == 0 {
		c.MaxReportFailures = defaultMaxReportFailures
	}

	return nil
}
