package producer

import (
	"fmt"
	"strings"
	"time"

	"github.com/reportq/reportq/internal/config"
	"github.com/reportq/reportq/internal/report"
)

const envPrefix = config.EnvPrefix + "PUBLISH_"

// Config describes what reportq-publish sends. Count jobs are published
// Interval apart; Interval is ignored when Count is 1.
type Config struct {
	Database string
	Type     string
	Count    int
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Type:     string(report.FormatCSV),
		Count:    1,
		Interval: time.Second,
	}
}

// LoadConfigFromEnv reads the REPORTQ_PUBLISH_* keys over DefaultConfig.
func LoadConfigFromEnv(lookup config.LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	env := config.NewEnv(lookup, envPrefix)
	env.String("DATABASE", &cfg.Database)
	env.String("TYPE", &cfg.Type)
	env.Int("COUNT", &cfg.Count)
	env.Duration("INTERVAL", &cfg.Interval)
	if err := env.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate is called after flags have been layered over the environment.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Database) == "":
		return fmt.Errorf("%sDATABASE is required", envPrefix)
	case c.Count <= 0:
		return fmt.Errorf("%sCOUNT must be > 0", envPrefix)
	case c.Count > 1 && c.Interval < 0:
		return fmt.Errorf("%sINTERVAL must be >= 0", envPrefix)
	}
	return nil
}
