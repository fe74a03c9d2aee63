package logger

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"

	// DefaultLevel keeps a library quiet unless something needs attention.
	DefaultLevel = "warn"

	EnvLevel  = "NITAI_LOG_LEVEL"
	EnvFormat = "NITAI_LOG_FORMAT"
	EnvOutput = "NITAI_LOG_OUTPUT"
)

// Config selects level, encoding and destination of log output.
type Config struct {
	Level   string `yaml:"level" mapstructure:"level"`
	Format  string `yaml:"format" mapstructure:"format"`
	Output  string `yaml:"output" mapstructure:"output"`
	NoColor bool   `yaml:"no_color" mapstructure:"no_color"`
	Caller  bool   `yaml:"caller" mapstructure:"caller"`
}

// ConfigFromEnv reads NITAI_LOG_LEVEL, NITAI_LOG_FORMAT and NITAI_LOG_OUTPUT.
func ConfigFromEnv() Config {
	return Config{
		Level:  os.Getenv(EnvLevel),
		Format: os.Getenv(EnvFormat),
		Output: os.Getenv(EnvOutput),
	}
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
	c.Level = strings.ToLower(c.Level)
	c.Format = strings.ToLower(c.Format)
}

// Validate checks level, format and output.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Level); err != nil || c.Level == "" {
		return fmt.Errorf("logging.level %q is not a zerolog level", c.Level)
	}
	if !slices.Contains([]string{FormatJSON, FormatConsole}, c.Format) {
		return fmt.Errorf("logging.format must be %s or %s (got: %s)", FormatJSON, FormatConsole, c.Format)
	}
	if !slices.Contains([]string{"stderr", "stdout"}, strings.ToLower(c.Output)) {
		return fmt.Errorf("logging.output must be stderr or stdout (got: %s)", c.Output)
	}
	return nil
}

func (c *Config) level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		return zerolog.WarnLevel
	}
	return lvl
}
