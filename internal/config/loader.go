package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override config keys present
// in the file, e.g. CRASHED_WAREHOUSE_PASSWORD for warehouse.password.
const EnvPrefix = "CRASHED"

// Load reads configuration from the specified file path.
// It supports YAML files and performs environment variable substitution.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := substituteEnvVars(cfg); err != nil {
		return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars expands $VAR and ${VAR} references in the string fields
// that commonly carry host-specific values.
func substituteEnvVars(cfg *Config) error {
	fields := []*string{
		&cfg.Warehouse.Host,
		&cfg.Warehouse.User,
		&cfg.Warehouse.Password,
		&cfg.Warehouse.Database,
		&cfg.Lake.Root,
		&cfg.Lake.Bucket,
		&cfg.Artifacts.TempPath,
		&cfg.Pipeline.Dataset,
		&cfg.Pipeline.SourceTable,
		&cfg.Logging.Output,
	}
	for _, f := range fields {
		*f = expandEnvVar(*f)
	}
	return nil
}

// expandEnvVar leaves references to unset variables untouched.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(ref string) string {
		m := envVarPattern.FindStringSubmatch(ref)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return ref
	})
}

// ApplyOverrides copies command-line flags over the loaded values; zero values
// leave the file setting in place.
func (c *Config) ApplyOverrides(logLevel, logFormat string, rounds int, skipVerify bool) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if rounds > 0 {
		c.Training.Rounds = rounds
	}
	if skipVerify {
		c.Verification.SkipVerification = true
	}
}
