package cmd

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

func TestGetConfigFile(t *testing.T) {
	originalCfgFile := cfgFile
	defer func() {
		cfgFile = originalCfgFile
	}()

	tests := []struct {
		name     string
		cfgValue string
		want     string
	}{
		{name: "empty", cfgValue: "", want: ""},
		{name: "custom config file", cfgValue: "/path/to/custom.yaml", want: "/path/to/custom.yaml"},
		{name: "config file with spaces", cfgValue: "/path/to/my config.yaml", want: "/path/to/my config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgFile = tt.cfgValue
			assert.Equal(t, tt.want, GetConfigFile())
		})
	}
}

func TestGetCLIOverrides(t *testing.T) {
	originalLogLevel := logLevel
	originalLogFormat := logFormat
	originalRounds := rounds
	originalSkipVerify := skipVerify
	defer func() {
		logLevel = originalLogLevel
		logFormat = originalLogFormat
		rounds = originalRounds
		skipVerify = originalSkipVerify
	}()

	tests := []struct {
		name       string
		logLevel   string
		logFormat  string
		rounds     int
		skipVerify bool
		want       CLIOverrides
	}{
		{
			name: "empty overrides",
			want: CLIOverrides{},
		},
		{
			name:       "all overrides set",
			logLevel:   "debug",
			logFormat:  "text",
			rounds:     250,
			skipVerify: true,
			want: CLIOverrides{
				LogLevel:   "debug",
				LogFormat:  "text",
				Rounds:     250,
				SkipVerify: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logLevel = tt.logLevel
			logFormat = tt.logFormat
			rounds = tt.rounds
			skipVerify = tt.skipVerify
			assert.Equal(t, tt.want, GetCLIOverrides())
		})
	}
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	useTestConfig(t)
	originalRounds := rounds
	defer func() { rounds = originalRounds }()

	rounds = 7
	cfg, err := loadConfig()
	assert.NoError(t, err)
	assert.Equal(t, 7, cfg.Training.Rounds)
	assert.Equal(t, 4, cfg.Training.MaxDepth)
	assert.Equal(t, []string{"weather", "road"}, cfg.Pipeline.Features.Categorical)
}

func TestLoadConfigMissingFile(t *testing.T) {
	originalCfgFile := cfgFile
	defer func() { cfgFile = originalCfgFile }()

	cfgFile = "/nonexistent/crashed.yaml"
	_, err := loadConfig()
	assert.ErrorContains(t, err, "failed to load config")
}
