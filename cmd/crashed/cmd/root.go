package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile    string
	logLevel   string
	logFormat  string
	rounds     int
	skipVerify bool
	runID      string
)

var rootCmd = &cobra.Command{
	Use:   "crashed",
	Short: "Crash-risk feature engineering and training pipeline",
	Long: `A CLI for building crash-risk models from warehouse data.

The pipeline materializes training rows in MySQL, exports them to the lake,
profiles categorical and numeric features, one-hot encodes them into a
numeric matrix and trains a gradient-boosted classifier.

Features:
  - Stage ordering from declared dependencies
  - Strict categorical encoding against a persisted catalog
  - Run-scoped, versioned artifacts
  - Export verification (count and SHA256)
  - Advisory locks against concurrent runs`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "crashed.yaml",
		"Path to configuration file")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	rootCmd.PersistentFlags().IntVar(&rounds, "rounds", 0,
		"Override number of boosting rounds")
	rootCmd.PersistentFlags().BoolVar(&skipVerify, "skip-verify", false,
		"Skip verification of exported tables")

	rootCmd.PersistentFlags().StringVar(&runID, "run-id", "",
		"Run identifier that scopes artifacts (generated when empty)")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel   string
	LogFormat  string
	Rounds     int
	SkipVerify bool
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:   logLevel,
		LogFormat:  logFormat,
		Rounds:     rounds,
		SkipVerify: skipVerify,
	}
}
