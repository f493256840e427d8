package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/crashed/internal/lock"
	"github.com/dbsmedya/crashed/internal/pipeline"
)

var validateOffline bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and run preflight checks",
	Long: `Validate checks the configuration file and runs preflight checks
against the warehouse to ensure the pipeline can run.

Checks performed:
  - Configuration syntax and required fields
  - Stage dependency graph
  - Warehouse connectivity
  - Source table has every feature and target column
  - Whether another run of the pipeline holds its lock

Example:
  crashed validate --config crashed.yaml`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateOffline, "offline", false,
		"Only validate the configuration, do not connect to the warehouse")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(outputWriter, "❌ %v\n", err)
		return fmt.Errorf("configuration is invalid")
	}

	fmt.Fprintf(outputWriter, "\n=== Configuration Validation ===\n")
	fmt.Fprintf(outputWriter, "Config file: %s\n", GetConfigFile())
	fmt.Fprintf(outputWriter, "Pipeline: %s\n", cfg.Pipeline.Name)
	fmt.Fprintf(outputWriter, "Source table: %s\n", cfg.Pipeline.SourceTable)

	doc, err := buildPlan(cfg)
	if err != nil {
		fmt.Fprintf(outputWriter, "❌ Stage graph invalid: %v\n", err)
		return fmt.Errorf("validation failed")
	}
	fmt.Fprintf(outputWriter, "✅ Configuration valid (%d stages)\n", len(doc.Stages))

	if validateOffline {
		return nil
	}

	ctx := context.Background()
	s, err := openSession(ctx, true)
	if err != nil {
		fmt.Fprintf(outputWriter, "❌ %v\n", err)
		return fmt.Errorf("validation failed")
	}
	defer s.Close()
	fmt.Fprintf(outputWriter, "✅ Warehouse reachable\n")

	if err := pipeline.Preflight(ctx, s.svc); err != nil {
		fmt.Fprintf(outputWriter, "❌ Preflight checks failed: %v\n", err)
		return fmt.Errorf("validation failed")
	}
	fmt.Fprintf(outputWriter, "✅ Source columns present\n")

	active, err := lock.IsRunActive(ctx, s.db.Warehouse, cfg.Pipeline.Name)
	if err != nil {
		fmt.Fprintf(outputWriter, "⚠️  Could not check pipeline lock: %v\n", err)
	} else if active {
		fmt.Fprintf(outputWriter, "⚠️  Pipeline '%s' is currently running on another instance\n", cfg.Pipeline.Name)
	}

	fmt.Fprintln(outputWriter, "=== Validation Complete ===")
	return nil
}
