package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/crashed/internal/database"
	"github.com/dbsmedya/crashed/internal/lock"
	"github.com/dbsmedya/crashed/internal/pipeline"
)

var (
	runForce         bool
	runSkipPreflight bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the whole pipeline",
	Long: `Run executes every stage of the pipeline in dependency order:

  1. Materialize training (and test) rows in the warehouse
  2. Export them to the lake and verify the export
  3. Profile categorical and numeric features
  4. Encode and assemble the feature matrices
  5. Train the classifier and evaluate it on the test matrix

The run stops at the first failing stage. Artifacts are written under
<package>/<run-id>/ in the configured lake bucket.

Example:
  crashed run --config crashed.yaml`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false,
		"Run even if the pipeline lock cannot be acquired (use with caution)")
	runCmd.Flags().BoolVar(&runSkipPreflight, "skip-preflight", false,
		"Skip source column checks")

	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	s, err := openSession(context.Background(), true)
	if err != nil {
		return err
	}
	defer s.Close()
	log := s.log

	ctx, cancel := database.SignalContext(context.Background(), func(sig os.Signal) {
		log.Warnw("Received shutdown signal - stopping after the current stage", "signal", sig.String())
	})
	defer cancel()

	if !runSkipPreflight {
		if err := pipeline.Preflight(ctx, s.svc); err != nil {
			return fmt.Errorf("preflight failed: %w", err)
		}
	}

	name := s.cfg.Pipeline.Name
	if !runForce {
		runLock := lock.NewRunLock(s.db.Warehouse, name)
		if err := runLock.AcquireOrFail(ctx); err != nil {
			if errors.Is(err, lock.ErrLockTimeout) {
				return fmt.Errorf("pipeline '%s' is already running on another instance (use --force to override)", name)
			}
			return fmt.Errorf("failed to acquire pipeline lock: %w", err)
		}
		defer runLock.ReleaseLock(context.Background())
		log.Infow("Acquired advisory lock for pipeline", "pipeline", name)
	} else {
		log.Warnw("Skipping advisory lock acquisition (--force flag used)", "pipeline", name)
	}

	runner, err := pipeline.NewRunner(s.svc, s.pkg())
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx)
	printRunResult(result)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Pipeline run cancelled by user")
			return nil
		}
		return fmt.Errorf("pipeline run failed: %w", err)
	}
	return nil
}

func printRunResult(result *pipeline.RunResult) {
	if result == nil {
		return
	}
	fmt.Fprintf(outputWriter, "\n=== Pipeline Run ===\n")
	fmt.Fprintf(outputWriter, "Pipeline: %s\n", result.Pipeline)
	fmt.Fprintf(outputWriter, "Run ID: %s\n", result.RunID)
	fmt.Fprintf(outputWriter, "Duration: %s\n", result.Duration)
	for _, st := range result.Stages {
		if st.Err != nil {
			fmt.Fprintf(outputWriter, "  ✗ %s: %v\n", st.Name, st.Err)
			continue
		}
		fmt.Fprintf(outputWriter, "  ✓ %s -> %s\n", st.Name, st.Location)
	}
	if m := result.Metrics; m != nil {
		fmt.Fprintf(outputWriter, "Evaluation: %d rows, accuracy %.4f, precision %.4f, recall %.4f, F1 %.4f\n",
			m.Total, m.Accuracy, m.Precision, m.Recall, m.F1)
	}
	fmt.Fprintf(outputWriter, "Success: %v\n", result.Success)
}
