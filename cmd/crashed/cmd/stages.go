package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/crashed/internal/pipeline"
	"github.com/dbsmedya/crashed/internal/warehouse"
)

var (
	stageSet     string
	analyzeKind  string
	analyzeInput string
)

var selectIntoCmd = &cobra.Command{
	Use:   "select-into",
	Short: "Materialize the training or test table in the warehouse",
	Long: `Select-into rebuilds the training (or test) table from the source table
using the configured filter.

Example:
  crashed select-into --config crashed.yaml --set test`,
	RunE: runSelectInto,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the training or test table to the lake",
	Long: `Export writes the table as CSV into the run's artifact package and
verifies it with the configured method.

Example:
  crashed export --config crashed.yaml --run-id 2024-06-01 --set training`,
	RunE: runExport,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Profile the exported training table",
	Long: `Analyze writes the categorical catalog and the numeric summary of the
exported training table. The catalog is what build-matrix encodes against.

Example:
  crashed analyze --config crashed.yaml --run-id 2024-06-01 --kind categorical`,
	RunE: runAnalyze,
}

var buildMatrixCmd = &cobra.Command{
	Use:   "build-matrix",
	Short: "Encode an exported table into a feature matrix",
	Long: `Build-matrix one-hot encodes the exported table with the run's catalog
and appends the numeric and target columns. The test set is always encoded
with the training catalog.

Example:
  crashed build-matrix --config crashed.yaml --run-id 2024-06-01 --set test`,
	RunE: runBuildMatrix,
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the classifier on the run's feature matrix",
	Long: `Train fits the gradient-boosted classifier on the training matrix and
writes the model artifact. When a test set is configured, the model is also
evaluated on the test matrix and the metrics are written.

Example:
  crashed train --config crashed.yaml --run-id 2024-06-01 --rounds 200`,
	RunE: runTrain,
}

func init() {
	for _, c := range []*cobra.Command{selectIntoCmd, exportCmd, buildMatrixCmd} {
		c.Flags().StringVar(&stageSet, "set", "training", "Data set to process (training, test)")
	}
	analyzeCmd.Flags().StringVar(&analyzeKind, "kind", "all", "Features to profile (categorical, numeric, all)")
	analyzeCmd.Flags().StringVar(&analyzeInput, "input", "",
		"Object path of the CSV to profile (defaults to the run's training export)")

	rootCmd.AddCommand(selectIntoCmd, exportCmd, analyzeCmd, buildMatrixCmd, trainCmd)
}

func runSelectInto(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	p := &s.cfg.Pipeline
	set, err := resolveDataSet(p, stageSet)
	if err != nil {
		return err
	}
	query, qargs, err := warehouse.BuildQuery(p.Features.SourceColumns(), p.SourceTable, set.Where)
	if err != nil {
		return err
	}
	location, err := pipeline.SelectInto(ctx, s.svc, query, qargs, p.Dataset, set.Table)
	if err != nil {
		return err
	}
	fmt.Fprintln(outputWriter, location)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	p := &s.cfg.Pipeline
	set, err := resolveDataSet(p, stageSet)
	if err != nil {
		return err
	}
	pkg := s.pkg()
	ref, err := pipeline.ExportCSV(ctx, s.svc, pkg, p.Dataset, set.Table, set.CSV)
	if err != nil {
		return err
	}
	fmt.Fprintf(outputWriter, "run %s: %s\n", pkg.RunID(), ref.Location())
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	pkg, err := s.existingPkg()
	if err != nil {
		return err
	}
	p := &s.cfg.Pipeline
	input := analyzeInput
	if input == "" {
		input = pkg.Path(p.Outputs.TrainingCSV)
	}

	if analyzeKind != "categorical" && analyzeKind != "numeric" && analyzeKind != "all" {
		return fmt.Errorf("unknown kind %q (expected categorical, numeric or all)", analyzeKind)
	}
	if analyzeKind != "numeric" {
		ref, err := pipeline.AnalyzeCategorical(ctx, s.svc, pkg, input, p.Outputs.CategoricalSummary, p.Features.Categorical)
		if err != nil {
			return err
		}
		fmt.Fprintln(outputWriter, ref.Location())
	}
	if analyzeKind != "categorical" {
		ref, err := pipeline.AnalyzeNumeric(ctx, s.svc, pkg, input, p.Outputs.NumericSummary, p.Features.Numeric)
		if err != nil {
			return err
		}
		fmt.Fprintln(outputWriter, ref.Location())
	}
	return nil
}

func runBuildMatrix(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	pkg, err := s.existingPkg()
	if err != nil {
		return err
	}
	p := &s.cfg.Pipeline
	set, err := resolveDataSet(p, stageSet)
	if err != nil {
		return err
	}

	ref, err := pipeline.BuildMatrix(ctx, s.svc, pkg,
		pkg.Path(set.CSV),
		pkg.Path(p.Outputs.CategoricalSummary),
		p.Features.MatrixColumns(),
		set.Matrix,
	)
	if err != nil {
		return err
	}
	fmt.Fprintln(outputWriter, ref.Location())
	return nil
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	pkg, err := s.existingPkg()
	if err != nil {
		return err
	}
	p := &s.cfg.Pipeline

	ref, model, err := pipeline.TrainModel(ctx, s.svc, pkg, pkg.Path(p.Outputs.Matrix), p.Features.Target, p.Outputs.Model)
	if err != nil {
		return err
	}
	fmt.Fprintln(outputWriter, ref.Location())

	if !p.HasTestSet() || p.Outputs.Metrics == "" {
		return nil
	}
	metricsRef, metrics, err := pipeline.EvaluateModel(ctx, s.svc, pkg, model, pkg.Path(p.Outputs.TestMatrix), p.Outputs.Metrics)
	if err != nil {
		return err
	}
	fmt.Fprintf(outputWriter, "%s (accuracy %.4f, F1 %.4f)\n", metricsRef.Location(), metrics.Accuracy, metrics.F1)
	return nil
}
