package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/crashed/internal/features"
	"github.com/dbsmedya/crashed/internal/storage"
	"github.com/dbsmedya/crashed/internal/training"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show the feature profiles and metrics of a run",
	Long: `Describe reads the catalog, numeric summary and evaluation metrics of a
run from the lake and prints them as tables. Missing artifacts are skipped.

Example:
  crashed describe --config crashed.yaml --run-id 2024-06-01`,
	RunE: runDescribe,
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
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
	return describeRun(ctx, pkg, s.cfg.Pipeline.Outputs.CategoricalSummary,
		s.cfg.Pipeline.Outputs.NumericSummary, s.cfg.Pipeline.Outputs.Metrics)
}

func describeRun(ctx context.Context, pkg *storage.Package, catalogName, summaryName, metricsName string) error {
	printHeader("Run %s", pkg.RunID())
	found := 0

	text, ok, err := downloadIfExists(ctx, pkg, catalogName)
	if err != nil {
		return err
	}
	if ok {
		catalog, err := features.ParseCatalog(text)
		if err != nil {
			return fmt.Errorf("read %s: %w", catalogName, err)
		}
		found++
		fmt.Fprintln(outputWriter)
		printSection("Categorical Features")
		rows := [][]string{{"column", "values", "categories"}}
		for _, col := range catalog.Columns() {
			values, _ := catalog.Values(col)
			rows = append(rows, []string{col, fmt.Sprint(len(values)), strings.Join(values, ", ")})
		}
		printTable(rows)
	}

	text, ok, err = downloadIfExists(ctx, pkg, summaryName)
	if err != nil {
		return err
	}
	if ok {
		summary := features.NewNumericSummary()
		if err := summary.UnmarshalJSON([]byte(text)); err != nil {
			return fmt.Errorf("read %s: %w", summaryName, err)
		}
		found++
		fmt.Fprintln(outputWriter)
		printSection("Numeric Features")
		rows := [][]string{{"column", "count", "mean", "std", "min", "max"}}
		for _, col := range summary.Columns() {
			st, _ := summary.Get(col)
			rows = append(rows, []string{
				col, fmt.Sprint(st.Count),
				formatStat(st.Mean), formatStat(st.Std), formatStat(st.Min), formatStat(st.Max),
			})
		}
		printTable(rows)
	}

	text, ok, err = downloadIfExists(ctx, pkg, metricsName)
	if err != nil {
		return err
	}
	if ok {
		var m training.Metrics
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			return fmt.Errorf("read %s: %w", metricsName, err)
		}
		found++
		fmt.Fprintln(outputWriter)
		printSection("Evaluation")
		printTable([][]string{
			{"metric", "value"},
			{"rows", fmt.Sprint(m.Total)},
			{"threshold", formatStat(m.Threshold)},
			{"accuracy", formatStat(m.Accuracy)},
			{"precision", formatStat(m.Precision)},
			{"recall", formatStat(m.Recall)},
			{"f1", formatStat(m.F1)},
		})
	}

	if found == 0 {
		return fmt.Errorf("no artifacts found for run %s", pkg.RunID())
	}
	return nil
}

// downloadIfExists reads a run artifact, reporting false when it was never written.
func downloadIfExists(ctx context.Context, pkg *storage.Package, name string) (string, bool, error) {
	text, err := pkg.Lake().DownloadText(ctx, pkg.Bucket(), pkg.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", name, err)
	}
	return text, true, nil
}

// printTable prints rows as aligned columns; the first row is the header.
func printTable(rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = runewidth.FillRight(cell, widths[i])
		}
		line := "  " + strings.TrimRight(strings.Join(cells, "  "), " ")
		if r == 0 {
			line = color.Bold.Sprint(line)
		}
		fmt.Fprintln(outputWriter, line)
	}
}

func formatStat(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4g", v)
}
