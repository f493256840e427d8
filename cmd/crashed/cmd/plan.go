package cmd

import (
	"fmt"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/crashed/internal/config"
	"github.com/dbsmedya/crashed/internal/logger"
	"github.com/dbsmedya/crashed/internal/pipeline"
	"github.com/dbsmedya/crashed/internal/storage"
)

var planFormat string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the execution plan of the pipeline",
	Long: `Plan resolves the stage dependencies from the configuration and prints
the execution order without touching the warehouse or the lake.

The plan shows:
  - Stage order with dependencies
  - Artifact produced by each stage
  - Feature columns and training parameters

Example:
  crashed plan --config crashed.yaml
  crashed plan --config crashed.yaml --format yaml`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planFormat, "format", "text",
		"Output format (text, yaml)")

	rootCmd.AddCommand(planCmd)
}

// PlanStage is one stage of an exported plan.
type PlanStage struct {
	Step      int      `yaml:"step"`
	Name      string   `yaml:"name"`
	DependsOn []string `yaml:"depends_on,omitempty"`
	Produces  string   `yaml:"produces,omitempty"`
}

// PlanDocument is the machine-readable form of a plan.
type PlanDocument struct {
	Pipeline     string                `yaml:"pipeline"`
	Package      string                `yaml:"package"`
	Source       string                `yaml:"source"`
	Features     config.FeaturesConfig `yaml:"features"`
	Training     config.TrainingConfig `yaml:"training"`
	Verification string                `yaml:"verification"`
	Stages       []PlanStage           `yaml:"stages"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	doc, err := buildPlan(cfg)
	if err != nil {
		return err
	}

	switch planFormat {
	case "yaml":
		out, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		_, err = outputWriter.Write(out)
		return err
	case "text", "":
		printPlan(doc)
		return nil
	default:
		return fmt.Errorf("unknown format %q (expected text or yaml)", planFormat)
	}
}

// buildPlan orders the configured stages. Nothing is connected or written.
func buildPlan(cfg *config.Config) (*PlanDocument, error) {
	svc, err := pipeline.NewServices(cfg, nil, storage.NewFileLake(cfg.Lake.Root), logger.NewNop())
	if err != nil {
		return nil, err
	}
	id := runID
	if id == "" {
		id = "<run-id>"
	}
	runner, err := pipeline.NewRunner(svc, svc.NewPackage(id))
	if err != nil {
		return nil, err
	}

	doc := &PlanDocument{
		Pipeline:     cfg.Pipeline.Name,
		Package:      fmt.Sprintf("%s/%s/%s", cfg.Lake.Bucket, cfg.Artifacts.Package, id),
		Source:       cfg.Pipeline.SourceTable,
		Features:     cfg.Pipeline.Features,
		Training:     cfg.Training,
		Verification: cfg.EffectiveVerification(),
	}
	for i, st := range runner.Plan() {
		doc.Stages = append(doc.Stages, PlanStage{
			Step:      i + 1,
			Name:      st.Name,
			DependsOn: st.DependsOn,
			Produces:  st.Produces,
		})
	}
	return doc, nil
}

func printPlan(doc *PlanDocument) {
	printHeader("Execution Plan: %s", doc.Pipeline)

	fmt.Fprintln(outputWriter)
	printSection("Pipeline Overview")
	fmt.Fprintf(outputWriter, "  Source Table:  %s\n", doc.Source)
	fmt.Fprintf(outputWriter, "  Artifacts:     %s\n", doc.Package)
	fmt.Fprintf(outputWriter, "  Target:        %s\n", doc.Features.Target)
	fmt.Fprintf(outputWriter, "  Categorical:   %s\n", joinOrNone(doc.Features.Categorical))
	fmt.Fprintf(outputWriter, "  Numeric:       %s\n", joinOrNone(doc.Features.Numeric))

	fmt.Fprintln(outputWriter)
	printSection("Stage Order")
	width := 0
	for _, st := range doc.Stages {
		if w := runewidth.StringWidth(st.Name); w > width {
			width = w
		}
	}
	for _, st := range doc.Stages {
		name := runewidth.FillRight(st.Name, width)
		line := fmt.Sprintf("  [%d] %s", st.Step, color.Bold.Sprint(name))
		if st.Produces != "" {
			line += " -> " + color.Green.Sprint(st.Produces)
		}
		if len(st.DependsOn) > 0 {
			line += color.Gray.Sprintf("  (after %s)", strings.Join(st.DependsOn, ", "))
		}
		fmt.Fprintln(outputWriter, line)
	}

	fmt.Fprintln(outputWriter)
	printSection("Configuration")
	fmt.Fprintf(outputWriter, "  Rounds:              %d\n", doc.Training.Rounds)
	fmt.Fprintf(outputWriter, "  Max Depth:           %d\n", doc.Training.MaxDepth)
	fmt.Fprintf(outputWriter, "  Learning Rate:       %g\n", doc.Training.LearningRate)
	fmt.Fprintf(outputWriter, "  Decision Threshold:  %g\n", doc.Training.Threshold)
	fmt.Fprintf(outputWriter, "  Verification Method: %s\n", doc.Verification)
}

// printHeader prints a formatted header
func printHeader(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := runewidth.StringWidth(title) + 4
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
	fmt.Fprintf(outputWriter, "  %s\n", color.Cyan.Sprint(title))
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
}

// printSection prints a section header
func printSection(title string) {
	fmt.Fprintf(outputWriter, "[%s]\n", title)
	fmt.Fprintln(outputWriter, strings.Repeat("-", runewidth.StringWidth(title)+2))
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
