package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dbsmedya/crashed/internal/config"
	"github.com/dbsmedya/crashed/internal/graph"
	"github.com/dbsmedya/crashed/internal/storage"
	"github.com/dbsmedya/crashed/internal/training"
	"github.com/dbsmedya/crashed/internal/types"
	"github.com/dbsmedya/crashed/internal/warehouse"
)

// Stage names.
const (
	StageSelectTraining     = "select_training"
	StageSelectTest         = "select_test"
	StageExportTraining     = "export_training"
	StageExportTest         = "export_test"
	StageAnalyzeCategorical = "analyze_categorical"
	StageAnalyzeNumeric     = "analyze_numeric"
	StageBuildMatrix        = "build_matrix"
	StageBuildTestMatrix    = "build_test_matrix"
	StageTrain              = "train"
)

// RunState carries stage outputs to the stages that depend on them.
type RunState struct {
	Artifacts map[string]types.ArtifactRef // keyed by producing stage
	Model     *training.FittedModel
	Metrics   *training.Metrics
}

// Artifact returns the artifact written by stage.
func (s *RunState) Artifact(stage string) (types.ArtifactRef, error) {
	ref, ok := s.Artifacts[stage]
	if !ok {
		return types.ArtifactRef{}, fmt.Errorf("stage %s has not produced an artifact", stage)
	}
	return ref, nil
}

// StageFunc runs a stage and returns the location of its output.
type StageFunc func(ctx context.Context, state *RunState) (string, error)

// Stage is a named unit of work with declared dependencies.
type Stage struct {
	Name        string
	Description string
	DependsOn   []string
	Produces    string
	Run         StageFunc
}

// StageResult records the outcome of one stage.
type StageResult struct {
	Name     string
	Location string
	Duration time.Duration
	Err      error
}

// RunResult contains the outcome of a pipeline run.
type RunResult struct {
	Pipeline    string
	RunID       string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Stages      []StageResult
	Metrics     *training.Metrics
	Success     bool
}

// Runner executes the stages of a pipeline in dependency order.
type Runner struct {
	svc    *Services
	pkg    *storage.Package
	stages map[string]Stage
	order  []string
}

// NewRunner builds the standard stages for svc.Config and orders them.
func NewRunner(svc *Services, pkg *storage.Package) (*Runner, error) {
	if svc == nil {
		return nil, fmt.Errorf("services are nil")
	}
	if pkg == nil {
		return nil, fmt.Errorf("package is nil")
	}
	return NewRunnerWithStages(svc, pkg, DefaultStages(svc, pkg))
}

// NewRunnerWithStages orders a custom stage list. Declaration order breaks ties.
func NewRunnerWithStages(svc *Services, pkg *storage.Package, stages []Stage) (*Runner, error) {
	specs := make([]graph.StageSpec, 0, len(stages))
	byName := make(map[string]Stage, len(stages))
	for _, s := range stages {
		var produces []string
		if s.Produces != "" {
			produces = []string{s.Produces}
		}
		specs = append(specs, graph.StageSpec{
			Name:        s.Name,
			Description: s.Description,
			DependsOn:   s.DependsOn,
			Produces:    produces,
		})
		byName[s.Name] = s
	}

	g, err := graph.Build(specs)
	if err != nil {
		return nil, fmt.Errorf("failed to build stage graph: %w", err)
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("failed to order stages: %w", err)
	}

	return &Runner{svc: svc, pkg: pkg, stages: byName, order: order}, nil
}

// Plan returns the stages in execution order.
func (r *Runner) Plan() []Stage {
	plan := make([]Stage, 0, len(r.order))
	for _, name := range r.order {
		plan = append(plan, r.stages[name])
	}
	return plan
}

// Package returns the artifact package the run writes to.
func (r *Runner) Package() *storage.Package { return r.pkg }

// Run executes every stage in order and stops at the first failure. The
// returned result is complete up to and including the failed stage.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	cfg := r.svc.Config
	log := r.svc.Logger.WithRun(cfg.Pipeline.Name, r.pkg.RunID())

	result := &RunResult{
		Pipeline:  cfg.Pipeline.Name,
		RunID:     r.pkg.RunID(),
		StartedAt: time.Now(),
	}
	defer func() {
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
	}()

	log.Infow("Starting pipeline run", "stages", r.order)
	state := &RunState{Artifacts: make(map[string]types.ArtifactRef)}

	for _, name := range r.order {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("run cancelled before stage %s: %w", name, err)
		}

		stage := r.stages[name]
		start := time.Now()
		location, err := stage.Run(ctx, state)
		sr := StageResult{Name: name, Location: location, Duration: time.Since(start), Err: err}
		result.Stages = append(result.Stages, sr)

		if err != nil {
			log.Errorw("Stage failed", "stage", name, "error", err)
			return result, fmt.Errorf("stage %s: %w", name, err)
		}
		log.Infow("Stage completed", "stage", name, "location", location, "duration", sr.Duration)
	}

	result.Metrics = state.Metrics
	result.Success = true
	log.Infow("Pipeline run completed", "artifacts", len(state.Artifacts))
	return result, nil
}

// DefaultStages returns the crash-risk pipeline for svc.Config. Test-set stages
// are included only when a test table is configured.
func DefaultStages(svc *Services, pkg *storage.Package) []Stage {
	p := svc.Config.Pipeline
	out := p.Outputs
	numeric := p.Features.MatrixColumns()

	stages := []Stage{
		{
			Name:        StageSelectTraining,
			Description: "materialize training rows",
			Run:         selectStage(svc, &p, p.Where, p.TrainingTable),
		},
		{
			Name:        StageExportTraining,
			Description: "export training table to the lake",
			DependsOn:   []string{StageSelectTraining},
			Produces:    out.TrainingCSV,
			Run:         exportStage(svc, pkg, StageExportTraining, p.Dataset, p.TrainingTable, out.TrainingCSV),
		},
		{
			Name:        StageAnalyzeCategorical,
			Description: "profile categorical features",
			DependsOn:   []string{StageExportTraining},
			Produces:    out.CategoricalSummary,
			Run: func(ctx context.Context, st *RunState) (string, error) {
				src, err := st.Artifact(StageExportTraining)
				if err != nil {
					return "", err
				}
				ref, err := AnalyzeCategorical(ctx, svc, pkg, src.Path, out.CategoricalSummary, p.Features.Categorical)
				return record(st, StageAnalyzeCategorical, ref, err)
			},
		},
		{
			Name:        StageAnalyzeNumeric,
			Description: "summarize numeric features",
			DependsOn:   []string{StageExportTraining},
			Produces:    out.NumericSummary,
			Run: func(ctx context.Context, st *RunState) (string, error) {
				src, err := st.Artifact(StageExportTraining)
				if err != nil {
					return "", err
				}
				ref, err := AnalyzeNumeric(ctx, svc, pkg, src.Path, out.NumericSummary, p.Features.Numeric)
				return record(st, StageAnalyzeNumeric, ref, err)
			},
		},
		{
			Name:        StageBuildMatrix,
			Description: "encode and assemble the training matrix",
			DependsOn:   []string{StageExportTraining, StageAnalyzeCategorical},
			Produces:    out.Matrix,
			Run:         matrixStage(svc, pkg, StageBuildMatrix, StageExportTraining, numeric, out.Matrix),
		},
	}

	trainDeps := []string{StageBuildMatrix}
	if p.HasTestSet() {
		stages = append(stages,
			Stage{
				Name:        StageSelectTest,
				Description: "materialize evaluation rows",
				Run:         selectStage(svc, &p, p.TestWhere, p.TestTable),
			},
			Stage{
				Name:        StageExportTest,
				Description: "export evaluation table to the lake",
				DependsOn:   []string{StageSelectTest},
				Produces:    out.TestCSV,
				Run:         exportStage(svc, pkg, StageExportTest, p.Dataset, p.TestTable, out.TestCSV),
			},
			Stage{
				Name:        StageBuildTestMatrix,
				Description: "encode the evaluation matrix with the training catalog",
				DependsOn:   []string{StageExportTest, StageAnalyzeCategorical},
				Produces:    out.TestMatrix,
				Run:         matrixStage(svc, pkg, StageBuildTestMatrix, StageExportTest, numeric, out.TestMatrix),
			},
		)
		trainDeps = append(trainDeps, StageBuildTestMatrix)
	}

	stages = append(stages, Stage{
		Name:        StageTrain,
		Description: "fit the classifier and evaluate it",
		DependsOn:   trainDeps,
		Produces:    out.Model,
		Run: func(ctx context.Context, st *RunState) (string, error) {
			matrix, err := st.Artifact(StageBuildMatrix)
			if err != nil {
				return "", err
			}
			ref, model, err := TrainModel(ctx, svc, pkg, matrix.Path, p.Features.Target, out.Model)
			if err != nil {
				return "", err
			}
			st.Model = model

			if testMatrix, ok := st.Artifacts[StageBuildTestMatrix]; ok && out.Metrics != "" {
				_, metrics, err := EvaluateModel(ctx, svc, pkg, model, testMatrix.Path, out.Metrics)
				if err != nil {
					return "", err
				}
				st.Metrics = metrics
			}
			return record(st, StageTrain, ref, nil)
		},
	})
	return stages
}

func selectStage(svc *Services, p *config.PipelineConfig, where, tableName string) StageFunc {
	return func(ctx context.Context, _ *RunState) (string, error) {
		query, args, err := warehouse.BuildQuery(p.Features.SourceColumns(), p.SourceTable, where)
		if err != nil {
			return "", err
		}
		return SelectInto(ctx, svc, query, args, p.Dataset, tableName)
	}
}

func exportStage(svc *Services, pkg *storage.Package, stage, dataset, tableName, filename string) StageFunc {
	return func(ctx context.Context, st *RunState) (string, error) {
		ref, err := ExportCSV(ctx, svc, pkg, dataset, tableName, filename)
		return record(st, stage, ref, err)
	}
}

func matrixStage(svc *Services, pkg *storage.Package, stage, source string, numeric []string, artifactName string) StageFunc {
	return func(ctx context.Context, st *RunState) (string, error) {
		src, err := st.Artifact(source)
		if err != nil {
			return "", err
		}
		catalog, err := st.Artifact(StageAnalyzeCategorical)
		if err != nil {
			return "", err
		}
		ref, err := BuildMatrix(ctx, svc, pkg, src.Path, catalog.Path, numeric, artifactName)
		return record(st, stage, ref, err)
	}
}

func record(st *RunState, stage string, ref types.ArtifactRef, err error) (string, error) {
	if err != nil {
		return "", err
	}
	st.Artifacts[stage] = ref
	return ref.Location(), nil
}
