package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/crashed/internal/config"
	"github.com/dbsmedya/crashed/internal/features"
	"github.com/dbsmedya/crashed/internal/graph"
	"github.com/dbsmedya/crashed/internal/logger"
	"github.com/dbsmedya/crashed/internal/storage"
	"github.com/dbsmedya/crashed/internal/table"
	"github.com/dbsmedya/crashed/internal/training"
	"github.com/dbsmedya/crashed/internal/verifier"
)

// fakeWarehouse serves pre-seeded tables. SelectInto "materializes" a table
// by checking it was seeded and recording the query.
type fakeWarehouse struct {
	tables      map[string][][]string // "dataset.table" -> header + rows
	queries     []string
	countOffset int64
	checkErr    error
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{tables: make(map[string][][]string)}
}

func (f *fakeWarehouse) seed(dataset, tableName string, records ...string) {
	var rows [][]string
	for _, r := range records {
		rows = append(rows, strings.Split(r, ","))
	}
	f.tables[dataset+"."+tableName] = rows
}

func (f *fakeWarehouse) SelectInto(ctx context.Context, query string, args []interface{}, dataset, tableName string) (int64, error) {
	f.queries = append(f.queries, query)
	rows, ok := f.tables[dataset+"."+tableName]
	if !ok {
		return 0, fmt.Errorf("table %s.%s not seeded", dataset, tableName)
	}
	return int64(len(rows) - 1), nil
}

func (f *fakeWarehouse) ExportCSV(ctx context.Context, dataset, tableName string, out io.Writer) (int64, error) {
	rows := f.tables[dataset+"."+tableName]
	w := csv.NewWriter(out)
	if err := w.WriteAll(rows); err != nil {
		return 0, err
	}
	return int64(len(rows) - 1), nil
}

func (f *fakeWarehouse) CountRows(ctx context.Context, dataset, tableName string) (int64, error) {
	return int64(len(f.tables[dataset+"."+tableName])-1) + f.countOffset, nil
}

func (f *fakeWarehouse) CheckColumns(ctx context.Context, tableName string, columns []string) error {
	return f.checkErr
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Lake.Root = t.TempDir()
	cfg.Artifacts.TempPath = t.TempDir()
	cfg.Pipeline.Name = "crash-risk"
	cfg.Pipeline.SourceTable = "crashes"
	cfg.Pipeline.Where = "year < 2020"
	cfg.Pipeline.TestWhere = "year >= 2020"
	cfg.Pipeline.Dataset = "ml"
	cfg.Pipeline.TrainingTable = "training"
	cfg.Pipeline.TestTable = "test"
	cfg.Pipeline.Features = config.FeaturesConfig{
		Categorical: []string{"weather"},
		Numeric:     []string{"speed"},
		Target:      "crashed",
		Quantiles:   []float64{0.5},
	}
	cfg.Training.Rounds = 10
	cfg.Training.MaxDepth = 2
	return cfg
}

func seedTraining(wh *fakeWarehouse) {
	wh.seed("ml", "training",
		"weather,speed,crashed",
		"clear,40,0",
		"rain,70,1",
		"clear,50,0",
		"rain,80,1",
		"clear,45,0",
		"rain,75,1",
		"clear,60,0",
		"rain,65,1",
	)
}

func newTestServices(t *testing.T, cfg *config.Config, wh *fakeWarehouse) *Services {
	t.Helper()
	svc, err := NewServices(cfg, wh, storage.NewFileLake(cfg.Lake.Root), logger.NewNop())
	require.NoError(t, err)
	return svc
}

func stageNames(stages []Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

func TestRunnerPlanWithTestSet(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestServices(t, cfg, newFakeWarehouse())

	r, err := NewRunner(svc, svc.NewPackage("run-1"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		StageSelectTraining,
		StageSelectTest,
		StageExportTraining,
		StageExportTest,
		StageAnalyzeCategorical,
		StageAnalyzeNumeric,
		StageBuildMatrix,
		StageBuildTestMatrix,
		StageTrain,
	}, stageNames(r.Plan()))
}

func TestRunnerPlanWithoutTestSet(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.TestWhere = ""
	cfg.Pipeline.TestTable = ""
	svc := newTestServices(t, cfg, newFakeWarehouse())

	r, err := NewRunner(svc, svc.NewPackage("run-1"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		StageSelectTraining,
		StageExportTraining,
		StageAnalyzeCategorical,
		StageAnalyzeNumeric,
		StageBuildMatrix,
		StageTrain,
	}, stageNames(r.Plan()))
}

func TestRunnerRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	wh := newFakeWarehouse()
	seedTraining(wh)
	wh.seed("ml", "test",
		"weather,speed,crashed",
		"clear,42,0",
		"rain,72,1",
		"rain,68,1",
		"clear,55,0",
	)
	svc := newTestServices(t, cfg, wh)
	pkg := svc.NewPackage("run-1")

	r, err := NewRunner(svc, pkg)
	require.NoError(t, err)
	result, err := r.Run(ctx)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "crash-risk", result.Pipeline)
	assert.Equal(t, "run-1", result.RunID)
	assert.Len(t, result.Stages, 9)
	require.NotNil(t, result.Metrics)
	assert.Equal(t, 4, result.Metrics.Total)

	require.Len(t, wh.queries, 2)
	assert.Contains(t, wh.queries[0], "FROM `crashes` WHERE year < 2020")
	assert.Contains(t, wh.queries[1], "FROM `crashes` WHERE year >= 2020")

	lake := svc.Lake
	catalogText, err := lake.DownloadText(ctx, pkg.Bucket(), pkg.Path(cfg.Pipeline.Outputs.CategoricalSummary))
	require.NoError(t, err)
	catalog, err := features.ParseCatalog(catalogText)
	require.NoError(t, err)
	values, ok := catalog.Values("weather")
	require.True(t, ok)
	assert.Equal(t, []string{"clear", "rain"}, values)

	matrixText, err := lake.DownloadText(ctx, pkg.Bucket(), pkg.Path(cfg.Pipeline.Outputs.Matrix))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(matrixText, "weather_clear,weather_rain,speed,crashed\n"))
	assert.Contains(t, matrixText, "1,0,40,0\n")

	testMatrixText, err := lake.DownloadText(ctx, pkg.Bucket(), pkg.Path(cfg.Pipeline.Outputs.TestMatrix))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(testMatrixText, "weather_clear,weather_rain,speed,crashed\n"))

	summaryText, err := lake.DownloadText(ctx, pkg.Bucket(), pkg.Path(cfg.Pipeline.Outputs.NumericSummary))
	require.NoError(t, err)
	summary := features.NewNumericSummary()
	require.NoError(t, summary.UnmarshalJSON([]byte(summaryText)))
	speed, ok := summary.Get("speed")
	require.True(t, ok)
	assert.Equal(t, 8, speed.Count)

	_, _, err = lake.Digest(ctx, pkg.Bucket(), pkg.Path(cfg.Pipeline.Outputs.Model))
	assert.NoError(t, err)
	metricsText, err := lake.DownloadText(ctx, pkg.Bucket(), pkg.Path(cfg.Pipeline.Outputs.Metrics))
	require.NoError(t, err)
	assert.Contains(t, metricsText, `"total": 4`)
}

func TestRunnerRunStopsOnUnknownTestCategory(t *testing.T) {
	cfg := testConfig(t)
	wh := newFakeWarehouse()
	seedTraining(wh)
	wh.seed("ml", "test",
		"weather,speed,crashed",
		"clear,42,0",
		"fog,72,1",
	)
	svc := newTestServices(t, cfg, wh)

	r, err := NewRunner(svc, svc.NewPackage("run-1"))
	require.NoError(t, err)
	result, err := r.Run(context.Background())
	require.Error(t, err)

	var unknown *features.UnknownCategoryError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "weather", unknown.Column)
	assert.Equal(t, "fog", unknown.Value)
	assert.Equal(t, 1, unknown.Row)

	assert.False(t, result.Success)
	last := result.Stages[len(result.Stages)-1]
	assert.Equal(t, StageBuildTestMatrix, last.Name)
	assert.Error(t, last.Err)
	for _, s := range result.Stages {
		assert.NotEqual(t, StageTrain, s.Name)
	}
}

func TestRunnerRunCancelled(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestServices(t, cfg, newFakeWarehouse())
	r, err := NewRunner(svc, svc.NewPackage("run-1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Stages)
}

func TestNewRunnerWithStagesCycle(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestServices(t, cfg, newFakeWarehouse())
	noop := func(ctx context.Context, st *RunState) (string, error) { return "", nil }

	_, err := NewRunnerWithStages(svc, svc.NewPackage("run-1"), []Stage{
		{Name: "a", DependsOn: []string{"b"}, Run: noop},
		{Name: "b", DependsOn: []string{"a"}, Run: noop},
	})
	assert.ErrorIs(t, err, graph.ErrCycleDetected)

	_, err = NewRunnerWithStages(svc, svc.NewPackage("run-1"), []Stage{
		{Name: "a", DependsOn: []string{"missing"}, Run: noop},
	})
	assert.ErrorIs(t, err, graph.ErrUnknownNode)
}

func TestExportCSVVerificationMismatch(t *testing.T) {
	cfg := testConfig(t)
	wh := newFakeWarehouse()
	seedTraining(wh)
	wh.countOffset = 1
	svc := newTestServices(t, cfg, wh)

	_, err := ExportCSV(context.Background(), svc, svc.NewPackage("run-1"), "ml", "training", "training.csv")
	var mismatch *verifier.MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, int64(9), mismatch.Result.SourceCount)
	assert.Equal(t, int64(8), mismatch.Result.ArtifactCount)
}

func TestExportCSVSHA256Verification(t *testing.T) {
	cfg := testConfig(t)
	cfg.Verification.Method = "sha256"
	wh := newFakeWarehouse()
	seedTraining(wh)
	wh.countOffset = 1
	svc := newTestServices(t, cfg, wh)

	ref, err := ExportCSV(context.Background(), svc, svc.NewPackage("run-1"), "ml", "training", "training.csv")
	require.NoError(t, err)
	assert.Equal(t, "crashed/crashed/run-1/training.csv", ref.Location())
	assert.NotEmpty(t, ref.SHA256)
}

func TestServicesWithoutWarehouse(t *testing.T) {
	cfg := testConfig(t)
	svc, err := NewServices(cfg, nil, storage.NewFileLake(cfg.Lake.Root), logger.NewNop())
	require.NoError(t, err)
	assert.Nil(t, svc.Verifier)

	_, err = SelectInto(context.Background(), svc, "SELECT 1", nil, "ml", "training")
	assert.ErrorContains(t, err, "needs a warehouse")

	err = Preflight(context.Background(), svc)
	var pre *PreflightError
	assert.True(t, errors.As(err, &pre))
}

func TestPreflightMissingColumn(t *testing.T) {
	cfg := testConfig(t)
	wh := newFakeWarehouse()
	wh.checkErr = &table.SchemaError{Column: "speed", Reason: "column does not exist"}
	svc := newTestServices(t, cfg, wh)

	err := Preflight(context.Background(), svc)
	var pre *PreflightError
	require.True(t, errors.As(err, &pre))
	assert.Equal(t, "source_columns", pre.Check)

	var schemaErr *table.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "speed", schemaErr.Column)

	wh.checkErr = nil
	assert.NoError(t, Preflight(context.Background(), svc))
}

func TestTrainModelNonBinaryTarget(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	svc := newTestServices(t, cfg, newFakeWarehouse())
	pkg := svc.NewPackage("run-1")

	ref, err := pkg.AddBytes(ctx, "matrix.csv", []byte("speed,crashed\n40,0\n50,2\n"))
	require.NoError(t, err)

	_, model, err := TrainModel(ctx, svc, pkg, ref.Path, "crashed", "model.gob")
	assert.Nil(t, model)
	var trainErr *training.TrainingError
	require.True(t, errors.As(err, &trainErr))
	assert.Equal(t, "split", trainErr.Op)
}

func TestBuildMatrixMissingCatalogColumn(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	svc := newTestServices(t, cfg, newFakeWarehouse())
	pkg := svc.NewPackage("run-1")

	src, err := pkg.AddBytes(ctx, "training.csv", []byte("speed,crashed\n40,0\n"))
	require.NoError(t, err)
	cat, err := pkg.AddBytes(ctx, "catalog.json", []byte(`{"weather": ["clear"]}`))
	require.NoError(t, err)

	_, err = BuildMatrix(ctx, svc, pkg, src.Path, cat.Path, []string{"speed", "crashed"}, "matrix.csv")
	var schemaErr *table.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "weather", schemaErr.Column)
}

func TestBoostFactoryAppliesTrainingConfig(t *testing.T) {
	cfg := testConfig(t)
	clf := BoostFactory(cfg.Training)()
	require.NotNil(t, clf)
	assert.NotSame(t, clf, BoostFactory(cfg.Training)())
}
