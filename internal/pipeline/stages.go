package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dbsmedya/crashed/internal/features"
	"github.com/dbsmedya/crashed/internal/sqlutil"
	"github.com/dbsmedya/crashed/internal/storage"
	"github.com/dbsmedya/crashed/internal/table"
	"github.com/dbsmedya/crashed/internal/training"
	"github.com/dbsmedya/crashed/internal/types"
)

// SelectInto materializes query into dataset.table and returns the table's
// qualified name.
func SelectInto(ctx context.Context, svc *Services, query string, args []interface{}, dataset, tableName string) (string, error) {
	if err := svc.requireWarehouse(); err != nil {
		return "", err
	}
	location, err := sqlutil.QualifiedName(dataset, tableName)
	if err != nil {
		return "", err
	}
	log := svc.Logger.WithStage("select_into").WithTable(location)
	log.Infow("Materializing table")

	start := time.Now()
	rows, err := svc.Warehouse.SelectInto(ctx, query, args, dataset, tableName)
	if err != nil {
		return "", fmt.Errorf("select into %s: %w", location, err)
	}

	log.Infow("Table materialized", "rows", rows, "duration", time.Since(start))
	return location, nil
}

// ExportCSV writes dataset.table to the package as filename and verifies the
// upload with the configured method.
func ExportCSV(ctx context.Context, svc *Services, pkg *storage.Package, dataset, tableName, filename string) (types.ArtifactRef, error) {
	if err := svc.requireWarehouse(); err != nil {
		return types.ArtifactRef{}, err
	}
	log := svc.Logger.WithStage("export").WithTable(tableName).WithArtifact(pkg.Ref(filename).Location())
	log.Infow("Exporting table")

	var rows int64
	ref, err := pkg.AddStream(ctx, filename, func(w io.Writer) error {
		n, err := svc.Warehouse.ExportCSV(ctx, dataset, tableName, w)
		rows = n
		return err
	})
	if err != nil {
		return types.ArtifactRef{}, fmt.Errorf("export %s: %w", tableName, err)
	}

	if svc.Verifier != nil {
		if _, err := svc.Verifier.VerifyExport(ctx, ref, dataset, tableName); err != nil {
			return types.ArtifactRef{}, err
		}
	}

	log.Infow("Table exported", "rows", rows, "bytes", ref.Size, "sha256", ref.SHA256)
	return ref, nil
}

// AnalyzeCategorical profiles the categorical columns of the CSV at csvPath and
// uploads the catalog as artifactName.
func AnalyzeCategorical(ctx context.Context, svc *Services, pkg *storage.Package, csvPath, artifactName string, columns []string) (types.ArtifactRef, error) {
	log := svc.Logger.WithStage("analyze_categorical")
	log.Infow("Profiling categorical columns", "source", csvPath, "columns", columns)

	schema := make(table.Schema, len(columns))
	for _, c := range columns {
		schema[c] = table.KindCategorical
	}
	t, err := svc.Lake.DownloadTable(ctx, pkg.Bucket(), csvPath, schema)
	if err != nil {
		return types.ArtifactRef{}, err
	}

	catalog, err := features.ProfileCategorical(t, columns)
	if err != nil {
		return types.ArtifactRef{}, fmt.Errorf("profile categorical features: %w", err)
	}

	ref, err := pkg.AddJSON(ctx, artifactName, catalog)
	if err != nil {
		return types.ArtifactRef{}, err
	}
	log.Infow("Catalog written", "location", ref.Location(), "indicators", catalog.Width())
	return ref, nil
}

// AnalyzeNumeric summarizes the numeric columns of the CSV at csvPath and
// uploads the summary as artifactName.
func AnalyzeNumeric(ctx context.Context, svc *Services, pkg *storage.Package, csvPath, artifactName string, columns []string) (types.ArtifactRef, error) {
	log := svc.Logger.WithStage("analyze_numeric")
	log.Infow("Profiling numeric columns", "source", csvPath, "columns", columns)

	t, err := svc.Lake.DownloadTable(ctx, pkg.Bucket(), csvPath, table.NumericSchema(columns...))
	if err != nil {
		return types.ArtifactRef{}, err
	}

	summary, err := features.ProfileNumeric(t, columns, svc.Config.Pipeline.Features.Quantiles)
	if err != nil {
		return types.ArtifactRef{}, fmt.Errorf("profile numeric features: %w", err)
	}

	ref, err := pkg.AddJSON(ctx, artifactName, summary)
	if err != nil {
		return types.ArtifactRef{}, err
	}
	log.Infow("Numeric summary written", "location", ref.Location(), "columns", summary.Len())
	return ref, nil
}

// BuildMatrix encodes the CSV at csvPath with the catalog at catalogPath,
// appends the numeric columns and uploads the matrix as artifactName.
func BuildMatrix(ctx context.Context, svc *Services, pkg *storage.Package, csvPath, catalogPath string, numeric []string, artifactName string) (types.ArtifactRef, error) {
	log := svc.Logger.WithStage("build_matrix")
	log.Infow("Building feature matrix", "source", csvPath, "catalog", catalogPath)

	text, err := svc.Lake.DownloadText(ctx, pkg.Bucket(), catalogPath)
	if err != nil {
		return types.ArtifactRef{}, err
	}
	catalog, err := features.ParseCatalog(text)
	if err != nil {
		return types.ArtifactRef{}, fmt.Errorf("load catalog %s: %w", catalogPath, err)
	}

	schema := table.NumericSchema(numeric...)
	for _, c := range catalog.Columns() {
		schema[c] = table.KindCategorical
	}
	t, err := svc.Lake.DownloadTable(ctx, pkg.Bucket(), csvPath, schema)
	if err != nil {
		return types.ArtifactRef{}, err
	}

	block, err := features.Encode(t, catalog, true)
	if err != nil {
		return types.ArtifactRef{}, fmt.Errorf("encode %s: %w", csvPath, err)
	}
	m, err := features.Assemble(t, block, numeric)
	if err != nil {
		return types.ArtifactRef{}, fmt.Errorf("assemble %s: %w", csvPath, err)
	}

	ref, err := pkg.AddStream(ctx, artifactName, m.WriteCSV)
	if err != nil {
		return types.ArtifactRef{}, err
	}
	log.Infow("Feature matrix written", "location", ref.Location(), "rows", m.Rows(), "columns", m.Width())
	return ref, nil
}

// TrainModel fits a classifier on the matrix at matrixPath and uploads the
// model blob as artifactName. The fitted model is returned for evaluation.
func TrainModel(ctx context.Context, svc *Services, pkg *storage.Package, matrixPath, target, artifactName string) (types.ArtifactRef, *training.FittedModel, error) {
	log := svc.Logger.WithStage("train")
	log.Infow("Training model", "matrix", matrixPath, "target", target)

	m, err := loadMatrix(ctx, svc, pkg, matrixPath)
	if err != nil {
		return types.ArtifactRef{}, nil, err
	}

	start := time.Now()
	model, err := training.Train(m, target, svc.NewClassifier())
	if err != nil {
		return types.ArtifactRef{}, nil, err
	}
	blob, err := model.MarshalBinary()
	if err != nil {
		return types.ArtifactRef{}, nil, err
	}

	ref, err := uploadViaTempFile(ctx, pkg, svc.Config.Artifacts.TempPath, artifactName, blob)
	if err != nil {
		return types.ArtifactRef{}, nil, err
	}
	log.Infow("Model written",
		"location", ref.Location(),
		"rows", m.Rows(),
		"features", len(model.Features),
		"duration", time.Since(start),
	)
	return ref, model, nil
}

// EvaluateModel scores model on the matrix at matrixPath and uploads the
// metrics as artifactName.
func EvaluateModel(ctx context.Context, svc *Services, pkg *storage.Package, model *training.FittedModel, matrixPath, artifactName string) (types.ArtifactRef, *training.Metrics, error) {
	log := svc.Logger.WithStage("evaluate")

	m, err := loadMatrix(ctx, svc, pkg, matrixPath)
	if err != nil {
		return types.ArtifactRef{}, nil, err
	}
	metrics, err := training.Evaluate(model, m, svc.Config.Training.Threshold)
	if err != nil {
		return types.ArtifactRef{}, nil, err
	}

	ref, err := pkg.AddJSON(ctx, artifactName, metrics)
	if err != nil {
		return types.ArtifactRef{}, nil, err
	}
	log.Infow("Model evaluated",
		"location", ref.Location(),
		"total", metrics.Total,
		"accuracy", metrics.Accuracy,
		"precision", metrics.Precision,
		"recall", metrics.Recall,
		"f1", metrics.F1,
	)
	return ref, metrics, nil
}

func loadMatrix(ctx context.Context, svc *Services, pkg *storage.Package, matrixPath string) (*features.Matrix, error) {
	rc, err := svc.Lake.Open(ctx, pkg.Bucket(), matrixPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	m, err := features.ReadMatrixCSV(rc)
	if err != nil {
		return nil, fmt.Errorf("load matrix %s: %w", matrixPath, err)
	}
	return m, nil
}

// uploadViaTempFile writes blob to a scratch file in dir and uploads the file.
func uploadViaTempFile(ctx context.Context, pkg *storage.Package, dir, artifactName string, blob []byte) (types.ArtifactRef, error) {
	f, err := os.CreateTemp(dir, "crashed-model-*")
	if err != nil {
		return types.ArtifactRef{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(blob); err != nil {
		f.Close()
		return types.ArtifactRef{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return types.ArtifactRef{}, fmt.Errorf("close temp file: %w", err)
	}
	return pkg.AddFile(ctx, artifactName, f.Name())
}
