package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/crashed/internal/storage"
)

func TestDescribeRun(t *testing.T) {
	ctx := context.Background()
	pkg := storage.NewPackage(storage.NewFileLake(t.TempDir()), "models", "crash-risk", "run-1")

	_, err := pkg.AddBytes(ctx, "catalog.json", []byte(`{"weather": ["clear", "rain"], "road": ["dry"]}`))
	require.NoError(t, err)
	_, err = pkg.AddBytes(ctx, "numeric.json", []byte(
		`{"speed": {"count": 3, "mean": 50, "std": 10, "min": 40, "max": 60, "quantiles": []}}`))
	require.NoError(t, err)

	var buf bytes.Buffer
	setOutputWriter(&buf)
	defer resetOutputWriter()

	require.NoError(t, describeRun(ctx, pkg, "catalog.json", "numeric.json", "metrics.json"))
	out := buf.String()

	assert.Contains(t, out, "Run run-1")
	assert.Contains(t, out, "[Categorical Features]")
	assert.Contains(t, out, "  weather  2       clear, rain")
	assert.Contains(t, out, "[Numeric Features]")
	assert.Contains(t, out, "  speed   3      50    10   40   60")
	assert.NotContains(t, out, "[Evaluation]")
}

func TestDescribeRunNothingFound(t *testing.T) {
	pkg := storage.NewPackage(storage.NewFileLake(t.TempDir()), "models", "crash-risk", "run-1")
	setOutputWriter(&bytes.Buffer{})
	defer resetOutputWriter()

	err := describeRun(context.Background(), pkg, "a.json", "b.json", "c.json")
	assert.ErrorContains(t, err, "no artifacts found for run run-1")
}

func TestDescribeRunUnreadableArtifact(t *testing.T) {
	root := t.TempDir()
	pkg := storage.NewPackage(storage.NewFileLake(root), "models", "crash-risk", "run-1")
	// A directory where the catalog should be opens fine but cannot be read.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "models", "crash-risk", "run-1", "catalog.json"), 0o755))

	setOutputWriter(&bytes.Buffer{})
	defer resetOutputWriter()

	err := describeRun(context.Background(), pkg, "catalog.json", "b.json", "c.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read catalog.json")
	assert.NotContains(t, err.Error(), "no artifacts found")
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	setOutputWriter(&buf)
	defer resetOutputWriter()

	printTable([][]string{
		{"metric", "value"},
		{"f1", "0.5"},
	})
	assert.Equal(t, "  metric  value\n  f1      0.5\n", buf.String())
}

func TestFormatStat(t *testing.T) {
	assert.Equal(t, "0.3333", formatStat(1.0/3))
	assert.Equal(t, "40", formatStat(40))
}
