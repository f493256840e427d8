package verifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/crashed/internal/storage"
	"github.com/dbsmedya/crashed/internal/types"
)

type fakeCounter struct {
	rows int64
	err  error
}

func (f *fakeCounter) CountRows(ctx context.Context, dataset, table string) (int64, error) {
	return f.rows, f.err
}

func upload(t *testing.T, lake *storage.FileLake, content string) types.ArtifactRef {
	t.Helper()
	ref, err := lake.Upload(context.Background(), "crashed", "pkg/run/training.csv", strings.NewReader(content))
	require.NoError(t, err)
	return ref
}

func TestNewVerifier(t *testing.T) {
	lake := storage.NewFileLake(t.TempDir())

	v, err := NewVerifier(&fakeCounter{}, lake, "", nil)
	require.NoError(t, err)
	assert.Equal(t, MethodCount, v.Method())

	_, err = NewVerifier(nil, lake, MethodCount, nil)
	assert.Error(t, err)

	_, err = NewVerifier(nil, lake, MethodSHA256, nil)
	assert.NoError(t, err)

	_, err = NewVerifier(nil, lake, "md5", nil)
	assert.Error(t, err)

	_, err = NewVerifier(&fakeCounter{}, nil, MethodCount, nil)
	assert.Error(t, err)
}

func TestVerifyCount(t *testing.T) {
	lake := storage.NewFileLake(t.TempDir())
	// The quoted cell spans two lines but is one record.
	ref := upload(t, lake, "weather,note\nrain,\"multi\nline\"\nclear,ok\n")

	v, err := NewVerifier(&fakeCounter{rows: 2}, lake, MethodCount, nil)
	require.NoError(t, err)

	result, err := v.VerifyExport(context.Background(), ref, "analytics", "training")
	require.NoError(t, err)
	assert.True(t, result.Match)
	assert.Equal(t, int64(2), result.SourceCount)
	assert.Equal(t, int64(2), result.ArtifactCount)
	assert.Equal(t, "analytics.training", result.Table)
}

func TestVerifyCountMismatch(t *testing.T) {
	lake := storage.NewFileLake(t.TempDir())
	ref := upload(t, lake, "weather\nrain\n")

	v, err := NewVerifier(&fakeCounter{rows: 5}, lake, MethodCount, nil)
	require.NoError(t, err)

	result, err := v.VerifyExport(context.Background(), ref, "", "training")
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.False(t, result.Match)
	assert.Contains(t, err.Error(), "table training has 5 rows, artifact has 1")
}

func TestVerifyCountErrors(t *testing.T) {
	lake := storage.NewFileLake(t.TempDir())

	v, err := NewVerifier(&fakeCounter{err: errors.New("warehouse down")}, lake, MethodCount, nil)
	require.NoError(t, err)
	ref := upload(t, lake, "weather\nrain\n")
	_, err = v.VerifyExport(context.Background(), ref, "", "training")
	assert.ErrorContains(t, err, "warehouse down")

	v, err = NewVerifier(&fakeCounter{}, lake, MethodCount, nil)
	require.NoError(t, err)
	empty := upload(t, lake, "")
	_, err = v.VerifyExport(context.Background(), empty, "", "training")
	assert.ErrorContains(t, err, "artifact is empty")
}

func TestVerifySHA256(t *testing.T) {
	lake := storage.NewFileLake(t.TempDir())
	ref := upload(t, lake, "weather\nrain\n")

	v, err := NewVerifier(nil, lake, MethodSHA256, nil)
	require.NoError(t, err)

	result, err := v.VerifyExport(context.Background(), ref, "", "training")
	require.NoError(t, err)
	assert.True(t, result.Match)
	assert.Equal(t, ref.SHA256, result.ActualHash)

	tampered := ref
	tampered.SHA256 = strings.Repeat("0", 64)
	_, err = v.VerifyExport(context.Background(), tampered, "", "training")
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Contains(t, err.Error(), "sha256")

	noDigest := ref
	noDigest.SHA256 = ""
	_, err = v.VerifyExport(context.Background(), noDigest, "", "training")
	assert.ErrorContains(t, err, "no recorded digest")
}

func TestVerifySkip(t *testing.T) {
	lake := storage.NewFileLake(t.TempDir())
	v, err := NewVerifier(nil, lake, MethodSkip, nil)
	require.NoError(t, err)

	result, err := v.VerifyExport(context.Background(), types.ArtifactRef{Bucket: "crashed", Path: "missing.csv"}, "", "training")
	require.NoError(t, err)
	assert.True(t, result.Match)
	assert.Equal(t, MethodSkip, result.Method)
}
