// Package storage provides the file lake that holds exported tables and run
// artifacts, and the run-scoped package that names them.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dbsmedya/crashed/internal/table"
	"github.com/dbsmedya/crashed/internal/types"
)

// ErrInvalidPath is returned for bucket or object paths that would escape the lake root.
var ErrInvalidPath = errors.New("invalid lake path")

// FileLake stores objects as files under root/<bucket>/<path>.
type FileLake struct {
	root string
}

// NewFileLake returns a lake rooted at root. The directory is created on first upload.
func NewFileLake(root string) *FileLake {
	return &FileLake{root: root}
}

// Root returns the lake root directory.
func (l *FileLake) Root() string { return l.root }

func (l *FileLake) resolve(bucket, objectPath string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("%w: bucket %q", ErrInvalidPath, bucket)
	}
	clean := path.Clean("/" + objectPath)
	if objectPath == "" || clean == "/" || clean != "/"+objectPath {
		return "", fmt.Errorf("%w: object %q", ErrInvalidPath, objectPath)
	}
	return filepath.Join(l.root, bucket, filepath.FromSlash(clean[1:])), nil
}

// Upload writes r to bucket/objectPath. The object is written to a temporary
// file and renamed into place, so readers never see a partial object and a
// re-upload replaces the previous version whole.
func (l *FileLake) Upload(ctx context.Context, bucket, objectPath string, r io.Reader) (types.ArtifactRef, error) {
	dest, err := l.resolve(bucket, objectPath)
	if err != nil {
		return types.ArtifactRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.ArtifactRef{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return types.ArtifactRef{}, fmt.Errorf("create lake directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return types.ArtifactRef{}, fmt.Errorf("create temp object: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return types.ArtifactRef{}, fmt.Errorf("write object %s/%s: %w", bucket, objectPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return types.ArtifactRef{}, fmt.Errorf("sync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return types.ArtifactRef{}, fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return types.ArtifactRef{}, fmt.Errorf("commit object: %w", err)
	}
	committed = true

	return types.ArtifactRef{
		Name:   path.Base(objectPath),
		Bucket: bucket,
		Path:   objectPath,
		Size:   size,
		SHA256: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// Open opens an object for reading.
func (l *FileLake) Open(ctx context.Context, bucket, objectPath string) (io.ReadCloser, error) {
	src, err := l.resolve(bucket, objectPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open object %s/%s: %w", bucket, objectPath, err)
	}
	return f, nil
}

// DownloadText returns the object's contents as a string.
func (l *FileLake) DownloadText(ctx context.Context, bucket, objectPath string) (string, error) {
	rc, err := l.Open(ctx, bucket, objectPath)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(&ctxReader{ctx: ctx, r: rc})
	if err != nil {
		return "", fmt.Errorf("read object %s/%s: %w", bucket, objectPath, err)
	}
	return string(data), nil
}

// DownloadTable reads a CSV object into a table using schema for column kinds.
func (l *FileLake) DownloadTable(ctx context.Context, bucket, objectPath string, schema table.Schema) (*table.Table, error) {
	rc, err := l.Open(ctx, bucket, objectPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t, err := table.ReadCSV(&ctxReader{ctx: ctx, r: rc}, schema)
	if err != nil {
		return nil, fmt.Errorf("load table %s/%s: %w", bucket, objectPath, err)
	}
	return t, nil
}

// Digest returns the hex SHA-256 digest and size of an object.
func (l *FileLake) Digest(ctx context.Context, bucket, objectPath string) (string, int64, error) {
	rc, err := l.Open(ctx, bucket, objectPath)
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, &ctxReader{ctx: ctx, r: rc})
	if err != nil {
		return "", 0, fmt.Errorf("hash object %s/%s: %w", bucket, objectPath, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
