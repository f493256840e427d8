package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/google/uuid"

	"github.com/dbsmedya/crashed/internal/table"
	"github.com/dbsmedya/crashed/internal/types"
)

// Package scopes the artifacts of one pipeline run to <name>/<run-id>/ in a
// single lake bucket. It is passed explicitly to every stage.
type Package struct {
	lake   *FileLake
	bucket string
	name   string
	runID  string
}

// NewPackage returns a package for a run. An empty runID generates a new one.
func NewPackage(lake *FileLake, bucket, name, runID string) *Package {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Package{lake: lake, bucket: bucket, name: name, runID: runID}
}

// Lake returns the underlying lake.
func (p *Package) Lake() *FileLake { return p.lake }

// Bucket returns the bucket holding the package's artifacts.
func (p *Package) Bucket() string { return p.bucket }

// Name returns the package name.
func (p *Package) Name() string { return p.name }

// RunID returns the run identifier.
func (p *Package) RunID() string { return p.runID }

// Path returns the object path of an artifact in this run.
func (p *Package) Path(artifact string) string {
	return path.Join(p.name, p.runID, artifact)
}

// Ref returns the location of an artifact without touching the lake.
func (p *Package) Ref(artifact string) types.ArtifactRef {
	return types.ArtifactRef{Name: artifact, Bucket: p.bucket, Path: p.Path(artifact)}
}

// AddBytes uploads data as an artifact.
func (p *Package) AddBytes(ctx context.Context, artifact string, data []byte) (types.ArtifactRef, error) {
	return p.add(ctx, artifact, bytes.NewReader(data))
}

// AddJSON uploads v as an indented JSON document.
func (p *Package) AddJSON(ctx context.Context, artifact string, v interface{}) (types.ArtifactRef, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return types.ArtifactRef{}, fmt.Errorf("encode %s: %w", artifact, err)
	}
	return p.AddBytes(ctx, artifact, append(data, '\n'))
}

// AddTable uploads t as CSV.
func (p *Package) AddTable(ctx context.Context, artifact string, t *table.Table) (types.ArtifactRef, error) {
	return p.AddStream(ctx, artifact, func(w io.Writer) error {
		return table.WriteCSV(w, t)
	})
}

// AddFile uploads a local file.
func (p *Package) AddFile(ctx context.Context, artifact, localPath string) (types.ArtifactRef, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return types.ArtifactRef{}, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()
	return p.add(ctx, artifact, f)
}

// AddStream uploads whatever write produces. If write fails, nothing is stored.
func (p *Package) AddStream(ctx context.Context, artifact string, write func(w io.Writer) error) (types.ArtifactRef, error) {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(write(pw))
	}()
	ref, err := p.add(ctx, artifact, pr)
	pr.CloseWithError(io.ErrClosedPipe)
	return ref, err
}

func (p *Package) add(ctx context.Context, artifact string, r io.Reader) (types.ArtifactRef, error) {
	ref, err := p.lake.Upload(ctx, p.bucket, p.Path(artifact), r)
	if err != nil {
		return types.ArtifactRef{}, fmt.Errorf("upload artifact %s: %w", artifact, err)
	}
	ref.Name = artifact
	return ref, nil
}
