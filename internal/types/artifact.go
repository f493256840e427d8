// Package types contains shared types used across multiple packages to avoid import cycles.
package types

import "fmt"

// ArtifactRef locates an immutable artifact written to the lake by a pipeline stage.
type ArtifactRef struct {
	Name   string `json:"name" yaml:"name"`     // logical artifact name, e.g. "training.csv"
	Bucket string `json:"bucket" yaml:"bucket"` // lake bucket
	Path   string `json:"path" yaml:"path"`     // object path within the bucket
	Size   int64  `json:"size" yaml:"size"`
	SHA256 string `json:"sha256" yaml:"sha256"` // hex digest of the uploaded bytes
}

// Location returns the bucket-qualified path of the artifact.
func (r ArtifactRef) Location() string {
	return fmt.Sprintf("%s/%s", r.Bucket, r.Path)
}

// IsZero reports whether the reference points at nothing.
func (r ArtifactRef) IsZero() bool {
	return r.Bucket == "" && r.Path == ""
}
