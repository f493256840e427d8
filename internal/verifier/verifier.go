// Package verifier checks that a table exported to the lake matches its
// warehouse source.
package verifier

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/dbsmedya/crashed/internal/logger"
	"github.com/dbsmedya/crashed/internal/types"
)

// VerificationMethod defines how to verify an export.
type VerificationMethod string

const (
	// MethodCount compares the CSV data row count with COUNT(*) (fast)
	MethodCount VerificationMethod = "count"
	// MethodSHA256 re-reads the object and compares its digest with the upload digest
	MethodSHA256 VerificationMethod = "sha256"
	// MethodSkip skips verification entirely
	MethodSkip VerificationMethod = "skip"
)

// RowCounter counts rows of a warehouse table.
type RowCounter interface {
	CountRows(ctx context.Context, dataset, table string) (int64, error)
}

// ObjectReader opens lake objects.
type ObjectReader interface {
	Open(ctx context.Context, bucket, path string) (io.ReadCloser, error)
}

// VerifyResult holds the outcome of verifying one export.
type VerifyResult struct {
	Artifact      string
	Table         string
	Method        VerificationMethod
	SourceCount   int64
	ArtifactCount int64
	ExpectedHash  string
	ActualHash    string
	Match         bool
}

// MismatchError is returned when an export does not match its source.
type MismatchError struct {
	Result *VerifyResult
}

func (e *MismatchError) Error() string {
	r := e.Result
	if r.Method == MethodSHA256 {
		return fmt.Sprintf("verification failed for %s: sha256 %s does not match uploaded %s",
			r.Artifact, r.ActualHash, r.ExpectedHash)
	}
	return fmt.Sprintf("verification failed for %s: table %s has %d rows, artifact has %d",
		r.Artifact, r.Table, r.SourceCount, r.ArtifactCount)
}

// Verifier verifies exports with a fixed method.
type Verifier struct {
	counter RowCounter
	lake    ObjectReader
	method  VerificationMethod
	logger  *logger.Logger
}

// NewVerifier creates a verifier. An empty method means MethodCount.
func NewVerifier(counter RowCounter, lake ObjectReader, method VerificationMethod, log *logger.Logger) (*Verifier, error) {
	if lake == nil {
		return nil, fmt.Errorf("lake is nil")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if method == "" {
		method = MethodCount
	}

	switch method {
	case MethodCount:
		if counter == nil {
			return nil, fmt.Errorf("count verification needs a warehouse")
		}
	case MethodSHA256, MethodSkip:
	default:
		return nil, fmt.Errorf("unknown verification method %q", method)
	}

	return &Verifier{counter: counter, lake: lake, method: method, logger: log}, nil
}

// Method returns the configured verification method.
func (v *Verifier) Method() VerificationMethod { return v.method }

// VerifyExport checks the CSV artifact ref exported from dataset.table.
// A mismatch is returned as *MismatchError alongside the result.
func (v *Verifier) VerifyExport(ctx context.Context, ref types.ArtifactRef, dataset, table string) (*VerifyResult, error) {
	result := &VerifyResult{Artifact: ref.Location(), Table: table, Method: v.method}
	if dataset != "" {
		result.Table = dataset + "." + table
	}
	log := v.logger.WithTable(result.Table)

	switch v.method {
	case MethodSkip:
		log.Infow("Verification SKIPPED", "artifact", result.Artifact)
		result.Match = true
		return result, nil

	case MethodCount:
		source, err := v.counter.CountRows(ctx, dataset, table)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", result.Artifact, err)
		}
		exported, err := v.countDataRows(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", result.Artifact, err)
		}
		result.SourceCount = source
		result.ArtifactCount = exported
		result.Match = source == exported

	case MethodSHA256:
		if ref.SHA256 == "" {
			return nil, fmt.Errorf("verify %s: artifact has no recorded digest", result.Artifact)
		}
		actual, err := v.digest(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", result.Artifact, err)
		}
		result.ExpectedHash = ref.SHA256
		result.ActualHash = actual
		result.Match = actual == ref.SHA256
	}

	if !result.Match {
		log.Errorw("Verification FAILED", "artifact", result.Artifact, "method", v.method)
		return result, &MismatchError{Result: result}
	}
	log.Infow("Verification passed", "artifact", result.Artifact, "method", v.method)
	return result, nil
}

// countDataRows counts CSV records after the header.
func (v *Verifier) countDataRows(ctx context.Context, ref types.ArtifactRef) (int64, error) {
	rc, err := v.lake.Open(ctx, ref.Bucket, ref.Path)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.ReuseRecord = true
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("artifact is empty")
		}
		return 0, err
	}

	var n int64
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (v *Verifier) digest(ctx context.Context, ref types.ArtifactRef) (string, error) {
	rc, err := v.lake.Open(ctx, ref.Bucket, ref.Path)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, rc); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
