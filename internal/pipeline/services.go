// Package pipeline runs the crash-risk pipeline: it materializes training rows
// in the warehouse, exports them to the lake, profiles and encodes features,
// and trains and evaluates the model. Each stage writes one artifact and
// returns its location.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/dbsmedya/crashed/internal/boost"
	"github.com/dbsmedya/crashed/internal/config"
	"github.com/dbsmedya/crashed/internal/logger"
	"github.com/dbsmedya/crashed/internal/storage"
	"github.com/dbsmedya/crashed/internal/training"
	"github.com/dbsmedya/crashed/internal/verifier"
)

// Warehouse is the part of the warehouse the stages use.
type Warehouse interface {
	SelectInto(ctx context.Context, query string, args []interface{}, dataset, table string) (int64, error)
	ExportCSV(ctx context.Context, dataset, table string, out io.Writer) (int64, error)
	CountRows(ctx context.Context, dataset, table string) (int64, error)
	CheckColumns(ctx context.Context, table string, columns []string) error
}

// ClassifierFactory returns a fresh, unfitted classifier.
type ClassifierFactory func() training.Classifier

// Services holds the collaborators every stage needs. It is built once per
// process and passed explicitly to each stage.
type Services struct {
	Config        *config.Config
	Warehouse     Warehouse
	Lake          *storage.FileLake
	Verifier      *verifier.Verifier
	Logger        *logger.Logger
	NewClassifier ClassifierFactory
}

// NewServices wires the verifier and classifier factory from cfg. wh may be nil
// for stages that only touch the lake.
func NewServices(cfg *config.Config, wh Warehouse, lake *storage.FileLake, log *logger.Logger) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if lake == nil {
		return nil, fmt.Errorf("lake is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	method := verifier.VerificationMethod(cfg.EffectiveVerification())
	var v *verifier.Verifier
	if wh != nil || method != verifier.MethodCount {
		var counter verifier.RowCounter
		if wh != nil {
			counter = wh
		}
		var err error
		v, err = verifier.NewVerifier(counter, lake, method, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create verifier: %w", err)
		}
	}

	return &Services{
		Config:        cfg,
		Warehouse:     wh,
		Lake:          lake,
		Verifier:      v,
		Logger:        log,
		NewClassifier: BoostFactory(cfg.Training),
	}, nil
}

// BoostFactory returns a factory for gradient-boosted classifiers configured from t.
func BoostFactory(t config.TrainingConfig) ClassifierFactory {
	return func() training.Classifier {
		return boost.New(
			boost.WithRounds(t.Rounds),
			boost.WithMaxDepth(t.MaxDepth),
			boost.WithLearningRate(t.LearningRate),
			boost.WithLambda(t.Lambda),
			boost.WithMinChildWeight(t.MinChildWeight),
		)
	}
}

// NewPackage returns the artifact package for a run. An empty runID gets a
// generated one.
func (s *Services) NewPackage(runID string) *storage.Package {
	return storage.NewPackage(s.Lake, s.Config.Lake.Bucket, s.Config.Artifacts.Package, runID)
}

func (s *Services) requireWarehouse() error {
	if s.Warehouse == nil {
		return fmt.Errorf("stage needs a warehouse connection")
	}
	return nil
}
