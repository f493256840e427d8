package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dbsmedya/crashed/internal/config"
	"github.com/dbsmedya/crashed/internal/database"
	"github.com/dbsmedya/crashed/internal/logger"
	"github.com/dbsmedya/crashed/internal/pipeline"
	"github.com/dbsmedya/crashed/internal/storage"
	"github.com/dbsmedya/crashed/internal/warehouse"
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

// loadConfig loads the config file, applies CLI overrides and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat, overrides.Rounds, overrides.SkipVerify)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session bundles what a command needs: config, logger, services and, when
// requested, the warehouse connection.
type session struct {
	cfg *config.Config
	log *logger.Logger
	db  *database.Manager
	svc *pipeline.Services
}

// openSession loads config and wires services. With withWarehouse the
// warehouse is connected and pinged first.
func openSession(ctx context.Context, withWarehouse bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	s := &session{cfg: cfg, log: log}
	var wh pipeline.Warehouse
	if withWarehouse {
		s.db = database.NewManager(&cfg.Warehouse)
		if err := s.db.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
		}
		if err := s.db.Ping(ctx); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("warehouse connection failed: %w", err)
		}
		wh = warehouse.New(s.db.Warehouse, log)
	}

	svc, err := pipeline.NewServices(cfg, wh, storage.NewFileLake(cfg.Lake.Root), log)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.svc = svc
	return s, nil
}

// pkg returns the artifact package of the run selected with --run-id.
func (s *session) pkg() *storage.Package {
	return s.svc.NewPackage(runID)
}

// existingPkg is like pkg but requires --run-id, for commands that read
// artifacts of an earlier run.
func (s *session) existingPkg() (*storage.Package, error) {
	if runID == "" {
		return nil, fmt.Errorf("--run-id is required to locate artifacts of an earlier run")
	}
	return s.pkg(), nil
}

// Close releases the warehouse connection and flushes the logger.
func (s *session) Close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.log != nil {
		_ = s.log.Sync()
	}
}

// dataSet resolves --set to its warehouse table, filter and CSV artifact name.
type dataSet struct {
	Table    string
	Where    string
	CSV      string
	Matrix   string
	Training bool
}

func resolveDataSet(p *config.PipelineConfig, name string) (dataSet, error) {
	switch name {
	case "", "training":
		return dataSet{
			Table:    p.TrainingTable,
			Where:    p.Where,
			CSV:      p.Outputs.TrainingCSV,
			Matrix:   p.Outputs.Matrix,
			Training: true,
		}, nil
	case "test":
		if !p.HasTestSet() {
			return dataSet{}, fmt.Errorf("no test set configured (pipeline.test_where and pipeline.test_table)")
		}
		return dataSet{
			Table:  p.TestTable,
			Where:  p.TestWhere,
			CSV:    p.Outputs.TestCSV,
			Matrix: p.Outputs.TestMatrix,
		}, nil
	default:
		return dataSet{}, fmt.Errorf("unknown set %q (expected training or test)", name)
	}
}
