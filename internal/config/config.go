// Package config provides configuration structures and loading for the crashed pipeline.
package config

// Config represents the complete application configuration.
type Config struct {
	Warehouse    DatabaseConfig     `yaml:"warehouse" mapstructure:"warehouse"`
	Lake         LakeConfig         `yaml:"lake" mapstructure:"lake"`
	Artifacts    ArtifactsConfig    `yaml:"artifacts" mapstructure:"artifacts"`
	Pipeline     PipelineConfig     `yaml:"pipeline" mapstructure:"pipeline"`
	Training     TrainingConfig     `yaml:"training" mapstructure:"training"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig represents the MySQL warehouse connection configuration.
type DatabaseConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// LakeConfig locates the file lake that stores exported tables and artifacts.
type LakeConfig struct {
	Root   string `yaml:"root" mapstructure:"root"`     // directory holding one sub-directory per bucket
	Bucket string `yaml:"bucket" mapstructure:"bucket"` // bucket used for every artifact of a run
}

// ArtifactsConfig controls how run artifacts are named.
type ArtifactsConfig struct {
	Package  string `yaml:"package" mapstructure:"package"`     // path prefix for all artifacts
	TempPath string `yaml:"temp_path" mapstructure:"temp_path"` // scratch directory for model blobs
}

// PipelineConfig describes the data the pipeline reads and the artifacts it writes.
type PipelineConfig struct {
	Name          string         `yaml:"name" mapstructure:"name"`
	SourceTable   string         `yaml:"source_table" mapstructure:"source_table"`
	Where         string         `yaml:"where" mapstructure:"where"`           // training rows filter
	TestWhere     string         `yaml:"test_where" mapstructure:"test_where"` // evaluation rows filter, optional
	Dataset       string         `yaml:"dataset" mapstructure:"dataset"`
	TrainingTable string         `yaml:"training_table" mapstructure:"training_table"`
	TestTable     string         `yaml:"test_table" mapstructure:"test_table"`
	Features      FeaturesConfig `yaml:"features" mapstructure:"features"`
	Outputs       OutputsConfig  `yaml:"outputs" mapstructure:"outputs"`
}

// FeaturesConfig declares column roles. Column kinds are explicit: nothing is inferred.
type FeaturesConfig struct {
	Categorical []string  `yaml:"categorical" mapstructure:"categorical"`
	Numeric     []string  `yaml:"numeric" mapstructure:"numeric"`
	Target      string    `yaml:"target" mapstructure:"target"`
	Quantiles   []float64 `yaml:"quantiles" mapstructure:"quantiles"`
}

// OutputsConfig holds artifact file names for each stage.
type OutputsConfig struct {
	TrainingCSV        string `yaml:"training_csv" mapstructure:"training_csv"`
	TestCSV            string `yaml:"test_csv" mapstructure:"test_csv"`
	CategoricalSummary string `yaml:"categorical_summary" mapstructure:"categorical_summary"`
	NumericSummary     string `yaml:"numeric_summary" mapstructure:"numeric_summary"`
	Matrix             string `yaml:"matrix" mapstructure:"matrix"`
	TestMatrix         string `yaml:"test_matrix" mapstructure:"test_matrix"`
	Model              string `yaml:"model" mapstructure:"model"`
	Metrics            string `yaml:"metrics" mapstructure:"metrics"`
}

// TrainingConfig holds gradient boosting parameters.
type TrainingConfig struct {
	Rounds         int     `yaml:"rounds" mapstructure:"rounds"`
	MaxDepth       int     `yaml:"max_depth" mapstructure:"max_depth"`
	LearningRate   float64 `yaml:"learning_rate" mapstructure:"learning_rate"`
	MinChildWeight float64 `yaml:"min_child_weight" mapstructure:"min_child_weight"`
	Lambda         float64 `yaml:"lambda" mapstructure:"lambda"`
	Threshold      float64 `yaml:"threshold" mapstructure:"threshold"` // decision threshold used for evaluation
}

// VerificationConfig represents export verification settings.
type VerificationConfig struct {
	Method           string `yaml:"method" mapstructure:"method"` // "count" or "sha256"
	SkipVerification bool   `yaml:"skip_verification" mapstructure:"skip_verification"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stderr, stdout, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Warehouse: DatabaseConfig{
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Lake: LakeConfig{
			Root:   "./lake",
			Bucket: "crashed",
		},
		Artifacts: ArtifactsConfig{
			Package:  "crashed",
			TempPath: "/tmp",
		},
		Pipeline: PipelineConfig{
			Name: "crashed",
			Features: FeaturesConfig{
				Quantiles: []float64{0.25, 0.5, 0.75},
			},
			Outputs: OutputsConfig{
				TrainingCSV:        "training.csv",
				TestCSV:            "test.csv",
				CategoricalSummary: "feature-summary-categorical.json",
				NumericSummary:     "feature-summary-numeric.json",
				Matrix:             "final_matrix.csv",
				TestMatrix:         "test_matrix.csv",
				Model:              "model.gob",
				Metrics:            "metrics.json",
			},
		},
		Training: TrainingConfig{
			Rounds:         100,
			MaxDepth:       3,
			LearningRate:   0.1,
			MinChildWeight: 1,
			Lambda:         1,
			Threshold:      0.5,
		},
		Verification: VerificationConfig{
			Method:           "count",
			SkipVerification: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// HasTestSet reports whether an evaluation table is configured.
func (p *PipelineConfig) HasTestSet() bool {
	return p.TestWhere != "" && p.TestTable != ""
}

// MatrixColumns returns the numeric passthrough columns of the feature matrix:
// the numeric features followed by the target, which training splits off by name.
func (f *FeaturesConfig) MatrixColumns() []string {
	cols := make([]string, 0, len(f.Numeric)+1)
	cols = append(cols, f.Numeric...)
	for _, c := range f.Numeric {
		if c == f.Target {
			return cols
		}
	}
	if f.Target != "" {
		cols = append(cols, f.Target)
	}
	return cols
}

// SourceColumns returns every column the pipeline selects from the source table.
func (f *FeaturesConfig) SourceColumns() []string {
	cols := make([]string, 0, len(f.Categorical)+len(f.Numeric)+1)
	cols = append(cols, f.Categorical...)
	return append(cols, f.MatrixColumns()...)
}

// EffectiveVerification returns the verification method, taking the skip flag into account.
func (c *Config) EffectiveVerification() string {
	if c.Verification.SkipVerification {
		return "skip"
	}
	if c.Verification.Method == "" {
		return "count"
	}
	return c.Verification.Method
}
