package config

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/crashed/internal/sqlutil"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateDatabase("warehouse", &c.Warehouse)...)
	errors = append(errors, c.validateLake()...)
	errors = append(errors, c.validatePipeline()...)
	errors = append(errors, c.validateTraining()...)
	errors = append(errors, c.validateVerification()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateDatabase(prefix string, db *DatabaseConfig) ValidationErrors {
	var errors ValidationErrors

	if db.Host == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".host",
			Message: "host is required",
		})
	}

	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".port",
			Message: "port must be between 1 and 65535",
		})
	}

	if db.User == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".user",
			Message: "user is required",
		})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[db.TLS] {
		errors = append(errors, ValidationError{
			Field:   prefix + ".tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLake() ValidationErrors {
	var errors ValidationErrors

	if c.Lake.Root == "" {
		errors = append(errors, ValidationError{
			Field:   "lake.root",
			Message: "root directory is required",
		})
	}

	if c.Lake.Bucket == "" || strings.ContainsAny(c.Lake.Bucket, `/\`) || c.Lake.Bucket == ".." {
		errors = append(errors, ValidationError{
			Field:   "lake.bucket",
			Message: "bucket must be a non-empty name without path separators",
		})
	}

	if c.Artifacts.Package == "" {
		errors = append(errors, ValidationError{
			Field:   "artifacts.package",
			Message: "package name is required",
		})
	}

	return errors
}

func (c *Config) validatePipeline() ValidationErrors {
	var errors ValidationErrors
	p := &c.Pipeline

	identifiers := []struct {
		field    string
		value    string
		required bool
	}{
		{"pipeline.source_table", p.SourceTable, true},
		{"pipeline.dataset", p.Dataset, true},
		{"pipeline.training_table", p.TrainingTable, true},
		{"pipeline.test_table", p.TestTable, p.TestWhere != ""},
	}
	for _, id := range identifiers {
		if id.value == "" {
			if id.required {
				errors = append(errors, ValidationError{Field: id.field, Message: "is required"})
			}
			continue
		}
		if !sqlutil.IsValidIdentifier(id.value) {
			errors = append(errors, ValidationError{
				Field:   id.field,
				Message: fmt.Sprintf("%q must contain only alphanumeric characters and underscores", id.value),
			})
		}
	}

	f := &p.Features
	if len(f.Categorical) == 0 && len(f.Numeric) == 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.features",
			Message: "at least one categorical or numeric feature must be defined",
		})
	}
	if f.Target == "" {
		errors = append(errors, ValidationError{
			Field:   "pipeline.features.target",
			Message: "target column is required",
		})
	}

	seen := make(map[string]string)
	check := func(role string, cols []string) {
		for i, col := range cols {
			field := fmt.Sprintf("pipeline.features.%s[%d]", role, i)
			if !sqlutil.IsValidIdentifier(col) {
				errors = append(errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("%q is not a valid column name", col),
				})
			}
			if prev, dup := seen[col]; dup {
				errors = append(errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("column %q is already declared as %s", col, prev),
				})
			}
			seen[col] = role
		}
	}
	check("categorical", f.Categorical)
	check("numeric", f.Numeric)
	if role, dup := seen[f.Target]; dup && f.Target != "" {
		errors = append(errors, ValidationError{
			Field:   "pipeline.features.target",
			Message: fmt.Sprintf("target %q is also declared as a %s feature", f.Target, role),
		})
	}

	for i, q := range f.Quantiles {
		if q < 0 || q > 1 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("pipeline.features.quantiles[%d]", i),
				Message: "quantile must be between 0 and 1",
			})
		}
	}

	o := &p.Outputs
	outputs := map[string]string{
		"training_csv":        o.TrainingCSV,
		"categorical_summary": o.CategoricalSummary,
		"numeric_summary":     o.NumericSummary,
		"matrix":              o.Matrix,
		"model":               o.Model,
	}
	for _, name := range []string{"training_csv", "categorical_summary", "numeric_summary", "matrix", "model"} {
		if outputs[name] == "" {
			errors = append(errors, ValidationError{
				Field:   "pipeline.outputs." + name,
				Message: "artifact name is required",
			})
		}
	}

	return errors
}

func (c *Config) validateTraining() ValidationErrors {
	var errors ValidationErrors
	t := &c.Training

	if t.Rounds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "training.rounds",
			Message: "rounds must be positive",
		})
	}

	if t.MaxDepth <= 0 {
		errors = append(errors, ValidationError{
			Field:   "training.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if t.LearningRate <= 0 || t.LearningRate > 1 {
		errors = append(errors, ValidationError{
			Field:   "training.learning_rate",
			Message: "learning_rate must be in (0, 1]",
		})
	}

	if t.MinChildWeight < 0 {
		errors = append(errors, ValidationError{
			Field:   "training.min_child_weight",
			Message: "min_child_weight cannot be negative",
		})
	}

	if t.Lambda < 0 {
		errors = append(errors, ValidationError{
			Field:   "training.lambda",
			Message: "lambda cannot be negative",
		})
	}

	if t.Threshold <= 0 || t.Threshold >= 1 {
		errors = append(errors, ValidationError{
			Field:   "training.threshold",
			Message: "threshold must be in (0, 1)",
		})
	}

	return errors
}

func (c *Config) validateVerification() ValidationErrors {
	var errors ValidationErrors

	validMethods := map[string]bool{"count": true, "sha256": true, "": true}
	if !validMethods[c.Verification.Method] {
		errors = append(errors, ValidationError{
			Field:   "verification.method",
			Message: "method must be 'count' or 'sha256'",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
