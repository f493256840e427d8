package pipeline

import (
	"context"
	"fmt"
)

// PreflightError reports a check that failed before any stage ran.
type PreflightError struct {
	Check   string
	Message string
	Err     error
}

func (e *PreflightError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Check, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Check, e.Message)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// Preflight checks that the warehouse is reachable and that the source table
// has every column the pipeline selects.
func Preflight(ctx context.Context, svc *Services) error {
	if err := svc.requireWarehouse(); err != nil {
		return &PreflightError{Check: "warehouse", Message: "not configured", Err: err}
	}
	p := svc.Config.Pipeline
	log := svc.Logger.WithTable(p.SourceTable)
	log.Infow("Running preflight checks")

	columns := p.Features.SourceColumns()
	if err := svc.Warehouse.CheckColumns(ctx, p.SourceTable, columns); err != nil {
		return &PreflightError{
			Check:   "source_columns",
			Message: fmt.Sprintf("source table %s is missing pipeline columns", p.SourceTable),
			Err:     err,
		}
	}

	log.Infow("Preflight checks passed", "columns", len(columns))
	return nil
}
