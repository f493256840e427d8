// Package warehouse runs the pipeline's SQL against the MySQL warehouse:
// materializing training tables, counting and exporting them, and checking
// that source columns exist before a run starts.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/dbsmedya/crashed/internal/lock"
	"github.com/dbsmedya/crashed/internal/logger"
	"github.com/dbsmedya/crashed/internal/sqlutil"
	"github.com/dbsmedya/crashed/internal/table"
	"github.com/dbsmedya/crashed/internal/types"
)

// Warehouse executes pipeline statements on a warehouse connection.
type Warehouse struct {
	db          *sql.DB
	logger      *logger.Logger
	lockTimeout int
}

// New creates a Warehouse. A nil logger discards output.
func New(db *sql.DB, log *logger.Logger) *Warehouse {
	if log == nil {
		log = logger.NewNop()
	}
	return &Warehouse{db: db, logger: log, lockTimeout: lock.TimeoutMedium}
}

// BuildQuery builds SELECT <columns> FROM <from> [WHERE <where>]. where is a raw
// SQL predicate that may use ? placeholders bound to args.
func BuildQuery(columns []string, from, where string, args ...interface{}) (string, []interface{}, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("no columns to select")
	}
	quoted, err := sqlutil.QuoteColumns(columns)
	if err != nil {
		return "", nil, err
	}
	source, err := sqlutil.QuoteIdentifierSafe(from)
	if err != nil {
		return "", nil, err
	}

	builder := sq.Select(quoted...).From(source)
	if strings.TrimSpace(where) != "" {
		builder = builder.Where(where, args...)
	}
	return builder.ToSql()
}

// SelectInto replaces dataset.table with the result of query. The table is
// dropped and recreated while holding its advisory lock, so two runs never
// rebuild the same table at once. It returns the new table's row count.
func (w *Warehouse) SelectInto(ctx context.Context, query string, args []interface{}, dataset, tableName string) (int64, error) {
	target, err := sqlutil.QualifiedName(dataset, tableName)
	if err != nil {
		return 0, err
	}
	log := w.logger.WithTable(target)

	tableLock := lock.NewTableLock(w.db, dataset, tableName)
	err = tableLock.WithLock(ctx, w.lockTimeout, func() error {
		if dataset != "" {
			if _, err := w.db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+sqlutil.QuoteIdentifier(dataset)); err != nil {
				return fmt.Errorf("create dataset %s: %w", dataset, err)
			}
		}
		if _, err := w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+target); err != nil {
			return fmt.Errorf("drop %s: %w", target, err)
		}
		log.Debugw("Materializing table", "query", query)
		if _, err := w.db.ExecContext(ctx, "CREATE TABLE "+target+" AS "+query, args...); err != nil {
			return fmt.Errorf("create %s: %w", target, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	rows, err := w.CountRows(ctx, dataset, tableName)
	if err != nil {
		return 0, err
	}
	log.Infow("Table materialized", "rows", rows)
	return rows, nil
}

// CountRows returns the number of rows in dataset.table.
func (w *Warehouse) CountRows(ctx context.Context, dataset, tableName string) (int64, error) {
	target, err := sqlutil.QualifiedName(dataset, tableName)
	if err != nil {
		return 0, err
	}
	query, args, err := sq.Select("COUNT(*)").From(target).ToSql()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := w.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", target, err)
	}
	return count, nil
}

// ExportCSV streams every row of dataset.table to out as CSV with a header row.
// NULL values are written as empty cells. It returns the number of data rows.
func (w *Warehouse) ExportCSV(ctx context.Context, dataset, tableName string, out io.Writer) (int64, error) {
	target, err := sqlutil.QualifiedName(dataset, tableName)
	if err != nil {
		return 0, err
	}
	query, args, err := sq.Select("*").From(target).ToSql()
	if err != nil {
		return 0, err
	}

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", target, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("read columns of %s: %w", target, err)
	}

	writer := table.NewRecordWriter(out)
	if err := writer.Write(columns); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	record := make([]string, len(columns))

	var exported int64
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return exported, fmt.Errorf("export interrupted: %w", err)
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return exported, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if record[i], err = types.ToCell(v); err != nil {
				return exported, fmt.Errorf("row %d column %s: %w", exported, columns[i], err)
			}
		}
		if err := writer.Write(record); err != nil {
			return exported, fmt.Errorf("write row: %w", err)
		}
		exported++
	}
	if err := rows.Err(); err != nil {
		return exported, fmt.Errorf("error iterating rows: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return exported, fmt.Errorf("flush csv: %w", err)
	}

	w.logger.WithTable(target).Debugw("Table exported", "rows", exported)
	return exported, nil
}

// CheckColumns verifies that tableName in the connected database has every
// listed column. The first missing column is reported as *table.SchemaError.
func (w *Warehouse) CheckColumns(ctx context.Context, tableName string, columns []string) error {
	query, args, err := sq.Select("COLUMN_NAME").
		From("information_schema.COLUMNS").
		Where("TABLE_SCHEMA = DATABASE()").
		Where(sq.Eq{"TABLE_NAME": tableName}).
		ToSql()
	if err != nil {
		return err
	}

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query columns of %s: %w", tableName, err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan column name: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating columns: %w", err)
	}

	if len(existing) == 0 {
		return fmt.Errorf("source table %q does not exist", tableName)
	}
	for _, col := range columns {
		if !existing[col] {
			return &table.SchemaError{
				Column: col,
				Reason: fmt.Sprintf("not found in warehouse table %q", tableName),
			}
		}
	}
	return nil
}
