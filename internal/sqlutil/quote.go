// Package sqlutil provides identifier quoting for warehouse SQL.
package sqlutil

import (
	"regexp"
	"strings"
)

// QuoteIdentifier quotes a MySQL identifier (table name, column name) with backticks.
// Existing backticks are escaped by doubling them.
// Example: "crashes_raw" -> "`crashes_raw`"
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// validIdentifierRegex restricts identifiers to alphanumerics and underscore.
var validIdentifierRegex = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// IsValidIdentifier checks if a name is a valid MySQL identifier.
// Dataset, table and feature column names all come from configuration and are
// interpolated into SQL, so only alphanumerics and underscores are accepted.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// QuoteIdentifierSafe quotes a MySQL identifier after validating it.
func QuoteIdentifierSafe(name string) (string, error) {
	if !IsValidIdentifier(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return QuoteIdentifier(name), nil
}

// QualifiedName returns the quoted `dataset`.`table` reference.
// An empty dataset yields just the quoted table, resolved against the connection's database.
func QualifiedName(dataset, table string) (string, error) {
	qt, err := QuoteIdentifierSafe(table)
	if err != nil {
		return "", err
	}
	if dataset == "" {
		return qt, nil
	}
	qd, err := QuoteIdentifierSafe(dataset)
	if err != nil {
		return "", err
	}
	return qd + "." + qt, nil
}

// QuoteColumns validates and quotes every column name.
func QuoteColumns(columns []string) ([]string, error) {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		q, err := QuoteIdentifierSafe(col)
		if err != nil {
			return nil, err
		}
		quoted[i] = q
	}
	return quoted, nil
}

// InvalidIdentifierError is returned when an identifier contains invalid characters.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must contain only alphanumeric characters and underscores)"
}
