package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/task"
)

var (
	procedureNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\[\]]*$`)
	parameterNamePattern = regexp.MustCompile(`^@?[A-Za-z_][A-Za-z0-9_]*$`)
)

func validProcedureName(name string) bool {
	return procedureNamePattern.MatchString(strings.TrimSpace(name))
}

func validParameterName(name string) bool {
	return parameterNamePattern.MatchString(name)
}

type sqlSource struct {
	report   string
	dialect  Dialect
	server   string
	database string
	dsn      string
	simulate bool
	dbs      DBProvider
}

func (s *sqlSource) db() (*sql.DB, error) {
	if s.dbs == nil {
		return nil, errors.New("no database connector configured")
	}
	return s.dbs.DB(s.dialect, s.dsn)
}

// simulated describes the statement instead of running it.
func (s *sqlSource) simulated(column, text string) *task.Results {
	results := task.NewResults(s.report)
	results.DefineColumns([]string{column})
	results.AddRow([]string{strings.ReplaceAll(strings.TrimSpace(text), "\t", " ")})
	return results
}

func (s *sqlSource) run(ctx context.Context, statement string, args ...any) (*task.Results, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("Failed to close rows", tag.Report(s.report), tag.Error(closeErr))
		}
	}()

	return readResults(s.report, rows)
}

// readResults collects every result set. Later sets only contribute
// columns beyond those already known.
func readResults(report string, rows *sql.Rows) (*task.Results, error) {
	results := task.NewResults(report)

	for set := 0; ; set++ {
		columns, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read columns: %w", err)
		}
		if set == 0 {
			results.DefineColumns(columns)
		} else {
			results.MergeColumns(columns)
		}

		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}

		for rows.Next() {
			if err := rows.Scan(dest...); err != nil {
				return nil, fmt.Errorf("scan failed: %w", err)
			}
			row := make([]string, len(values))
			for i, v := range values {
				row[i] = formatValue(v)
			}
			results.AddRow(row)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		if !rows.NextResultSet() {
			break
		}
	}

	return results, rows.Err()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(val)
	}
}
