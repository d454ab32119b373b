package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/task"
)

// ProcedureHook sends the IDs in the first column of delivered results to
// a stored procedure as one comma-separated parameter.
type ProcedureHook struct {
	report        string
	dialect       Dialect
	server        string
	database      string
	dsn           string
	procedure     string
	parameter     string
	varcharLength int
	simulate      bool
	dbs           DBProvider
}

var _ task.Hook = (*ProcedureHook)(nil)

func (h *ProcedureHook) Describe() string {
	return fmt.Sprintf("procedure %s in database %s on server %s", h.procedure, h.database, h.server)
}

// IDList joins the non-blank first-column values, truncated to the
// parameter length when one is set.
func (h *ProcedureHook) IDList(results *task.Results) string {
	ids := make([]string, 0, len(results.Rows))
	for _, row := range results.Rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		ids = append(ids, row[0])
	}

	list := strings.Join(ids, ",")
	if h.varcharLength > 0 && len(list) > h.varcharLength {
		list = list[:h.varcharLength]
	}
	return list
}

func (h *ProcedureHook) Run(ctx context.Context, results *task.Results) error {
	list := h.IDList(results)

	if h.simulate {
		slog.Info(fmt.Sprintf("Would call %s with @%s = '%s'", h.Describe(), h.parameter, list), tag.Report(h.report))
		return nil
	}

	var (
		statement string
		args      []any
	)
	switch h.dialect {
	case Postgres:
		statement = fmt.Sprintf("SELECT * FROM %s($1)", h.procedure)
		args = []any{list}
	case SQLite:
		return fmt.Errorf("post-mail procedure on sqlite: %w", ErrUnsupported)
	default:
		statement = fmt.Sprintf("EXEC %s @%s = @p1", h.procedure, h.parameter)
		args = []any{sql.Named("p1", list)}
	}

	if h.dbs == nil {
		return fmt.Errorf("no database connector configured")
	}
	db, err := h.dbs.DB(h.dialect, h.dsn)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, statement, args...); err != nil {
		return fmt.Errorf("procedure %s in database %s on server %s failed: %w", h.procedure, h.database, h.server, err)
	}

	slog.Debug("Sent result IDs to post-mail procedure", tag.Report(h.report),
		slog.String("procedure", h.procedure), tag.Rows(len(results.Rows)))
	return nil
}
