package datasource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/task"
)

// ProcedureSource calls a stored procedure that takes no arguments and
// returns one or more result sets.
type ProcedureSource struct {
	sqlSource
	procedure string
}

func (p *ProcedureSource) Type() task.SourceType {
	return task.SourceStoredProcedure
}

func (p *ProcedureSource) Definition() string {
	return p.procedure
}

func (p *ProcedureSource) GetData(ctx context.Context) (*task.Results, error) {
	if p.simulate {
		return p.simulated("Stored Procedure", p.procedure), nil
	}

	slog.Debug(fmt.Sprintf("Calling procedure on server %s, database %s: %s", p.server, p.database, p.procedure),
		tag.Report(p.report))

	results, err := p.call(ctx)
	if err != nil {
		msg := fmt.Sprintf("Error retrieving results from stored procedure %s in database %s for report %s",
			p.procedure, p.database, p.report)
		return task.ErrorResults(p.report, msg+": "+err.Error()), err
	}
	return results, nil
}

func (p *ProcedureSource) call(ctx context.Context) (*task.Results, error) {
	switch p.dialect {
	case Postgres:
		return p.run(ctx, fmt.Sprintf("SELECT * FROM %s()", p.procedure))
	case SQLite:
		return nil, fmt.Errorf("stored procedures on sqlite: %w", ErrUnsupported)
	default:
		return p.run(ctx, "EXEC "+p.procedure)
	}
}
