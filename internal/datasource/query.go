package datasource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/task"
)

type QuerySource struct {
	sqlSource
	query string
}

func (q *QuerySource) Type() task.SourceType {
	return task.SourceQuery
}

func (q *QuerySource) Definition() string {
	return q.query
}

func (q *QuerySource) GetData(ctx context.Context) (*task.Results, error) {
	if q.simulate {
		return q.simulated("SQL_Query", q.query), nil
	}

	slog.Debug(fmt.Sprintf("Running query on server %s, database %s:\n%s", q.server, q.database, q.query),
		tag.Report(q.report))

	results, err := q.run(ctx, q.query)
	if err != nil {
		msg := fmt.Sprintf("Error retrieving results from database %s using a query for report %s", q.database, q.report)
		return task.ErrorResults(q.report, msg+": "+err.Error()), err
	}
	return results, nil
}
