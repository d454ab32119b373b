// Package datasource implements the report data sources: SQL queries,
// stored procedures and WMI queries, plus the post-mail stored procedure
// hook.
package datasource

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nadmax/reportd/internal/task"
)

// QueryTimeout bounds one data retrieval.
const QueryTimeout = 600 * time.Second

var ErrUnsupported = errors.New("operation not supported")

type Dialect string

const (
	SQLServer Dialect = "sqlserver"
	Postgres  Dialect = "postgres"
	SQLite    Dialect = "sqlite"
)

// ParseDialect accepts "postgresql" as an alias; empty means SQL Server.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlserver", "mssql":
		return SQLServer, nil
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unknown server type %q", s)
	}
}

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	if d == "" {
		return string(SQLServer)
	}
	return string(d)
}

type ValueDivisor struct {
	Value       float64
	RoundDigits int
	Units       string
}

// Spec describes one data source as read from the definitions file.
type Spec struct {
	Report   string
	Type     task.SourceType
	Dialect  Dialect
	Server   string
	Database string
	User     string
	DSN      string
	Host     string
	// Text is the query, procedure name or WMI query.
	Text    string
	Divisor ValueDivisor
}

type HookSpec struct {
	Report        string
	Dialect       Dialect
	Server        string
	Database      string
	DSN           string
	Procedure     string
	Parameter     string
	VarcharLength int
}

// Factory builds data sources. In simulate mode no source contacts a
// server; each returns a description of what it would have run.
type Factory struct {
	Simulate bool
	DBs      DBProvider
}

func NewFactory(simulate bool, dbs DBProvider) *Factory {
	return &Factory{Simulate: simulate, DBs: dbs}
}

func (f *Factory) Build(spec Spec) (task.DataSource, error) {
	if strings.TrimSpace(spec.Text) == "" {
		return nil, errors.New("data source text is empty")
	}

	switch spec.Type {
	case task.SourceQuery, task.SourceStoredProcedure:
		if spec.DSN == "" && (spec.Server == "" || spec.Database == "") {
			return nil, errors.New("server and database are required")
		}
		dsn := spec.DSN
		if dsn == "" {
			dsn = BuildDSN(spec.Dialect, spec.Server, spec.Database, spec.User)
		}
		base := sqlSource{
			report:   spec.Report,
			dialect:  spec.Dialect,
			server:   spec.Server,
			database: spec.Database,
			dsn:      dsn,
			simulate: f.Simulate,
			dbs:      f.DBs,
		}
		if spec.Type == task.SourceQuery {
			return &QuerySource{sqlSource: base, query: spec.Text}, nil
		}
		if !validProcedureName(spec.Text) {
			return nil, fmt.Errorf("invalid procedure name %q", spec.Text)
		}
		return &ProcedureSource{sqlSource: base, procedure: strings.TrimSpace(spec.Text)}, nil

	case task.SourceWMI:
		host := spec.Host
		if host == "" {
			host = spec.Server
		}
		if host == "" {
			return nil, errors.New("WMI host is required")
		}
		return &WMISource{
			report:   spec.Report,
			host:     host,
			query:    spec.Text,
			divisor:  spec.Divisor,
			simulate: f.Simulate,
		}, nil

	default:
		return nil, fmt.Errorf("unknown data source type %q", spec.Type)
	}
}

// BuildHook returns a ProcedureHook for spec. Incomplete specs are an error.
func (f *Factory) BuildHook(spec HookSpec) (*ProcedureHook, error) {
	switch {
	case spec.Server == "" && spec.DSN == "":
		return nil, errors.New("server not defined in the postMailIdListHook element")
	case spec.Database == "" && spec.DSN == "":
		return nil, errors.New("database not defined in the postMailIdListHook element")
	case spec.Procedure == "":
		return nil, errors.New("procedure not defined in the postMailIdListHook element")
	case spec.Parameter == "":
		return nil, errors.New("parameter name not defined in the postMailIdListHook element")
	case !validProcedureName(spec.Procedure):
		return nil, fmt.Errorf("invalid procedure name %q", spec.Procedure)
	case !validParameterName(spec.Parameter):
		return nil, fmt.Errorf("invalid parameter name %q", spec.Parameter)
	}

	dsn := spec.DSN
	if dsn == "" {
		dsn = BuildDSN(spec.Dialect, spec.Server, spec.Database, "")
	}
	return &ProcedureHook{
		report:        spec.Report,
		dialect:       spec.Dialect,
		server:        spec.Server,
		database:      spec.Database,
		dsn:           dsn,
		procedure:     spec.Procedure,
		parameter:     strings.TrimPrefix(spec.Parameter, "@"),
		varcharLength: spec.VarcharLength,
		simulate:      f.Simulate,
		dbs:           f.DBs,
	}, nil
}
