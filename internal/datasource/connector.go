package datasource

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// DBProvider hands out a shared *sql.DB for a dialect and DSN.
type DBProvider interface {
	DB(dialect Dialect, dsn string) (*sql.DB, error)
}

// Connector caches one pool per driver and DSN.
type Connector struct {
	mu   sync.Mutex
	dbs  map[string]*sql.DB
	open func(driver, dsn string) (*sql.DB, error)
}

func NewConnector() *Connector {
	return &Connector{
		dbs:  make(map[string]*sql.DB),
		open: sql.Open,
	}
}

func (c *Connector) DB(dialect Dialect, dsn string) (*sql.DB, error) {
	driver := dialect.driverName()
	key := driver + "|" + dsn

	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.dbs[key]; ok {
		return db, nil
	}

	db, err := c.open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	c.dbs[key] = db
	return db, nil
}

func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key, db := range c.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.dbs, key)
	}
	return errors.Join(errs...)
}

// BuildDSN builds a connection string for the dialect. For SQLite the
// database is the file path.
func BuildDSN(dialect Dialect, server, database, user string) string {
	appName := "reportd_" + server

	switch dialect {
	case Postgres:
		parts := []string{
			"host=" + pgQuote(server),
			"dbname=" + pgQuote(database),
		}
		if user != "" {
			parts = append(parts, "user="+pgQuote(user))
		}
		parts = append(parts, "sslmode=disable", "application_name="+pgQuote(appName))
		return strings.Join(parts, " ")

	case SQLite:
		return database

	default:
		u := &url.URL{Scheme: "sqlserver", Host: server}
		if host, instance, ok := strings.Cut(server, `\`); ok {
			u.Host = host
			u.Path = instance
		}
		if user != "" {
			u.User = url.User(user)
		}
		q := url.Values{}
		q.Set("database", database)
		q.Set("app name", appName)
		u.RawQuery = q.Encode()
		return u.String()
	}
}

func pgQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
