// Package store persists inference outcome events for later inspection.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/go-libsql"
	_ "modernc.org/sqlite"

	"github.com/careerlens/careerlens/internal/config"
)

// Supported drivers. Each name is also the database/sql driver name.
const (
	DriverLibsql   = "libsql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var errNotInitialized = errors.New("store is not initialized")

// dsnBuilders turns store config into a connection string per driver.
var dsnBuilders = map[string]func(config.StoreConfig) (string, error){
	DriverLibsql:   buildLibsqlDSN,
	DriverSQLite:   buildSQLiteDSN,
	DriverPostgres: buildPostgresDSN,
}

// Store is the outcome log's database handle.
type Store struct {
	DB     *sql.DB
	driver string
}

// Open connects to the configured database and verifies it answers.
// libsql is used when no driver is named.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" {
		name = DriverLibsql
	}
	build, ok := dsnBuilders[name]
	if !ok {
		return nil, fmt.Errorf("unsupported store driver: %s", name)
	}
	dsn, err := build(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", name, err)
	}
	if name != DriverPostgres {
		// one writer at a time for file-backed databases
		db.SetMaxOpenConns(1)
	}

	s := New(db, name)
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w", name, err)
	}
	return s, nil
}

// New wraps an open connection for driver.
func New(db *sql.DB, driver string) *Store {
	return &Store{DB: db, driver: driver}
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver names the database/sql driver in use.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// Ping backs the store health check.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	return s.DB.PingContext(ctx)
}

// rebind numbers ? placeholders as $1..$n on postgres. Queries in this
// package never contain a literal '?'.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres || !strings.Contains(query, "?") {
		return query
	}
	parts := strings.Split(query, "?")
	var b strings.Builder
	b.WriteString(parts[0])
	for i, part := range parts[1:] {
		b.WriteString("$")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(part)
	}
	return b.String()
}
