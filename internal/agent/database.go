package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools/sqldatabase"
	"github.com/tmc/langchaingo/tools/sqldatabase/mysql"
	"github.com/tmc/langchaingo/tools/sqldatabase/postgresql"
	"github.com/tmc/langchaingo/tools/sqldatabase/sqlite3"
)

var errUnsupportedScheme = errors.New("unsupported database scheme")

// Target is a DATABASE_URI resolved to a langchaingo engine and driver DSN.
type Target struct {
	Engine string
	DSN    string
}

// ParseDatabaseURI maps a connection URI onto a registered sqldatabase engine.
//
//	postgres://, postgresql://  -> pgx, URI passed through
//	mysql://user:pw@tcp(host)/db -> mysql, scheme stripped
//	sqlite://path, sqlite3://path, file:path, bare path -> sqlite3
func ParseDatabaseURI(uri string) (Target, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Target{}, errors.New("empty database uri")
	}

	scheme, rest, hasScheme := strings.Cut(uri, "://")
	if !hasScheme {
		// file: URIs and bare paths go to sqlite3 untouched.
		return Target{Engine: sqlite3.EngineName, DSN: uri}, nil
	}

	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return Target{Engine: postgresql.EngineName, DSN: uri}, nil
	case "mysql":
		return Target{Engine: mysql.EngineName, DSN: rest}, nil
	case "sqlite", "sqlite3":
		if rest == "" {
			return Target{}, fmt.Errorf("sqlite uri %q has no path", uri)
		}
		return Target{Engine: sqlite3.EngineName, DSN: rest}, nil
	default:
		return Target{}, fmt.Errorf("%w: %s", errUnsupportedScheme, scheme)
	}
}

// OpenDatabase connects to the database behind uri. Tables in ignore are
// hidden from the agent's schema tools.
func OpenDatabase(uri string, ignore []string) (*sqldatabase.SQLDatabase, error) {
	target, err := ParseDatabaseURI(uri)
	if err != nil {
		return nil, err
	}
	var ignored map[string]struct{}
	if len(ignore) > 0 {
		ignored = make(map[string]struct{}, len(ignore))
		for _, t := range ignore {
			ignored[t] = struct{}{}
		}
	}
	db, err := sqldatabase.NewSQLDatabaseWithDSN(target.Engine, target.DSN, ignored)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", target.Engine, err)
	}
	return db, nil
}
