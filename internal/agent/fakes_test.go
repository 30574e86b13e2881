package agent

import (
	"context"
	"errors"
	"strings"
)

// fakeDB is an in-memory Database for toolkit and provider tests.
type fakeDB struct {
	tables  map[string]string
	results map[string][][]string
	cols    []string
	queries []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		tables: map[string]string{
			"claims":  "CREATE TABLE claims (id INTEGER, year INTEGER, amount REAL)",
			"members": "CREATE TABLE members (id INTEGER, name TEXT)",
		},
		results: map[string][][]string{
			"SELECT COUNT(*) FROM claims WHERE year = 2023": {{"42"}},
		},
		cols: []string{"count"},
	}
}

func (d *fakeDB) Dialect() string { return "sqlite3" }

func (d *fakeDB) TableNames() []string {
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	return names
}

func (d *fakeDB) TableInfo(_ context.Context, tables []string) (string, error) {
	var parts []string
	for _, t := range tables {
		parts = append(parts, d.tables[t])
	}
	return strings.Join(parts, "\n\n"), nil
}

// Query formats results the way sqldatabase.SQLDatabase does.
func (d *fakeDB) Query(_ context.Context, query string) (string, error) {
	d.queries = append(d.queries, query)
	rows, ok := d.results[query]
	if !ok {
		return "", errors.New("no such column: bogus")
	}
	var b strings.Builder
	b.WriteString(strings.Join(d.cols, "\t") + "\n")
	for _, row := range rows {
		b.WriteString(strings.Join(row, "\t") + "\n")
	}
	return b.String(), nil
}
