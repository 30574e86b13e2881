package agent

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
	"github.com/tmc/langchaingo/tools/sqldatabase"
	"github.com/tmc/langchaingo/tools/sqldatabase/sqlite3"
)

// openClaimsDB creates a small claims database on disk and opens it the way
// the server does.
func openClaimsDB(t *testing.T, ignore ...string) *sqldatabase.SQLDatabase {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claims.db")

	raw, err := sql.Open(sqlite3.EngineName, path)
	require.NoError(t, err)
	_, err = raw.Exec(`
		CREATE TABLE claims (id INTEGER PRIMARY KEY, year INTEGER NOT NULL, amount REAL NOT NULL);
		CREATE TABLE audit_log (id INTEGER PRIMARY KEY, note TEXT);
	`)
	require.NoError(t, err)
	for i := 0; i < 42; i++ {
		_, err = raw.Exec(`INSERT INTO claims (year, amount) VALUES (2023, ?)`, 100+i)
		require.NoError(t, err)
	}
	_, err = raw.Exec(`INSERT INTO claims (year, amount) VALUES (2022, 10)`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err := OpenDatabase("sqlite://"+path, ignore)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenDatabaseToolsAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	db := openClaimsDB(t, "audit_log")
	toolkit := NewToolkit(db, nil, 5)

	out, err := toolByName(t, toolkit, ToolListTables).Call(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "claims", out)

	out, err = toolByName(t, toolkit, ToolSchema).Call(ctx, "claims")
	require.NoError(t, err)
	require.Contains(t, out, "CREATE TABLE claims")

	out, err = toolByName(t, toolkit, ToolSchema).Call(ctx, "audit_log")
	require.NoError(t, err)
	require.Equal(t, "Error: table_names audit_log not found in database", out)

	query := toolByName(t, toolkit, ToolQuery)
	out, err = query.Call(ctx, "SELECT COUNT(*) FROM claims WHERE year = 2023")
	require.NoError(t, err)
	require.Equal(t, "COUNT(*)\n42", out)

	out, err = query.Call(ctx, "SELECT id FROM claims ORDER BY id")
	require.NoError(t, err)
	require.Equal(t, "id\n1\n2\n3\n4\n5\n(38 more rows not shown)", out)

	out, err = query.Call(ctx, "SELECT id FROM claims WHERE year = 1999")
	require.NoError(t, err)
	require.Equal(t, "The query returned no rows.", out)

	out, err = query.Call(ctx, "SELECT bogus FROM claims")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "Error: "), out)
}

// promptRecorder is a fake model that keeps the prompts it was sent.
type promptRecorder struct {
	*fake.LLM
	mu      sync.Mutex
	prompts []string
}

func (r *promptRecorder) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	r.mu.Lock()
	for _, m := range messages {
		for _, p := range m.Parts {
			if text, ok := p.(llms.TextContent); ok {
				r.prompts = append(r.prompts, text.Text)
			}
		}
	}
	r.mu.Unlock()
	return r.LLM.GenerateContent(ctx, messages, options...)
}

func TestSQLProviderRunsQueryToolAgainstSQLite(t *testing.T) {
	db := openClaimsDB(t)
	llm := &promptRecorder{LLM: fake.NewFakeLLM([]string{
		"Thought: Do I need to use a tool? Yes\nAction: sql_db_query\nAction Input: SELECT COUNT(*) FROM claims WHERE year = 2023",
		"Do I need to use a tool? No\nAI: 42 claims",
	})}
	p := NewSQLProviderWith(llm, db, nil, DefaultConfig(), nil)

	out, err := p.Bind(p.NewMemory()).Run(context.Background(), "How many claims in 2023?")
	require.NoError(t, err)
	require.Equal(t, "42 claims", out)

	require.Len(t, llm.prompts, 2)
	require.Contains(t, llm.prompts[0], "How many claims in 2023?")
	require.Contains(t, llm.prompts[1], "COUNT(*)\n42")
}

type failingLLM struct{ err error }

func (f failingLLM) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, f.err
}

func (f failingLLM) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", f.err
}

func TestSQLProviderReturnsModelErrorUnwrapped(t *testing.T) {
	boom := errors.New("timeout")
	p := NewSQLProviderWith(failingLLM{err: boom}, newFakeDB(), nil, DefaultConfig(), nil)

	_, err := p.Bind(p.NewMemory()).Run(context.Background(), "list claims")
	require.ErrorIs(t, err, boom)
	require.NotContains(t, err.Error(), "sql agent")
}
