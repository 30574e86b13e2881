package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/tools/sqldatabase"
)

// Database is the subset of *sqldatabase.SQLDatabase the toolkit needs.
// Query returns a header line of tab-separated column names followed by one
// tab-separated line per row.
type Database interface {
	Dialect() string
	TableNames() []string
	TableInfo(ctx context.Context, tables []string) (string, error)
	Query(ctx context.Context, query string) (string, error)
}

var _ Database = (*sqldatabase.SQLDatabase)(nil)

// Tool names exposed to the agent.
const (
	ToolListTables   = "sql_db_list_tables"
	ToolSchema       = "sql_db_schema"
	ToolQuery        = "sql_db_query"
	ToolQueryChecker = "sql_db_query_checker"
)

// NewToolkit returns the tools the SQL agent plans with. Tool failures are
// reported back to the model as observations so it can correct itself.
func NewToolkit(db Database, llm llms.Model, topK int) []tools.Tool {
	return []tools.Tool{
		listTablesTool{db: db},
		schemaTool{db: db},
		queryTool{db: db, maxRows: topK},
		queryCheckerTool{db: db, llm: llm},
	}
}

type listTablesTool struct{ db Database }

func (listTablesTool) Name() string { return ToolListTables }

func (listTablesTool) Description() string {
	return "Input is an empty string, output is a comma-separated list of tables in the database."
}

func (t listTablesTool) Call(context.Context, string) (string, error) {
	names := slices.Clone(t.db.TableNames())
	slices.Sort(names)
	return strings.Join(names, ", "), nil
}

type schemaTool struct{ db Database }

func (schemaTool) Name() string { return ToolSchema }

func (schemaTool) Description() string {
	return "Input to this tool is a comma-separated list of tables, output is the schema and sample rows for those tables. " +
		"Be sure that the tables actually exist by calling " + ToolListTables + " first! Example Input: table1, table2, table3"
}

func (t schemaTool) Call(ctx context.Context, input string) (string, error) {
	tables := splitTables(input)
	if len(tables) == 0 {
		return "Error: no table names given. Call " + ToolListTables + " to see available tables.", nil
	}

	known := t.db.TableNames()
	var missing []string
	for _, name := range tables {
		if !slices.Contains(known, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Sprintf("Error: table_names %s not found in database", strings.Join(missing, ", ")), nil
	}

	info, err := t.db.TableInfo(ctx, tables)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	return info, nil
}

type queryTool struct {
	db      Database
	maxRows int
}

func (queryTool) Name() string { return ToolQuery }

func (queryTool) Description() string {
	return "Input to this tool is a detailed and correct SQL query, output is a result from the database. " +
		"If the query is not correct, an error message will be returned. If an error is returned, rewrite the query, " +
		"check the query, and try again. If you encounter an issue with Unknown column 'xxxx' in 'field list', use " +
		ToolSchema + " to query the correct table fields."
}

func (t queryTool) Call(ctx context.Context, input string) (string, error) {
	query := cleanQuery(input)
	if query == "" {
		return "Error: empty query", nil
	}

	result, err := t.db.Query(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "Error: " + err.Error(), nil
	}
	return limitRows(result, t.maxRows), nil
}

type queryCheckerTool struct {
	db  Database
	llm llms.Model
}

func (queryCheckerTool) Name() string { return ToolQueryChecker }

func (queryCheckerTool) Description() string {
	return "Use this tool to double check if your query is correct before executing it. " +
		"Always use this tool before executing a query with " + ToolQuery + "!"
}

const queryCheckerPrompt = `%s
Double check the %s query above for common mistakes, including:
- Using NOT IN with NULL values
- Using UNION when UNION ALL should have been used
- Using BETWEEN for exclusive ranges
- Data type mismatch in predicates
- Properly quoting identifiers
- Using the correct number of arguments for functions
- Casting to the correct data type
- Using the proper columns for joins

If there are any of the above mistakes, rewrite the query. If there are no mistakes, just reproduce the original query.

Output the final SQL query only.

SQL Query: `

func (t queryCheckerTool) Call(ctx context.Context, input string) (string, error) {
	query := cleanQuery(input)
	if query == "" {
		return "Error: empty query", nil
	}
	checked, err := llms.GenerateFromSinglePrompt(ctx, t.llm,
		fmt.Sprintf(queryCheckerPrompt, query, t.db.Dialect()),
		llms.WithTemperature(0),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "Error: " + err.Error(), nil
	}
	return cleanQuery(checked), nil
}

func splitTables(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		part = strings.Trim(strings.TrimSpace(part), "`\"'")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// cleanQuery strips markdown fences and surrounding quotes models tend to add.
func cleanQuery(input string) string {
	q := strings.TrimSpace(input)
	q = strings.TrimPrefix(q, "```sql")
	q = strings.TrimPrefix(q, "```")
	q = strings.TrimSuffix(q, "```")
	q = strings.TrimSpace(q)
	q = strings.Trim(q, "\"")
	return strings.TrimSpace(q)
}

// limitRows keeps the header and at most maxRows rows of a query result.
// maxRows <= 0 keeps every row.
func limitRows(result string, maxRows int) string {
	lines := strings.Split(strings.TrimRight(result, "\n"), "\n")
	if len(lines) <= 1 {
		return "The query returned no rows."
	}

	rows := len(lines) - 1
	if maxRows <= 0 || rows <= maxRows {
		return strings.Join(lines, "\n")
	}
	kept := strings.Join(lines[:maxRows+1], "\n")
	return fmt.Sprintf("%s\n(%d more rows not shown)", kept, rows-maxRows)
}
