package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ashureev/sqlchat/internal/config"
	"github.com/tmc/langchaingo/agents"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/memory"
	"github.com/tmc/langchaingo/tools"
)

const sqlAgentPrefix = `You are an agent designed to interact with a %s database.
Given an input question, create a syntactically correct %s query to run, then look at the results of the query and return the answer.
Unless the user specifies a specific number of examples they wish to obtain, always limit your query to at most %d results.
You can order the results by a relevant column to return the most interesting examples in the database.
Never query for all the columns from a specific table, only ask for the relevant columns given the question.
You MUST double check your query before executing it. If you get an error while executing a query, rewrite the query and try again.
DO NOT make any DML statements (INSERT, UPDATE, DELETE, DROP etc.) to the database.
If the question does not seem related to the database, just answer it directly.

TOOLS:
------

You have access to the following tools:

{{.tool_descriptions}}`

// SQLProvider runs a langchaingo conversational agent over a SQL toolkit.
// Every memory it hands out is a langchaingo conversation buffer.
type SQLProvider struct {
	llm    llms.Model
	db     Database
	closer io.Closer
	tools  []tools.Tool
	cfg    Config
	logger *slog.Logger
}

// NewSQLProvider connects to DATABASE_URI and the configured LLM.
func NewSQLProvider(cfg config.AgentConfig, logger *slog.Logger) (*SQLProvider, error) {
	llm, err := NewLLM(cfg)
	if err != nil {
		return nil, err
	}

	db, err := OpenDatabase(cfg.DatabaseURI, cfg.IgnoreTables)
	if err != nil {
		return nil, err
	}

	return NewSQLProviderWith(llm, db, db, ConfigFromApp(cfg), logger), nil
}

// NewSQLProviderWith builds a provider from already constructed collaborators.
// closer may be nil.
func NewSQLProviderWith(llm llms.Model, db Database, closer io.Closer, cfg Config, logger *slog.Logger) *SQLProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLProvider{
		llm:    llm,
		db:     db,
		closer: closer,
		tools:  NewToolkit(db, llm, cfg.TopK),
		cfg:    cfg,
		logger: logger,
	}
}

// NewLLM returns the chat model named by cfg.Provider.
func NewLLM(cfg config.AgentConfig) (*openai.LLM, error) {
	var opts []openai.Option
	switch cfg.Provider {
	case config.ProviderAzure:
		opts = []openai.Option{
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithToken(cfg.APIKey),
			openai.WithBaseURL(cfg.APIBase),
			openai.WithModel(cfg.Deployment),
			openai.WithAPIVersion(cfg.APIVersion),
		}
	case config.ProviderOpenAI:
		opts = []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.OpenAIModel),
		}
		if cfg.APIBase != "" {
			opts = append(opts, openai.WithBaseURL(cfg.APIBase))
		}
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s llm: %w", cfg.Provider, err)
	}
	return llm, nil
}

type bufferMemory struct {
	owner *SQLProvider
	buf   *memory.ConversationBuffer
}

func (m *bufferMemory) Clear(ctx context.Context) error {
	return m.buf.Clear(ctx)
}

// NewMemory returns an empty conversation buffer.
func (p *SQLProvider) NewMemory() Memory {
	return &bufferMemory{
		owner: p,
		buf: memory.NewConversationBuffer(
			memory.WithInputKey("input"),
			memory.WithOutputKey("output"),
		),
	}
}

// Bind returns an agent executor wired to mem.
func (p *SQLProvider) Bind(mem Memory) Agent {
	m, ok := mem.(*bufferMemory)
	if !ok || m.owner != p {
		return failingAgent{err: ErrForeignMemory}
	}

	dialect := p.db.Dialect()
	a := agents.NewConversationalAgent(p.llm, p.tools,
		agents.WithPromptPrefix(fmt.Sprintf(sqlAgentPrefix, dialect, dialect, p.cfg.TopK)),
	)
	executor := agents.NewExecutor(a,
		agents.WithMemory(m.buf),
		agents.WithMaxIterations(p.cfg.MaxIterations),
		agents.WithParserErrorHandler(agents.NewParserErrorHandler(nil)),
	)
	return &sqlAgent{executor: executor, logger: p.logger}
}

// Stats reports the connected database for the health endpoint.
func (p *SQLProvider) Stats() Stats {
	names := make([]string, 0, len(p.tools))
	for _, t := range p.tools {
		names = append(names, t.Name())
	}
	return Stats{
		Backend: "langchaingo",
		Dialect: p.db.Dialect(),
		Tables:  p.db.TableNames(),
		Tools:   names,
	}
}

// Close closes the database connection.
func (p *SQLProvider) Close() error {
	if p.closer == nil {
		return nil
	}
	if err := p.closer.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

type sqlAgent struct {
	executor *agents.Executor
	logger   *slog.Logger
}

func (a *sqlAgent) Run(ctx context.Context, prompt string) (string, error) {
	out, err := chains.Run(ctx, a.executor, prompt, chains.WithTemperature(0))
	if err != nil {
		// Returned unwrapped: the message is shown to the user as is.
		return "", err
	}
	a.logger.Debug("SQL agent finished", "prompt_length", len(prompt), "output_length", len(out))
	return strings.TrimSpace(out), nil
}
