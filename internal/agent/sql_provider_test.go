package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/ashureev/sqlchat/internal/config"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
)

type closeRecorder struct{ closed int }

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestSQLProviderRunAnswersDirectly(t *testing.T) {
	llm := fake.NewFakeLLM([]string{"Do I need to use a tool? No\nAI: 42 claims"})
	p := NewSQLProviderWith(llm, newFakeDB(), nil, DefaultConfig(), nil)

	mem := p.NewMemory()
	out, err := p.Bind(mem).Run(context.Background(), "How many claims in 2023?")
	require.NoError(t, err)
	require.Equal(t, "42 claims", out)
	require.NoError(t, mem.Clear(context.Background()))
}

func TestSQLProviderRejectsForeignMemory(t *testing.T) {
	p1 := NewSQLProviderWith(fake.NewFakeLLM([]string{"AI: x"}), newFakeDB(), nil, DefaultConfig(), nil)
	p2 := NewSQLProviderWith(fake.NewFakeLLM([]string{"AI: x"}), newFakeDB(), nil, DefaultConfig(), nil)

	_, err := p1.Bind(p2.NewMemory()).Run(context.Background(), "hi")
	require.ErrorIs(t, err, ErrForeignMemory)

	_, err = p1.Bind(nil).Run(context.Background(), "hi")
	require.ErrorIs(t, err, ErrForeignMemory)
}

func TestSQLProviderStatsAndClose(t *testing.T) {
	closer := &closeRecorder{}
	p := NewSQLProviderWith(fake.NewFakeLLM([]string{"AI: x"}), newFakeDB(), closer, DefaultConfig(), nil)

	stats := p.Stats()
	require.Equal(t, "langchaingo", stats.Backend)
	require.Equal(t, "sqlite3", stats.Dialect)
	require.ElementsMatch(t, []string{"claims", "members"}, stats.Tables)
	require.Len(t, stats.Tools, 4)

	require.NoError(t, p.Close())
	require.Equal(t, 1, closer.closed)
}

func TestNewLLMRejectsUnknownProvider(t *testing.T) {
	_, err := NewLLM(config.AgentConfig{Provider: "bard"})
	require.Error(t, err)
}

func TestConfigFromApp(t *testing.T) {
	got := ConfigFromApp(config.AgentConfig{MaxIterations: 4, TopK: 0})
	require.Equal(t, 4, got.MaxIterations)
	require.Equal(t, 100, got.TopK)
}

func TestFuncAdapter(t *testing.T) {
	boom := errors.New("boom")
	var a Agent = Func(func(context.Context, string) (string, error) { return "", boom })
	_, err := a.Run(context.Background(), "x")
	require.ErrorIs(t, err, boom)
}
