package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/ashureev/sqlchat/internal/agent"
)

// fakeMemory records prompts the way a conversation buffer would.
type fakeMemory struct {
	mu       sync.Mutex
	history  []string
	clears   int
	clearErr error
}

func (m *fakeMemory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	if m.clearErr != nil {
		return m.clearErr
	}
	m.history = nil
	return nil
}

func (m *fakeMemory) remember(prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, prompt)
}

func (m *fakeMemory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// fakeProvider answers with reply(prompt) and remembers prompts in the bound
// memory.
type fakeProvider struct {
	mu       sync.Mutex
	reply    func(ctx context.Context, prompt string) (string, error)
	memories []*fakeMemory
	clearErr error
}

func newFakeProvider(reply func(ctx context.Context, prompt string) (string, error)) *fakeProvider {
	return &fakeProvider{reply: reply}
}

func answersWith(replies map[string]string) *fakeProvider {
	return newFakeProvider(func(_ context.Context, prompt string) (string, error) {
		if r, ok := replies[prompt]; ok {
			return r, nil
		}
		return "", errors.New("no answer")
	})
}

func (p *fakeProvider) NewMemory() agent.Memory {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := &fakeMemory{clearErr: p.clearErr}
	p.memories = append(p.memories, m)
	return m
}

func (p *fakeProvider) Bind(mem agent.Memory) agent.Agent {
	m := mem.(*fakeMemory)
	return agent.Func(func(ctx context.Context, prompt string) (string, error) {
		m.remember(prompt)
		return p.reply(ctx, prompt)
	})
}

func (p *fakeProvider) Close() error { return nil }

func (p *fakeProvider) memoryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.memories)
}

func (p *fakeProvider) memory(i int) *fakeMemory {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memories[i]
}
