package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrTimeout is returned when a Run exceeds the configured agent timeout.
var ErrTimeout = errors.New("agent timed out")

// Service decorates a Provider with the runtime policy shared by every
// backend: optional per-call timeout and structured logging.
type Service struct {
	provider Provider
	cfg      Config
	logger   *slog.Logger
}

var _ Provider = (*Service)(nil)

// NewService wraps provider.
func NewService(provider Provider, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, cfg: cfg, logger: logger}
}

// NewMemory returns a fresh memory from the underlying provider.
func (s *Service) NewMemory() Memory {
	return s.provider.NewMemory()
}

// Bind returns an agent bound to mem that applies the service policy.
func (s *Service) Bind(mem Memory) Agent {
	return &serviceAgent{inner: s.provider.Bind(mem), svc: s}
}

// GetStats returns backend statistics when the provider reports them.
func (s *Service) GetStats() Stats {
	if r, ok := s.provider.(interface{ Stats() Stats }); ok {
		return r.Stats()
	}
	return Stats{Backend: "unknown"}
}

// Close releases resources.
func (s *Service) Close() error {
	if s.provider == nil {
		return nil
	}
	return s.provider.Close()
}

type serviceAgent struct {
	inner Agent
	svc   *Service
}

func (a *serviceAgent) Run(ctx context.Context, prompt string) (string, error) {
	if a.svc.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.svc.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := a.inner.Run(ctx, prompt)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && a.svc.cfg.Timeout > 0 {
			err = fmt.Errorf("%w after %s", ErrTimeout, a.svc.cfg.Timeout)
		}
		a.svc.logger.Warn("Agent run failed",
			"prompt_length", len(prompt),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return "", err
	}

	a.svc.logger.Info("Agent run completed",
		"prompt_length", len(prompt),
		"reply_length", len(out),
		"duration_ms", elapsed.Milliseconds(),
	)
	return out, nil
}
