package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errEmptyResponse            = errors.New("agent response has no output")
)

// RemoteError is a failure reported by the remote agent in its response.
// Its message is the agent's own.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration // 0 leaves Run unbounded
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	DialOptions      []grpc.DialOption
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GrpcClient is a Provider whose agent and memory live in a remote agent
// service. Each memory is a session id; clearing it calls Reset remotely.
type GrpcClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	cfg    GrpcClientConfig
	logger *slog.Logger
}

var _ Provider = (*GrpcClient)(nil)

// NewGrpcClient connects to the remote agent service and waits until the
// connection is ready so bad endpoints fail at startup.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultGrpcClientConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = def.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = def.KeepaliveTimeout
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}
	opts = append(opts, cfg.DialOptions...)

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent at %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("agent at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to agent service", "address", cfg.Address)

	return &GrpcClient{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close gRPC connection: %w", err)
	}
	return nil
}

// Health checks the agent service through the standard gRPC health protocol.
func (c *GrpcClient) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: RemoteServiceName})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("agent service status %s", resp.GetStatus())
	}
	return nil
}

// Stats reports the remote backend.
func (c *GrpcClient) Stats() Stats {
	return Stats{Backend: "remote:" + c.cfg.Address}
}

type remoteMemory struct {
	owner     *GrpcClient
	sessionID string
}

// Clear drops the remote conversation state for this session.
func (m *remoteMemory) Clear(ctx context.Context) error {
	return m.owner.reset(ctx, m.sessionID)
}

// NewMemory allocates a remote session id. Nothing is sent until first use.
func (c *GrpcClient) NewMemory() Memory {
	return &remoteMemory{owner: c, sessionID: uuid.Must(uuid.NewV7()).String()}
}

// Bind returns an agent that runs prompts in mem's remote session.
func (c *GrpcClient) Bind(mem Memory) Agent {
	m, ok := mem.(*remoteMemory)
	if !ok || m.owner != c {
		return failingAgent{err: ErrForeignMemory}
	}
	return Func(func(ctx context.Context, prompt string) (string, error) {
		return c.run(ctx, m.sessionID, prompt)
	})
}

func (c *GrpcClient) run(ctx context.Context, sessionID, prompt string) (string, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	req, err := structpb.NewStruct(map[string]any{
		fieldSessionID: sessionID,
		fieldPrompt:    prompt,
	})
	if err != nil {
		return "", fmt.Errorf("build run request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodRun, req, resp); err != nil {
		return "", fmt.Errorf("run request failed: %w", err)
	}

	fields := resp.GetFields()
	if msg := fields[fieldError].GetStringValue(); msg != "" {
		return "", &RemoteError{Message: msg}
	}
	out, ok := fields[fieldOutput]
	if !ok {
		return "", errEmptyResponse
	}

	if used := fields[fieldTools].GetListValue(); used != nil {
		c.logger.Debug("Remote agent tools used", "session_id", sessionID, "tools", used.AsSlice())
	}
	return out.GetStringValue(), nil
}

func (c *GrpcClient) reset(ctx context.Context, sessionID string) error {
	req, err := structpb.NewStruct(map[string]any{fieldSessionID: sessionID})
	if err != nil {
		return fmt.Errorf("build reset request: %w", err)
	}
	if err := c.conn.Invoke(ctx, methodReset, req, &structpb.Struct{}); err != nil {
		c.logger.Warn("Reset failed", "error", err, "session_id", sessionID)
		return fmt.Errorf("reset request failed: %w", err)
	}
	return nil
}
