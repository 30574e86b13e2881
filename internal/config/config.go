// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM providers understood by the SQL agent.
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
)

// Config holds all application configuration.
type Config struct {
	Port               string
	FrontendURL        string
	DBPath             string // SQLite file for identities and the exchange audit trail
	AuditEnabled       bool   // record exchanges and serve /api/exchanges
	ExchangeRetention  time.Duration
	LogLevel           slog.Level
	MaxRequestBodySize int64
	Session            SessionConfig
	UI                 UIConfig
	Agent              AgentConfig
	RateLimit          RateLimitConfig
	ConversationLog    ConversationLogConfig
}

// SessionConfig controls in-memory chat session lifetime.
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// AgentConfig describes how the SQL agent is reached or built.
type AgentConfig struct {
	// RemoteAddr selects the gRPC agent service when non-empty.
	RemoteAddr string

	DatabaseURI  string
	IgnoreTables []string
	TopK         int

	Provider        string
	APIKey          string
	APIBase         string
	Deployment      string
	APIVersion      string
	OpenAIModel     string
	MaxIterations   int
	Timeout         time.Duration // 0 disables the per-call timeout
	RequestTimeout  time.Duration // remote agent only
	ConnectTimeout  time.Duration // remote agent only
	KeepaliveTime   time.Duration // remote agent only
	KeepaliveWindow time.Duration // remote agent only
}

// UIConfig holds the strings shown on the chat page.
type UIConfig struct {
	Title       string
	Description string
	Placeholder string
}

// RateLimitConfig bounds chat submissions per anonymous user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON conversation logging. Nothing is
// written to disk unless Enabled or GlobalEnabled is set.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	provider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderAzure))
	apiKey := getEnv("AZURE_OPENAI_API_KEY", "")
	if provider == ProviderOpenAI {
		apiKey = getEnv("OPENAI_API_KEY", "")
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		FrontendURL:        getEnv("FRONTEND_URL", ""),
		DBPath:             getEnv("DB_PATH", "./data/sqlchat.db"),
		AuditEnabled:       getEnvBool("AUDIT_ENABLED", false),
		ExchangeRetention:  getEnvDuration("EXCHANGE_RETENTION", 30*24*time.Hour),
		LogLevel:           parseLevel(getEnv("LOG_LEVEL", "info")),
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
		Session: SessionConfig{
			TTL:           getEnvDuration("SESSION_TTL", 60*time.Minute),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		},
		UI: UIConfig{
			Title:       getEnv("UI_TITLE", "Health Hackathon Chatbot"),
			Description: getEnv("UI_DESCRIPTION", "Ask about claims in the HealthHackathan database."),
			Placeholder: getEnv("UI_PLACEHOLDER", "Ask a question about claims"),
		},
		Agent: AgentConfig{
			RemoteAddr:      getEnv("AGENT_ADDR", ""),
			DatabaseURI:     getEnv("DATABASE_URI", ""),
			IgnoreTables:    getEnvList("SQL_IGNORE_TABLES"),
			TopK:            getEnvInt("SQL_TOP_K", 100),
			Provider:        provider,
			APIKey:          apiKey,
			APIBase:         getEnv("AZURE_OPENAI_API_BASE", ""),
			Deployment:      getEnv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o"),
			APIVersion:      getEnv("AZURE_OPENAI_API_VERSION", "2024-03-01-preview"),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o"),
			MaxIterations:   getEnvInt("AGENT_MAX_ITERATIONS", 15),
			Timeout:         getEnvDuration("AGENT_TIMEOUT", 0),
			RequestTimeout:  getEnvDuration("AGENT_REQUEST_TIMEOUT", 0),
			ConnectTimeout:  getEnvDuration("AGENT_CONNECT_TIMEOUT", 5*time.Second),
			KeepaliveTime:   2 * time.Minute,
			KeepaliveWindow: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
//
//nolint:gocyclo // Flat list of independent checks.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ExchangeRetention <= 0 {
		return fmt.Errorf("EXCHANGE_RETENTION must be > 0")
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	if c.Agent.IsRemote() {
		return nil
	}
	return c.Agent.validateLocal()
}

func (a AgentConfig) validateLocal() error {
	if a.DatabaseURI == "" {
		return fmt.Errorf("DATABASE_URI cannot be empty")
	}
	if a.TopK <= 0 {
		return fmt.Errorf("SQL_TOP_K must be > 0")
	}
	if a.MaxIterations <= 0 {
		return fmt.Errorf("AGENT_MAX_ITERATIONS must be > 0")
	}
	switch a.Provider {
	case ProviderAzure:
		if a.APIKey == "" {
			return fmt.Errorf("AZURE_OPENAI_API_KEY cannot be empty")
		}
		if a.APIBase == "" {
			return fmt.Errorf("AZURE_OPENAI_API_BASE cannot be empty")
		}
		if a.Deployment == "" {
			return fmt.Errorf("AZURE_OPENAI_DEPLOYMENT cannot be empty")
		}
	case ProviderOpenAI:
		if a.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY cannot be empty")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", a.Provider)
	}
	return nil
}

// IsRemote reports whether the agent runs behind the gRPC agent service.
func (a AgentConfig) IsRemote() bool {
	return a.RemoteAddr != ""
}

// Backend names the agent backend for logs and the config endpoint.
func (a AgentConfig) Backend() string {
	if a.IsRemote() {
		return "remote"
	}
	return a.Provider
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
