// Package config loads service settings from defaults, an optional TOML
// file, .env and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/potrek505/TEG-project/internal/util"
	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/rag"
	"github.com/potrek505/TEG-project/pkg/transactions"

	"github.com/BurntSushi/toml"
)

const (
	DefaultFile = "config.toml"

	AdapterOpenAI = "openai"
	AdapterOllama = "ollama"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	VectorStoreMemory   = "memory"
	VectorStorePgvector = "pgvector"

	redacted = "********"
)

// Duration is a time.Duration written as "90s" or "1h" in TOML and JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type ServerConfig struct {
	Port           string   `toml:"port" json:"port"`
	Debug          bool     `toml:"debug" json:"debug"`
	LogFile        string   `toml:"log_file" json:"log_file"`
	RequestTimeout Duration `toml:"request_timeout" json:"request_timeout"`
}

type AIConfig struct {
	Adapter          string  `toml:"adapter" json:"adapter"`
	ChatURL          string  `toml:"chat_url" json:"chat_url"`
	ChatKey          string  `toml:"chat_key" json:"chat_key"`
	ChatModel        string  `toml:"chat_model" json:"chat_model"`
	Temperature      float64 `toml:"temperature" json:"temperature"`
	EmbedURL         string  `toml:"embed_url" json:"embed_url"`
	EmbedKey         string  `toml:"embed_key" json:"embed_key"`
	EmbedModel       string  `toml:"embed_model" json:"embed_model"`
	EmbedDim         int     `toml:"embed_dim" json:"embed_dim"`
	EmbedWindow      int     `toml:"embed_window" json:"embed_window"`
	ParallelRequests int     `toml:"parallel_requests" json:"parallel_requests"`
	// Thinking is the reasoning effort passed to reasoning models; empty leaves it unset.
	Thinking string `toml:"thinking" json:"thinking"`
}

type TransactionsConfig struct {
	Driver      string `toml:"driver" json:"driver"`
	Path        string `toml:"path" json:"path"`
	DatabaseURL string `toml:"database_url" json:"database_url"`
	Table       string `toml:"table" json:"table"`
}

type RAGConfig struct {
	Enabled     bool                `toml:"enabled" json:"enabled"`
	RowLimit    int                 `toml:"row_limit" json:"row_limit"`
	RetrieverK  int                 `toml:"retriever_k" json:"retriever_k"`
	VectorStore string              `toml:"vector_store" json:"vector_store"`
	Retrieval   rag.RetrievalParams `toml:"retrieval" json:"retrieval"`
}

type AgentConfig struct {
	MaxIterations int `toml:"max_iterations" json:"max_iterations"`
	MaxResultRows int `toml:"max_result_rows" json:"max_result_rows"`
}

type SessionConfig struct {
	TTL          Duration `toml:"ttl" json:"ttl"`
	HistoryLimit int      `toml:"history_limit" json:"history_limit"`
}

type HistoryConfig struct {
	// Path of the conversation log database; empty disables the log.
	Path string `toml:"path" json:"path"`
}

type Config struct {
	Server       ServerConfig       `toml:"server" json:"server"`
	AI           AIConfig           `toml:"ai" json:"ai"`
	Transactions TransactionsConfig `toml:"transactions" json:"transactions"`
	RAG          RAGConfig          `toml:"rag" json:"rag"`
	Agent        AgentConfig        `toml:"agent" json:"agent"`
	Session      SessionConfig      `toml:"session" json:"session"`
	History      HistoryConfig      `toml:"history" json:"history"`
}

func Default() *Config {
	params := rag.DefaultParams()
	return &Config{
		Server: ServerConfig{
			Port:           "5001",
			RequestTimeout: Duration{2 * time.Minute},
		},
		AI: AIConfig{
			Adapter:          AdapterOpenAI,
			ChatModel:        "gpt-4o-mini",
			Temperature:      0.7,
			EmbedModel:       "text-embedding-3-small",
			EmbedWindow:      8191,
			ParallelRequests: 4,
		},
		Transactions: TransactionsConfig{
			Driver: DriverSQLite,
			Path:   "transactions.db",
			Table:  transactions.DefaultTable,
		},
		RAG: RAGConfig{
			Enabled:     true,
			RowLimit:    params.RowLimit,
			RetrieverK:  params.RetrieverK,
			VectorStore: VectorStoreMemory,
			Retrieval:   params.Retrieval,
		},
		Agent: AgentConfig{
			MaxIterations: 15,
			MaxResultRows: 50,
		},
		Session: SessionConfig{
			TTL:          Duration{24 * time.Hour},
			HistoryLimit: 20,
		},
		History: HistoryConfig{
			Path: "conversations.db",
		},
	}
}

// Load reads path over the defaults, then applies .env and environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}

	util.LoadEnv()
	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Path returns the config file named by CONFIG_FILE, or DefaultFile.
func Path() string {
	return util.GetEnvString("CONFIG_FILE", DefaultFile)
}

func (c *Config) ApplyEnvOverrides() {
	if v := util.GetEnv("AI_ADAPTER"); v != "" {
		c.AI.Adapter = strings.ToLower(v)
	}
	if v := util.GetEnv("AI_CHAT_URL"); v != "" {
		c.AI.ChatURL = v
	}
	if v := util.GetEnv("AI_CHAT_KEY", "OPENAI_API_KEY"); v != "" {
		c.AI.ChatKey = v
	}
	if v := util.GetEnv("AI_CHAT_MODEL", "LLM_MODEL"); v != "" {
		c.AI.ChatModel = v
	}
	c.AI.Temperature = util.GetEnvFloat("LLM_TEMPERATURE", c.AI.Temperature)
	if v := util.GetEnv("AI_EMBED_MODEL"); v != "" {
		c.AI.EmbedModel = v
	}
	if v := util.GetEnv("AI_EMBED_URL"); v != "" {
		c.AI.EmbedURL = v
	}
	if v := util.GetEnv("AI_EMBED_KEY"); v != "" {
		c.AI.EmbedKey = v
	}
	c.AI.EmbedDim = util.GetEnvInt("AI_EMBED_DIM", c.AI.EmbedDim)
	c.AI.ParallelRequests = util.GetEnvInt("AI_PARALLEL_REQ", c.AI.ParallelRequests)
	if v := util.GetEnv("AI_THINKING"); v != "" {
		c.AI.Thinking = strings.ToLower(v)
	}

	if v := util.GetEnv("TRANSACTIONS_DRIVER"); v != "" {
		c.Transactions.Driver = strings.ToLower(v)
	}
	if v := util.GetEnv("TRANSACTIONS_DB_PATH"); v != "" {
		c.Transactions.Path = v
	}
	if v := util.GetEnv("DATABASE_URL"); v != "" {
		c.Transactions.DatabaseURL = v
	}
	if v := util.GetEnv("TRANSACTIONS_TABLE"); v != "" {
		c.Transactions.Table = v
	}

	c.RAG.Enabled = util.GetEnvBool("RAG_ENABLED", c.RAG.Enabled)
	c.RAG.RowLimit = util.GetEnvInt("RAG_ROW_LIMIT", c.RAG.RowLimit)
	if v := util.GetEnv("RAG_VECTOR_STORE"); v != "" {
		c.RAG.VectorStore = strings.ToLower(v)
	}

	if v := util.GetEnv("AI_PORT", "PORT"); v != "" {
		c.Server.Port = v
	}
	c.Server.Debug = util.GetEnvBool("DEBUG", c.Server.Debug)
	c.Server.Debug = util.GetEnvBool("AI_DEBUG", c.Server.Debug)
	if v := util.GetEnv("LOG_FILE"); v != "" {
		c.Server.LogFile = v
	}

	if v, ok := os.LookupEnv("HISTORY_DB_PATH"); ok {
		c.History.Path = v
	}
	c.Session.TTL.Duration = util.GetEnvDuration("SESSION_TTL", c.Session.TTL.Duration)
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch c.AI.Adapter {
	case AdapterOpenAI:
		if c.AI.ChatKey == "" && c.AI.ChatURL == "" {
			add("ai.chat_key", "required for the openai adapter (set AI_CHAT_KEY or OPENAI_API_KEY)")
		}
	case AdapterOllama:
	default:
		add("ai.adapter", "invalid adapter '%s', must be one of: openai, ollama", c.AI.Adapter)
	}
	if c.AI.ChatModel == "" {
		add("ai.chat_model", "must not be empty")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		add("ai.temperature", "must be between 0 and 2, got %v", c.AI.Temperature)
	}
	if c.AI.EmbedDim < 0 {
		add("ai.embed_dim", "must not be negative")
	}
	if c.AI.EmbedWindow < 0 {
		add("ai.embed_window", "must not be negative")
	}
	switch c.AI.Thinking {
	case "", "low", "medium", "high":
	default:
		add("ai.thinking", "invalid effort '%s', must be one of: low, medium, high", c.AI.Thinking)
	}
	if c.AI.ParallelRequests < 1 {
		add("ai.parallel_requests", "must be at least 1")
	}

	switch c.Transactions.Driver {
	case DriverSQLite:
		if c.Transactions.Path == "" {
			add("transactions.path", "required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Transactions.DatabaseURL == "" {
			add("transactions.database_url", "required for the postgres driver")
		}
	default:
		add("transactions.driver", "invalid driver '%s', must be one of: sqlite, postgres", c.Transactions.Driver)
	}
	if err := transactions.ValidateTable(c.Transactions.Table); err != nil {
		add("transactions.table", "%v", err)
	}

	if c.RAG.RowLimit < 1 {
		add("rag.row_limit", "must be at least 1")
	}
	if c.RAG.RetrieverK < 1 {
		add("rag.retriever_k", "must be at least 1")
	}
	switch c.RAG.VectorStore {
	case VectorStoreMemory:
	case VectorStorePgvector:
		if c.Transactions.DatabaseURL == "" {
			add("rag.vector_store", "pgvector requires DATABASE_URL")
		}
	default:
		add("rag.vector_store", "invalid store '%s', must be one of: memory, pgvector", c.RAG.VectorStore)
	}
	r := c.RAG.Retrieval
	for _, f := range []struct {
		field string
		value int
	}{
		{"rag.retrieval.simple_cap", r.SimpleCap},
		{"rag.retrieval.complex_terms", r.ComplexTerms},
		{"rag.retrieval.complex_cap", r.ComplexCap},
		{"rag.retrieval.multi_step_cap", r.MultiStepCap},
		{"rag.retrieval.fallback_cap", r.FallbackCap},
		{"rag.retrieval.context_docs", r.ContextDocs},
	} {
		if f.value < 1 {
			add(f.field, "must be at least 1")
		}
	}

	if c.Agent.MaxIterations < 1 {
		add("agent.max_iterations", "must be at least 1")
	}
	if c.Agent.MaxResultRows < 1 {
		add("agent.max_result_rows", "must be at least 1")
	}
	if c.Session.TTL.Duration < 0 {
		add("session.ttl", "must not be negative")
	}
	if c.Session.HistoryLimit < 1 {
		add("session.history_limit", "must be at least 1")
	}
	if c.Server.Port == "" {
		add("server.port", "must not be empty")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// GenerateOptions returns the generation options shared by every model call.
func (c *Config) GenerateOptions() []ai.GenerateOption {
	if c.AI.Thinking == "" {
		return nil
	}
	return []ai.GenerateOption{ai.WithThinking(c.AI.Thinking)}
}

// RAGParams returns the builder parameters described by the config.
func (c *Config) RAGParams() rag.Params {
	return rag.Params{
		RowLimit:   c.RAG.RowLimit,
		RetrieverK: c.RAG.RetrieverK,
		Retrieval:  c.RAG.Retrieval,
	}
}

// Redacted returns a copy with credentials masked, safe to serve or log.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	out.AI.ChatKey = mask(c.AI.ChatKey)
	out.AI.EmbedKey = mask(c.AI.EmbedKey)
	out.Transactions.DatabaseURL = mask(c.Transactions.DatabaseURL)
	return &out
}
