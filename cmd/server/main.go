package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/potrek505/TEG-project/internal/chat"
	"github.com/potrek505/TEG-project/internal/config"
	"github.com/potrek505/TEG-project/internal/history"
	"github.com/potrek505/TEG-project/internal/server"
	mid "github.com/potrek505/TEG-project/internal/server/middleware"
	"github.com/potrek505/TEG-project/internal/util"
	"github.com/potrek505/TEG-project/pkg/agent"
	"github.com/potrek505/TEG-project/pkg/ai"
	oai "github.com/potrek505/TEG-project/pkg/ai/ollama"
	gai "github.com/potrek505/TEG-project/pkg/ai/openai"
	"github.com/potrek505/TEG-project/pkg/classifier"
	"github.com/potrek505/TEG-project/pkg/graph"
	"github.com/potrek505/TEG-project/pkg/logger"
	"github.com/potrek505/TEG-project/pkg/logger/console"
	"github.com/potrek505/TEG-project/pkg/logger/file"
	"github.com/potrek505/TEG-project/pkg/rag"
	"github.com/potrek505/TEG-project/pkg/session/memory"
	"github.com/potrek505/TEG-project/pkg/transactions"
	txpgx "github.com/potrek505/TEG-project/pkg/transactions/pgx"
	txsqlite "github.com/potrek505/TEG-project/pkg/transactions/sqlite"
	"github.com/potrek505/TEG-project/pkg/vectorstore"
	vecmem "github.com/potrek505/TEG-project/pkg/vectorstore/memory"
	"github.com/potrek505/TEG-project/pkg/vectorstore/pgvector"

	"github.com/jackc/pgx/v5/pgxpool"
)

const startupRetries = 5

func main() {
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
	})
	logger.Init(consoleLogger)

	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", "path", cfgPath, "err", err)
	}

	instances := []logger.LoggerInstance{consoleLogger}
	if cfg.Server.LogFile != "" {
		fileLogger := file.NewFileLogger(file.FileLoggerParams{
			Path:  cfg.Server.LogFile,
			Debug: cfg.Server.Debug,
		})
		defer fileLogger.Sync()
		instances = append(instances, fileLogger)
	}
	logger.Init(instances...)
	logger.SetDebug(cfg.Server.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newAIClient(cfg)

	var pool *pgxpool.Pool
	if cfg.Transactions.Driver == config.DriverPostgres || cfg.RAG.VectorStore == config.VectorStorePgvector {
		pool, err = openPool(ctx, cfg)
		if err != nil {
			logger.Warn("Database unreachable, continuing without it", "err", err)
		} else {
			defer pool.Close()
		}
	}

	source := openSource(ctx, cfg, pool)
	defer source.Close()

	g, builder := newGraph(cfg, client, source, newIndexFactory(ctx, cfg, client, pool))

	sessions := memory.New(cfg.Session.TTL.Duration)
	// Releases RAG indexes, which matters for rows kept in pgvector.
	defer sessions.Flush()

	app := &mid.App{}
	chatOpts := chat.Options{HistoryLimit: cfg.Session.HistoryLimit}
	if cfg.History.Path != "" {
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			logger.Warn("Conversation history disabled", "path", cfg.History.Path, "err", err)
		} else {
			defer store.Close()
			chatOpts.History = store
			app.History = store
		}
	}
	app.Chat = chat.NewService(g, sessions, chatOpts)

	var current atomic.Pointer[config.Config]
	current.Store(cfg)
	app.Config = current.Load

	if err := config.Watch(ctx, cfgPath, config.DefaultDebounce, func(next *config.Config) {
		logger.SetDebug(next.Server.Debug)
		builder.SetParams(next.RAGParams())
		current.Store(next)
	}); err != nil {
		logger.Warn("Config hot reload disabled", "err", err)
	}

	e := server.New(app, cfg.Server.RequestTimeout.Duration)
	if err := server.Run(ctx, e, cfg.Server.Port); err != nil {
		logger.Fatal("Server failed", "err", err)
	}
}

func newAIClient(cfg *config.Config) ai.Client {
	switch cfg.AI.Adapter {
	case config.AdapterOllama:
		client, err := oai.NewOllamaClient(oai.NewOllamaClientParams{
			ChatModel:      cfg.AI.ChatModel,
			EmbeddingModel: cfg.AI.EmbedModel,
			Temperature:    cfg.AI.Temperature,

			BaseURL: cfg.AI.ChatURL,
			ApiKey:  cfg.AI.ChatKey,

			MaxConcurrentRequests: int64(cfg.AI.ParallelRequests),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewOpenAIClient(gai.NewOpenAIClientParams{
			ChatModel:      cfg.AI.ChatModel,
			EmbeddingModel: cfg.AI.EmbedModel,
			EmbeddingDim:   cfg.AI.EmbedDim,
			Temperature:    cfg.AI.Temperature,

			ChatURL:      cfg.AI.ChatURL,
			ChatKey:      cfg.AI.ChatKey,
			EmbeddingURL: cfg.AI.EmbedURL,
			EmbeddingKey: cfg.AI.EmbedKey,

			MaxConcurrentRequests: int64(cfg.AI.ParallelRequests),
		})
	}
}

// newGraph wires the classifier, the agent and the RAG builder into the
// routing graph.
func newGraph(cfg *config.Config, client ai.Client, source transactions.Source, indexes rag.IndexFactory) (*graph.Graph, *rag.Builder) {
	opts := cfg.GenerateOptions()
	builder := rag.NewBuilder(client, source, indexes, cfg.RAGParams(), opts...)

	g := graph.New(graph.Deps{
		Classifier: classifier.New(client, "", opts...),
		Agent: agent.New(client, source, agent.Options{
			MaxIterations: cfg.Agent.MaxIterations,
			MaxResultRows: cfg.Agent.MaxResultRows,
			GenerateOpts:  opts,
		}),
		Builder:    graph.FromRAGBuilder(builder),
		RAGEnabled: cfg.RAG.Enabled,
		Tracer:     graph.LogTracer{},
	})
	return g, builder
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return util.RetryWithContext(ctx, startupRetries, time.Second, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgvector.NewPool(ctx, cfg.Transactions.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	})
}

// openSource opens the transactions table. A missing or unreachable database
// yields a placeholder source: RAG builds fail and the agent apologizes.
func openSource(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) transactions.Source {
	dialect := "sqlite"
	if cfg.Transactions.Driver == config.DriverPostgres {
		dialect = "postgresql"
	}

	source, err := connectSource(ctx, cfg, pool)
	if err != nil {
		logger.Warn("Transactions source unavailable, answering without data",
			"driver", cfg.Transactions.Driver, "path", cfg.Transactions.Path, "err", err)
		return transactions.Unavailable{
			TableName:  cfg.Transactions.Table,
			SQLDialect: dialect,
			Cause:      err,
		}
	}
	return source
}

func connectSource(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (transactions.Source, error) {
	if cfg.Transactions.Driver == config.DriverPostgres {
		if pool == nil {
			return nil, fmt.Errorf("%w: database not connected", transactions.ErrSourceNotFound)
		}
		source, err := txpgx.NewSource(pool, cfg.Transactions.Table)
		if err != nil {
			return nil, err
		}
		return source, nil
	}

	source, err := txsqlite.Open(ctx, txsqlite.Params{
		Path:  cfg.Transactions.Path,
		Table: cfg.Transactions.Table,
	})
	if err != nil {
		return nil, err
	}
	return source, nil
}

func newIndexFactory(ctx context.Context, cfg *config.Config, client ai.Client, pool *pgxpool.Pool) rag.IndexFactory {
	embedder := vectorstore.ClientEmbedder{Client: client, Window: cfg.AI.EmbedWindow}

	if cfg.RAG.VectorStore == config.VectorStorePgvector {
		err := errors.New("database not connected")
		if pool != nil {
			err = util.RetryErrWithContext(ctx, startupRetries, time.Second, func(context.Context) error {
				return pgvector.Migrate(cfg.Transactions.DatabaseURL)
			})
		}
		if err == nil {
			return func(context.Context) (vectorstore.Index, error) {
				idx := pgvector.New(pool, embedder)
				logger.Debug("[RAG] created pgvector index", "index_id", idx.ID())
				return idx, nil
			}
		}
		logger.Warn("Vector store unavailable, keeping RAG indexes in memory", "err", err)
	}

	return func(context.Context) (vectorstore.Index, error) {
		return vecmem.New(embedder), nil
	}
}
