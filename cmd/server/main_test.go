package main

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/potrek505/TEG-project/internal/config"
	"github.com/potrek505/TEG-project/pkg/agent"
	"github.com/potrek505/TEG-project/pkg/ai/aitest"
	"github.com/potrek505/TEG-project/pkg/graph"
	"github.com/potrek505/TEG-project/pkg/rag"
	"github.com/potrek505/TEG-project/pkg/transactions"
)

func TestOpenSourceWithoutDatabase(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		dialect string
	}{
		{name: "missing sqlite file", mutate: func(c *config.Config) {
			c.Transactions.Path = filepath.Join(t.TempDir(), "missing.db")
		}, dialect: "sqlite"},
		{name: "postgres not connected", mutate: func(c *config.Config) {
			c.Transactions.Driver = config.DriverPostgres
			c.Transactions.DatabaseURL = "postgres://localhost:1/none"
		}, dialect: "postgresql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			source := openSource(context.Background(), cfg, nil)
			if err := transactions.Unreachable(source); !errors.Is(err, transactions.ErrSourceNotFound) {
				t.Fatalf("expected a placeholder source, got %T (%v)", source, err)
			}
			if source.Dialect() != tt.dialect || source.Table() != transactions.DefaultTable {
				t.Fatalf("unexpected placeholder %s/%s", source.Dialect(), source.Table())
			}
		})
	}
}

func TestMissingDatabaseDegradesToAgent(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Transactions.Path = filepath.Join(t.TempDir(), "missing.db")

	client := aitest.Completion("YES")
	source := openSource(ctx, cfg, nil)
	g, _ := newGraph(cfg, client, source, newIndexFactory(ctx, cfg, client, nil))

	s, err := g.Invoke(ctx, graph.State{UserMessage: "Summarize all my spending ever"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	want := []graph.Node{graph.NodeStart, graph.NodeEvaluateQuery, graph.NodeBuildRAG, graph.NodeAnswerWithSQLAgent}
	if !slices.Equal(s.Visited(), want) {
		t.Fatalf("visited %v, want %v", s.Visited(), want)
	}
	if !strings.Contains(s.RAGError, rag.ErrNoSource.Error()) {
		t.Fatalf("expected build to fail with no source, got %q", s.RAGError)
	}

	out, route := s.Outcome()
	if route != graph.RouteAgent || out.IsOk() || out.Answer != agent.Apology {
		t.Fatalf("expected degraded apology from the agent, got %s %+v", route, out)
	}
	if client.ToolLoopCalls != 0 || client.EmbedCalls != 0 {
		t.Fatalf("nothing should reach the model after the classifier")
	}
}

func TestPgvectorWithoutPoolFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.RAG.VectorStore = config.VectorStorePgvector

	idx, err := newIndexFactory(ctx, cfg, &aitest.Client{}, nil)(ctx)
	if err != nil {
		t.Fatalf("index factory: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected an empty index")
	}
	if err := idx.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
