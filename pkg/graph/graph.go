// Package graph routes each user message to the SQL agent or to a
// session-scoped adaptive RAG.
//
// The graph is:
//
//	start ──(RAG exists)──▶ answer_with_rag ──▶ end
//	  │
//	  └──▶ evaluate_query ──(YES)──▶ build_rag ──(built)──▶ answer_with_rag
//	              │                      │
//	              └──(NO)──────────────┬─┘(failed)
//	                                   ▼
//	                     answer_with_sql_agent ──▶ end
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/classifier"
	"github.com/potrek505/TEG-project/pkg/common"
	"github.com/potrek505/TEG-project/pkg/logger"
	"github.com/potrek505/TEG-project/pkg/rag"
)

// Node identifies a step of the graph.
type Node string

const (
	NodeStart              Node = "start"
	NodeEvaluateQuery      Node = "evaluate_query"
	NodeBuildRAG           Node = "build_rag"
	NodeAnswerWithRAG      Node = "answer_with_rag"
	NodeAnswerWithSQLAgent Node = "answer_with_sql_agent"
	NodeEnd                Node = "end"
)

// DefaultMaxSteps bounds a single run; the longest valid path has five nodes.
const DefaultMaxSteps = 10

var (
	ErrStepLimit   = errors.New("graph step limit exceeded")
	ErrUnknownNode = errors.New("unknown graph node")
)

// RAGAnswerer answers questions from a built index.
type RAGAnswerer interface {
	Query(ctx context.Context, question string) rag.Result
	Close(ctx context.Context) error
}

// Classifier decides whether a question is heavy.
type Classifier interface {
	IsQueryHeavy(ctx context.Context, question string) classifier.Verdict
}

// Agent answers questions by querying the transactions table.
type Agent interface {
	Answer(ctx context.Context, question string, history []ai.ChatMessage) common.Outcome
}

// RAGBuilder builds a RAG from the current transactions snapshot.
type RAGBuilder interface {
	Build(ctx context.Context) (RAGAnswerer, error)
}

// BuilderFunc adapts a function to RAGBuilder.
type BuilderFunc func(ctx context.Context) (RAGAnswerer, error)

func (f BuilderFunc) Build(ctx context.Context) (RAGAnswerer, error) {
	return f(ctx)
}

// FromRAGBuilder adapts a rag.Builder.
func FromRAGBuilder(b *rag.Builder) RAGBuilder {
	return BuilderFunc(func(ctx context.Context) (RAGAnswerer, error) {
		a, err := b.Build(ctx)
		if err != nil {
			return nil, err
		}
		return a, nil
	})
}

// Deps are the long-lived collaborators of the graph.
type Deps struct {
	Classifier Classifier
	Agent      Agent
	Builder    RAGBuilder
	// RAGEnabled turns heavy-query routing on; when false every question
	// goes to the agent without classification.
	RAGEnabled bool
	Tracer     Tracer
	MaxSteps   int
}

// NodeFunc executes a node and returns its partial update.
type NodeFunc func(ctx context.Context, s State) Update

// Router picks the next node from the merged state.
type Router func(s State) Node

// Graph is a compiled routing graph. It is safe for concurrent use; each
// Invoke works on its own State copy.
type Graph struct {
	nodes    map[Node]NodeFunc
	routes   map[Node]Router
	tracer   Tracer
	maxSteps int
}

// New compiles the routing graph over deps.
func New(deps Deps) *Graph {
	if deps.MaxSteps <= 0 {
		deps.MaxSteps = DefaultMaxSteps
	}

	g := &Graph{
		tracer:   deps.Tracer,
		maxSteps: deps.MaxSteps,
	}

	g.nodes = map[Node]NodeFunc{
		NodeStart:              func(context.Context, State) Update { return Update{} },
		NodeEvaluateQuery:      evaluateQuery(deps),
		NodeBuildRAG:           buildRAG(deps),
		NodeAnswerWithRAG:      answerWithRAG,
		NodeAnswerWithSQLAgent: answerWithSQLAgent(deps),
	}

	g.routes = map[Node]Router{
		NodeStart: func(s State) Node {
			if s.RAG != nil {
				return NodeAnswerWithRAG
			}
			return NodeEvaluateQuery
		},
		NodeEvaluateQuery: func(s State) Node {
			if s.Heavy == classifier.Heavy {
				return NodeBuildRAG
			}
			return NodeAnswerWithSQLAgent
		},
		NodeBuildRAG: func(s State) Node {
			if s.RAG != nil {
				return NodeAnswerWithRAG
			}
			return NodeAnswerWithSQLAgent
		},
		NodeAnswerWithRAG:      func(State) Node { return NodeEnd },
		NodeAnswerWithSQLAgent: func(State) Node { return NodeEnd },
	}

	return g
}

// Invoke runs one turn for s.UserMessage and returns the updated state.
// Answer fields from earlier turns are cleared first. An error is returned
// only for routing failures; the returned state is still usable.
func (g *Graph) Invoke(ctx context.Context, s State) (State, error) {
	s.beginTurn()

	current := NodeStart
	for range g.maxSteps {
		if current == NodeEnd {
			s.Turns++
			s.UpdatedAt = time.Now()
			return s, nil
		}

		node, ok := g.nodes[current]
		if !ok {
			return s, fmt.Errorf("%w: %s", ErrUnknownNode, current)
		}

		start := time.Now()
		s.visit(current)
		u := node(ctx, s)
		s.Apply(u)
		record(g.tracer, TraceEvent{
			Kind:       TraceEventNode,
			Node:       current,
			DurationMs: time.Since(start).Milliseconds(),
			Error:      u.failure(),
		})

		next := g.routes[current](s)
		record(g.tracer, TraceEvent{Kind: TraceEventRoute, Node: current, Next: next})
		current = next
	}

	return s, fmt.Errorf("%w (%d)", ErrStepLimit, g.maxSteps)
}

func evaluateQuery(deps Deps) NodeFunc {
	return func(ctx context.Context, s State) Update {
		if !deps.RAGEnabled || deps.Builder == nil {
			return Update{Heavy: ptr(classifier.Light)}
		}
		verdict := deps.Classifier.IsQueryHeavy(ctx, s.UserMessage)
		logger.Debug("[Graph] query evaluated", "heavy", verdict)
		return Update{Heavy: ptr(verdict)}
	}
}

func buildRAG(deps Deps) NodeFunc {
	return func(ctx context.Context, s State) Update {
		r, err := deps.Builder.Build(ctx)
		if err != nil {
			logger.Warn("[Graph] RAG not built, falling back to agent", "err", err)
			return Update{RAGError: ptr(err.Error())}
		}
		logger.Info("[Graph] RAG built for session")
		return Update{RAG: r}
	}
}

func answerWithRAG(ctx context.Context, s State) Update {
	res := s.RAG.Query(ctx, s.UserMessage)
	return Update{
		RAGAnswer:      &res.Outcome,
		RAGStrategy:    ptr(res.Strategy),
		RAGSourceCount: ptr(res.SourceDocumentsCount),
		RAGComplexity:  ptr(res.Complexity),
	}
}

func answerWithSQLAgent(deps Deps) NodeFunc {
	return func(ctx context.Context, s State) Update {
		out := deps.Agent.Answer(ctx, s.UserMessage, s.History)
		return Update{AgentAnswer: &out}
	}
}
