// Package agent answers questions by letting an LLM query the transactions table.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/common"
	"github.com/potrek505/TEG-project/pkg/logger"
	"github.com/potrek505/TEG-project/pkg/transactions"
)

// Apology is returned to the user when the agent cannot produce an answer.
const Apology = "Sorry, I couldn't process your question about your transactions right now. Please try again or rephrase it."

const (
	DefaultMaxIterations = 15
	DefaultMaxResultRows = 50
)

// Options configures an SQLAgent.
type Options struct {
	// MaxIterations bounds the number of model turns.
	MaxIterations int
	// MaxResultRows caps the rows shown to the model per query.
	MaxResultRows int
	Schema        string
	GenerateOpts  []ai.GenerateOption
}

// SQLAgent answers questions about transactions through a bounded tool loop
// with a single read-only query tool.
type SQLAgent struct {
	client ai.Client
	source transactions.Source
	opts   Options
	system string
}

// New creates an agent over source.
func New(client ai.Client, source transactions.Source, opts Options) *SQLAgent {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.MaxResultRows <= 0 {
		opts.MaxResultRows = DefaultMaxResultRows
	}
	if opts.Schema == "" {
		opts.Schema = ai.TransactionsSchema
	}

	return &SQLAgent{
		client: client,
		source: source,
		opts:   opts,
		system: fmt.Sprintf(ai.SQLAgentPrompt, source.Table(), source.Dialect(), opts.Schema, source.Table()),
	}
}

// Answer answers question given the previous turns of the conversation.
// Failures never propagate: they produce a degraded outcome carrying Apology.
func (a *SQLAgent) Answer(ctx context.Context, question string, history []ai.ChatMessage) common.Outcome {
	if strings.TrimSpace(question) == "" {
		return common.Degraded(Apology, "empty question")
	}

	if err := transactions.Unreachable(a.source); err != nil {
		logger.Warn("[Agent] transactions source unavailable", "err", err)
		return common.Degraded(Apology, err.Error())
	}

	msgs := make([]ai.ChatMessage, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.ChatMessage{Role: ai.RoleUser, Message: question})

	opts := append([]ai.GenerateOption{
		ai.WithSystemPrompts(a.system),
		ai.WithMaxToolRounds(a.opts.MaxIterations),
		ai.WithToolErrorFeedback(),
	}, a.opts.GenerateOpts...)

	resp, err := a.client.GenerateChatWithTools(ctx, msgs, []ai.Tool{toolQuery(a.source, a.opts.MaxResultRows)}, opts...)
	if err != nil {
		logger.Error("[Agent] failed to answer", "err", err)
		return common.Degraded(Apology, err.Error())
	}
	if strings.TrimSpace(resp) == "" {
		logger.Warn("[Agent] empty answer from model")
		return common.Degraded(Apology, "empty answer")
	}
	return common.Ok(resp)
}
