// Package classifier decides whether a question would need a heavy query
// over the transactions table.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/logger"
)

// Verdict is the classifier's answer.
type Verdict string

const (
	Heavy Verdict = "YES"
	Light Verdict = "NO"
)

// Classifier asks an LLM whether answering a question would scan or
// aggregate large parts of the table.
type Classifier struct {
	client ai.Client
	schema string
	opts   []ai.GenerateOption
}

// New returns a classifier that describes schema to the model.
// An empty schema uses ai.TransactionsSchema.
func New(client ai.Client, schema string, opts ...ai.GenerateOption) *Classifier {
	if schema == "" {
		schema = ai.TransactionsSchema
	}
	return &Classifier{
		client: client,
		schema: schema,
		opts:   append([]ai.GenerateOption{ai.WithTemperature(0)}, opts...),
	}
}

// IsQueryHeavy returns Heavy or Light. Blank questions, failed calls and
// answers other than YES/NO all yield Light.
func (c *Classifier) IsQueryHeavy(ctx context.Context, question string) Verdict {
	if strings.TrimSpace(question) == "" {
		return Light
	}

	prompt := fmt.Sprintf(ai.HeavyQueryPrompt, c.schema, question)
	res, err := c.client.GenerateCompletion(ctx, prompt, c.opts...)
	if err != nil {
		logger.Warn("[Classifier] completion failed, assuming light query", "err", err)
		return Light
	}

	verdict, ok := Parse(res)
	if !ok {
		logger.Warn("[Classifier] unexpected answer, assuming light query", "answer", res)
		return Light
	}
	logger.Debug("[Classifier] verdict", "verdict", verdict)
	return verdict
}

// Parse normalizes a raw model answer. It accepts surrounding whitespace,
// any letter case and trailing punctuation.
func Parse(raw string) (Verdict, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimRight(s, ".!?,;: \n\t\"'`*")
	s = strings.TrimLeft(s, "\"'`*")
	switch Verdict(s) {
	case Heavy:
		return Heavy, true
	case Light:
		return Light, true
	}
	return Light, false
}
