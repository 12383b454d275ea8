// Package aitest provides a scripted ai.Client for tests.
package aitest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/potrek505/TEG-project/pkg/ai"
)

// ErrNoScript is returned when a call has no scripted reply left.
var ErrNoScript = errors.New("aitest: no scripted reply")

// Reply is one scripted completion result.
type Reply struct {
	Text string
	Err  error
}

// ToolStep is one scripted model turn inside a tool loop. A step with a
// Tool name requests that tool; a step without one is the final answer.
type ToolStep struct {
	Tool      string
	Arguments string
	Answer    string
	Err       error
}

// Client is a deterministic ai.Client. Completions are answered from
// Completions in order, or by CompletionFunc when set.
type Client struct {
	mu sync.Mutex

	Completions    []Reply
	CompletionFunc func(prompt string) (string, error)

	ToolSteps []ToolStep

	// FormatErr makes every structured-output request fail without
	// consuming a scripted completion.
	FormatErr error

	// Embed overrides the default bag-of-words embedding.
	Embed    func(text string) []float32
	EmbedErr error

	CompletionCalls int
	FormatCalls     int
	ToolLoopCalls   int
	EmbedCalls      int
	Prompts         []string
	ToolResults     []string
	LastOptions     ai.GenerateOptions
	LastHistory     []ai.ChatMessage
}

// Completion returns a client that answers every completion with text.
func Completion(text string) *Client {
	return &Client{CompletionFunc: func(string) (string, error) { return text, nil }}
}

func (c *Client) nextCompletion(prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.CompletionCalls++
	c.Prompts = append(c.Prompts, prompt)
	if c.CompletionFunc != nil {
		return c.CompletionFunc(prompt)
	}
	if len(c.Completions) == 0 {
		return "", ErrNoScript
	}
	r := c.Completions[0]
	c.Completions = c.Completions[1:]
	return r.Text, r.Err
}

func (c *Client) GenerateCompletion(_ context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	c.record(opts, nil)
	return c.nextCompletion(prompt)
}

func (c *Client) GenerateCompletionWithFormat(
	_ context.Context,
	_ string,
	_ string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	c.record(opts, nil)
	c.mu.Lock()
	c.FormatCalls++
	formatErr := c.FormatErr
	c.mu.Unlock()
	if formatErr != nil {
		return formatErr
	}

	text, err := c.nextCompletion(prompt)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(text, out)
}

func (c *Client) GenerateChat(_ context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	c.record(opts, messages)
	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Message
	}
	return c.nextCompletion(last)
}

// GenerateChatWithTools replays ToolSteps, invoking the real tool handlers
// through ai.ExecuteTool so error feedback behaves like the adapters.
func (c *Client) GenerateChatWithTools(
	ctx context.Context,
	messages []ai.ChatMessage,
	tools []ai.Tool,
	opts ...ai.GenerateOption,
) (string, error) {
	c.record(opts, messages)
	options := ai.ApplyOptions(ai.GenerateOptions{}, opts...)

	c.mu.Lock()
	c.ToolLoopCalls++
	steps := c.ToolSteps
	c.mu.Unlock()

	for round := range options.MaxToolRounds {
		if round >= len(steps) {
			return "", ErrNoScript
		}
		step := steps[round]
		if step.Err != nil {
			return "", step.Err
		}
		if step.Tool == "" {
			return step.Answer, nil
		}
		result, err := ai.ExecuteTool(ctx, tools, step.Tool, step.Arguments, options)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.ToolResults = append(c.ToolResults, result)
		c.mu.Unlock()
	}
	return "", ai.ErrMaxToolRounds
}

// GenerateEmbeddings embeds each input with Embed or a hashed bag of words.
func (c *Client) GenerateEmbeddings(_ context.Context, inputs []string) ([][]float32, error) {
	c.mu.Lock()
	c.EmbedCalls++
	err := c.EmbedErr
	embed := c.Embed
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if embed == nil {
		embed = BagOfWords
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = embed(in)
	}
	return out, nil
}

func (c *Client) ResetMetrics() {}

func (c *Client) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func (c *Client) record(opts []ai.GenerateOption, history []ai.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastOptions = ai.ApplyOptions(ai.GenerateOptions{}, opts...)
	c.LastHistory = history
}

// Dimensions of BagOfWords vectors.
const Dimensions = 64

// BagOfWords hashes lower-cased words into a fixed-size count vector, so
// texts sharing words end up close under cosine similarity.
func BagOfWords(text string) []float32 {
	vec := make([]float32, Dimensions)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,;:!?|()'\"")))
		vec[h.Sum32()%Dimensions]++
	}
	return vec
}

var _ ai.Client = (*Client)(nil)
