package ai

import (
	"context"
	"errors"
)

// Chat roles understood by every adapter.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxToolRounds bounds a tool loop when no explicit limit is given.
const DefaultMaxToolRounds = 20

// ErrMaxToolRounds is returned when the model keeps requesting tools past the round limit.
var ErrMaxToolRounds = errors.New("max tool rounds exceeded")

// ToolHandler is a function that executes a tool call and returns its result.
// The arguments parameter contains the JSON-encoded arguments from the AI model.
type ToolHandler func(ctx context.Context, arguments string) (string, error)

// Tool defines a function that can be called by an AI model during generation.
type Tool struct {
	Name        string         // Unique identifier for the tool
	Description string         // Human-readable description of what the tool does
	Parameters  map[string]any // JSON Schema defining the tool's input parameters
	Handler     ToolHandler    // Function to execute when the tool is called
}

// ChatMessage represents a single message in a chat conversation.
//
// Role must be one of:
//   - "user"      → a user-provided message
//   - "assistant" → a message from the AI assistant
type ChatMessage struct {
	Message string `json:"message"`
	Role    string `json:"role"`
}

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
	Thinking      string   // Extended thinking mode configuration

	// MaxToolRounds caps the number of model turns in a tool loop.
	MaxToolRounds int
	// ToolErrorFeedback reports failing or unknown tool calls back to the
	// model as tool output instead of aborting the loop.
	ToolErrorFeedback bool
}

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
// Higher values (e.g., 1.0) produce more random outputs, while lower values
// (e.g., 0.2) make outputs more focused and deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithThinking returns a GenerateOption that enables extended thinking mode.
func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

// WithMaxToolRounds limits how many model turns a tool loop may take.
func WithMaxToolRounds(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxToolRounds = n
	}
}

// WithToolErrorFeedback makes tool failures visible to the model instead of
// terminating the loop.
func WithToolErrorFeedback() GenerateOption {
	return func(o *GenerateOptions) {
		o.ToolErrorFeedback = true
	}
}

// ApplyOptions folds opts over the given defaults.
func ApplyOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		o(&defaults)
	}
	if defaults.MaxToolRounds <= 0 {
		defaults.MaxToolRounds = DefaultMaxToolRounds
	}
	return defaults
}

// Client defines the LLM operations used by the router, the SQL agent and
// the RAG pipeline.
type Client interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error

	GenerateChat(
		ctx context.Context,
		messages []ChatMessage,
		opts ...GenerateOption,
	) (string, error)
	GenerateChatWithTools(
		ctx context.Context,
		messages []ChatMessage,
		tools []Tool,
		opts ...GenerateOption,
	) (string, error)

	GenerateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}
