package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/logger"

	"github.com/ollama/ollama/api"
)

// Ollama's default context window; larger prompts raise num_ctx.
const defaultContextTokens = 4096

func (c *OllamaClient) options(defaultTemp float64, opts []ai.GenerateOption) ai.GenerateOptions {
	return ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: defaultTemp,
	}, opts...)
}

func toMessages(options ai.GenerateOptions, history []ai.ChatMessage) []api.Message {
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+len(history))
	for _, sys := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sys})
	}
	for _, m := range history {
		role := m.Role
		if role == "" {
			role = ai.RoleUser
		}
		msgs = append(msgs, api.Message{Role: role, Content: m.Message})
	}
	return msgs
}

func newRequest(options ai.GenerateOptions, msgs []api.Message) *api.ChatRequest {
	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{
			Value: options.Thinking,
		}
	}
	return req
}

// sizeContext raises num_ctx when the conversation would not fit the default window.
func sizeContext(req *api.ChatRequest) {
	var sb strings.Builder
	for _, m := range req.Messages {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	tokens, err := ai.CountTokens(ai.EncodingChat, sb.String())
	if err != nil {
		logger.Debug("[AI] token count unavailable", "err", err)
		return
	}
	// headroom for the reply
	tokens += 1024
	if tokens > defaultContextTokens {
		req.Options["num_ctx"] = tokens
	}
}

func (c *OllamaClient) chat(ctx context.Context, req *api.ChatRequest) (api.ChatResponse, error) {
	sizeContext(req)

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return api.ChatResponse{}, err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Role = cr.Message.Role
		final.Message.Content += cr.Message.Content
		if len(cr.Message.ToolCalls) > 0 {
			final.Message.ToolCalls = cr.Message.ToolCalls
		}
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return api.ChatResponse{}, err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})
	return final, nil
}

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *OllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	return c.GenerateChat(ctx, []ai.ChatMessage{{Role: ai.RoleUser, Message: prompt}}, opts...)
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (c *OllamaClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if out == nil {
		return errors.New("out must be a non-nil pointer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	formatBytes, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return err
	}

	options := c.options(0.1, opts)
	req := newRequest(options, toMessages(options, []ai.ChatMessage{{Role: ai.RoleUser, Message: prompt}}))
	req.Format = json.RawMessage(formatBytes)

	final, err := c.chat(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if strings.TrimSpace(final.Message.Content) == "" {
		return fmt.Errorf("%s: empty response from model", name)
	}
	return ai.UnmarshalFlexible(final.Message.Content, out)
}

// GenerateChat sends a multi-turn conversation and returns the assistant reply.
func (c *OllamaClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := c.options(c.temperature, opts)
	final, err := c.chat(ctx, newRequest(options, toMessages(options, messages)))
	if err != nil {
		return "", err
	}
	return final.Message.Content, nil
}

func toOllamaTools(tools []ai.Tool) api.Tools {
	ollamaTools := make(api.Tools, len(tools))
	for i, tool := range tools {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Required:   []string{},
			Properties: api.NewToolPropertiesMap(),
		}

		if tool.Parameters != nil {
			if props, ok := tool.Parameters["properties"].(map[string]any); ok {
				for name, prop := range props {
					propMap, ok := prop.(map[string]any)
					if !ok {
						continue
					}
					tp := api.ToolProperty{}
					if t, ok := propMap["type"].(string); ok {
						tp.Type = api.PropertyType([]string{t})
					}
					if desc, ok := propMap["description"].(string); ok {
						tp.Description = desc
					}
					params.Properties.Set(name, tp)
				}
			}
			switch req := tool.Parameters["required"].(type) {
			case []string:
				params.Required = req
			case []any:
				for _, v := range req {
					if s, ok := v.(string); ok {
						params.Required = append(params.Required, s)
					}
				}
			}
		}

		ollamaTools[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		}
	}
	return ollamaTools
}

// GenerateChatWithTools sends a multi-turn conversation with tools the model can call.
// Tool calls are executed and their results fed back until the model answers
// without tool calls, or until options.MaxToolRounds is reached.
func (c *OllamaClient) GenerateChatWithTools(
	ctx context.Context,
	messages []ai.ChatMessage,
	tools []ai.Tool,
	opts ...ai.GenerateOption,
) (string, error) {
	options := c.options(c.temperature, opts)
	msgs := toMessages(options, messages)
	ollamaTools := toOllamaTools(tools)

	for round := range options.MaxToolRounds {
		req := newRequest(options, msgs)
		req.Tools = ollamaTools

		final, err := c.chat(ctx, req)
		if err != nil {
			return "", err
		}

		if len(final.Message.ToolCalls) == 0 {
			return final.Message.Content, nil
		}

		if final.Message.Role == "" {
			final.Message.Role = ai.RoleAssistant
		}
		msgs = append(msgs, final.Message)

		for _, tc := range final.Message.ToolCalls {
			logger.Debug("[AI] tool call", "round", round+1, "tool", tc.Function.Name)

			argsBytes, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				return "", fmt.Errorf("failed to marshal tool arguments: %w", err)
			}

			result, err := ai.ExecuteTool(ctx, tools, tc.Function.Name, string(argsBytes), options)
			if err != nil {
				return "", err
			}

			msgs = append(msgs, api.Message{
				Role:     "tool",
				Content:  result,
				ToolName: tc.Function.Name,
			})
		}
	}

	return "", fmt.Errorf("%w (%d)", ai.ErrMaxToolRounds, options.MaxToolRounds)
}
