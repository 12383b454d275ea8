package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/logger"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

func (c *OpenAIClient) options(defaultTemp float64, opts []ai.GenerateOption) ai.GenerateOptions {
	return ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: defaultTemp,
	}, opts...)
}

func (c *OpenAIClient) messages(options ai.GenerateOptions, history []ai.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+len(history))
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	for _, m := range history {
		switch m.Role {
		case ai.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Message))
		default:
			msgs = append(msgs, openai.UserMessage(m.Message))
		}
	}
	return msgs
}

func (c *OpenAIClient) applyThinking(body *openai.ChatCompletionNewParams, options ai.GenerateOptions) {
	if options.Thinking == "" {
		return
	}
	// reasoning models on the public API only accept temperature 1.0
	if c.chatURL == "" {
		body.Temperature = openai.Float(1.0)
	}
	body.ReasoningEffort = shared.ReasoningEffort(options.Thinking)
}

func (c *OpenAIClient) complete(
	ctx context.Context,
	body openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		return nil, err
	}
	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response from model")
	}
	return response, nil
}

// GenerateCompletion sends a single-turn prompt to the chat model and
// returns the generated completion as plain text.
//
// Example:
//
//	resp, err := client.GenerateCompletion(ctx, "Answer YES or NO ...", ai.WithTemperature(0))
func (c *OpenAIClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	return c.GenerateChat(ctx, []ai.ChatMessage{{Role: ai.RoleUser, Message: prompt}}, opts...)
}

// GenerateCompletionWithFormat sends a prompt to the chat model and
// unmarshals the response into out, using a JSON schema to enforce structure.
func (c *OpenAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	options := c.options(0.1, opts)

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(options.Model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        name,
					Description: openai.String(description),
					Schema:      ai.GenerateSchema(out),
					Strict:      openai.Bool(true),
				},
			},
		},
		Messages:    c.messages(options, []ai.ChatMessage{{Role: ai.RoleUser, Message: prompt}}),
		Temperature: openai.Float(options.Temperature),
	}
	c.applyThinking(&body, options)

	response, err := c.complete(ctx, body)
	if err != nil {
		return err
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason)
	}
	return ai.UnmarshalFlexible(message, out)
}

// GenerateChat sends a multi-turn chat conversation to the model and
// returns the assistant's reply as plain text.
func (c *OpenAIClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := c.options(c.temperature, opts)

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    c.messages(options, messages),
		Temperature: openai.Float(options.Temperature),
	}
	c.applyThinking(&body, options)

	response, err := c.complete(ctx, body)
	if err != nil {
		return "", err
	}
	return response.Choices[0].Message.Content, nil
}

// GenerateChatWithTools sends a multi-turn conversation with tools that the model can call.
// Tool calls are executed and their results fed back until the model produces
// a final response without tool calls, or until options.MaxToolRounds is reached.
func (c *OpenAIClient) GenerateChatWithTools(
	ctx context.Context,
	messages []ai.ChatMessage,
	tools []ai.Tool,
	opts ...ai.GenerateOption,
) (string, error) {
	options := c.options(c.temperature, opts)
	msgs := c.messages(options, messages)

	openaiTools := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, tool := range tools {
		openaiTools[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  tool.Parameters,
		})
	}

	for round := range options.MaxToolRounds {
		body := openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(options.Model),
			Messages:    msgs,
			Tools:       openaiTools,
			Temperature: openai.Float(options.Temperature),
		}
		c.applyThinking(&body, options)

		response, err := c.complete(ctx, body)
		if err != nil {
			return "", err
		}

		message := response.Choices[0].Message
		if len(message.ToolCalls) == 0 {
			return message.Content, nil
		}

		msgs = append(msgs, message.ToParam())

		for _, tc := range message.ToolCalls {
			ftc := tc.AsFunction()
			logger.Debug("[AI] tool call", "round", round+1, "tool", ftc.Function.Name)

			result, err := ai.ExecuteTool(ctx, tools, ftc.Function.Name, ftc.Function.Arguments, options)
			if err != nil {
				return "", err
			}
			msgs = append(msgs, openai.ToolMessage(result, ftc.ID))
		}
	}

	return "", fmt.Errorf("%w (%d)", ai.ErrMaxToolRounds, options.MaxToolRounds)
}
