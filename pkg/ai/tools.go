package ai

import (
	"context"
	"fmt"

	"github.com/potrek505/TEG-project/pkg/logger"
)

// FindTool returns the tool registered under name.
func FindTool(tools []Tool, name string) (Tool, bool) {
	for _, tool := range tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}

// ExecuteTool runs a single tool call requested by the model.
//
// With ToolErrorFeedback set, unknown tools and handler errors are turned into
// an "Error: ..." result that is sent back to the model; otherwise they abort
// the loop.
func ExecuteTool(
	ctx context.Context,
	tools []Tool,
	name string,
	arguments string,
	options GenerateOptions,
) (string, error) {
	tool, ok := FindTool(tools, name)
	if !ok || tool.Handler == nil {
		err := fmt.Errorf("no handler found for tool: %s", name)
		if options.ToolErrorFeedback {
			logger.Warn("[Tool] unknown tool requested", "tool", name)
			return toolErrorResult(err), nil
		}
		return "", err
	}

	result, err := tool.Handler(ctx, arguments)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if options.ToolErrorFeedback {
			logger.Debug("[Tool] call failed, feeding error back", "tool", name, "err", err)
			return toolErrorResult(err), nil
		}
		return "", fmt.Errorf("tool %s failed: %w", name, err)
	}
	return result, nil
}

func toolErrorResult(err error) string {
	return "Error: " + err.Error()
}
