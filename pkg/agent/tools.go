package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/logger"
	"github.com/potrek505/TEG-project/pkg/transactions"
)

// QueryToolName is the name the model uses to run SQL.
const QueryToolName = "sql_db_query"

func toolQuery(source transactions.Source, maxRows int) ai.Tool {
	return ai.Tool{
		Name: QueryToolName,
		Description: "Execute a single read-only SQL SELECT statement against the " + source.Table() +
			" table and get back the result rows. If the query is not correct, an error message is returned; " +
			"rewrite the query and try again.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "A detailed and correct " + source.Dialect() + " SELECT statement.",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			var params map[string]any
			if err := json.Unmarshal([]byte(args), &params); err != nil {
				return "", fmt.Errorf("failed to parse arguments: %w", err)
			}

			query, ok := params["query"].(string)
			if !ok || strings.TrimSpace(query) == "" {
				return "", fmt.Errorf("query is required and must be a string")
			}

			logger.Debug("[Tool] sql_db_query", "query", query)

			rows, err := source.Query(ctx, query)
			if err != nil {
				return "", err
			}
			if rows.Len() == 0 {
				return "The query returned no rows.", nil
			}

			rows, truncated := rows.Truncate(maxRows)
			result := rows.Text()
			if truncated {
				result += fmt.Sprintf("\n(showing first %d rows, add filters or LIMIT to narrow the result)", maxRows)
			}
			return result, nil
		},
	}
}
