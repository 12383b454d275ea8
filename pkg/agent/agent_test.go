package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/ai/aitest"
	"github.com/potrek505/TEG-project/pkg/transactions"
)

type fakeSource struct {
	rows    transactions.Rows
	err     error
	queries []string
}

func (f *fakeSource) FetchRows(context.Context, int) (transactions.Rows, error) { return f.rows, f.err }
func (f *fakeSource) Dialect() string                                          { return "sqlite" }
func (f *fakeSource) Table() string                                            { return transactions.DefaultTable }
func (f *fakeSource) Close() error                                             { return nil }

func (f *fakeSource) Query(_ context.Context, q string) (transactions.Rows, error) {
	f.queries = append(f.queries, q)
	if _, err := transactions.ValidateReadOnly(q); err != nil {
		return transactions.Rows{}, err
	}
	return f.rows, f.err
}

func lastFive() transactions.Rows {
	return transactions.Rows{
		Columns: []string{"booking_date", "amount"},
		Values: [][]any{
			{"2025-05-05", -10.0}, {"2025-05-04", -20.0}, {"2025-05-03", 100.0},
			{"2025-05-02", -5.5}, {"2025-05-01", -1.0},
		},
	}
}

func TestAnswerRunsQueryTool(t *testing.T) {
	src := &fakeSource{rows: lastFive()}
	client := &aitest.Client{ToolSteps: []aitest.ToolStep{
		{Tool: QueryToolName, Arguments: `{"query":"SELECT booking_date, amount FROM all_transactions ORDER BY booking_date DESC LIMIT 5"}`},
		{Answer: "Here are your last 5 transactions ..."},
	}}

	out := New(client, src, Options{}).Answer(context.Background(), "Show me my last 5 transactions", nil)
	if !out.IsOk() || out.Answer != "Here are your last 5 transactions ..." {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(src.queries) != 1 || !strings.Contains(src.queries[0], "ORDER BY booking_date DESC") {
		t.Fatalf("unexpected queries %v", src.queries)
	}
	if len(client.ToolResults) != 1 || !strings.Contains(client.ToolResults[0], "2025-05-05 | -10") {
		t.Fatalf("unexpected tool results %v", client.ToolResults)
	}
}

func TestAnswerFeedsErrorsBack(t *testing.T) {
	src := &fakeSource{rows: lastFive()}
	client := &aitest.Client{ToolSteps: []aitest.ToolStep{
		{Tool: QueryToolName, Arguments: `not json`},
		{Tool: "sql_db_schema", Arguments: `{}`},
		{Tool: QueryToolName, Arguments: `{"query":"DELETE FROM all_transactions"}`},
		{Tool: QueryToolName, Arguments: `{"query":"SELECT amount FROM all_transactions"}`},
		{Answer: "done"},
	}}

	out := New(client, src, Options{}).Answer(context.Background(), "q", nil)
	if !out.IsOk() {
		t.Fatalf("expected recovery from tool errors, got %+v", out)
	}
	if len(client.ToolResults) != 4 {
		t.Fatalf("expected 4 tool results, got %d", len(client.ToolResults))
	}
	for i := range 3 {
		if !strings.HasPrefix(client.ToolResults[i], "Error: ") {
			t.Fatalf("tool result %d should be an error, got %q", i, client.ToolResults[i])
		}
	}
}

func TestAnswerDegradesOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		steps  []aitest.ToolStep
		opts   Options
		reason string
	}{
		{name: "llm error", steps: []aitest.ToolStep{{Err: errors.New("rate limited")}}, reason: "rate limited"},
		{name: "iteration ceiling", steps: []aitest.ToolStep{
			{Tool: QueryToolName, Arguments: `{"query":"SELECT 1"}`},
			{Tool: QueryToolName, Arguments: `{"query":"SELECT 1"}`},
			{Tool: QueryToolName, Arguments: `{"query":"SELECT 1"}`},
		}, opts: Options{MaxIterations: 2}, reason: "max tool rounds"},
		{name: "empty answer", steps: []aitest.ToolStep{{Answer: "  "}}, reason: "empty answer"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &aitest.Client{ToolSteps: tc.steps}
			out := New(client, &fakeSource{rows: lastFive()}, tc.opts).Answer(context.Background(), "q", nil)
			if out.IsOk() || out.Answer != Apology {
				t.Fatalf("expected degraded apology, got %+v", out)
			}
			if !strings.Contains(out.Reason, tc.reason) {
				t.Fatalf("reason %q does not mention %q", out.Reason, tc.reason)
			}
		})
	}
}

func TestAnswerWithUnavailableSource(t *testing.T) {
	client := &aitest.Client{ToolSteps: []aitest.ToolStep{{Answer: "should not be asked"}}}
	src := transactions.Unavailable{SQLDialect: "sqlite", Cause: errors.New("transactions.db: no such file")}

	out := New(client, src, Options{}).Answer(context.Background(), "Show me my last 5 transactions", nil)
	if out.IsOk() || out.Answer != Apology {
		t.Fatalf("expected degraded apology, got %+v", out)
	}
	if !strings.Contains(out.Reason, "no such file") {
		t.Fatalf("reason should carry the open error, got %q", out.Reason)
	}
	if client.ToolLoopCalls != 0 {
		t.Fatalf("model should not be called without a source")
	}
}

func TestAnswerPassesHistoryAndPrompt(t *testing.T) {
	client := &aitest.Client{ToolSteps: []aitest.ToolStep{{Answer: "ok"}}}
	history := []ai.ChatMessage{
		{Role: ai.RoleUser, Message: "What did I spend at Biedronka?"},
		{Role: ai.RoleAssistant, Message: "45 PLN"},
	}

	New(client, &fakeSource{}, Options{MaxIterations: 7}).Answer(context.Background(), "And last month?", history)

	if len(client.LastHistory) != 3 || client.LastHistory[2].Message != "And last month?" {
		t.Fatalf("unexpected history %+v", client.LastHistory)
	}
	if client.LastOptions.MaxToolRounds != 7 || !client.LastOptions.ToolErrorFeedback {
		t.Fatalf("unexpected options %+v", client.LastOptions)
	}
	system := strings.Join(client.LastOptions.SystemPrompts, "\n")
	for _, want := range []string{"all_transactions", "BLIK", "remittance_info_unstructured", "booking_date", "Negative amounts"} {
		if !strings.Contains(system, want) {
			t.Fatalf("system prompt misses %q", want)
		}
	}
}

func TestQueryToolTruncates(t *testing.T) {
	rows := transactions.Rows{Columns: []string{"id"}}
	for i := range 10 {
		rows.Values = append(rows.Values, []any{int64(i)})
	}
	tool := toolQuery(&fakeSource{rows: rows}, 3)

	res, err := tool.Handler(context.Background(), `{"query":"SELECT id FROM all_transactions"}`)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if strings.Count(res, "\n") != 4 || !strings.Contains(res, "first 3 rows") {
		t.Fatalf("unexpected truncated result %q", res)
	}

	res, err = toolQuery(&fakeSource{}, 3).Handler(context.Background(), `{"query":"SELECT id FROM all_transactions"}`)
	if err != nil || res != "The query returned no rows." {
		t.Fatalf("unexpected empty result %q, %v", res, err)
	}
}
