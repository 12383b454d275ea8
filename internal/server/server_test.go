package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/potrek505/TEG-project/internal/chat"
	"github.com/potrek505/TEG-project/internal/config"
	"github.com/potrek505/TEG-project/internal/history"
	mid "github.com/potrek505/TEG-project/internal/server/middleware"
	"github.com/potrek505/TEG-project/pkg/common"
	"github.com/potrek505/TEG-project/pkg/graph"
)

type fakeChat struct {
	cleared []string
	last    [2]string
	viaRAG  bool
}

func (f *fakeChat) Chat(_ context.Context, sessionID, message string) (chat.Reply, error) {
	if strings.TrimSpace(message) == "" {
		return chat.Reply{}, chat.ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = "default"
	}
	f.last = [2]string{sessionID, message}
	if f.viaRAG {
		return chat.Reply{
			Response:             "You spent 1250 PLN in total.",
			SessionID:            sessionID,
			Route:                graph.RouteRAG,
			Outcome:              common.StatusOK,
			Strategy:             "simple",
			Complexity:           "medium",
			SourceDocumentsCount: 1,
		}, nil
	}
	return chat.Reply{
		Response:  "You spent 120 PLN.",
		SessionID: sessionID,
		Route:     graph.RouteAgent,
		Outcome:   common.StatusOK,
	}, nil
}

func (f *fakeChat) Clear(_ context.Context, sessionID string) string {
	if sessionID == "" {
		sessionID = "default"
	}
	f.cleared = append(f.cleared, sessionID)
	return sessionID
}

func (f *fakeChat) Sessions() []string { return []string{"default"} }

type fakeHistory struct {
	cleared *int
}

func (f fakeHistory) ClearAll(context.Context) error {
	if f.cleared != nil {
		*f.cleared++
	}
	return nil
}

func (fakeHistory) ConversationHistory(_ context.Context, sessionID string) ([]history.Exchange, error) {
	return []history.Exchange{{ID: 1, SessionID: sessionID, Message: "q", Response: "a"}}, nil
}

func (fakeHistory) Sessions(context.Context) ([]history.Session, error) {
	return []history.Session{{SessionID: "default"}}, nil
}

func do(t *testing.T, app *mid.App, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := New(app, 0)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHealth(t *testing.T) {
	rec, out := do(t, &mid.App{Chat: &fakeChat{}}, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || out["status"] != "healthy" || out["service"] != "ai" {
		t.Fatalf("unexpected health response %d %v", rec.Code, out)
	}
}

func TestChat(t *testing.T) {
	fc := &fakeChat{}
	rec, out := do(t, &mid.App{Chat: fc}, http.MethodPost, "/chat", `{"message":"How much did I spend?","session_id":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if out["response"] != "You spent 120 PLN." || out["session_id"] != "s1" || out["status"] != "success" || out["route"] != "sql_agent" {
		t.Fatalf("unexpected body %v", out)
	}
	if fc.last != [2]string{"s1", "How much did I spend?"} {
		t.Fatalf("unexpected call %v", fc.last)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestChatReportsRAGDetails(t *testing.T) {
	rec, out := do(t, &mid.App{Chat: &fakeChat{viaRAG: true}}, http.MethodPost, "/chat", `{"message":"Summarize all my spending ever"}`)
	if rec.Code != http.StatusOK || out["route"] != "rag" {
		t.Fatalf("unexpected response %d %v", rec.Code, out)
	}
	if out["source_documents_count"] != float64(1) || out["rag_strategy"] != "simple" {
		t.Fatalf("missing RAG details %v", out)
	}

	_, out = do(t, &mid.App{Chat: &fakeChat{}}, http.MethodPost, "/chat", `{"message":"Show me my last 5 transactions"}`)
	if _, ok := out["source_documents_count"]; ok {
		t.Fatalf("agent replies should not carry RAG details: %v", out)
	}
}

func TestChatRequiresMessage(t *testing.T) {
	for _, body := range []string{`{}`, `{"message":""}`, `{"message":"   "}`} {
		rec, out := do(t, &mid.App{Chat: &fakeChat{}}, http.MethodPost, "/chat", body)
		if rec.Code != http.StatusBadRequest || out["error"] != "Message is required" {
			t.Fatalf("body %s: expected 400, got %d %v", body, rec.Code, out)
		}
	}
}

func TestClear(t *testing.T) {
	fc := &fakeChat{}
	rec, out := do(t, &mid.App{Chat: fc}, http.MethodPost, "/clear", `{"session_id":"s1"}`)
	if rec.Code != http.StatusOK || out["status"] != "conversation cleared" || out["success"] != true || out["session_id"] != "s1" {
		t.Fatalf("unexpected clear response %d %v", rec.Code, out)
	}

	rec, out = do(t, &mid.App{Chat: fc}, http.MethodPost, "/clear", "")
	if rec.Code != http.StatusOK || out["session_id"] != "default" {
		t.Fatalf("expected default session cleared, got %d %v", rec.Code, out)
	}
}

func TestHistory(t *testing.T) {
	rec, _ := do(t, &mid.App{Chat: &fakeChat{}}, http.MethodGet, "/history", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without history, got %d", rec.Code)
	}

	e := New(&mid.App{Chat: &fakeChat{}, History: fakeHistory{}}, 0)
	req := httptest.NewRequest(http.MethodGet, "/history?session_id=s9", nil)
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)

	var got []history.Exchange
	if err := json.Unmarshal(res.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Code != http.StatusOK || len(got) != 1 || got[0].SessionID != "s9" {
		t.Fatalf("unexpected history %d %+v", res.Code, got)
	}
}

func TestDeleteHistory(t *testing.T) {
	rec, _ := do(t, &mid.App{Chat: &fakeChat{}}, http.MethodDelete, "/history", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without history, got %d", rec.Code)
	}

	var cleared int
	rec, out := do(t, &mid.App{Chat: &fakeChat{}, History: fakeHistory{cleared: &cleared}}, http.MethodDelete, "/history", "")
	if rec.Code != http.StatusOK || out["success"] != true || cleared != 1 {
		t.Fatalf("unexpected delete response %d %v (cleared %d)", rec.Code, out, cleared)
	}
}

func TestSessions(t *testing.T) {
	rec, out := do(t, &mid.App{Chat: &fakeChat{}, History: fakeHistory{}}, http.MethodGet, "/sessions", "")
	if rec.Code != http.StatusOK || out["active"] == nil || out["saved"] == nil {
		t.Fatalf("unexpected sessions %d %v", rec.Code, out)
	}
}

func TestConfigIsRedacted(t *testing.T) {
	cfg := config.Default()
	cfg.AI.ChatKey = "sk-secret"
	app := &mid.App{Chat: &fakeChat{}, Config: func() *config.Config { return cfg }}

	rec, _ := do(t, app, http.MethodGet, "/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "sk-secret") {
		t.Fatalf("secret leaked: %s", rec.Body.String())
	}
}
