package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/classifier"
	"github.com/potrek505/TEG-project/pkg/common"
	"github.com/potrek505/TEG-project/pkg/graph"
	"github.com/potrek505/TEG-project/pkg/rag"
	"github.com/potrek505/TEG-project/pkg/session"
	"github.com/potrek505/TEG-project/pkg/session/memory"
)

type countingClassifier struct {
	calls atomic.Int32
}

func (c *countingClassifier) IsQueryHeavy(context.Context, string) classifier.Verdict {
	c.calls.Add(1)
	return classifier.Heavy
}

type echoAgent struct{}

func (echoAgent) Answer(_ context.Context, q string, _ []ai.ChatMessage) common.Outcome {
	return common.Ok("agent: " + q)
}

type staticRAG struct{}

func (staticRAG) Query(_ context.Context, q string) rag.Result {
	return rag.Result{Strategy: rag.StrategySimple, Complexity: "high", SourceDocumentsCount: 1, Outcome: common.Ok("rag: " + q)}
}
func (staticRAG) Close(context.Context) error { return nil }

type recordingLog struct {
	mu    sync.Mutex
	fails int
	saved [][3]string
}

func (r *recordingLog) SaveConversation(_ context.Context, sessionID, message, response string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("database is locked")
	}
	r.saved = append(r.saved, [3]string{sessionID, message, response})
	return nil
}

func newService(cls graph.Classifier, log HistoryLog) *Service {
	g := graph.New(graph.Deps{
		Classifier: cls,
		Agent:      echoAgent{},
		Builder: graph.BuilderFunc(func(context.Context) (graph.RAGAnswerer, error) {
			return staticRAG{}, nil
		}),
		RAGEnabled: true,
	})
	return NewService(g, memory.New(0), Options{History: log})
}

func TestChatUsesSessionRAG(t *testing.T) {
	cls := &countingClassifier{}
	log := &recordingLog{fails: 1}
	s := newService(cls, log)
	ctx := context.Background()

	r, err := s.Chat(ctx, "", "Summarize all my spending ever")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if r.SessionID != session.DefaultID || r.Route != graph.RouteRAG || r.Response != "rag: Summarize all my spending ever" {
		t.Fatalf("unexpected reply %+v", r)
	}
	if r.SourceDocumentsCount != 1 || r.Strategy != rag.StrategySimple || r.Complexity != "high" {
		t.Fatalf("missing RAG details %+v", r)
	}

	if _, err := s.Chat(ctx, "", "And by category?"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if cls.calls.Load() != 1 {
		t.Fatalf("classifier called %d times, want 1", cls.calls.Load())
	}
	if len(log.saved) != 2 {
		t.Fatalf("expected 2 saved exchanges after retry, got %d", len(log.saved))
	}
}

func TestClearStartsNewSession(t *testing.T) {
	cls := &countingClassifier{}
	s := newService(cls, nil)
	ctx := context.Background()

	if _, err := s.Chat(ctx, "abc", "Summarize"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got := s.Clear(ctx, "abc"); got != "abc" {
		t.Fatalf("unexpected cleared id %q", got)
	}
	if len(s.Sessions()) != 0 {
		t.Fatalf("expected no sessions, got %v", s.Sessions())
	}
	if _, err := s.Chat(ctx, "abc", "Summarize again"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if cls.calls.Load() != 2 {
		t.Fatalf("classifier called %d times, want 2", cls.calls.Load())
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	s := newService(&countingClassifier{}, nil)
	if _, err := s.Chat(context.Background(), "a", "  "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestChatKeepsBoundedHistory(t *testing.T) {
	g := graph.New(graph.Deps{Classifier: &countingClassifier{}, Agent: echoAgent{}})
	store := memory.New(0)
	s := NewService(g, store, Options{HistoryLimit: 4})

	for _, q := range []string{"one", "two", "three"} {
		if _, err := s.Chat(context.Background(), "h", q); err != nil {
			t.Fatalf("Chat: %v", err)
		}
	}
	state, _ := store.Get("h")
	if len(state.History) != 4 || state.History[0].Message != "two" || state.History[3].Message != "agent: three" {
		t.Fatalf("unexpected history %+v", state.History)
	}
}

type slowRunner struct {
	active, peak atomic.Int32
}

func (r *slowRunner) Invoke(_ context.Context, s graph.State) (graph.State, error) {
	n := r.active.Add(1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	r.active.Add(-1)
	out := common.Ok("done")
	s.AgentAnswer = &out
	s.Turns++
	return s, nil
}

func TestSameSessionTurnsAreSerialized(t *testing.T) {
	runner := &slowRunner{}
	store := memory.New(0)
	s := NewService(runner, store, Options{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Chat(context.Background(), "same", "hi"); err != nil {
				t.Errorf("Chat: %v", err)
			}
		}()
	}
	wg.Wait()

	if runner.peak.Load() != 1 {
		t.Fatalf("expected serialized turns, peak concurrency %d", runner.peak.Load())
	}
	state, _ := store.Get("same")
	if state.Turns != 8 {
		t.Fatalf("expected 8 turns recorded, got %d", state.Turns)
	}
	if s.locks.len() != 0 {
		t.Fatalf("expected session locks released, got %d", s.locks.len())
	}
}

type failingRunner struct{}

func (failingRunner) Invoke(_ context.Context, s graph.State) (graph.State, error) {
	return s, graph.ErrStepLimit
}

func TestRunnerErrorKeepsPreviousState(t *testing.T) {
	store := memory.New(0)
	store.Put("a", graph.State{Turns: 3})
	s := NewService(failingRunner{}, store, Options{})

	if _, err := s.Chat(context.Background(), "a", "hi"); !errors.Is(err, graph.ErrStepLimit) {
		t.Fatalf("expected ErrStepLimit, got %v", err)
	}
	state, _ := store.Get("a")
	if state.Turns != 3 || state.UserMessage != "" {
		t.Fatalf("state must be unchanged, got %+v", state)
	}
}
