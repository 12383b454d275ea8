// Package chat runs one conversation turn per request on top of the
// routing graph and the session store.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/potrek505/TEG-project/internal/util"
	"github.com/potrek505/TEG-project/pkg/common"
	"github.com/potrek505/TEG-project/pkg/graph"
	"github.com/potrek505/TEG-project/pkg/logger"
	"github.com/potrek505/TEG-project/pkg/session"
)

var ErrEmptyMessage = errors.New("message is required")

const (
	DefaultHistoryLimit   = 20
	defaultHistoryRetries = 3
	historyBackoff        = 100 * time.Millisecond
)

// HistoryLog records finished exchanges.
type HistoryLog interface {
	SaveConversation(ctx context.Context, sessionID, message, response string) error
}

// Runner executes one graph turn.
type Runner interface {
	Invoke(ctx context.Context, s graph.State) (graph.State, error)
}

type Options struct {
	// History is optional; when nil exchanges are not logged.
	History HistoryLog
	// HistoryLimit bounds the chat history kept in session state, in
	// messages. Zero means DefaultHistoryLimit.
	HistoryLimit   int
	HistoryRetries int
}

// Reply is the result of a chat turn.
type Reply struct {
	Response  string        `json:"response"`
	SessionID string        `json:"session_id"`
	Route     graph.Route   `json:"route"`
	Outcome   common.Status `json:"outcome"`
	Trace     string        `json:"graph_state"`

	// Set when the RAG answered.
	Strategy             string `json:"rag_strategy,omitempty"`
	Complexity           string `json:"rag_complexity,omitempty"`
	SourceDocumentsCount int    `json:"source_documents_count,omitempty"`
}

type Service struct {
	runner Runner
	store  session.Store
	opts   Options
	locks  *keyedMutex
}

func NewService(runner Runner, store session.Store, opts Options) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.HistoryRetries <= 0 {
		opts.HistoryRetries = defaultHistoryRetries
	}
	return &Service{
		runner: runner,
		store:  store,
		opts:   opts,
		locks:  newKeyedMutex(),
	}
}

// Chat answers message within sessionID. An empty session id means
// session.DefaultID. Turns of the same session run one at a time.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = session.DefaultID
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	state, ok := s.store.Get(sessionID)
	if !ok {
		logger.Debug("[Chat] new session", "session_id", sessionID)
	}
	state.UserMessage = message

	state, err := s.runner.Invoke(ctx, state)
	if err != nil {
		// Keep the previous state; a routing failure must not drop the session's RAG.
		return Reply{}, err
	}

	outcome, route := state.Outcome()
	state.AppendHistory(message, outcome.Answer, s.opts.HistoryLimit)
	s.store.Put(sessionID, state)

	logger.Info("[Chat] turn finished", "session_id", sessionID, "route", route, "status", outcome.Status, "graph", state.Trace)
	s.record(ctx, sessionID, message, outcome.Answer)

	reply := Reply{
		Response:  outcome.Answer,
		SessionID: sessionID,
		Route:     route,
		Outcome:   outcome.Status,
		Trace:     state.Trace,
	}
	if route == graph.RouteRAG {
		reply.Strategy = state.RAGStrategy
		reply.Complexity = state.RAGComplexity
		reply.SourceDocumentsCount = state.RAGSourceCount
	}
	return reply, nil
}

// record logs the exchange. Failures are logged and do not fail the turn.
func (s *Service) record(ctx context.Context, sessionID, message, response string) {
	if s.opts.History == nil {
		return
	}
	err := util.RetryErrWithContext(ctx, s.opts.HistoryRetries, historyBackoff, func(ctx context.Context) error {
		return s.opts.History.SaveConversation(ctx, sessionID, message, response)
	})
	if err != nil {
		logger.Error("[Chat] failed to save conversation", "session_id", sessionID, "err", err)
	}
}

// Clear forgets the state of sessionID, including its RAG index. The next
// message starts a new conversation.
func (s *Service) Clear(ctx context.Context, sessionID string) string {
	if sessionID == "" {
		sessionID = session.DefaultID
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	s.store.Delete(sessionID)
	logger.Info("[Chat] session cleared", "session_id", sessionID)
	return sessionID
}

// Sessions lists sessions that currently hold state.
func (s *Service) Sessions() []string {
	return s.store.IDs()
}
