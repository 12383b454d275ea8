package graph

import (
	"strings"
	"time"

	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/classifier"
	"github.com/potrek505/TEG-project/pkg/common"
)

// NoAnswer is the reply when neither the RAG nor the agent produced an answer.
const NoAnswer = "Sorry, I don't have an answer to that question."

// Route names the component that produced a reply.
type Route string

const (
	RouteRAG   Route = "rag"
	RouteAgent Route = "sql_agent"
	RouteNone  Route = "none"
)

// State is the conversation state threaded through the graph and stored per session.
type State struct {
	// Trace lists the nodes visited in the last turn, e.g. "start -> evaluate_query -> answer_with_sql_agent".
	Trace string `json:"graph_state"`

	// RAG is the session's retrieval pipeline, built on the first heavy question.
	RAG RAGAnswerer `json:"-"`

	UserMessage    string             `json:"user_message"`
	AgentAnswer    *common.Outcome    `json:"agent_response,omitempty"`
	RAGAnswer      *common.Outcome    `json:"rag_response,omitempty"`
	RAGStrategy    string             `json:"rag_strategy,omitempty"`
	RAGSourceCount int                `json:"source_documents_count,omitempty"`
	RAGComplexity  string             `json:"rag_complexity,omitempty"`
	RAGError       string             `json:"rag_error,omitempty"`
	Heavy          classifier.Verdict `json:"is_sql_query_heavy,omitempty"`
	History        []ai.ChatMessage   `json:"history,omitempty"`
	Turns          int                `json:"turns"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Update is a partial state change returned by a node. Set fields replace
// the corresponding State fields; nil fields are left untouched.
type Update struct {
	RAG            RAGAnswerer
	UserMessage    *string
	AgentAnswer    *common.Outcome
	RAGAnswer      *common.Outcome
	RAGStrategy    *string
	RAGSourceCount *int
	RAGComplexity  *string
	RAGError       *string
	Heavy          *classifier.Verdict
}

// Apply merges u into s, last write wins per field.
func (s *State) Apply(u Update) {
	if u.RAG != nil {
		s.RAG = u.RAG
	}
	if u.UserMessage != nil {
		s.UserMessage = *u.UserMessage
	}
	if u.AgentAnswer != nil {
		s.AgentAnswer = u.AgentAnswer
	}
	if u.RAGAnswer != nil {
		s.RAGAnswer = u.RAGAnswer
	}
	if u.RAGStrategy != nil {
		s.RAGStrategy = *u.RAGStrategy
	}
	if u.RAGSourceCount != nil {
		s.RAGSourceCount = *u.RAGSourceCount
	}
	if u.RAGComplexity != nil {
		s.RAGComplexity = *u.RAGComplexity
	}
	if u.RAGError != nil {
		s.RAGError = *u.RAGError
	}
	if u.Heavy != nil {
		s.Heavy = *u.Heavy
	}
}

// beginTurn clears per-turn results so a reply never repeats an earlier turn.
func (s *State) beginTurn() {
	s.Trace = ""
	s.AgentAnswer = nil
	s.RAGAnswer = nil
	s.RAGStrategy = ""
	s.RAGSourceCount = 0
	s.RAGComplexity = ""
	s.RAGError = ""
	s.Heavy = ""
}

func (s *State) visit(n Node) {
	if s.Trace == "" {
		s.Trace = string(n)
		return
	}
	s.Trace += " -> " + string(n)
}

// Visited returns the nodes of the last turn in order.
func (s State) Visited() []Node {
	if s.Trace == "" {
		return nil
	}
	parts := strings.Split(s.Trace, " -> ")
	out := make([]Node, len(parts))
	for i, p := range parts {
		out[i] = Node(p)
	}
	return out
}

// Outcome returns the terminal result: the RAG answer if present, then the
// agent answer, otherwise a degraded NoAnswer.
func (s State) Outcome() (common.Outcome, Route) {
	switch {
	case s.RAGAnswer != nil:
		return *s.RAGAnswer, RouteRAG
	case s.AgentAnswer != nil:
		return *s.AgentAnswer, RouteAgent
	default:
		return common.Degraded(NoAnswer, "no answer produced"), RouteNone
	}
}

// Reply returns the text surfaced to the user.
func (s State) Reply() string {
	o, _ := s.Outcome()
	return o.Answer
}

// AppendHistory records a finished exchange, keeping at most limit messages.
func (s *State) AppendHistory(question, answer string, limit int) {
	s.History = append(s.History,
		ai.ChatMessage{Role: ai.RoleUser, Message: question},
		ai.ChatMessage{Role: ai.RoleAssistant, Message: answer},
	)
	if limit > 0 && len(s.History) > limit {
		s.History = append([]ai.ChatMessage(nil), s.History[len(s.History)-limit:]...)
	}
}

// failure describes what went wrong in a node, if anything.
func (u Update) failure() string {
	switch {
	case u.RAGError != nil:
		return *u.RAGError
	case u.RAGAnswer != nil && !u.RAGAnswer.IsOk():
		return u.RAGAnswer.Reason
	case u.AgentAnswer != nil && !u.AgentAnswer.IsOk():
		return u.AgentAnswer.Reason
	}
	return ""
}

func ptr[T any](v T) *T {
	return &v
}
