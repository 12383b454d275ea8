package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/potrek505/TEG-project/pkg/ai"
	"github.com/potrek505/TEG-project/pkg/common"
	"github.com/potrek505/TEG-project/pkg/logger"
	"github.com/potrek505/TEG-project/pkg/vectorstore"
)

// Retrieval strategies chosen by the analysis step.
const (
	StrategySimple    = "simple"
	StrategyComplex   = "complex"
	StrategyMultiStep = "multi_step"
	StrategyError     = "error"
)

// NoInformationAnswer is returned when retrieval finds nothing to answer from.
const NoInformationAnswer = "I couldn't find relevant information about this in your transactions."

// RetrievalParams caps how many documents each strategy keeps.
type RetrievalParams struct {
	SimpleCap    int `json:"simple_cap" toml:"simple_cap"`
	ComplexTerms int `json:"complex_terms" toml:"complex_terms"`
	ComplexCap   int `json:"complex_cap" toml:"complex_cap"`
	MultiStepCap int `json:"multi_step_cap" toml:"multi_step_cap"`
	FallbackCap  int `json:"fallback_cap" toml:"fallback_cap"`
	ContextDocs  int `json:"context_docs" toml:"context_docs"`
}

// DefaultRetrievalParams returns the standard caps.
func DefaultRetrievalParams() RetrievalParams {
	return RetrievalParams{
		SimpleCap:    5,
		ComplexTerms: 3,
		ComplexCap:   5,
		MultiStepCap: 7,
		FallbackCap:  3,
		ContextDocs:  5,
	}
}

// Analysis is the model's view of how to retrieve for a question.
type Analysis struct {
	Strategy    string   `json:"strategy"`
	SearchTerms []string `json:"search_terms"`
	Complexity  string   `json:"complexity"`
}

// Result is the answer of an adaptive RAG query.
type Result struct {
	Answer               string         `json:"answer"`
	Strategy             string         `json:"strategy"`
	SourceDocumentsCount int            `json:"source_documents_count"`
	Complexity           string         `json:"complexity"`
	Outcome              common.Outcome `json:"-"`
}

// Retriever returns the K nearest documents of an index.
type Retriever struct {
	Index vectorstore.Index
	K     int
}

// Retrieve searches the index for query.
func (r Retriever) Retrieve(ctx context.Context, query string) ([]vectorstore.Document, error) {
	return r.Index.Search(ctx, query, r.K)
}

// Adaptive analyzes each question, picks a retrieval strategy and answers
// from the retrieved documents.
type Adaptive struct {
	client    ai.Client
	retriever Retriever
	params    RetrievalParams
	opts      []ai.GenerateOption
}

// NewAdaptive creates an adaptive RAG over retriever.
func NewAdaptive(client ai.Client, retriever Retriever, params RetrievalParams, opts ...ai.GenerateOption) *Adaptive {
	return &Adaptive{
		client:    client,
		retriever: retriever,
		params:    params,
		opts:      opts,
	}
}

// Documents returns the number of indexed documents.
func (a *Adaptive) Documents() int {
	return a.retriever.Index.Len()
}

// Close releases the underlying index.
func (a *Adaptive) Close(ctx context.Context) error {
	return a.retriever.Index.Close(ctx)
}

// Query answers question. It never fails: problems are reported in the
// returned Result's answer and a degraded Outcome.
func (a *Adaptive) Query(ctx context.Context, question string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[RAG] query panicked", "panic", r)
			msg := fmt.Sprintf("An error occurred while processing your question: %v", r)
			res = Result{
				Answer:     msg,
				Strategy:   StrategyError,
				Complexity: StrategyError,
				Outcome:    common.Degraded(msg, fmt.Sprint(r)),
			}
		}
	}()

	logger.Debug("[RAG] processing question", "question", question)

	analysis := a.Analyze(ctx, question)
	logger.Debug("[RAG] analysis", "strategy", analysis.Strategy, "terms", analysis.SearchTerms, "complexity", analysis.Complexity)

	docs := a.Retrieve(ctx, question, analysis)
	logger.Debug("[RAG] retrieved documents", "count", len(docs))

	outcome := a.Generate(ctx, question, docs)
	return Result{
		Answer:               outcome.Answer,
		Strategy:             analysis.Strategy,
		SourceDocumentsCount: len(docs),
		Complexity:           analysis.Complexity,
		Outcome:              outcome,
	}
}

func defaultAnalysis(question string) Analysis {
	return Analysis{
		Strategy:    StrategySimple,
		SearchTerms: []string{question},
		Complexity:  "medium",
	}
}

// Analyze asks the model for a retrieval strategy as structured output.
// When the provider rejects the schema request, the plain completion is
// searched for a JSON object instead. Unusable answers fall back to a
// simple search for the question itself.
func (a *Adaptive) Analyze(ctx context.Context, question string) Analysis {
	prompt := fmt.Sprintf(ai.RAGAnalysisPrompt, question)

	var analysis Analysis
	err := a.client.GenerateCompletionWithFormat(ctx, analysisFormat, analysisDescription, prompt, &analysis, a.opts...)
	if err == nil && strings.TrimSpace(analysis.Strategy) == "" {
		err = errNoStrategy
	}
	if err != nil {
		logger.Debug("[RAG] structured analysis failed, parsing plain completion", "err", err)
		var ok bool
		if analysis, ok = a.analyzeText(ctx, prompt); !ok {
			return defaultAnalysis(question)
		}
	}
	return normalizeAnalysis(analysis, question)
}

var errNoStrategy = errors.New("analysis without strategy")

const (
	analysisFormat      = "retrieval_analysis"
	analysisDescription = "Retrieval strategy for a question about bank transactions"
)

func (a *Adaptive) analyzeText(ctx context.Context, prompt string) (Analysis, bool) {
	raw, err := a.client.GenerateCompletion(ctx, prompt, a.opts...)
	if err != nil {
		logger.Warn("[RAG] analysis failed, using simple strategy", "err", err)
		return Analysis{}, false
	}

	span := ai.ExtractJSONObject(raw)
	if !strings.HasPrefix(strings.TrimSpace(span), "{") {
		logger.Warn("[RAG] analysis returned no JSON, using simple strategy")
		return Analysis{}, false
	}

	var analysis Analysis
	if err := ai.UnmarshalFlexible(span, &analysis); err != nil {
		logger.Warn("[RAG] analysis unparsable, using simple strategy", "err", err)
		return Analysis{}, false
	}
	return analysis, true
}

func normalizeAnalysis(analysis Analysis, question string) Analysis {
	analysis.Strategy = strings.ToLower(strings.TrimSpace(analysis.Strategy))
	if analysis.Strategy == "" {
		analysis.Strategy = StrategySimple
	}
	if analysis.Complexity == "" {
		analysis.Complexity = "medium"
	}
	terms := analysis.SearchTerms[:0]
	for _, t := range analysis.SearchTerms {
		if strings.TrimSpace(t) != "" {
			terms = append(terms, t)
		}
	}
	analysis.SearchTerms = terms
	if len(analysis.SearchTerms) == 0 {
		analysis.SearchTerms = []string{question}
	}
	return analysis
}

// Retrieve collects documents for question according to analysis.
func (a *Adaptive) Retrieve(ctx context.Context, question string, analysis Analysis) []vectorstore.Document {
	docs, err := a.retrieve(ctx, question, analysis)
	if err == nil {
		return docs
	}

	logger.Warn("[RAG] retrieval failed, falling back to plain search", "err", err)
	docs, err = a.retriever.Retrieve(ctx, question)
	if err != nil {
		logger.Warn("[RAG] fallback retrieval failed", "err", err)
		return nil
	}
	return head(docs, a.params.FallbackCap)
}

func (a *Adaptive) retrieve(ctx context.Context, question string, analysis Analysis) ([]vectorstore.Document, error) {
	switch analysis.Strategy {
	case StrategySimple:
		docs, err := a.retriever.Retrieve(ctx, question)
		if err != nil {
			return nil, err
		}
		return head(docs, a.params.SimpleCap), nil

	case StrategyComplex:
		var all []vectorstore.Document
		for _, term := range head(analysis.SearchTerms, a.params.ComplexTerms) {
			docs, err := a.retriever.Retrieve(ctx, term)
			if err != nil {
				return nil, err
			}
			all = append(all, docs...)
		}
		return head(Dedupe(all), a.params.ComplexCap), nil

	default:
		docs, err := a.retriever.Retrieve(ctx, question)
		if err != nil {
			return nil, err
		}
		return head(docs, a.params.MultiStepCap), nil
	}
}

// Dedupe drops documents whose content was already seen, keeping first-seen order.
func Dedupe(docs []vectorstore.Document) []vectorstore.Document {
	seen := make(map[string]struct{}, len(docs))
	out := make([]vectorstore.Document, 0, len(docs))
	for _, d := range docs {
		if _, ok := seen[d.Content]; ok {
			continue
		}
		seen[d.Content] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Generate answers question from docs. Without usable context it returns
// NoInformationAnswer and does not call the model.
func (a *Adaptive) Generate(ctx context.Context, question string, docs []vectorstore.Document) common.Outcome {
	var sb strings.Builder
	for i, d := range head(docs, a.params.ContextDocs) {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Document %d:\n%s", i+1, d.Content)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return common.Degraded(NoInformationAnswer, "no relevant documents")
	}

	answer, err := a.client.GenerateCompletion(ctx, fmt.Sprintf(ai.RAGAnswerPrompt, question, sb.String()), a.opts...)
	if err != nil {
		logger.Error("[RAG] answer generation failed", "err", err)
		return common.Degraded(fmt.Sprintf("I couldn't generate an answer: %v", err), err.Error())
	}
	return common.Ok(answer)
}

func head[T any](s []T, n int) []T {
	if n < 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
