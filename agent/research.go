package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/citation"
	"github.com/zaynkorai/research-agent/config"
	"github.com/zaynkorai/research-agent/llm"
	"github.com/zaynkorai/research-agent/search"
)

// WebResearcher runs one query and returns a cited summary. Sources are registered with the
// session's resolver.
type WebResearcher interface {
	Research(ctx context.Context, resolver *citation.Resolver, query string, ordinal int) (ResearchResult, error)
}

// KeywordResearcher searches a keyword API and has a model summarize the numbered results.
type KeywordResearcher struct {
	search     search.Provider
	llm        llm.TextGenerator
	model      string
	maxResults int
	logger     *zap.Logger
	now        func() time.Time
}

func NewKeywordResearcher(provider search.Provider, gen llm.TextGenerator, model string, maxResults int, logger *zap.Logger) *KeywordResearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxResults <= 0 {
		maxResults = search.DefaultMaxResults
	}
	return &KeywordResearcher{search: provider, llm: gen, model: model, maxResults: maxResults, logger: logger, now: time.Now}
}

func (r *KeywordResearcher) Research(ctx context.Context, resolver *citation.Resolver, query string, ordinal int) (ResearchResult, error) {
	result := ResearchResult{Query: query, Ordinal: ordinal}

	hits, err := r.search.Search(ctx, query, r.maxResults)
	if err != nil {
		return result, stageError(StageWebResearch, KindCapability, fmt.Errorf("search: %w", err))
	}
	if len(hits) == 0 {
		result.Summary = fmt.Sprintf("No search results found for \"%s\".", query)
		return result, nil
	}

	// positions in sources match the [n] numbers shown to the model
	sources := r.register(resolver, hits, ordinal)

	prompt := fmt.Sprintf(KeywordSummaryInstructions, query, r.now().Format("January 2, 2006"), formatSearchResults(hits))
	raw, err := r.llm.Generate(ctx, prompt, llm.WithModel(r.model), llm.WithTemperature(0.7))
	if err != nil {
		return result, stageError(StageWebResearch, KindCapability, fmt.Errorf("summarize: %w", err))
	}
	text, _ := llm.SplitReasoning(raw)

	result.Summary = safeInsert(r.logger, query, text, func() string {
		out, placed := citation.InsertHeuristic(text, sources)
		r.logger.Debug("Placed citation markers", zap.String("query", query), zap.Int("markers", placed))
		return out
	})
	result.Sources = citation.Dedupe(sources)
	return result, nil
}

func (r *KeywordResearcher) register(resolver *citation.Resolver, hits []search.Result, ordinal int) (sources []citation.Source) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Source extraction failed, continuing without sources", zap.Any("panic", rec))
			sources = nil
		}
	}()
	for _, h := range hits {
		sources = append(sources, resolver.Register(h.URL, h.Title, ordinal))
	}
	return sources
}

// GroundedResearcher uses model generation with built-in web search grounding; markers go at
// the exact offsets reported by the grounding metadata.
type GroundedResearcher struct {
	llm    llm.GroundedGenerator
	model  string
	logger *zap.Logger
	now    func() time.Time
}

func NewGroundedResearcher(gen llm.GroundedGenerator, model string, logger *zap.Logger) *GroundedResearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroundedResearcher{llm: gen, model: model, logger: logger, now: time.Now}
}

func (r *GroundedResearcher) Research(ctx context.Context, resolver *citation.Resolver, query string, ordinal int) (ResearchResult, error) {
	result := ResearchResult{Query: query, Ordinal: ordinal}

	prompt := fmt.Sprintf(WebSearcherInstructions, query, r.now().Format("January 2, 2006"))
	resp, err := r.llm.GenerateGrounded(ctx, prompt, llm.WithModel(r.model), llm.WithTemperature(0))
	if err != nil {
		return result, stageError(StageWebResearch, KindCapability, err)
	}

	citations := r.citations(resp, resolver, ordinal)
	result.Summary = safeInsert(r.logger, query, resp.Text, func() string {
		return citation.InsertAtOffsets(resp.Text, citations)
	})
	result.Sources = segmentsOf(citations)
	return result, nil
}

func (r *GroundedResearcher) citations(resp llm.GroundedResponse, resolver *citation.Resolver, ordinal int) (out []citation.Citation) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Source extraction failed, continuing without sources", zap.Any("panic", rec))
			out = nil
		}
	}()
	return GetCitations(resp, resolver, ordinal)
}

// safeInsert returns the text with markers, or the raw text if insertion panics.
func safeInsert(logger *zap.Logger, query, raw string, insert func() string) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Citation insertion failed, using raw text", zap.String("query", query), zap.Any("panic", rec))
			out = raw
		}
	}()
	return insert()
}

// NewWebResearcher picks the research variant for the configured search type.
func NewWebResearcher(cfg Configuration, provider search.Provider, gen llm.TextGenerator, grounded llm.GroundedGenerator, logger *zap.Logger) (WebResearcher, error) {
	switch cfg.SearchType {
	case config.SearchKeyword:
		if provider == nil || gen == nil {
			return nil, fmt.Errorf("keyword research needs a search provider and a text model")
		}
		return NewKeywordResearcher(provider, gen, cfg.QueryGeneratorModel, cfg.MaxSearchResults, logger), nil
	case config.SearchGrounded:
		if grounded == nil {
			return nil, fmt.Errorf("grounded research needs a grounded model")
		}
		return NewGroundedResearcher(grounded, cfg.GroundedModel, logger), nil
	default:
		return nil, fmt.Errorf("unsupported search type: %q", cfg.SearchType)
	}
}
