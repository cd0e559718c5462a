package agent

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/config"
	"github.com/zaynkorai/research-agent/llm"
	"github.com/zaynkorai/research-agent/search"
)

// NewFromConfig wires the model, search and grounding backends named by cfg into a Workflow.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*Workflow, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conf := NewConfiguration(cfg)

	provider, err := llm.NewFromConfig(cfg.Model, logger.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("model provider: %w", err)
	}

	var (
		searcher search.Provider
		grounded llm.GroundedGenerator
	)
	switch cfg.Search.Type {
	case config.SearchKeyword:
		if searcher, err = search.NewFromConfig(cfg.Search, logger.Named("search")); err != nil {
			return nil, fmt.Errorf("search provider: %w", err)
		}
	case config.SearchGrounded:
		if grounded, err = llm.NewGroundedFromConfig(cfg.Model, logger.Named("grounded")); err != nil {
			return nil, fmt.Errorf("grounded search: %w", err)
		}
	}

	researcher, err := NewWebResearcher(conf, searcher, provider, grounded, logger.Named("research"))
	if err != nil {
		return nil, err
	}

	logger.Info("Research workflow configured",
		zap.String("model_type", conf.ModelType),
		zap.String("provider", provider.Name()),
		zap.String("search_type", conf.SearchType),
		zap.String("query_generator_model", conf.QueryGeneratorModel),
		zap.String("reasoning_model", conf.ReasoningModel))

	return NewWorkflow(conf, Components{
		Queries:    NewQueryGenerator(provider, conf.QueryGeneratorModel, logger),
		Researcher: researcher,
		Reflector:  NewReflector(provider, conf.ReasoningModel, logger),
		Answerer:   NewFinalizer(provider, conf.ReasoningModel, logger),
	}, logger)
}
