package agent

import (
	"github.com/zaynkorai/research-agent/config"
	"github.com/zaynkorai/research-agent/session"
)

// Configuration is the slice of config.Config the research loop reads.
type Configuration struct {
	QueryGeneratorModel    string
	ReasoningModel         string
	GroundedModel          string
	NumberOfInitialQueries int
	MaxResearchLoops       int
	MaxConcurrency         int
	MaxTransitions         int
	MaxSearchResults       int
	ModelType              string
	SearchType             string
}

func NewConfiguration(cfg *config.Config) Configuration {
	c := Configuration{
		QueryGeneratorModel:    cfg.Model.QueryGeneratorModel,
		ReasoningModel:         cfg.Model.ReasoningModel,
		GroundedModel:          cfg.Model.QueryGeneratorModel,
		NumberOfInitialQueries: cfg.Agent.InitialSearchQueryCount,
		MaxResearchLoops:       cfg.Agent.MaxResearchLoops,
		MaxConcurrency:         cfg.Agent.MaxConcurrency,
		MaxTransitions:         cfg.Agent.MaxTransitions,
		MaxSearchResults:       cfg.Search.MaxResults,
		ModelType:              cfg.Model.Type,
		SearchType:             cfg.Search.Type,
	}
	if cfg.Model.Type == config.ModelLocal {
		// a local server serves exactly one model
		c.QueryGeneratorModel = cfg.Model.LocalModel
		c.ReasoningModel = cfg.Model.LocalModel
	}
	if c.MaxTransitions <= 0 {
		c.MaxTransitions = 64
	}
	return c
}

// Overrides are per-session settings a client may pass when starting a conversation.
type Overrides struct {
	MaxResearchLoops        *int `json:"max_research_loops,omitempty" binding:"omitempty,min=0"`
	InitialSearchQueryCount *int `json:"initial_search_query_count,omitempty" binding:"omitempty,min=1"`
}

// NewSession starts a session using the configured limits unless overridden.
func (c Configuration) NewSession(o Overrides) *session.Session {
	loops := c.MaxResearchLoops
	if o.MaxResearchLoops != nil && *o.MaxResearchLoops >= 0 {
		loops = *o.MaxResearchLoops
	}
	count := c.NumberOfInitialQueries
	if o.InitialSearchQueryCount != nil && *o.InitialSearchQueryCount >= 1 {
		count = *o.InitialSearchQueryCount
	}
	return session.New(loops, count)
}
