package agent

import (
	"github.com/zaynkorai/research-agent/citation"
	"github.com/zaynkorai/research-agent/session"
)

// Phase is the controller state of a research run.
type Phase string

const (
	PhaseGeneratingQuery Phase = "GENERATING_QUERY"
	PhaseResearching     Phase = "RESEARCHING"
	PhaseReflecting      Phase = "REFLECTING"
	PhaseFinalizing      Phase = "FINALIZING"
	PhaseDone            Phase = "DONE"
)

type SearchQueryList struct {
	Query     []string `json:"query"`
	Rationale string   `json:"rationale"`
}

type Reflection struct {
	IsSufficient    bool     `json:"is_sufficient"`
	KnowledgeGap    string   `json:"knowledge_gap"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// Task is one query dispatched to web research. Ordinals are unique within a run.
type Task struct {
	Query   string `json:"query"`
	Ordinal int    `json:"ordinal"`
}

type ResearchResult struct {
	Query   string            `json:"search_query"`
	Ordinal int               `json:"ordinal"`
	Sources []citation.Source `json:"sources_gathered"`
	Summary string            `json:"web_research_result"`
	Failed  bool              `json:"failed,omitempty"`
}

// FinalAnswer is the synthesized answer with every source gathered during the run.
// Text still carries short-token markers; Present converts them for display.
type FinalAnswer struct {
	Text      string            `json:"text"`
	Reasoning string            `json:"reasoning,omitempty"`
	Sources   []citation.Source `json:"sources"`
}

// Presentation is a FinalAnswer ready for a reader.
type Presentation struct {
	Text       string            `json:"text"`
	Reasoning  string            `json:"reasoning,omitempty"`
	References []citation.Source `json:"references"`
}

func (a FinalAnswer) Present() Presentation {
	return Presentation{
		Text:       citation.Rewrite(a.Text, a.Sources),
		Reasoning:  a.Reasoning,
		References: citation.Dedupe(a.Sources),
	}
}

// ResearchState is the state threaded through the graph for one question.
type ResearchState struct {
	Session  *session.Session
	Resolver *citation.Resolver

	Topic       string
	CurrentDate string
	Phase       Phase

	// Pending holds the tasks of the next wave.
	Pending            []Task
	SearchQueries      []string
	WebResearchResults []string
	SourcesGathered    []citation.Source

	InitialSearchQueryCount int
	MaxResearchLoops        int
	ResearchLoopCount       int
	NumberOfRanQueries      int

	Reflection Reflection
	Answer     FinalAnswer
}

// tasksFor numbers queries continuing after the queries already run.
func (s *ResearchState) tasksFor(queries []string) []Task {
	tasks := make([]Task, 0, len(queries))
	for i, q := range queries {
		tasks = append(tasks, Task{Query: q, Ordinal: s.NumberOfRanQueries + i})
	}
	return tasks
}

// commitWave appends a completed wave, in ordinal order, to the run and the session.
func (s *ResearchState) commitWave(results []ResearchResult) {
	for _, r := range results {
		s.SearchQueries = append(s.SearchQueries, r.Query)
		s.WebResearchResults = append(s.WebResearchResults, r.Summary)
		s.SourcesGathered = append(s.SourcesGathered, r.Sources...)
	}
	s.NumberOfRanQueries += len(results)

	if s.Session == nil {
		return
	}
	for _, r := range results {
		s.Session.SearchQueries = append(s.Session.SearchQueries, r.Query)
		s.Session.WebResearchResults = append(s.Session.WebResearchResults, r.Summary)
		s.Session.Sources = append(s.Session.Sources, r.Sources...)
	}
	if s.Resolver != nil {
		s.Session.Citations = s.Resolver.Sources()
	}
}
