package agent

import "github.com/zaynkorai/research-agent/citation"

// Event is one progress update. Web research emits one event per task, the other nodes one
// per execution.
type Event struct {
	Node    string `json:"node"`
	Payload any    `json:"payload"`
}

// EmitFunc receives events. Its errors are logged and never stop the run.
type EmitFunc func(Event) error

type QueryEvent struct {
	SearchQuery []string `json:"search_query"`
	Rationale   string   `json:"rationale"`
	Fallback    bool     `json:"fallback,omitempty"`
}

type ReflectionEvent struct {
	Reflection
	ResearchLoopCount  int  `json:"research_loop_count"`
	NumberOfRanQueries int  `json:"number_of_ran_queries"`
	Fallback           bool `json:"fallback,omitempty"`
}

type AnswerEvent struct {
	Answer    string            `json:"answer"`
	Reasoning string            `json:"reasoning,omitempty"`
	Sources   []citation.Source `json:"sources_gathered"`
	Fallback  bool              `json:"fallback,omitempty"`
}
