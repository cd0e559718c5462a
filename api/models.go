package api

import (
	"time"

	"github.com/zaynkorai/research-agent/agent"
	"github.com/zaynkorai/research-agent/session"
)

type CreateSessionRequest struct {
	agent.Overrides
}

type CreateSessionResponse struct {
	ThreadID                string `json:"thread_id"`
	MaxResearchLoops        int    `json:"max_research_loops"`
	InitialSearchQueryCount int    `json:"initial_search_query_count"`
}

// ResearchRequest asks a question, optionally continuing an existing thread. Overrides only
// apply when a new thread is started.
type ResearchRequest struct {
	Question string `json:"question" binding:"required"`
	ThreadID string `json:"thread_id,omitempty"`
	agent.Overrides
}

// ResearchResponse carries the answer of a run. When the run failed, Failed is set and Answer
// holds the apology recorded in the thread.
type ResearchResponse struct {
	ThreadID string             `json:"thread_id"`
	Answer   agent.Presentation `json:"answer"`
	Stats    session.Stats      `json:"stats"`
	Failed   bool               `json:"failed,omitempty"`
}

type SessionResponse struct {
	ThreadID                string            `json:"thread_id"`
	Messages                []session.Message `json:"messages"`
	Stats                   session.Stats     `json:"stats"`
	MaxResearchLoops        int               `json:"max_research_loops"`
	InitialSearchQueryCount int               `json:"initial_search_query_count"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

func newSessionResponse(s *session.Session) SessionResponse {
	return SessionResponse{
		ThreadID:                s.ThreadID,
		Messages:                s.Messages,
		Stats:                   s.Stats(),
		MaxResearchLoops:        s.MaxResearchLoops,
		InitialSearchQueryCount: s.InitialSearchQueryCount,
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
	}
}

type ErrorResponse struct {
	Error    string `json:"error"`
	ThreadID string `json:"thread_id,omitempty"`
}
