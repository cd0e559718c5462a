// Package session stores research conversations between requests.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zaynkorai/research-agent/citation"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Reasoning string            `json:"reasoning,omitempty"`
	Sources   []citation.Source `json:"sources,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Session is one conversation thread. Every list only grows while the session lives.
type Session struct {
	ThreadID                string            `json:"thread_id"`
	Messages                []Message         `json:"messages"`
	SearchQueries           []string          `json:"search_queries"`
	WebResearchResults      []string          `json:"web_research_results"`
	Sources                 []citation.Source `json:"sources"`
	ResearchLoopCount       int               `json:"research_loop_count"`
	Reflections             int               `json:"reflections"`
	MaxResearchLoops        int               `json:"max_research_loops"`
	InitialSearchQueryCount int               `json:"initial_search_query_count"`
	// CitationScope and Citations persist the short-token mapping.
	CitationScope string            `json:"citation_scope"`
	Citations     []citation.Source `json:"citations"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// New starts an empty session with a fresh thread id and citation scope.
func New(maxResearchLoops, initialSearchQueryCount int) *Session {
	id := uuid.New().String()
	now := time.Now()
	return &Session{
		ThreadID:                id,
		Messages:                make([]Message, 0),
		MaxResearchLoops:        maxResearchLoops,
		InitialSearchQueryCount: initialSearchQueryCount,
		CitationScope:           citation.ScopeFor(id),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

func (s *Session) AddUserMessage(content string) {
	s.Messages = append(s.Messages, Message{Role: RoleUser, Content: content, CreatedAt: time.Now()})
	s.UpdatedAt = time.Now()
}

func (s *Session) AddAssistantMessage(content, reasoning string, sources []citation.Source) {
	s.Messages = append(s.Messages, Message{
		Role:      RoleAssistant,
		Content:   content,
		Reasoning: reasoning,
		Sources:   sources,
		CreatedAt: time.Now(),
	})
	s.UpdatedAt = time.Now()
}

// Resolver rebuilds the session's citation resolver from the persisted mapping.
func (s *Session) Resolver() *citation.Resolver {
	if s.CitationScope == "" {
		s.CitationScope = citation.ScopeFor(s.ThreadID)
	}
	return citation.Restore(s.CitationScope, s.Citations)
}

// Stats mirrors the progress counters shown next to the chat.
type Stats struct {
	Queries           int `json:"queries"`
	CompletedSearches int `json:"completed_searches"`
	Documents         int `json:"documents"`
	Reflections       int `json:"reflections"`
	ResearchLoops     int `json:"research_loops"`
}

func (s *Session) Stats() Stats {
	return Stats{
		Queries:           len(s.SearchQueries),
		CompletedSearches: len(s.WebResearchResults),
		Documents:         len(citation.Dedupe(s.Sources)),
		Reflections:       s.Reflections,
		ResearchLoops:     s.ResearchLoopCount,
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	for i := range c.Messages {
		c.Messages[i].Sources = append([]citation.Source(nil), s.Messages[i].Sources...)
	}
	c.SearchQueries = append([]string(nil), s.SearchQueries...)
	c.WebResearchResults = append([]string(nil), s.WebResearchResults...)
	c.Sources = append([]citation.Source(nil), s.Sources...)
	c.Citations = append([]citation.Source(nil), s.Citations...)
	return &c
}
