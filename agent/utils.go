package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/zaynkorai/research-agent/citation"
	"github.com/zaynkorai/research-agent/llm"
	"github.com/zaynkorai/research-agent/session"
)

// GetResearchTopic returns the single question, or the whole conversation rendered as
// "User:"/"Assistant:" lines when there is more than one message.
func GetResearchTopic(messages []session.Message) string {
	if len(messages) == 1 {
		return messages[0].Content
	}

	var researchTopic strings.Builder
	for _, message := range messages {
		switch message.Role {
		case session.RoleUser:
			researchTopic.WriteString(fmt.Sprintf("User: %s\n", message.Content))
		case session.RoleAssistant:
			researchTopic.WriteString(fmt.Sprintf("Assistant: %s\n", message.Content))
		}
	}
	return researchTopic.String()
}

func GetCurrentDate() string {
	return time.Now().Format("January 2, 2006")
}

// GetCitations registers the chunks referenced by each grounding support and returns the
// citations to insert. Supports pointing at unknown chunks are skipped.
func GetCitations(resp llm.GroundedResponse, resolver *citation.Resolver, ordinal int) []citation.Citation {
	citations := []citation.Citation{}
	for _, support := range resp.Supports {
		c := citation.Citation{StartIndex: support.StartIndex, EndIndex: support.EndIndex}
		for _, idx := range support.ChunkIndices {
			if idx < 0 || idx >= len(resp.Chunks) {
				continue
			}
			chunk := resp.Chunks[idx]
			if chunk.URI == "" {
				continue
			}
			c.Segments = append(c.Segments, resolver.Register(chunk.URI, citation.LabelFromTitle(chunk.Title), ordinal))
		}
		if len(c.Segments) > 0 {
			citations = append(citations, c)
		}
	}
	return citations
}

// segmentsOf flattens the sources of citations, first occurrence first.
func segmentsOf(citations []citation.Citation) []citation.Source {
	var out []citation.Source
	for _, c := range citations {
		out = append(out, c.Segments...)
	}
	return citation.Dedupe(out)
}

func cleanQueries(queries []string) []string {
	out := make([]string, 0, len(queries))
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
