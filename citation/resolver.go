// Package citation keeps the per-session mapping between long source URLs and the short tokens
// the models see, and converts citation markers between the two forms.
package citation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// Source is one citation unit gathered during research.
type Source struct {
	URL          string `json:"value"`
	ShortURL     string `json:"short_url"`
	Label        string `json:"label"`
	QueryOrdinal int    `json:"link_id"`
	Citation     int    `json:"citation"`
}

// Resolver assigns short tokens to long URLs for one session.
// A URL keeps the token it was first given; citation numbers start at 0 and are never reused.
type Resolver struct {
	mu      sync.Mutex
	scope   string
	byURL   map[string]Source
	byToken map[string]Source
	order   []Source
	next    int
}

// NewResolver returns an empty resolver whose tokens are prefixed by scope.
func NewResolver(scope string) *Resolver {
	return &Resolver{
		scope:   scope,
		byURL:   make(map[string]Source),
		byToken: make(map[string]Source),
	}
}

// ScopeFor derives a compact token scope from a session identifier.
func ScopeFor(sessionID string) string {
	id := strings.ReplaceAll(sessionID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "cite-" + id
}

// Restore rebuilds a resolver from sources persisted with a session.
func Restore(scope string, sources []Source) *Resolver {
	r := NewResolver(scope)
	for _, s := range sources {
		if _, ok := r.byURL[s.URL]; ok {
			continue
		}
		s.Label = CleanLabel(s.Label, s.URL)
		r.byURL[s.URL] = s
		r.byToken[s.ShortURL] = s
		r.order = append(r.order, s)
		if s.Citation >= r.next {
			r.next = s.Citation + 1
		}
	}
	return r
}

// Scope returns the token prefix.
func (r *Resolver) Scope() string {
	return r.scope
}

// Register returns the Source for longURL, minting a token on first sight.
func (r *Resolver) Register(longURL, rawLabel string, queryOrdinal int) Source {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byURL[longURL]; ok {
		return s
	}
	s := Source{
		URL:          longURL,
		ShortURL:     fmt.Sprintf("%s/%d", r.scope, r.next),
		Label:        CleanLabel(rawLabel, longURL),
		QueryOrdinal: queryOrdinal,
		Citation:     r.next,
	}
	r.next++
	r.byURL[longURL] = s
	r.byToken[s.ShortURL] = s
	r.order = append(r.order, s)
	return s
}

// Lookup resolves a short token.
func (r *Resolver) Lookup(token string) (Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byToken[token]
	return s, ok
}

// Sources returns every registered source in registration order.
func (r *Resolver) Sources() []Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Source, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of distinct URLs registered.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

var labelBrackets = strings.NewReplacer("[", " ", "]", " ")

// CleanLabel trims a raw title into a display label, falling back to the URL host.
// Square brackets are dropped so the label can sit inside a citation marker.
func CleanLabel(rawLabel, longURL string) string {
	label := strings.Join(strings.Fields(labelBrackets.Replace(rawLabel)), " ")
	if label != "" {
		return label
	}
	if u, err := url.Parse(longURL); err == nil && u.Host != "" {
		return strings.TrimPrefix(u.Host, "www.")
	}
	return longURL
}

// LabelFromTitle drops the extension-like suffix of grounding chunk titles ("example.com" -> "example").
func LabelFromTitle(title string) string {
	title = strings.Join(strings.Fields(labelBrackets.Replace(title)), " ")
	parts := strings.Split(title, ".")
	if len(parts) > 1 && strings.TrimSpace(parts[0]) != "" {
		return strings.TrimSpace(parts[0])
	}
	return title
}

var markerPattern = regexp.MustCompile(`\[([^\[\]]+)\]\(([^()\s]+)\)`)

// Rewrite replaces every [label](short_token) whose token belongs to sources with
// [[label]](long_url). Unknown tokens and malformed markers are left as they are.
func Rewrite(text string, sources []Source) string {
	if len(sources) == 0 || text == "" {
		return text
	}
	byToken := make(map[string]Source, len(sources))
	for _, s := range sources {
		if s.ShortURL != "" {
			byToken[s.ShortURL] = s
		}
	}
	return markerPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := markerPattern.FindStringSubmatch(m)
		s, ok := byToken[sub[2]]
		if !ok || s.URL == "" {
			return m
		}
		return fmt.Sprintf("[[%s]](%s)", sub[1], s.URL)
	})
}

// Dedupe collapses sources sharing a long URL, keeping the first occurrence.
func Dedupe(sources []Source) []Source {
	seen := make(map[string]struct{}, len(sources))
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.URL == "" {
			continue
		}
		if _, ok := seen[s.URL]; ok {
			continue
		}
		seen[s.URL] = struct{}{}
		out = append(out, s)
	}
	return out
}

// RenderReferences formats deduplicated sources as a numbered markdown list.
func RenderReferences(sources []Source) string {
	var b strings.Builder
	for i, s := range Dedupe(sources) {
		label := s.Label
		if label == "" {
			label = fmt.Sprintf("Document %d", i+1)
		}
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, label, s.URL)
	}
	return b.String()
}
