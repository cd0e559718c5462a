package citation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAssignsStableTokens(t *testing.T) {
	r := NewResolver("cite-abc")

	a := r.Register("https://example.com/a", "Page A", 0)
	b := r.Register("https://example.com/b", "Page B", 1)
	again := r.Register("https://example.com/a", "Another title", 2)

	assert.Equal(t, "cite-abc/0", a.ShortURL)
	assert.Equal(t, 0, a.Citation)
	assert.Equal(t, "cite-abc/1", b.ShortURL)
	assert.Equal(t, a, again, "reuse must return the first registration unchanged")
	assert.Equal(t, 2, r.Len())

	got, ok := r.Lookup("cite-abc/1")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/b", got.URL)

	_, ok = r.Lookup("cite-abc/9")
	assert.False(t, ok)
}

func TestRegisterConcurrentDistinctTokensPerURL(t *testing.T) {
	r := NewResolver("cite-x")
	urls := make([]string, 20)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://site-%d.example", i)
	}

	var wg sync.WaitGroup
	tokens := make(chan Source, 10*len(urls))
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for _, u := range urls {
				tokens <- r.Register(u, "", w)
			}
		}(w)
	}
	wg.Wait()
	close(tokens)

	perURL := map[string]string{}
	distinct := map[string]struct{}{}
	for s := range tokens {
		if prev, ok := perURL[s.URL]; ok {
			assert.Equal(t, prev, s.ShortURL, "one URL must map to one token")
		}
		perURL[s.URL] = s.ShortURL
		distinct[s.ShortURL] = struct{}{}
	}
	assert.Len(t, distinct, len(urls))
	assert.Equal(t, len(urls), r.Len())

	for i, s := range r.Sources() {
		assert.Equal(t, i, s.Citation, "citation numbers are dense and 0-based")
	}
}

func TestRestoreContinuesNumbering(t *testing.T) {
	r := NewResolver("cite-s")
	r.Register("https://a.example", "A", 0)
	r.Register("https://b.example", "B", 0)

	restored := Restore("cite-s", r.Sources())
	c := restored.Register("https://c.example", "C", 1)
	assert.Equal(t, 2, c.Citation)
	assert.Equal(t, "cite-s/2", c.ShortURL)

	again := restored.Register("https://a.example", "A", 3)
	assert.Equal(t, "cite-s/0", again.ShortURL)

	legacy := Restore("cite-s", []Source{{URL: "https://d.example", ShortURL: "cite-s/0", Label: "[PDF] Filing"}})
	d, ok := legacy.Lookup("cite-s/0")
	require.True(t, ok)
	assert.Equal(t, "PDF Filing", d.Label)
}

func TestScopeFor(t *testing.T) {
	assert.Equal(t, "cite-1b4e28ba", ScopeFor("1b4e28ba-2fa1-11d2-883f-0016d3cca427"))
	assert.Equal(t, "cite-abc", ScopeFor("abc"))
}

func TestCleanLabel(t *testing.T) {
	assert.Equal(t, "Agentic AI Trends", CleanLabel("  Agentic   AI\nTrends ", "https://x.example"))
	assert.Equal(t, "collabnix.com", CleanLabel("", "https://www.collabnix.com/post"))
	assert.Equal(t, "not a url", CleanLabel("", "not a url"))
	assert.Equal(t, "Document One", LabelFromTitle("Document One.pdf"))
	assert.Equal(t, "example", LabelFromTitle("example.com"))
	assert.Equal(t, "plain", LabelFromTitle("plain"))
	assert.Equal(t, "PDF Annual report 2024", CleanLabel("[PDF] Annual report 2024", "https://x.example"))
	assert.Equal(t, "x.example", CleanLabel(" [ ] ", "https://x.example/r.pdf"))
	assert.Equal(t, "PDF Filing", LabelFromTitle("[PDF] Filing.pdf"))
}

func TestRewriteBracketedTitle(t *testing.T) {
	r := NewResolver("cite-x")
	s := r.Register("https://example.com/annual.pdf", "[PDF] Annual report 2024", 0)
	g := r.Register("https://example.com/q3", LabelFromTitle("Q3 [draft].html"), 0)

	once := Rewrite("Revenue grew "+Marker(s)+" and slowed "+Marker(g)+".", r.Sources())
	assert.Equal(t, "Revenue grew [[PDF Annual report 2024]](https://example.com/annual.pdf) and slowed [[Q3 draft]](https://example.com/q3).", once)
	assert.NotContains(t, once, "cite-x/")
	assert.Equal(t, once, Rewrite(once, r.Sources()), "rewrite must be idempotent")
}

func TestRewrite(t *testing.T) {
	sources := []Source{
		{URL: "https://example.com/a", ShortURL: "cite-s/0", Label: "A"},
		{URL: "https://example.com/b", ShortURL: "cite-s/1", Label: "B"},
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "known markers",
			in:   "Growth was fast [A](cite-s/0) and broad [B](cite-s/1).",
			want: "Growth was fast [[A]](https://example.com/a) and broad [[B]](https://example.com/b).",
		},
		{
			name: "unknown token untouched",
			in:   "See [C](cite-s/7).",
			want: "See [C](cite-s/7).",
		},
		{
			name: "missing closing parenthesis",
			in:   "See [A](cite-s/0 and more",
			want: "See [A](cite-s/0 and more",
		},
		{
			name: "empty token",
			in:   "See [A]() now",
			want: "See [A]() now",
		},
		{
			name: "ordinary link untouched",
			in:   "[docs](https://go.dev)",
			want: "[docs](https://go.dev)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := Rewrite(tt.in, sources)
			assert.Equal(t, tt.want, once)
			assert.Equal(t, once, Rewrite(once, sources), "rewrite must be idempotent")
		})
	}
}

func TestDedupeKeepsFirstSeenOrder(t *testing.T) {
	in := []Source{
		{URL: "https://b", ShortURL: "s/1"},
		{URL: "https://a", ShortURL: "s/0"},
		{URL: "https://b", ShortURL: "s/1", QueryOrdinal: 3},
		{URL: ""},
	}
	out := Dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, "https://b", out[0].URL)
	assert.Equal(t, 0, out[0].QueryOrdinal)
	assert.Equal(t, "https://a", out[1].URL)
}

func TestRenderReferences(t *testing.T) {
	out := RenderReferences([]Source{
		{URL: "https://a", Label: "A"},
		{URL: "https://a", Label: "A"},
		{URL: "https://b"},
	})
	assert.Equal(t, "1. [A](https://a)\n2. [Document 2](https://b)\n", out)
}
