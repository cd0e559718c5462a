package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zaynkorai/research-agent/citation"
	"github.com/zaynkorai/research-agent/llm"
)

type scriptedQueries struct {
	list   SearchQueryList
	err    error
	mu     sync.Mutex
	topics []string
	counts []int
}

func (q *scriptedQueries) Generate(_ context.Context, topic string, count int, _ string) (SearchQueryList, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.topics = append(q.topics, topic)
	q.counts = append(q.counts, count)
	if q.err != nil {
		return SearchQueryList{}, q.err
	}
	return q.list, nil
}

type researchCall struct {
	Query   string
	Ordinal int
}

// scriptedResearcher registers one source per query and cites it in the summary unless fn
// overrides the behaviour.
type scriptedResearcher struct {
	fn    func(ctx context.Context, resolver *citation.Resolver, query string, ordinal int) (ResearchResult, error)
	mu    sync.Mutex
	calls []researchCall
}

func (r *scriptedResearcher) Research(ctx context.Context, resolver *citation.Resolver, query string, ordinal int) (ResearchResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, researchCall{Query: query, Ordinal: ordinal})
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(ctx, resolver, query, ordinal)
	}
	return citedResult(resolver, query, ordinal), nil
}

func (r *scriptedResearcher) ordinals() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.Ordinal)
	}
	sort.Ints(out)
	return out
}

func (r *scriptedResearcher) queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.Query)
	}
	sort.Strings(out)
	return out
}

func citedResult(resolver *citation.Resolver, query string, ordinal int) ResearchResult {
	src := resolver.Register(fmt.Sprintf("https://example.com/%d", ordinal), fmt.Sprintf("Source %d", ordinal), ordinal)
	return ResearchResult{
		Query:   query,
		Ordinal: ordinal,
		Summary: fmt.Sprintf("Findings for %s %s", query, citation.Marker(src)),
		Sources: []citation.Source{src},
	}
}

// scriptedReflector returns verdicts in order and repeats the last one.
type scriptedReflector struct {
	verdicts  []Reflection
	errs      []error
	mu        sync.Mutex
	calls     int
	summaries [][]string
}

func (r *scriptedReflector) Reflect(_ context.Context, _ string, summaries []string, _ string) (Reflection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	r.calls++
	r.summaries = append(r.summaries, append([]string(nil), summaries...))
	if i < len(r.errs) && r.errs[i] != nil {
		return Reflection{}, r.errs[i]
	}
	if len(r.verdicts) == 0 {
		return Reflection{IsSufficient: true}, nil
	}
	if i >= len(r.verdicts) {
		i = len(r.verdicts) - 1
	}
	return r.verdicts[i], nil
}

type scriptedAnswerer struct {
	text      string
	err       error
	panicWith any
	topics    []string
	summaries []string
}

func (a *scriptedAnswerer) Finalize(_ context.Context, topic string, summaries []string, _ string) (string, error) {
	if a.panicWith != nil {
		panic(a.panicWith)
	}
	a.topics = append(a.topics, topic)
	a.summaries = append([]string(nil), summaries...)
	if a.err != nil {
		return "", a.err
	}
	return a.text, nil
}

// fakeStructured decodes canned raw answers the way a provider would.
type fakeStructured struct {
	raw     string
	err     error
	prompts []string
	opts    []llm.Options
}

func (f *fakeStructured) GenerateStructured(_ context.Context, prompt string, out any, opts ...llm.Option) error {
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, llm.Apply(opts...))
	if f.err != nil {
		return f.err
	}
	return llm.DecodeJSON(f.raw, out)
}

type fakeText struct {
	text    string
	err     error
	prompts []string
	opts    []llm.Options
}

func (f *fakeText) Generate(_ context.Context, prompt string, opts ...llm.Option) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, llm.Apply(opts...))
	return f.text, f.err
}

type fakeGrounded struct {
	resp llm.GroundedResponse
	err  error
	opts []llm.Options
}

func (f *fakeGrounded) GenerateGrounded(_ context.Context, _ string, opts ...llm.Option) (llm.GroundedResponse, error) {
	f.opts = append(f.opts, llm.Apply(opts...))
	return f.resp, f.err
}

// eventLog collects emitted events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) emit(evt Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	return nil
}

func (l *eventLog) nodes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Node)
	}
	return out
}
