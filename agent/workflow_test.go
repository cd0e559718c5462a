package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaynkorai/research-agent/citation"
	"github.com/zaynkorai/research-agent/session"
)

func testConfiguration() Configuration {
	return Configuration{
		QueryGeneratorModel:    "query-model",
		ReasoningModel:         "reasoning-model",
		NumberOfInitialQueries: 3,
		MaxResearchLoops:       2,
		MaxTransitions:         64,
		ModelType:              "local",
		SearchType:             "keyword",
	}
}

func newTestSession(question string, maxLoops, queries int) *session.Session {
	s := session.New(maxLoops, queries)
	s.AddUserMessage(question)
	return s
}

func newTestWorkflow(t *testing.T, cfg Configuration, c Components) *Workflow {
	t.Helper()
	w, err := NewWorkflow(cfg, c, nil)
	require.NoError(t, err)
	return w
}

func TestStreamSingleQuerySufficient(t *testing.T) {
	researcher := &scriptedResearcher{}
	answerer := &scriptedAnswerer{}
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"go generics"}, Rationale: "one aspect"}},
		Researcher: researcher,
		Reflector:  &scriptedReflector{verdicts: []Reflection{{IsSufficient: true}}},
		Answerer:   answerer,
	})
	sess := newTestSession("What are Go generics?", 2, 3)
	token := citation.ScopeFor(sess.ThreadID) + "/0"
	answerer.text = "Generics arrived in Go 1.18 [Source 0](" + token + ")."

	log := &eventLog{}
	answer, err := w.Stream(context.Background(), sess, log.emit)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, researcher.ordinals())
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "https://example.com/0", answer.Sources[0].URL)
	assert.Equal(t, 0, answer.Sources[0].QueryOrdinal)
	assert.Contains(t, answer.Text, token, "answer text keeps short tokens")
	assert.Contains(t, answer.Present().Text, "[[Source 0]](https://example.com/0)")

	assert.Equal(t, []string{NodeGenerateQuery, NodeWebResearch, NodeReflection, NodeFinalizeAnswer}, log.nodes())

	require.Len(t, sess.Messages, 2)
	reply := sess.Messages[1]
	assert.Equal(t, session.RoleAssistant, reply.Role)
	assert.Equal(t, "Generics arrived in Go 1.18 [[Source 0]](https://example.com/0).", reply.Content)
	assert.Len(t, reply.Sources, 1)
	assert.Equal(t, 1, sess.ResearchLoopCount)
	assert.Len(t, sess.Citations, 1)
}

func TestStreamFollowUpOrdinalsContinue(t *testing.T) {
	researcher := &scriptedResearcher{}
	reflector := &scriptedReflector{verdicts: []Reflection{
		{IsSufficient: false, KnowledgeGap: "numbers", FollowUpQueries: []string{"f1", "f2"}},
		{IsSufficient: true},
	}}
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"q1", "q2", "q3"}}},
		Researcher: researcher,
		Reflector:  reflector,
		Answerer:   &scriptedAnswerer{text: "done"},
	})
	sess := newTestSession("topic", 2, 3)

	answer, err := w.Invoke(context.Background(), sess)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, researcher.ordinals())
	assert.Equal(t, 2, reflector.calls)
	assert.Equal(t, 2, sess.ResearchLoopCount)
	assert.Len(t, answer.Sources, 5)
	assert.Equal(t, []string{"q1", "q2", "q3", "f1", "f2"}, sess.SearchQueries, "waves commit in ordinal order")
	// the second reflection sees every summary so far
	assert.Len(t, reflector.summaries[1], 5)
}

func TestStreamWaveCommitsInOrdinalOrder(t *testing.T) {
	var (
		later    sync.WaitGroup
		mu       sync.Mutex
		finished []int
	)
	later.Add(2)
	researcher := &scriptedResearcher{fn: func(ctx context.Context, resolver *citation.Resolver, query string, ordinal int) (ResearchResult, error) {
		switch ordinal {
		case 0:
			// ordinal 0 finishes only after 1 and 2 are done
			waited := make(chan struct{})
			go func() { later.Wait(); close(waited) }()
			select {
			case <-waited:
			case <-time.After(5 * time.Second):
				return ResearchResult{}, errors.New("later ordinals never finished")
			}
		case 1, 2:
			defer later.Done()
		}
		res := citedResult(resolver, query, ordinal)
		mu.Lock()
		finished = append(finished, ordinal)
		mu.Unlock()
		return res, nil
	}}
	reflector := &scriptedReflector{verdicts: []Reflection{
		{IsSufficient: false, KnowledgeGap: "numbers", FollowUpQueries: []string{"f1"}},
		{IsSufficient: true},
	}}
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"q1", "q2", "q3"}}},
		Researcher: researcher,
		Reflector:  reflector,
		Answerer:   &scriptedAnswerer{text: "done"},
	})
	sess := newTestSession("topic", 2, 3)

	_, err := w.Invoke(context.Background(), sess)
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, finished, 4)
	assert.Equal(t, 0, finished[2], "ordinal 0 completes last in the first wave")
	assert.Equal(t, 3, finished[3])
	mu.Unlock()

	assert.Equal(t, []string{"q1", "q2", "q3", "f1"}, sess.SearchQueries)
	require.Len(t, sess.WebResearchResults, 4)
	for i, q := range []string{"q1", "q2", "q3", "f1"} {
		assert.True(t, strings.HasPrefix(sess.WebResearchResults[i], "Findings for "+q+" "), sess.WebResearchResults[i])
	}

	// reflection runs once per full wave
	require.Len(t, reflector.summaries, 2)
	assert.Equal(t, sess.WebResearchResults[:3], reflector.summaries[0])
	assert.Equal(t, sess.WebResearchResults, reflector.summaries[1])
}

func TestStreamSearchFailureBecomesPlaceholder(t *testing.T) {
	researcher := &scriptedResearcher{fn: func(_ context.Context, resolver *citation.Resolver, query string, ordinal int) (ResearchResult, error) {
		if query == "broken" {
			return ResearchResult{}, errors.New("boom")
		}
		return citedResult(resolver, query, ordinal), nil
	}}
	reflector := &scriptedReflector{verdicts: []Reflection{{IsSufficient: true}}}
	answerer := &scriptedAnswerer{text: "answer"}
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"fine", "broken"}}},
		Researcher: researcher,
		Reflector:  reflector,
		Answerer:   answerer,
	})

	answer, err := w.Invoke(context.Background(), newTestSession("topic", 1, 2))
	require.NoError(t, err)

	require.Len(t, reflector.summaries, 1)
	assert.Contains(t, reflector.summaries[0], "Search failed for \"broken\": boom")
	assert.Len(t, answerer.summaries, 2)
	assert.Len(t, answer.Sources, 1)
}

func TestStreamResearcherPanicBecomesPlaceholder(t *testing.T) {
	researcher := &scriptedResearcher{fn: func(context.Context, *citation.Resolver, string, int) (ResearchResult, error) {
		panic("nil map")
	}}
	reflector := &scriptedReflector{}
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"q"}}},
		Researcher: researcher,
		Reflector:  reflector,
		Answerer:   &scriptedAnswerer{text: "answer"},
	})

	_, err := w.Invoke(context.Background(), newTestSession("topic", 1, 1))
	require.NoError(t, err)
	require.Len(t, reflector.summaries, 1)
	assert.Equal(t, []string{"Search failed for \"q\": panic: nil map"}, reflector.summaries[0])
}

func TestStreamFinalizeFailureKeepsSources(t *testing.T) {
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"a", "b"}}},
		Researcher: &scriptedResearcher{},
		Reflector:  &scriptedReflector{},
		Answerer:   &scriptedAnswerer{err: errors.New("model offline")},
	})
	sess := newTestSession("topic", 1, 2)

	log := &eventLog{}
	answer, err := w.Stream(context.Background(), sess, log.emit)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(answer.Text, "Failed to generate the final answer: "))
	assert.Contains(t, answer.Text, "model offline")
	assert.Len(t, answer.Sources, 2)

	last := log.events[len(log.events)-1]
	payload, ok := last.Payload.(AnswerEvent)
	require.True(t, ok)
	assert.True(t, payload.Fallback)
	assert.Len(t, payload.Sources, 2)
}

func TestStreamLoopCountBounded(t *testing.T) {
	tests := []struct {
		name     string
		maxLoops int
		want     int
	}{
		{name: "zero still reflects once", maxLoops: 0, want: 1},
		{name: "one", maxLoops: 1, want: 1},
		{name: "three", maxLoops: 3, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reflector := &scriptedReflector{verdicts: []Reflection{
				{IsSufficient: false, KnowledgeGap: "more", FollowUpQueries: []string{"again"}},
			}}
			w := newTestWorkflow(t, testConfiguration(), Components{
				Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"q"}}},
				Researcher: &scriptedResearcher{},
				Reflector:  reflector,
				Answerer:   &scriptedAnswerer{text: "ok"},
			})
			sess := newTestSession("topic", tt.maxLoops, 1)

			_, err := w.Invoke(context.Background(), sess)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reflector.calls)
			assert.Equal(t, tt.want, sess.ResearchLoopCount)
			assert.Equal(t, tt.want, sess.Reflections)
		})
	}
}

func TestStreamInsufficientWithoutFollowUpsFinalizes(t *testing.T) {
	researcher := &scriptedResearcher{}
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"q"}}},
		Researcher: researcher,
		Reflector:  &scriptedReflector{verdicts: []Reflection{{IsSufficient: false}}},
		Answerer:   &scriptedAnswerer{text: "ok"},
	})

	answer, err := w.Invoke(context.Background(), newTestSession("topic", 5, 1))
	require.NoError(t, err)
	assert.Equal(t, "ok", answer.Text)
	assert.Equal(t, []int{0}, researcher.ordinals())
}

func TestStreamQueryFallbackUsesTopic(t *testing.T) {
	researcher := &scriptedResearcher{}
	log := &eventLog{}
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{err: stageError(StageGenerateQuery, KindPartialData, ErrNoQueries)},
		Researcher: researcher,
		Reflector:  &scriptedReflector{},
		Answerer:   &scriptedAnswerer{text: "ok"},
	})

	_, err := w.Stream(context.Background(), newTestSession("Who won the 2022 World Cup?", 1, 3), log.emit)
	require.NoError(t, err)
	assert.Equal(t, []string{"Who won the 2022 World Cup?"}, researcher.queries())

	payload, ok := log.events[0].Payload.(QueryEvent)
	require.True(t, ok)
	assert.True(t, payload.Fallback)
}

func TestStreamReflectionFailsOpen(t *testing.T) {
	researcher := &scriptedResearcher{}
	reflector := &scriptedReflector{errs: []error{errors.New("malformed")}}
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"q"}}},
		Researcher: researcher,
		Reflector:  reflector,
		Answerer:   &scriptedAnswerer{text: "ok"},
	})

	answer, err := w.Invoke(context.Background(), newTestSession("topic", 3, 1))
	require.NoError(t, err)
	assert.Equal(t, "ok", answer.Text)
	assert.Equal(t, 1, reflector.calls)
	assert.Equal(t, []int{0}, researcher.ordinals())
}

func TestStreamPanicAppendsApology(t *testing.T) {
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"q"}}},
		Researcher: &scriptedResearcher{},
		Reflector:  &scriptedReflector{},
		Answerer:   &scriptedAnswerer{panicWith: "index out of range"},
	})
	sess := newTestSession("topic", 1, 1)

	answer, err := w.Invoke(context.Background(), sess)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index out of range")
	assert.Empty(t, answer.Text)

	require.Len(t, sess.Messages, 2)
	assert.Equal(t, session.RoleAssistant, sess.Messages[1].Role)
	assert.Equal(t, Apology, sess.Messages[1].Content)
	assert.NotContains(t, sess.Messages[1].Content, "index out of range")
}

func TestStreamFatalErrorStopsRun(t *testing.T) {
	answerer := &scriptedAnswerer{text: "never"}
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{err: stageError(StageGenerateQuery, KindFatal, errors.New("credentials revoked"))},
		Researcher: &scriptedResearcher{},
		Reflector:  &scriptedReflector{},
		Answerer:   answerer,
	})

	_, err := w.Invoke(context.Background(), newTestSession("topic", 1, 1))
	require.Error(t, err)
	assert.Equal(t, KindFatal, KindOf(err))
	assert.Empty(t, answerer.topics)
}

func TestStreamCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"q"}}},
		Researcher: &scriptedResearcher{},
		Reflector:  &scriptedReflector{},
		Answerer:   &scriptedAnswerer{text: "ok"},
	})

	_, err := w.Invoke(ctx, newTestSession("topic", 1, 1))
	require.ErrorIs(t, err, context.Canceled)
}

func TestStreamSinkErrorsDoNotAbort(t *testing.T) {
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"q1", "q2"}}},
		Researcher: &scriptedResearcher{},
		Reflector:  &scriptedReflector{},
		Answerer:   &scriptedAnswerer{text: "ok"},
	})

	calls := 0
	answer, err := w.Stream(context.Background(), newTestSession("topic", 1, 2), func(Event) error {
		calls++
		return errors.New("client went away")
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", answer.Text)
	// one per node plus one per research task
	assert.Equal(t, 5, calls)
}

func TestStreamTransitionBudget(t *testing.T) {
	cfg := testConfiguration()
	cfg.MaxTransitions = 4
	w := newTestWorkflow(t, cfg, Components{
		Queries:    &scriptedQueries{list: SearchQueryList{Query: []string{"q"}}},
		Researcher: &scriptedResearcher{},
		Reflector: &scriptedReflector{verdicts: []Reflection{
			{IsSufficient: false, FollowUpQueries: []string{"more"}},
		}},
		Answerer: &scriptedAnswerer{text: "ok"},
	})
	sess := newTestSession("topic", 10, 1)

	_, err := w.Invoke(context.Background(), sess)
	require.Error(t, err)
	assert.True(t, IsTransitionBudget(err))
	assert.True(t, strings.HasPrefix(sess.Messages[len(sess.Messages)-1].Content, "Sorry"))
}

func TestStreamRequiresQuestion(t *testing.T) {
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    &scriptedQueries{},
		Researcher: &scriptedResearcher{},
		Reflector:  &scriptedReflector{},
		Answerer:   &scriptedAnswerer{},
	})

	_, err := w.Invoke(context.Background(), session.New(1, 1))
	assert.ErrorIs(t, err, ErrNoQuestion)

	sess := newTestSession("q", 1, 1)
	sess.AddAssistantMessage("already answered", "", nil)
	_, err = w.Invoke(context.Background(), sess)
	assert.ErrorIs(t, err, ErrNoQuestion)
}

func TestStreamSecondQuestionContinuesCitations(t *testing.T) {
	queries := &scriptedQueries{list: SearchQueryList{Query: []string{"q"}}}
	researcher := &scriptedResearcher{fn: func(_ context.Context, resolver *citation.Resolver, query string, ordinal int) (ResearchResult, error) {
		src := resolver.Register("https://example.com/"+query, query, ordinal)
		return ResearchResult{Query: query, Ordinal: ordinal, Summary: query, Sources: []citation.Source{src}}, nil
	}}
	w := newTestWorkflow(t, testConfiguration(), Components{
		Queries:    queries,
		Researcher: researcher,
		Reflector:  &scriptedReflector{},
		Answerer:   &scriptedAnswerer{text: "first"},
	})
	sess := newTestSession("first question", 1, 1)
	_, err := w.Invoke(context.Background(), sess)
	require.NoError(t, err)

	queries.list = SearchQueryList{Query: []string{"other"}}
	sess.AddUserMessage("follow-up question")
	answer, err := w.Invoke(context.Background(), sess)
	require.NoError(t, err)

	require.Len(t, answer.Sources, 1)
	assert.Equal(t, 1, answer.Sources[0].Citation, "citation numbers continue across questions")
	assert.Len(t, sess.Citations, 2)
	assert.Equal(t, 2, sess.ResearchLoopCount)
	assert.Equal(t, []string{"q", "other"}, sess.SearchQueries)
	assert.Contains(t, queries.topics[1], "User: first question")
	assert.Contains(t, queries.topics[1], "User: follow-up question")
}

func TestNewWorkflowRequiresComponents(t *testing.T) {
	_, err := NewWorkflow(testConfiguration(), Components{Queries: &scriptedQueries{}}, nil)
	assert.Error(t, err)
}
