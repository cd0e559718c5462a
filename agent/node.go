package agent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zaynkorai/research-agent/citation"
	"github.com/zaynkorai/research-agent/llm"
	"github.com/zaynkorai/research-agent/metrics"
)

// Node names used as graph keys and event names.
const (
	NodeGenerateQuery  = string(StageGenerateQuery)
	NodeWebResearch    = string(StageWebResearch)
	NodeReflection     = string(StageReflection)
	NodeFinalizeAnswer = string(StageFinalize)
)

// Components are the capabilities the nodes call out to.
type Components struct {
	Queries    QueryWriter
	Researcher WebResearcher
	Reflector  ReflectionEvaluator
	Answerer   AnswerWriter
}

type Nodes struct {
	config     Configuration
	components Components
	fallback   fallbackPolicy
	emit       EmitFunc
	logger     *zap.Logger
}

func NewNodes(config Configuration, components Components, emit EmitFunc, logger *zap.Logger) *Nodes {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emit == nil {
		emit = func(Event) error { return nil }
	}
	return &Nodes{
		config:     config,
		components: components,
		fallback:   fallbackPolicy{logger: logger},
		emit:       emit,
		logger:     logger,
	}
}

func (n *Nodes) GenerateQueryNode(ctx context.Context, state *ResearchState) (*ResearchState, error) {
	state.Phase = PhaseGeneratingQuery

	count := state.InitialSearchQueryCount
	if count < 1 {
		count = n.config.NumberOfInitialQueries
	}

	fallback := false
	list, err := n.components.Queries.Generate(ctx, state.Topic, count, state.CurrentDate)
	if err != nil {
		if list, err = n.fallback.queries(ctx, state.Topic, err); err != nil {
			return state, err
		}
		fallback = true
	}

	state.Pending = state.tasksFor(list.Query)
	state.Phase = PhaseResearching
	n.logger.Info("Generated search queries", zap.Strings("queries", list.Query), zap.Bool("fallback", fallback))
	n.emit(Event{Node: NodeGenerateQuery, Payload: QueryEvent{SearchQuery: list.Query, Rationale: list.Rationale, Fallback: fallback}})
	return state, nil
}

// WebResearchNode runs the pending wave concurrently. A failed task becomes a placeholder and
// never fails the wave; results are committed in ordinal order once every task has finished.
func (n *Nodes) WebResearchNode(ctx context.Context, state *ResearchState) (*ResearchState, error) {
	state.Phase = PhaseResearching
	tasks := state.Pending
	state.Pending = nil

	results := make([]ResearchResult, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	if n.config.MaxConcurrency > 0 {
		g.SetLimit(n.config.MaxConcurrency)
	}
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = n.researchOne(gctx, state, task)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return state, err
	}

	state.commitWave(results)
	metrics.QueriesDispatched.Add(float64(len(tasks)))
	n.logger.Info("Web research wave finished",
		zap.Int("tasks", len(tasks)),
		zap.Int("number_of_ran_queries", state.NumberOfRanQueries),
		zap.Int("sources", len(state.SourcesGathered)))
	state.Phase = PhaseReflecting
	return state, nil
}

func (n *Nodes) researchOne(ctx context.Context, state *ResearchState, task Task) (result ResearchResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = n.fallback.research(task, fmt.Errorf("panic: %v", rec))
		}
		n.emit(Event{Node: NodeWebResearch, Payload: result})
	}()

	result, err := n.components.Researcher.Research(ctx, state.Resolver, task.Query, task.Ordinal)
	if err != nil {
		return n.fallback.research(task, err)
	}
	result.Query, result.Ordinal = task.Query, task.Ordinal
	return result
}

// ReflectionNode counts one research loop per pass and queues follow-ups when the loop will
// continue.
func (n *Nodes) ReflectionNode(ctx context.Context, state *ResearchState) (*ResearchState, error) {
	state.Phase = PhaseReflecting
	state.ResearchLoopCount++
	if state.Session != nil {
		state.Session.ResearchLoopCount++
		state.Session.Reflections++
	}

	fallback := false
	reflection, err := n.components.Reflector.Reflect(ctx, state.Topic, state.WebResearchResults, state.CurrentDate)
	if err != nil {
		if reflection, err = n.fallback.reflection(ctx, err); err != nil {
			return state, err
		}
		fallback = true
	}
	state.Reflection = reflection

	state.Pending = nil
	if !reflection.IsSufficient && state.ResearchLoopCount < state.MaxResearchLoops {
		state.Pending = state.tasksFor(reflection.FollowUpQueries)
	}

	n.logger.Info("Reflection finished",
		zap.Bool("is_sufficient", reflection.IsSufficient),
		zap.Int("research_loop_count", state.ResearchLoopCount),
		zap.Int("follow_ups", len(state.Pending)))
	n.emit(Event{Node: NodeReflection, Payload: ReflectionEvent{
		Reflection:         reflection,
		ResearchLoopCount:  state.ResearchLoopCount,
		NumberOfRanQueries: state.NumberOfRanQueries,
		Fallback:           fallback,
	}})
	return state, nil
}

// EvaluateResearch routes to finalize when research is sufficient, the loop budget is spent,
// or there is nothing left to search.
func (n *Nodes) EvaluateResearch(state *ResearchState) string {
	if state.Reflection.IsSufficient || state.ResearchLoopCount >= state.MaxResearchLoops || len(state.Pending) == 0 {
		return NodeFinalizeAnswer
	}
	return NodeWebResearch
}

func (n *Nodes) FinalizeAnswerNode(ctx context.Context, state *ResearchState) (*ResearchState, error) {
	state.Phase = PhaseFinalizing

	fallback := false
	raw, err := n.components.Answerer.Finalize(ctx, state.Topic, state.WebResearchResults, state.CurrentDate)
	if err != nil {
		if raw, err = n.fallback.answer(ctx, err); err != nil {
			return state, err
		}
		fallback = true
	}

	text, reasoning := llm.SplitReasoning(raw)
	state.Answer = FinalAnswer{
		Text:      text,
		Reasoning: reasoning,
		Sources:   append([]citation.Source(nil), state.SourcesGathered...),
	}

	presented := state.Answer.Present()
	if state.Session != nil {
		state.Session.AddAssistantMessage(presented.Text, presented.Reasoning, presented.References)
	}
	n.emit(Event{Node: NodeFinalizeAnswer, Payload: AnswerEvent{
		Answer:    presented.Text,
		Reasoning: presented.Reasoning,
		Sources:   state.Answer.Sources,
		Fallback:  fallback,
	}})
	return state, nil
}

// serialEmit wraps emit so concurrent research tasks deliver one event at a time. Sink errors
// and panics are logged and dropped.
func serialEmit(emit EmitFunc, logger *zap.Logger) EmitFunc {
	if emit == nil {
		return nil
	}
	var mu sync.Mutex
	return func(evt Event) (err error) {
		mu.Lock()
		defer mu.Unlock()
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Event sink panicked", zap.String("node", evt.Node), zap.Any("panic", rec))
			}
		}()
		if err := emit(evt); err != nil {
			logger.Warn("Event sink failed", zap.String("node", evt.Node), zap.Error(err))
		}
		return nil
	}
}
