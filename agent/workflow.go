package agent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/logger"
	"github.com/zaynkorai/research-agent/metrics"
	"github.com/zaynkorai/research-agent/session"
	"github.com/zaynkorai/research-agent/tracing"
)

// Workflow answers the latest question of a session with the research graph.
type Workflow struct {
	config     Configuration
	components Components
	logger     *zap.Logger
	// Console, when set, receives coloured node transitions.
	Console io.Writer
}

func NewWorkflow(config Configuration, components Components, logger *zap.Logger) (*Workflow, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if components.Queries == nil || components.Researcher == nil || components.Reflector == nil || components.Answerer == nil {
		return nil, errors.New("workflow needs a query writer, researcher, reflector and answer writer")
	}
	w := &Workflow{config: config, components: components, logger: logger}
	if _, err := w.build(nil); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Workflow) build(emit EmitFunc) (*Graph[*ResearchState], error) {
	nodes := NewNodes(w.config, w.components, emit, w.logger)

	builder := NewGraph[*ResearchState](w.logger)
	builder.Console = w.Console

	builder.AddNode(NodeGenerateQuery, nodes.GenerateQueryNode)
	builder.AddNode(NodeWebResearch, nodes.WebResearchNode)
	builder.AddNode(NodeReflection, nodes.ReflectionNode)
	builder.AddNode(NodeFinalizeAnswer, nodes.FinalizeAnswerNode)

	builder.SetEntryPoint(NodeGenerateQuery)

	builder.AddEdge(NodeGenerateQuery, NodeWebResearch)
	builder.AddEdge(NodeWebResearch, NodeReflection)
	builder.AddConditionalEdges(
		NodeReflection,
		nodes.EvaluateResearch,
		map[string]string{
			NodeWebResearch:    NodeWebResearch,
			NodeFinalizeAnswer: NodeFinalizeAnswer,
		},
	)
	builder.SetFinishPoint(NodeFinalizeAnswer)

	return builder.Compile()
}

// Invoke runs the research loop without progress events.
func (w *Workflow) Invoke(ctx context.Context, sess *session.Session) (FinalAnswer, error) {
	return w.Stream(ctx, sess, nil)
}

// Stream runs the research loop for the session's last user message, reporting progress to
// emit. The session is updated in place: the assistant reply is appended and the counters grow.
// When the run fails an apology is appended instead and the error is returned.
func (w *Workflow) Stream(ctx context.Context, sess *session.Session, emit EmitFunc) (answer FinalAnswer, err error) {
	if sess == nil || len(sess.Messages) == 0 || sess.Messages[len(sess.Messages)-1].Role != session.RoleUser {
		return FinalAnswer{}, ErrNoQuestion
	}

	ctx, span := tracing.StartSpan(ctx, "research.run", attribute.String("thread_id", sess.ThreadID))
	defer span.End()

	state := &ResearchState{
		Session:                 sess,
		Resolver:                sess.Resolver(),
		Topic:                   GetResearchTopic(sess.Messages),
		CurrentDate:             GetCurrentDate(),
		Phase:                   PhaseGeneratingQuery,
		InitialSearchQueryCount: sess.InitialSearchQueryCount,
		MaxResearchLoops:        sess.MaxResearchLoops,
	}
	known := state.Resolver.Len()
	if state.InitialSearchQueryCount < 1 {
		state.InitialSearchQueryCount = w.config.NumberOfInitialQueries
	}

	log := w.logger.With(zap.String("thread_id", sess.ThreadID), zap.String("traceparent", tracing.W3CTraceparent(ctx)))
	metrics.ResearchRunsStarted.WithLabelValues(w.config.ModelType, w.config.SearchType).Inc()
	log.Info("Research run started",
		zap.String("topic", logger.Preview(state.Topic, 120)),
		zap.Int("max_research_loops", state.MaxResearchLoops),
		zap.Int("initial_search_query_count", state.InitialSearchQueryCount))

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("research run panicked: %v", rec)
			log.Error("Research run panicked", zap.Any("panic", rec))
		}
		if err != nil {
			sess.AddAssistantMessage(Apology, "", nil)
			metrics.ResearchRunsCompleted.WithLabelValues("failed").Inc()
			span.RecordError(err)
			answer = FinalAnswer{}
			return
		}
		metrics.ResearchRunsCompleted.WithLabelValues("succeeded").Inc()
	}()

	graph, err := w.build(serialEmit(emit, log))
	if err != nil {
		return FinalAnswer{}, err
	}
	final, err := graph.Execute(ctx, state, w.config.MaxTransitions)
	if err != nil {
		log.Error("Research run failed", zap.Error(err), zap.String("phase", string(state.Phase)))
		return FinalAnswer{}, err
	}

	final.Phase = PhaseDone
	sess.Citations = final.Resolver.Sources()
	metrics.ResearchLoops.Observe(float64(final.ResearchLoopCount))
	metrics.SourcesRegistered.Add(float64(final.Resolver.Len() - known))
	log.Info("Research run finished",
		zap.Int("research_loop_count", final.ResearchLoopCount),
		zap.Int("number_of_ran_queries", final.NumberOfRanQueries),
		zap.Int("sources", len(final.SourcesGathered)))
	return final.Answer, nil
}
