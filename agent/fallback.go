package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/metrics"
)

// fallbackPolicy is the single place where a failed stage is replaced by a substitute result.
// Fatal errors and cancellation are returned unchanged so the run stops.
type fallbackPolicy struct {
	logger *zap.Logger
}

func (p fallbackPolicy) fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || KindOf(err) == KindFatal
}

func (p fallbackPolicy) record(stage Stage, err error, fields ...zap.Field) {
	kind := KindOf(err)
	metrics.Fallbacks.WithLabelValues(string(stage), kind.String()).Inc()
	p.logger.Warn("Recovered stage failure",
		append(fields,
			zap.String("stage", string(stage)),
			zap.String("kind", kind.String()),
			zap.Error(err))...)
}

// queries falls back to researching the topic verbatim.
func (p fallbackPolicy) queries(ctx context.Context, topic string, err error) (SearchQueryList, error) {
	if p.fatal(ctx, err) {
		return SearchQueryList{}, err
	}
	p.record(StageGenerateQuery, err)
	return SearchQueryList{Query: []string{topic}, Rationale: "Query generation failed; searching the question as asked."}, nil
}

// research substitutes a placeholder summary without sources. The wave continues.
func (p fallbackPolicy) research(task Task, err error) ResearchResult {
	p.record(StageWebResearch, err, zap.String("query", task.Query), zap.Int("ordinal", task.Ordinal))
	return ResearchResult{
		Query:   task.Query,
		Ordinal: task.Ordinal,
		Summary: fmt.Sprintf("Search failed for \"%s\": %v", task.Query, err),
		Failed:  true,
	}
}

// reflection fails open: the research gathered so far is treated as sufficient.
func (p fallbackPolicy) reflection(ctx context.Context, err error) (Reflection, error) {
	if p.fatal(ctx, err) {
		return Reflection{}, err
	}
	p.record(StageReflection, err)
	return Reflection{IsSufficient: true, FollowUpQueries: []string{}}, nil
}

// answer describes the failure; the caller still pairs it with the gathered sources.
func (p fallbackPolicy) answer(ctx context.Context, err error) (string, error) {
	if p.fatal(ctx, err) {
		return "", err
	}
	p.record(StageFinalize, err)
	return fmt.Sprintf("Failed to generate the final answer: %v", err), nil
}

// Apology is the assistant reply recorded when the whole run failed. The error itself only goes to the log.
const Apology = "Sorry, something went wrong while researching your question. Please try again."
