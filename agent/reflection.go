package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/llm"
)

// ReflectionEvaluator judges whether the summaries answer the topic.
type ReflectionEvaluator interface {
	Reflect(ctx context.Context, topic string, summaries []string, currentDate string) (Reflection, error)
}

type Reflector struct {
	llm    llm.StructuredGenerator
	model  string
	logger *zap.Logger
}

func NewReflector(gen llm.StructuredGenerator, model string, logger *zap.Logger) *Reflector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reflector{llm: gen, model: model, logger: logger}
}

// Reflect returns a verdict whose gap and follow-ups are empty when sufficient. An insufficient
// verdict without follow-ups falls back to researching the knowledge gap itself.
func (r *Reflector) Reflect(ctx context.Context, topic string, summaries []string, currentDate string) (Reflection, error) {
	prompt := fmt.Sprintf(ReflectionInstructions, topic, currentDate, strings.Join(summaries, "\n\n---\n\n"))

	var out Reflection
	if err := r.llm.GenerateStructured(ctx, prompt, &out, llm.WithModel(r.model), llm.WithTemperature(1.0)); err != nil {
		return Reflection{}, stageError(StageReflection, KindCapability, err)
	}

	if out.IsSufficient {
		return Reflection{IsSufficient: true, FollowUpQueries: []string{}}, nil
	}
	out.KnowledgeGap = strings.TrimSpace(out.KnowledgeGap)
	out.FollowUpQueries = cleanQueries(out.FollowUpQueries)
	if len(out.FollowUpQueries) == 0 && out.KnowledgeGap != "" {
		r.logger.Debug("No follow-up queries returned, researching the knowledge gap", zap.String("gap", out.KnowledgeGap))
		out.FollowUpQueries = []string{out.KnowledgeGap}
	}
	return out, nil
}
