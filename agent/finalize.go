package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/llm"
)

// AnswerWriter composes the final answer from the run's summaries.
type AnswerWriter interface {
	Finalize(ctx context.Context, topic string, summaries []string, currentDate string) (string, error)
}

type Finalizer struct {
	llm    llm.TextGenerator
	model  string
	logger *zap.Logger
}

func NewFinalizer(gen llm.TextGenerator, model string, logger *zap.Logger) *Finalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finalizer{llm: gen, model: model, logger: logger}
}

// Finalize returns the raw model answer, reasoning blocks included.
func (f *Finalizer) Finalize(ctx context.Context, topic string, summaries []string, currentDate string) (string, error) {
	prompt := fmt.Sprintf(AnswerInstructions, topic, strings.Join(summaries, "\n---\n\n"), currentDate)

	text, err := f.llm.Generate(ctx, prompt, llm.WithModel(f.model), llm.WithTemperature(0))
	if err != nil {
		return "", stageError(StageFinalize, KindCapability, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", stageError(StageFinalize, KindPartialData, llm.ErrEmptyResponse)
	}
	f.logger.Debug("Final answer generated", zap.Int("chars", len(text)))
	return text, nil
}
