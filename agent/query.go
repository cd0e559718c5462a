package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/llm"
)

// QueryWriter turns a research topic into search queries.
type QueryWriter interface {
	Generate(ctx context.Context, topic string, count int, currentDate string) (SearchQueryList, error)
}

type QueryGenerator struct {
	llm    llm.StructuredGenerator
	model  string
	logger *zap.Logger
}

func NewQueryGenerator(gen llm.StructuredGenerator, model string, logger *zap.Logger) *QueryGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryGenerator{llm: gen, model: model, logger: logger}
}

// Generate asks for at most count queries. Blank and repeated queries are dropped.
func (g *QueryGenerator) Generate(ctx context.Context, topic string, count int, currentDate string) (SearchQueryList, error) {
	if count < 1 {
		count = 1
	}
	prompt := fmt.Sprintf(QueryWriterInstructions, count, currentDate, topic)

	var out SearchQueryList
	if err := g.llm.GenerateStructured(ctx, prompt, &out, llm.WithModel(g.model), llm.WithTemperature(1.0)); err != nil {
		return SearchQueryList{}, stageError(StageGenerateQuery, KindCapability, err)
	}

	out.Query = cleanQueries(out.Query)
	if len(out.Query) == 0 {
		return SearchQueryList{}, stageError(StageGenerateQuery, KindPartialData, ErrNoQueries)
	}
	if len(out.Query) > count {
		g.logger.Debug("Truncating generated queries", zap.Int("generated", len(out.Query)), zap.Int("max", count))
		out.Query = out.Query[:count]
	}
	return out, nil
}
