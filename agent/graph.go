package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/metrics"
	"github.com/zaynkorai/research-agent/tracing"
)

const GraphEnd = "__END__"

type GraphNodeFunc[S any] func(ctx context.Context, state S) (S, error)

// RouterFunc picks the key of the next node from the state left by a node.
type RouterFunc[S any] func(state S) string

type EdgeConfig[S any] struct {
	IsConditional  bool
	ToNode         string
	RouterFunc     RouterFunc[S]
	ConditionalMap map[string]string
}

// Graph is a small state machine: nodes transform the state, edges pick the next node.
type Graph[S any] struct {
	nodes      map[string]GraphNodeFunc[S]
	edges      map[string]EdgeConfig[S]
	entryPoint string
	logger     *zap.Logger
	// Console, when set, receives coloured transition lines.
	Console io.Writer
}

func NewGraph[S any](logger *zap.Logger) *Graph[S] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph[S]{
		nodes:  make(map[string]GraphNodeFunc[S]),
		edges:  make(map[string]EdgeConfig[S]),
		logger: logger,
	}
}

func (g *Graph[S]) AddNode(name string, nodeFunc GraphNodeFunc[S]) {
	g.nodes[name] = nodeFunc
}

func (g *Graph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

func (g *Graph[S]) SetFinishPoint(name string) {
	g.AddEdge(name, GraphEnd)
}

func (g *Graph[S]) AddEdge(fromNode, toNode string) {
	g.edges[fromNode] = EdgeConfig[S]{
		IsConditional: false,
		ToNode:        toNode,
	}
}

func (g *Graph[S]) AddConditionalEdges(fromNode string, routerFunc RouterFunc[S], conditionalMap map[string]string) {
	g.edges[fromNode] = EdgeConfig[S]{
		IsConditional:  true,
		RouterFunc:     routerFunc,
		ConditionalMap: conditionalMap,
	}
}

// Compile checks that the entry point and every edge target exist.
func (g *Graph[S]) Compile() (*Graph[S], error) {
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("entry point node '%s' not found", g.entryPoint)
	}
	known := func(name string) bool {
		_, ok := g.nodes[name]
		return ok || name == GraphEnd
	}
	for from, edge := range g.edges {
		if !known(from) {
			return nil, fmt.Errorf("edge from unknown node '%s'", from)
		}
		if !edge.IsConditional {
			if !known(edge.ToNode) {
				return nil, fmt.Errorf("edge '%s' -> '%s' targets an unknown node", from, edge.ToNode)
			}
			continue
		}
		if edge.RouterFunc == nil {
			return nil, fmt.Errorf("conditional edge from '%s' has no router", from)
		}
		for decision, to := range edge.ConditionalMap {
			if !known(to) {
				return nil, fmt.Errorf("conditional edge from '%s' maps '%s' to unknown node '%s'", from, decision, to)
			}
		}
	}
	return g, nil
}

// Execute runs nodes from the entry point until END. Each node execution is one transition;
// running out of maxTransitions before END returns ErrTransitionBudget.
func (g *Graph[S]) Execute(ctx context.Context, initialState S, maxTransitions int) (S, error) {
	currentState := initialState
	currentNodeName := g.entryPoint

	for i := 0; i < maxTransitions; i++ {
		if err := ctx.Err(); err != nil {
			return currentState, err
		}

		nodeFunc, ok := g.nodes[currentNodeName]
		if !ok {
			return currentState, fmt.Errorf("node '%s' not found in graph definition", currentNodeName)
		}

		g.logger.Debug("Executing node", zap.String("node", currentNodeName))
		updatedState, err := g.runNode(ctx, currentNodeName, nodeFunc, currentState)
		if err != nil {
			return currentState, fmt.Errorf("error executing node '%s': %w", currentNodeName, err)
		}
		currentState = updatedState
		g.printf("%s\n", color.CyanString("Finished running: %s", currentNodeName))

		edgeConfig, edgeExists := g.edges[currentNodeName]
		if !edgeExists {
			g.logger.Debug("Node has no outgoing edges, ending", zap.String("node", currentNodeName))
			return currentState, nil
		}

		nextNode := edgeConfig.ToNode
		if edgeConfig.IsConditional {
			decision := edgeConfig.RouterFunc(currentState)
			nextNode, ok = edgeConfig.ConditionalMap[decision]
			if !ok {
				return currentState, fmt.Errorf("conditional edge from '%s' has no mapping for decision '%s'", currentNodeName, decision)
			}
		}

		g.logger.Info("Graph transition", zap.String("from", currentNodeName), zap.String("to", nextNode))
		if nextNode == GraphEnd {
			return currentState, nil
		}
		g.printf("Transitioning to node: %s\n", nextNode)
		currentNodeName = nextNode
	}

	g.logger.Error("Graph exceeded its transition budget",
		zap.Int("max_transitions", maxTransitions),
		zap.String("node", currentNodeName))
	return currentState, fmt.Errorf("%w after %d transitions (next node '%s')", ErrTransitionBudget, maxTransitions, currentNodeName)
}

func (g *Graph[S]) runNode(ctx context.Context, name string, fn GraphNodeFunc[S], state S) (S, error) {
	ctx, span := tracing.StartSpan(ctx, "node."+name, attribute.String("node", name))
	defer span.End()

	start := time.Now()
	out, err := fn(ctx, state)
	metrics.NodeDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	return out, nil
}

func (g *Graph[S]) printf(format string, args ...any) {
	if g.Console == nil {
		return
	}
	fmt.Fprintf(g.Console, format, args...)
}

// IsTransitionBudget reports whether err came from an exhausted transition budget.
func IsTransitionBudget(err error) bool {
	return errors.Is(err, ErrTransitionBudget)
}
