// Command research answers one question from the terminal with the research loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/agent"
	"github.com/zaynkorai/research-agent/citation"
	"github.com/zaynkorai/research-agent/config"
	"github.com/zaynkorai/research-agent/logger"
	"github.com/zaynkorai/research-agent/session"
)

func main() {
	var (
		configPath    = pflag.String("config", "", "path to a YAML config file")
		loops         = pflag.Int("loops", -1, "maximum research loops (default from config)")
		queries       = pflag.Int("queries", 0, "initial search query count (default from config)")
		modelType     = pflag.String("model-type", "", "model backend: local or hosted")
		searchType    = pflag.String("search-type", "", "search backend: keyword or grounded")
		noStream      = pflag.Bool("no-stream", false, "print only the final answer")
		showReasoning = pflag.Bool("reasoning", false, "print the model's reasoning when present")
		verbose       = pflag.BoolP("verbose", "v", false, "log at debug level")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: research [flags] \"question\"\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	question := strings.TrimSpace(strings.Join(pflag.Args(), " "))
	if question == "" {
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	if *modelType != "" {
		cfg.Model.Type = *modelType
	}
	if *searchType != "" {
		cfg.Search.Type = *searchType
	}
	if err := cfg.Validate(); err != nil {
		fatalf("%v", err)
	}

	cfg.Log.Level = "warn"
	if *verbose {
		cfg.Log.Level = "debug"
	}
	zl, err := logger.New(cfg.Log, false)
	if err != nil {
		fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	workflow, err := agent.NewFromConfig(cfg, zl)
	if err != nil {
		fatalf("Failed to build research workflow: %v", err)
	}
	if *verbose {
		workflow.Console = os.Stderr
	}

	overrides := agent.Overrides{}
	if *loops >= 0 {
		overrides.MaxResearchLoops = loops
	}
	if *queries > 0 {
		overrides.InitialSearchQueryCount = queries
	}
	conf := agent.NewConfiguration(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := conf.NewSession(overrides)
	sess.AddUserMessage(question)

	var answer agent.FinalAnswer
	if *noStream {
		answer, err = workflow.Invoke(ctx, sess)
	} else {
		answer, err = workflow.Stream(ctx, sess, printProgress)
		if err != nil && ctx.Err() == nil {
			zl.Warn("Streaming run failed, retrying without streaming", zap.Error(err))
			sess = conf.NewSession(overrides)
			sess.AddUserMessage(question)
			answer, err = workflow.Invoke(ctx, sess)
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fatalf("Interrupted")
		}
		zl.Error("Research failed", zap.Error(err))
		fatalf("%s", agent.Apology)
	}

	printAnswer(answer.Present(), sess.Stats(), *showReasoning)
}

func printProgress(evt agent.Event) error {
	switch p := evt.Payload.(type) {
	case agent.QueryEvent:
		label := "Generated search queries"
		if p.Fallback {
			label = "Query generation failed, searching the question directly"
		}
		color.Cyan("%s:", label)
		for _, q := range p.SearchQuery {
			fmt.Printf("  - %s\n", q)
		}
	case agent.ResearchResult:
		if p.Failed {
			color.Red("Search failed: %s", p.Query)
			return nil
		}
		color.Green("Searched %q: %d sources", p.Query, len(p.Sources))
	case agent.ReflectionEvent:
		if p.IsSufficient {
			color.Yellow("Reflection %d: research is sufficient", p.ResearchLoopCount)
			return nil
		}
		color.Yellow("Reflection %d: %s", p.ResearchLoopCount, p.KnowledgeGap)
		for _, q := range p.FollowUpQueries {
			fmt.Printf("  - %s\n", q)
		}
	case agent.AnswerEvent:
		color.Cyan("Writing the final answer from %d sources", len(p.Sources))
	}
	return nil
}

func printAnswer(p agent.Presentation, stats session.Stats, showReasoning bool) {
	if showReasoning && p.Reasoning != "" {
		color.New(color.Faint).Println(p.Reasoning)
		fmt.Println()
	}
	fmt.Println(p.Text)
	if len(p.References) > 0 {
		fmt.Println()
		color.New(color.Bold).Println("References")
		fmt.Print(citation.RenderReferences(p.References))
	}
	fmt.Println()
	color.New(color.Faint).Printf("%d queries, %d searches, %d documents, %d research loops\n",
		stats.Queries, stats.CompletedSearches, stats.Documents, stats.ResearchLoops)
}

func fatalf(format string, args ...any) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
