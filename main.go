package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/agent"
	"github.com/zaynkorai/research-agent/api"
	"github.com/zaynkorai/research-agent/config"
	"github.com/zaynkorai/research-agent/logger"
	"github.com/zaynkorai/research-agent/session"
	"github.com/zaynkorai/research-agent/streaming"
	"github.com/zaynkorai/research-agent/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log, cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Initialize(ctx, cfg.Tracing, zl)
	if err != nil {
		zl.Warn("Tracing disabled", zap.Error(err))
	} else {
		defer shutdownTracing(context.Background())
	}

	workflow, err := agent.NewFromConfig(cfg, zl.Named("agent"))
	if err != nil {
		zl.Fatal("Failed to build research workflow", zap.Error(err))
	}

	store, err := session.NewFromConfig(ctx, cfg.Session, zl.Named("session"))
	if err != nil {
		zl.Fatal("Failed to open session store", zap.Error(err))
	}

	s := api.NewServer(workflow, store, streaming.NewManager(streaming.DefaultCapacity), agent.NewConfiguration(cfg), zl.Named("api"))
	s.SetupFrontend(cfg.Server.FrontendDir)

	if err := s.Start(ctx, cfg.Server.Port); err != nil {
		zl.Fatal("Server failed", zap.Error(err))
	}
}
