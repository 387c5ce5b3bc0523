// kingfisher-mcp is a stdio MCP server exposing operator tools for the bot:
// listing responses, dry-running messages, reloading and saving the config,
// and reading the trigger log. Point an MCP client at this binary with the
// same environment the bot runs with.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kingfisher-im/kingfisher/feishu"
	"github.com/kingfisher-im/kingfisher/internal/conf"
	"github.com/kingfisher-im/kingfisher/internal/config"
	"github.com/kingfisher-im/kingfisher/internal/triggerlog"
	"github.com/kingfisher-im/kingfisher/llm"
	"github.com/kingfisher-im/kingfisher/mcpserver"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := conf.LoadFromEnv()

	// stdout belongs to the MCP transport; everything else goes to stderr.
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	store, err := config.NewStore(cfg.ResponsesPath, logger)
	if err != nil {
		logger.Fatal("failed to load response config",
			zap.String("path", cfg.ResponsesPath), zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	triggers, err := triggerlog.NewStore(cfg.TriggerDBPath)
	if err != nil {
		logger.Warn("trigger log unavailable",
			zap.String("path", cfg.TriggerDBPath), zap.Error(err))
		triggers = nil
	} else {
		defer triggers.Close()
	}

	var worker *llm.Worker
	if cfg.LLM.APIKey != "" {
		worker = llm.StartWorker(ctx, llm.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model), 4)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var sender mcpserver.TextSender
	if cfg.Feishu.AppID != "" && cfg.Feishu.AppSecret != "" {
		sender = feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
	}

	server := mcpserver.NewServer(store, triggers, worker, sender)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("mcp server exited", zap.Error(err))
	}
}
