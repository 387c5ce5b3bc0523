package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kingfisher-im/kingfisher/feishu"
	"github.com/kingfisher-im/kingfisher/internal/conf"
	"github.com/kingfisher-im/kingfisher/internal/config"
	"github.com/kingfisher-im/kingfisher/internal/responder"
	"github.com/kingfisher-im/kingfisher/internal/triggerlog"
	"github.com/kingfisher-im/kingfisher/llm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var logger *zap.Logger
	var err error
	if cfg.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	store, err := config.NewStore(cfg.ResponsesPath, logger)
	if err != nil {
		logger.Fatal("failed to load response config",
			zap.String("path", cfg.ResponsesPath), zap.Error(err))
	}

	triggers, err := triggerlog.NewStore(cfg.TriggerDBPath)
	if err != nil {
		logger.Fatal("failed to open trigger log",
			zap.String("path", cfg.TriggerDBPath), zap.Error(err))
	}
	defer triggers.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Watch(ctx); err != nil {
		logger.Fatal("failed to watch config file", zap.Error(err))
	}

	client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
	bot := responder.New(store, client, triggers, logger)

	if cfg.LLM.APIKey != "" {
		worker := llm.StartWorker(ctx, llm.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model), 16)
		bot.SetAsker(worker)
		logger.Info("llm collaborator enabled", zap.String("model", cfg.LLM.Model))
	}

	client.OnMessage(func(msg *feishu.Message) {
		if err := bot.HandleMessage(ctx, msg); err != nil {
			logger.Error("failed to handle message",
				zap.String("msg_id", msg.MsgID), zap.Error(err))
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
		client.Stop()
		triggers.Close()
		os.Exit(0)
	}()

	logger.Info("starting kingfisher",
		zap.String("config", cfg.ResponsesPath),
		zap.Int("responses", len(store.Snapshot().Responses)))

	if err := client.Start(); err != nil {
		logger.Fatal("feishu client exited", zap.Error(err))
	}
}
