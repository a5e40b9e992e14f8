// Copyright 2025 Foodie Chat Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main runs the chat backend: the HTTP API, the realtime publisher,
// the background file indexing workers, and the automated foodie responder.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/foodie-chat/internal/audio"
	"github.com/your-org/foodie-chat/internal/config"
	"github.com/your-org/foodie-chat/internal/fileproc"
	"github.com/your-org/foodie-chat/internal/filesearch"
	"github.com/your-org/foodie-chat/internal/jobs"
	"github.com/your-org/foodie-chat/internal/openai"
	"github.com/your-org/foodie-chat/internal/pinecone"
	"github.com/your-org/foodie-chat/internal/realtime"
	"github.com/your-org/foodie-chat/internal/responder"
	"github.com/your-org/foodie-chat/internal/retrieval"
	"github.com/your-org/foodie-chat/internal/store"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Foodie chat backend",
		Long:  "Runs the chat HTTP API with the automated foodie responder and background file indexing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "./configs/config.yaml", "path to the configuration file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, logLevel, err := buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// Log level follows config file edits without a restart.
	if err := config.WatchConfig(configPath, func(updated *config.Config) {
		if level, err := zapcore.ParseLevel(updated.Logging.Level); err == nil {
			logLevel.SetLevel(level)
			logger.Info("Log level updated", zap.String("level", updated.Logging.Level))
		}
	}); err != nil {
		logger.Warn("Config watching disabled", zap.Error(err))
	}

	masked := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded",
		zap.String("openai_key", masked.OpenAI.APIKey),
		zap.String("pinecone_key", masked.Pinecone.APIKey),
		zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chatStore, err := store.NewStore(cfg.Store.DBPath)
	if err != nil {
		logger.Fatal("Failed to open chat store", zap.Error(err))
	}
	defer chatStore.Close()

	aiClient, err := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel, cfg.OpenAI.EmbeddingModel, logger)
	if err != nil {
		logger.Fatal("Failed to create OpenAI client", zap.Error(err))
	}

	pc := pinecone.NewClientWithOptions(cfg.Pinecone.APIKey, logger, 3, time.Second,
		time.Duration(cfg.Pinecone.TimeoutSeconds)*time.Second)
	messagesIndex := lazyIndex(pc, cfg.Pinecone.MessagesHost)
	chunksIndex := lazyIndex(pc, cfg.Pinecone.ChunksHost)
	summariesIndex := lazyIndex(pc, cfg.Pinecone.SummariesHost)

	var publisher realtime.Publisher
	if cfg.Redis.Addr != "" {
		redisPublisher, err := realtime.NewRedisPublisher(cfg.Redis.Addr, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisPublisher.Close()
		publisher = redisPublisher
	} else {
		logger.Warn("Redis address not configured, realtime events disabled")
	}

	var synthesizer responder.Synthesizer
	if cfg.Audio.Enabled {
		audioSynth, err := audio.NewSynthesizer(ctx, audio.Config{
			APIKey:       cfg.Audio.APIKey,
			VoiceID:      cfg.Audio.VoiceID,
			BucketName:   cfg.Audio.BucketName,
			URLTTL:       time.Duration(cfg.Audio.URLTTLHours) * time.Hour,
			BaseEndpoint: cfg.Audio.BaseEndpoint,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create audio synthesizer", zap.Error(err))
		}
		defer audioSynth.Close()
		synthesizer = audioSynth
	}

	queue := jobs.NewQueue(ctx, cfg.Jobs.Workers, cfg.Jobs.QueueSize, cfg.Jobs.MaxAttempts, logger)
	processor := fileproc.NewProcessor(aiClient, aiClient, chunksIndex, summariesIndex, 1000, 200, logger)

	expander := retrieval.NewExpander(aiClient, cfg.Retrieval.VariationLimit, logger)
	retriever := retrieval.NewRetriever(aiClient, messagesIndex, cfg.Retrieval.PerVariationTopK,
		cfg.Responder.BotUserID, logger)
	analyzer := retrieval.NewAnalyzer(aiClient, logger)
	searcher := filesearch.NewSearcher(aiClient, chunksIndex, summariesIndex,
		cfg.Retrieval.ChunkTopK, cfg.Retrieval.SummaryTopK, logger)

	locks := responder.NewLockManager(time.Duration(cfg.Responder.LockStaleSeconds) * time.Second)
	orchestrator := responder.NewOrchestrator(responder.Config{
		BotUserID:        cfg.Responder.BotUserID,
		BotDisplayName:   cfg.Responder.BotDisplayName,
		ChannelPrefix:    cfg.Redis.ChannelPrefix,
		MaxTokens:        cfg.Responder.MaxTokens,
		Temperature:      float32(cfg.Responder.Temperature),
		OverlapThreshold: cfg.Retrieval.OverlapThreshold,
	}, locks, expander, retriever, analyzer, searcher, aiClient, chatStore, publisher, synthesizer, logger)

	server := NewServer(cfg, chatStore, orchestrator, queue, processor, publisher, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Router(),
	}

	go func() {
		logger.Info("Server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Job queue shutdown incomplete", zap.Error(err))
	}
	return nil
}

func lazyIndex(pc *pinecone.Client, host string) *pinecone.LazyIndex {
	return pinecone.NewLazyIndex(func() (*pinecone.Index, error) {
		if host == "" {
			return nil, fmt.Errorf("index host not configured")
		}
		return pc.Index(host), nil
	})
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "text" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Output != "" {
		zapCfg.OutputPaths = []string{cfg.Output}
	}
	logger, err := zapCfg.Build()
	return logger, zapCfg.Level, err
}
