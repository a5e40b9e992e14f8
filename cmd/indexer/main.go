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

// Package main runs the message indexer, which feeds stored chat messages
// into the vector index. It can run once or on an interval.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/foodie-chat/internal/config"
	"github.com/your-org/foodie-chat/internal/indexer"
	"github.com/your-org/foodie-chat/internal/openai"
	"github.com/your-org/foodie-chat/internal/pinecone"
	"github.com/your-org/foodie-chat/internal/store"
)

func main() {
	var (
		configPath string
		once       bool
		interval   time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "indexer",
		Short: "Index chat messages for retrieval",
		Long:  "Embeds new chat messages and upserts them into the vector index so the foodie responder can find them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, once, interval)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "./configs/config.yaml", "path to the configuration file")
	rootCmd.Flags().BoolVar(&once, "once", false, "run a single indexing pass and exit")
	rootCmd.Flags().DurationVar(&interval, "interval", time.Minute, "time between indexing passes")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, once bool, interval time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

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
	messagesIndex := pinecone.NewLazyIndex(func() (*pinecone.Index, error) {
		if cfg.Pinecone.MessagesHost == "" {
			return nil, fmt.Errorf("messages index host not configured")
		}
		return pc.Index(cfg.Pinecone.MessagesHost), nil
	})

	ix := indexer.New(chatStore, aiClient, aiClient, messagesIndex, cfg.Responder.BotUserID, logger)

	if once {
		_, err := ix.Run(ctx)
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := ix.Run(ctx); err != nil {
			logger.Error("Indexing pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
