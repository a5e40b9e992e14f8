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

// Package openai wraps the completion and embedding services consumed by the
// retrieval pipeline. The client classifies API failures into retryable and
// non-retryable errors; retry scheduling itself is owned by the caller.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	// DefaultChatModel is used when no chat model is configured
	DefaultChatModel = "gpt-3.5-turbo"
	// DefaultEmbeddingModel is used when no embedding model is configured
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	// ExpectedEmbeddingDimensions defines the expected embedding dimensions
	ExpectedEmbeddingDimensions = 1536
)

// RetryableError represents a transient API failure worth retrying
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether err is a transient API failure
func IsRetryable(err error) bool {
	_, ok := err.(*RetryableError)
	return ok
}

// Client wraps the go-openai client for completions and embeddings
type Client struct {
	client         *openai.Client
	logger         *zap.Logger
	chatModel      string
	embeddingModel string
}

// NewClient creates a new OpenAI client
func NewClient(apiKey, chatModel, embeddingModel string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	if !strings.HasPrefix(apiKey, "sk-") {
		return nil, fmt.Errorf("invalid API key format")
	}

	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	c := &Client{
		client:         openai.NewClient(apiKey),
		logger:         logger,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
	}

	c.logger.Info("OpenAI client initialized",
		zap.String("chat_model", chatModel),
		zap.String("embedding_model", embeddingModel),
	)

	return c, nil
}

// CompletionRequest carries one system/user prompt pair
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

// Complete issues a single chat completion and returns the response text
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	openaiReq := openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	c.logger.Debug("Creating chat completion",
		zap.String("model", c.chatModel),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Float64("temperature", float64(req.Temperature)),
	)

	resp, err := c.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return "", c.classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI")
	}

	c.logger.Debug("Chat completion successful",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

// EmbedTexts generates embeddings for multiple texts in one batch request
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.embeddingModel),
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, c.classifyError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected response: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, embedding := range resp.Data {
		if len(embedding.Embedding) != ExpectedEmbeddingDimensions {
			return nil, fmt.Errorf("embedding %d has %d dimensions, expected %d",
				i, len(embedding.Embedding), ExpectedEmbeddingDimensions)
		}
		embeddings[i] = embedding.Embedding
	}

	c.logger.Debug("Embedding request completed",
		zap.Int("embeddings_count", len(embeddings)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
	)

	return embeddings, nil
}

// EmbedQuery generates an embedding for a single query text
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, fmt.Errorf("query text cannot be empty")
	}

	embeddings, err := c.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned for query")
	}

	return embeddings[0], nil
}

// classifyError maps OpenAI API errors to retryable or terminal failures
func (c *Client) classifyError(err error) error {
	if apiErr, ok := err.(*openai.APIError); ok {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("invalid API key or unauthorized access: %w", err)
		case http.StatusTooManyRequests:
			return &RetryableError{
				StatusCode: apiErr.HTTPStatusCode,
				Message:    apiErr.Message,
			}
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return &RetryableError{
				StatusCode: apiErr.HTTPStatusCode,
				Message:    apiErr.Message,
			}
		default:
			return fmt.Errorf("OpenAI API error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
	}

	return fmt.Errorf("OpenAI client error: %w", err)
}
