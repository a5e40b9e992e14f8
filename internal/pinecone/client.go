// Package pinecone wraps the Pinecone REST API. Each index is addressed by
// its own host URL; the client holds shared transport and credentials.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client wraps the Pinecone REST API
type Client struct {
	apiKey         string
	httpClient     *http.Client
	logger         *zap.Logger
	maxRetries     int
	baseRetryDelay time.Duration
}

// NewClient creates a new Pinecone client with default settings
func NewClient(apiKey string, logger *zap.Logger) *Client {
	return NewClientWithOptions(apiKey, logger, 3, time.Second, 30*time.Second)
}

// NewClientWithOptions creates a new Pinecone client with custom settings
func NewClientWithOptions(apiKey string, logger *zap.Logger, maxRetries int, baseRetryDelay, timeout time.Duration) *Client {
	return &Client{
		apiKey:         apiKey,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
		maxRetries:     maxRetries,
		baseRetryDelay: baseRetryDelay,
	}
}

// Index binds the client to one index host
type Index struct {
	client *Client
	host   string
}

// Index returns a handle for the index served at host
func (c *Client) Index(host string) *Index {
	return &Index{client: c, host: host}
}

// Vector represents a vector to upsert
type Vector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Match represents one similarity-search hit
type Match struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// QueryRequest represents a similarity query
type QueryRequest struct {
	Vector          []float32              `json:"vector"`
	TopK            int                    `json:"topK"`
	Filter          map[string]interface{} `json:"filter,omitempty"`
	IncludeMetadata bool                   `json:"includeMetadata"`
}

// QueryResponse represents the response to a similarity query
type QueryResponse struct {
	Matches []Match `json:"matches"`
}

type upsertRequest struct {
	Vectors []Vector `json:"vectors"`
}

// APIError represents an error response from Pinecone
type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("pinecone returned status %d: %s", e.StatusCode, e.Body)
}

// Query performs a similarity search against the index. Transient failures
// are retried with exponential backoff.
func (i *Index) Query(ctx context.Context, vector []float32, topK int, filter map[string]interface{}) ([]Match, error) {
	reqBody := QueryRequest{
		Vector:          vector,
		TopK:            topK,
		Filter:          filter,
		IncludeMetadata: true,
	}

	var queryResp QueryResponse
	err := i.client.retryWithBackoff(ctx, func() error {
		return i.client.post(ctx, i.host+"/query", reqBody, &queryResp)
	}, "Query")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	return queryResp.Matches, nil
}

// Upsert inserts or replaces vectors in the index. Transient failures are
// retried with exponential backoff.
func (i *Index) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	i.client.logger.Info("Upserting vectors",
		zap.String("host", i.host),
		zap.Int("vector_count", len(vectors)))

	return i.client.retryWithBackoff(ctx, func() error {
		return i.client.post(ctx, i.host+"/vectors/upsert", upsertRequest{Vectors: vectors}, nil)
	}, "Upsert")
}

// post sends a JSON request and decodes the JSON response into out (if non-nil)
func (c *Client) post(ctx context.Context, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// retryWithBackoff executes a function with exponential backoff retry logic
func (c *Client) retryWithBackoff(ctx context.Context, operation func() error, operationName string) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseRetryDelay
			c.logger.Info("Retrying operation after delay",
				zap.String("operation", operationName),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := operation(); err != nil {
			lastErr = err
			c.logger.Warn("Operation failed, will retry",
				zap.String("operation", operationName),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		if attempt > 0 {
			c.logger.Info("Operation succeeded after retry",
				zap.String("operation", operationName),
				zap.Int("attempt", attempt))
		}
		return nil
	}

	c.logger.Error("Operation failed after all retries",
		zap.String("operation", operationName),
		zap.Int("max_retries", c.maxRetries),
		zap.Error(lastErr))
	return fmt.Errorf("operation failed after %d retries: %w", c.maxRetries, lastErr)
}
