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

package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/foodie-chat/internal/openai"
	"github.com/your-org/foodie-chat/internal/pinecone"
)

type fakeEmbedder struct {
	failOn map[string]bool
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.failOn[text] {
		return nil, errors.New("embedding failed")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func matchServer(t *testing.T, matches []pinecone.Match) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pinecone.QueryResponse{Matches: matches})
	}))
}

func lazyIndexFor(server *httptest.Server) *pinecone.LazyIndex {
	client := pinecone.NewClientWithOptions("key", zap.NewNop(), 0, time.Millisecond, 5*time.Second)
	return pinecone.NewLazyIndex(func() (*pinecone.Index, error) {
		return client.Index(server.URL), nil
	})
}

func TestRetriever_RelevanceGate(t *testing.T) {
	server := matchServer(t, []pinecone.Match{
		{ID: "same-conv", Score: 0.9, Metadata: map[string]string{
			"content": "let's meet at noon", "conversationId": "conv-1", "created_by": "user-2",
		}},
		{ID: "bot-elsewhere", Score: 0.8, Metadata: map[string]string{
			"content": "I recommend the dumpling house", "conversationId": "conv-9", "created_by": "user_ai",
		}},
		{ID: "keyword-elsewhere", Score: 0.7, Metadata: map[string]string{
			"content": "that restaurant was packed", "conversationId": "conv-9", "created_by": "user-3",
		}},
		{ID: "irrelevant", Score: 0.95, Metadata: map[string]string{
			"content": "see you at the gym", "conversationId": "conv-9", "created_by": "user-3",
		}},
	})
	defer server.Close()

	retriever := NewRetriever(&fakeEmbedder{}, lazyIndexFor(server), 4, "user_ai", zap.NewNop())
	candidates, err := retriever.Retrieve(context.Background(), "lunch plans?", "conv-1", []string{"lunch plans?"})
	require.NoError(t, err)

	got := map[string]bool{}
	for _, c := range candidates {
		got[c.Content] = true
	}
	assert.True(t, got["let's meet at noon"], "same conversation passes the gate")
	assert.True(t, got["I recommend the dumpling house"], "bot authorship passes the gate")
	assert.True(t, got["that restaurant was packed"], "food keyword passes the gate")
	assert.False(t, got["see you at the gym"], "unrelated passage is gated out")
}

func TestRetriever_ExcludesQueryEcho(t *testing.T) {
	server := matchServer(t, []pinecone.Match{
		{ID: "echo", Score: 0.99, Metadata: map[string]string{
			"content": "where should I eat?", "conversationId": "conv-1", "created_by": "user-2",
		}},
	})
	defer server.Close()

	retriever := NewRetriever(&fakeEmbedder{}, lazyIndexFor(server), 2, "user_ai", zap.NewNop())
	candidates, err := retriever.Retrieve(context.Background(), "where should I eat?", "conv-1",
		[]string{"where should I eat?"})
	require.NoError(t, err)
	assert.Empty(t, candidates, "the question must not rank as its own answer")
}

func TestRetriever_MergesAcrossVariations(t *testing.T) {
	server := matchServer(t, []pinecone.Match{
		{ID: "m1", Score: 0.8, Metadata: map[string]string{
			"content": "the ramen shop is great", "conversationId": "conv-1", "created_by": "user-2",
		}},
	})
	defer server.Close()

	retriever := NewRetriever(&fakeEmbedder{}, lazyIndexFor(server), 2, "user_ai", zap.NewNop())
	candidates, err := retriever.Retrieve(context.Background(), "ramen?", "conv-1",
		[]string{"ramen?", "best ramen", "noodle spots"})
	require.NoError(t, err)

	assert.Len(t, candidates, 1, "the same match from several variations appears once")
}

func TestRetriever_ToleratesFailedVariation(t *testing.T) {
	server := matchServer(t, []pinecone.Match{
		{ID: "m1", Score: 0.8, Metadata: map[string]string{
			"content": "try the food hall", "conversationId": "conv-1", "created_by": "user-2",
		}},
	})
	defer server.Close()

	embedder := &fakeEmbedder{failOn: map[string]bool{"broken variation": true}}
	retriever := NewRetriever(embedder, lazyIndexFor(server), 2, "user_ai", zap.NewNop())

	candidates, err := retriever.Retrieve(context.Background(), "where to eat?", "conv-1",
		[]string{"where to eat?", "broken variation"})
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

// flakyEmbedder fails each query with a transient error a fixed number of
// times before succeeding.
type flakyEmbedder struct {
	remaining int
	calls     int
}

func (f *flakyEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.remaining > 0 {
		f.remaining--
		return nil, &openai.RetryableError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func TestRetriever_RetriesTransientEmbeddingFailure(t *testing.T) {
	server := matchServer(t, []pinecone.Match{
		{ID: "m1", Score: 0.8, Metadata: map[string]string{
			"content": "the taqueria on 5th", "conversationId": "conv-1", "created_by": "user-2",
		}},
	})
	defer server.Close()

	embedder := &flakyEmbedder{remaining: 1}
	retriever := NewRetriever(embedder, lazyIndexFor(server), 2, "user_ai", zap.NewNop())

	candidates, err := retriever.Retrieve(context.Background(), "tacos?", "conv-1", []string{"tacos?"})
	require.NoError(t, err)
	assert.Len(t, candidates, 1, "a transient embedding failure must not drop the variation")
	assert.Equal(t, 2, embedder.calls)
}

func TestRetriever_ParsesTimestamps(t *testing.T) {
	server := matchServer(t, []pinecone.Match{
		{ID: "m1", Score: 0.8, Metadata: map[string]string{
			"content":        "dinner was good",
			"conversationId": "conv-1",
			"created_by":     "user-2",
			"created_at":     "2026-03-01T12:30:00Z",
		}},
	})
	defer server.Close()

	retriever := NewRetriever(&fakeEmbedder{}, lazyIndexFor(server), 2, "user_ai", zap.NewNop())
	candidates, err := retriever.Retrieve(context.Background(), "dinner?", "conv-1", []string{"dinner?"})
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	expected := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	assert.True(t, candidates[0].Source.CreatedAt.Equal(expected))
}

func TestRetriever_IndexUnavailable(t *testing.T) {
	lazy := pinecone.NewLazyIndex(func() (*pinecone.Index, error) {
		return nil, errors.New("index host not configured")
	})

	retriever := NewRetriever(&fakeEmbedder{}, lazy, 2, "user_ai", zap.NewNop())
	_, err := retriever.Retrieve(context.Background(), "q", "conv-1", []string{"q"})
	assert.Error(t, err)
}
