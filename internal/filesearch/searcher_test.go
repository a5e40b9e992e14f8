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

package filesearch

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

	"github.com/your-org/foodie-chat/internal/pinecone"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

func indexServer(matches []pinecone.Match) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pinecone.QueryResponse{Matches: matches})
	}))
}

func lazyFor(server *httptest.Server) *pinecone.LazyIndex {
	client := pinecone.NewClientWithOptions("key", zap.NewNop(), 0, time.Millisecond, 5*time.Second)
	return pinecone.NewLazyIndex(func() (*pinecone.Index, error) {
		return client.Index(server.URL), nil
	})
}

func TestSearcher_QueriesBothIndexes(t *testing.T) {
	chunks := indexServer([]pinecone.Match{
		{ID: "c1", Score: 0.9, Metadata: map[string]string{"content": "dumplings on page 2", "fileName": "menu.md"}},
		{ID: "c2", Score: 0.8, Metadata: map[string]string{"content": "noodle section", "fileName": "menu.md"}},
	})
	defer chunks.Close()
	summaries := indexServer([]pinecone.Match{
		{ID: "s1", Score: 0.7, Metadata: map[string]string{"content": "a dim sum menu", "fileName": "guide.md"}},
	})
	defer summaries.Close()

	searcher := NewSearcher(&fakeEmbedder{}, lazyFor(chunks), lazyFor(summaries), 3, 1, zap.NewNop())
	result, err := searcher.Search(context.Background(), "dumplings?")
	require.NoError(t, err)

	assert.Len(t, result.Chunks, 2)
	assert.Len(t, result.Summaries, 1)
	assert.Equal(t, []string{"guide.md", "menu.md"}, result.FileNames)
}

func TestSearcher_EmbeddingFailureAborts(t *testing.T) {
	chunks := indexServer(nil)
	defer chunks.Close()

	searcher := NewSearcher(&fakeEmbedder{err: errors.New("embedding down")},
		lazyFor(chunks), lazyFor(chunks), 3, 1, zap.NewNop())

	_, err := searcher.Search(context.Background(), "q")
	assert.Error(t, err)
}

func TestSearcher_ToleratesUnavailableIndex(t *testing.T) {
	chunks := indexServer([]pinecone.Match{
		{ID: "c1", Score: 0.9, Metadata: map[string]string{"content": "still found", "fileName": "menu.md"}},
	})
	defer chunks.Close()

	broken := pinecone.NewLazyIndex(func() (*pinecone.Index, error) {
		return nil, errors.New("not configured")
	})

	searcher := NewSearcher(&fakeEmbedder{}, lazyFor(chunks), broken, 3, 1, zap.NewNop())
	result, err := searcher.Search(context.Background(), "q")
	require.NoError(t, err)

	assert.Len(t, result.Chunks, 1)
	assert.Empty(t, result.Summaries)
}
