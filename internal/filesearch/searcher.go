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

// Package filesearch queries the document indexes (chunks and per-file
// summaries) so uploaded files can contribute to reply context.
package filesearch

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/foodie-chat/internal/pinecone"
	"github.com/your-org/foodie-chat/internal/retrieval"
)

// Result carries everything one document search produced: fine-grained
// chunks, whole-file summaries, and the set of file names they came from.
type Result struct {
	Chunks    []retrieval.FilePassage
	Summaries []retrieval.FilePassage
	FileNames []string
}

// Searcher runs one embedding against both document indexes concurrently.
type Searcher struct {
	embedder    retrieval.Embedder
	chunks      *pinecone.LazyIndex
	summaries   *pinecone.LazyIndex
	logger      *zap.Logger
	chunkTopK   int
	summaryTopK int
}

// NewSearcher creates a document searcher.
func NewSearcher(embedder retrieval.Embedder, chunks, summaries *pinecone.LazyIndex, chunkTopK, summaryTopK int, logger *zap.Logger) *Searcher {
	if chunkTopK <= 0 {
		chunkTopK = 3
	}
	if summaryTopK <= 0 {
		summaryTopK = 1
	}
	return &Searcher{
		embedder:    embedder,
		chunks:      chunks,
		summaries:   summaries,
		logger:      logger,
		chunkTopK:   chunkTopK,
		summaryTopK: summaryTopK,
	}
}

// Search embeds query once and fans out to the chunk and summary indexes.
// An index that is unreachable or whose query fails contributes nothing;
// only an embedding failure aborts the whole search.
func (s *Searcher) Search(ctx context.Context, query string) (Result, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return Result{}, err
	}

	var (
		mu     sync.Mutex
		result Result
		files  = make(map[string]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		matches := s.queryIndex(gctx, s.chunks, "chunks", vector, s.chunkTopK)
		mu.Lock()
		defer mu.Unlock()
		for _, m := range matches {
			result.Chunks = append(result.Chunks, passage(m))
			if name := m.Metadata["fileName"]; name != "" {
				files[name] = struct{}{}
			}
		}
		return nil
	})
	g.Go(func() error {
		matches := s.queryIndex(gctx, s.summaries, "summaries", vector, s.summaryTopK)
		mu.Lock()
		defer mu.Unlock()
		for _, m := range matches {
			result.Summaries = append(result.Summaries, passage(m))
			if name := m.Metadata["fileName"]; name != "" {
				files[name] = struct{}{}
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	for name := range files {
		result.FileNames = append(result.FileNames, name)
	}
	sort.Strings(result.FileNames)
	return result, nil
}

func (s *Searcher) queryIndex(ctx context.Context, lazy *pinecone.LazyIndex, name string, vector []float32, topK int) []pinecone.Match {
	index, err := lazy.Get()
	if err != nil {
		s.logger.Warn("Document index unavailable",
			zap.String("index", name),
			zap.Error(err))
		return nil
	}
	matches, err := index.Query(ctx, vector, topK, nil)
	if err != nil {
		s.logger.Warn("Document index query failed",
			zap.String("index", name),
			zap.Error(err))
		return nil
	}
	return matches
}

func passage(m pinecone.Match) retrieval.FilePassage {
	return retrieval.FilePassage{
		Content:  m.Metadata["content"],
		FileName: m.Metadata["fileName"],
	}
}
