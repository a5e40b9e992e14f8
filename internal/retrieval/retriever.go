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
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/foodie-chat/internal/openai"
	"github.com/your-org/foodie-chat/internal/pinecone"
	"github.com/your-org/foodie-chat/internal/resilience"
)

// relevanceKeywords gate passages from unrelated conversations: a match from
// another conversation survives only if the bot wrote it or the text touches
// on food.
var relevanceKeywords = []string{"food", "restaurant", "place", "eat"}

// Retriever runs similarity search over the message index for every query
// variation and keeps the matches that pass the relevance gate.
type Retriever struct {
	embedder  Embedder
	messages  *pinecone.LazyIndex
	logger    *zap.Logger
	topK      int
	botUserID string
}

// NewRetriever creates a retriever querying topK matches per variation.
func NewRetriever(embedder Embedder, messages *pinecone.LazyIndex, topK int, botUserID string, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = 2
	}
	return &Retriever{
		embedder:  embedder,
		messages:  messages,
		logger:    logger,
		topK:      topK,
		botUserID: botUserID,
	}
}

// Retrieve searches the message index with every variation concurrently and
// merges the results. Transient embedding failures are retried; a variation
// whose embedding or query still fails is skipped with a warning and the
// cycle proceeds on whatever the other variations found.
// Matches whose text equals the query verbatim are dropped so the question
// never ranks as its own answer.
func (r *Retriever) Retrieve(ctx context.Context, query, conversationID string, variations []string) ([]Candidate, error) {
	index, err := r.messages.Get()
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]Candidate)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, variation := range variations {
		variation := variation
		g.Go(func() error {
			var vector []float32
			err := resilience.Retry(gctx, r.logger, resilience.RetryConfig{
				RetryOnFunc: openai.IsRetryable,
			}, func(ctx context.Context) error {
				var err error
				vector, err = r.embedder.EmbedQuery(ctx, variation)
				return err
			})
			if err != nil {
				r.logger.Warn("Skipping variation, embedding failed",
					zap.String("variation", variation),
					zap.Error(err))
				return nil
			}

			matches, err := index.Query(gctx, vector, r.topK, nil)
			if err != nil {
				r.logger.Warn("Skipping variation, index query failed",
					zap.String("variation", variation),
					zap.Error(err))
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, match := range matches {
				candidate, ok := r.admit(match, query, conversationID)
				if !ok {
					continue
				}
				if existing, found := seen[match.ID]; !found || candidate.Score > existing.Score {
					seen[match.ID] = candidate
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(seen))
	for _, c := range seen {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	r.logger.Debug("Retrieved candidates",
		zap.Int("variation_count", len(variations)),
		zap.Int("candidate_count", len(candidates)))
	return candidates, nil
}

// admit applies the relevance gate to one match and converts it into a
// candidate. A passage is relevant when it belongs to the current
// conversation, was written by the bot, or mentions a food keyword.
func (r *Retriever) admit(match pinecone.Match, query, conversationID string) (Candidate, bool) {
	content := match.Metadata["content"]
	if content == "" || strings.TrimSpace(content) == strings.TrimSpace(query) {
		return Candidate{}, false
	}

	matchConversation := match.Metadata["conversationId"]
	createdBy := match.Metadata["created_by"]

	relevant := matchConversation == conversationID || createdBy == r.botUserID
	if !relevant {
		lower := strings.ToLower(content)
		for _, keyword := range relevanceKeywords {
			if strings.Contains(lower, keyword) {
				relevant = true
				break
			}
		}
	}
	if !relevant {
		return Candidate{}, false
	}

	createdAt, _ := time.Parse(time.RFC3339, match.Metadata["created_at"])
	return Candidate{
		Content: content,
		Source: Source{
			ConversationID: matchConversation,
			CreatedBy:      createdBy,
			CreatedAt:      createdAt,
		},
		Score: match.Score,
	}, true
}
