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
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/foodie-chat/internal/openai"
)

var numberedLine = regexp.MustCompile(`^\d+\.\s*`)

// Expander rewrites a user query into several phrasings so that similarity
// search covers more of the embedding space than the literal question would.
type Expander struct {
	completer Completer
	logger    *zap.Logger
	limit     int
}

// NewExpander creates a query expander producing at most limit variations.
func NewExpander(completer Completer, limit int, logger *zap.Logger) *Expander {
	if limit <= 0 {
		limit = 5
	}
	return &Expander{
		completer: completer,
		logger:    logger,
		limit:     limit,
	}
}

// Expand returns up to limit paraphrases of query. Expansion is
// best-effort: if the model call fails or returns nothing usable, the
// original query alone is returned and the error is logged, never
// propagated.
func (e *Expander) Expand(ctx context.Context, query string) []string {
	systemPrompt := "You are a helpful assistant that generates search query variations. " +
		"Given a user's question, produce alternative phrasings that would match " +
		"relevant passages in a food and restaurant discussion. Respond with a " +
		"numbered list, one variation per line, and nothing else."
	userPrompt := fmt.Sprintf("Generate %d variations of this search query:\n\n%s", e.limit, query)

	raw, err := e.completer.Complete(ctx, openai.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.7,
		MaxTokens:    300,
	})
	if err != nil {
		e.logger.Warn("Query expansion failed, using original query only",
			zap.Error(err))
		return []string{query}
	}

	var variations []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !numberedLine.MatchString(line) {
			continue
		}
		variation := strings.TrimSpace(numberedLine.ReplaceAllString(line, ""))
		if variation == "" {
			continue
		}
		variations = append(variations, variation)
		if len(variations) >= e.limit {
			break
		}
	}
	if len(variations) == 0 {
		e.logger.Warn("Query expansion returned nothing usable, using original query only",
			zap.String("response", raw))
		return []string{query}
	}

	e.logger.Debug("Expanded query",
		zap.String("query", query),
		zap.Int("variation_count", len(variations)))
	return variations
}
