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
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/foodie-chat/internal/openai"
)

// Analyzer classifies retrieved passages in a single batched model call and
// reorders them so actual recommendations outrank questions.
type Analyzer struct {
	completer Completer
	logger    *zap.Logger
}

// NewAnalyzer creates a candidate analyzer.
func NewAnalyzer(completer Completer, logger *zap.Logger) *Analyzer {
	return &Analyzer{completer: completer, logger: logger}
}

// AnalyzeAndRank attaches an Analysis to each candidate and sorts the slice
// by priority: food recommendations first, then statements, then questions.
// Classification is best-effort; if the model call fails or the response
// does not line up with the input one-to-one, the candidates are returned
// in their original order with no analysis attached.
func (a *Analyzer) AnalyzeAndRank(ctx context.Context, candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	analyses, err := a.classify(ctx, candidates)
	if err != nil {
		a.logger.Warn("Candidate analysis failed, keeping retrieval order",
			zap.Int("candidate_count", len(candidates)),
			zap.Error(err))
		return candidates
	}

	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		analysis := analyses[i]
		ranked[i].Analysis = &analysis
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return priority(ranked[i]) < priority(ranked[j])
	})
	return ranked
}

func (a *Analyzer) classify(ctx context.Context, candidates []Candidate) ([]Analysis, error) {
	var sb strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c.Content)
	}

	systemPrompt := "You analyze chat messages about food. For each numbered message, " +
		"decide whether it is a question and whether it contains a concrete food or " +
		"restaurant recommendation. Respond with only a JSON array, one object per " +
		"message in the same order, each of the form " +
		`{"isQuestion": boolean, "hasFoodRecommendation": boolean}.`

	raw, err := a.completer.Complete(ctx, openai.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   sb.String(),
		Temperature:  0,
		MaxTokens:    500,
	})
	if err != nil {
		return nil, err
	}

	var analyses []Analysis
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &analyses); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	if len(analyses) != len(candidates) {
		return nil, fmt.Errorf("analysis count mismatch: got %d for %d candidates",
			len(analyses), len(candidates))
	}
	return analyses, nil
}

// extractJSONArray strips any prose the model wrapped around the array.
func extractJSONArray(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

// priority orders candidates for context assembly: 0 for anything carrying
// a concrete recommendation (even phrased as a question), 1 for other
// statements, 2 for questions and anything without an analysis.
func priority(c Candidate) int {
	if c.Analysis == nil {
		return 2
	}
	if c.Analysis.HasFoodRecommendation {
		return 0
	}
	if !c.Analysis.IsQuestion {
		return 1
	}
	return 2
}
