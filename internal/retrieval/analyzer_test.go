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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAnalyzer_RanksRecommendationsFirst(t *testing.T) {
	completer := &fakeCompleter{response: `[
		{"isQuestion": true, "hasFoodRecommendation": false},
		{"isQuestion": false, "hasFoodRecommendation": true},
		{"isQuestion": false, "hasFoodRecommendation": false}
	]`}
	analyzer := NewAnalyzer(completer, zap.NewNop())

	candidates := []Candidate{
		{Content: "anyone know a good pizza place?"},
		{Content: "the pizza at Lombardi's is fantastic"},
		{Content: "I had lunch earlier"},
	}

	ranked := analyzer.AnalyzeAndRank(context.Background(), candidates)

	require.Len(t, ranked, 3)
	assert.Equal(t, "the pizza at Lombardi's is fantastic", ranked[0].Content)
	assert.Equal(t, "I had lunch earlier", ranked[1].Content)
	assert.Equal(t, "anyone know a good pizza place?", ranked[2].Content)

	require.NotNil(t, ranked[0].Analysis)
	assert.True(t, ranked[0].Analysis.HasFoodRecommendation)
	assert.False(t, ranked[0].Analysis.IsQuestion)
}

func TestAnalyzer_RecommendationPhrasedAsQuestionStillFirst(t *testing.T) {
	completer := &fakeCompleter{response: `[
		{"isQuestion": false, "hasFoodRecommendation": false},
		{"isQuestion": true, "hasFoodRecommendation": true}
	]`}
	analyzer := NewAnalyzer(completer, zap.NewNop())

	candidates := []Candidate{
		{Content: "I had lunch earlier"},
		{Content: "have you tried Ichiran? their tonkotsu is the best in town"},
	}

	ranked := analyzer.AnalyzeAndRank(context.Background(), candidates)

	require.Len(t, ranked, 2)
	assert.Equal(t, "have you tried Ichiran? their tonkotsu is the best in town", ranked[0].Content)
	assert.Equal(t, "I had lunch earlier", ranked[1].Content)
}

func TestAnalyzer_StableWithinPriority(t *testing.T) {
	completer := &fakeCompleter{response: `[
		{"isQuestion": false, "hasFoodRecommendation": true},
		{"isQuestion": false, "hasFoodRecommendation": true}
	]`}
	analyzer := NewAnalyzer(completer, zap.NewNop())

	candidates := []Candidate{
		{Content: "first recommendation"},
		{Content: "second recommendation"},
	}

	ranked := analyzer.AnalyzeAndRank(context.Background(), candidates)

	require.Len(t, ranked, 2)
	assert.Equal(t, "first recommendation", ranked[0].Content)
	assert.Equal(t, "second recommendation", ranked[1].Content)
}

func TestAnalyzer_CompletionFailureKeepsOrder(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("rate limited")}
	analyzer := NewAnalyzer(completer, zap.NewNop())

	candidates := []Candidate{
		{Content: "a"},
		{Content: "b"},
	}

	ranked := analyzer.AnalyzeAndRank(context.Background(), candidates)

	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Content)
	assert.Nil(t, ranked[0].Analysis)
}

func TestAnalyzer_CountMismatchKeepsOrder(t *testing.T) {
	completer := &fakeCompleter{response: `[{"isQuestion": false, "hasFoodRecommendation": true}]`}
	analyzer := NewAnalyzer(completer, zap.NewNop())

	candidates := []Candidate{
		{Content: "a"},
		{Content: "b"},
	}

	ranked := analyzer.AnalyzeAndRank(context.Background(), candidates)

	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Content)
	assert.Nil(t, ranked[0].Analysis)
	assert.Nil(t, ranked[1].Analysis)
}

func TestAnalyzer_StripsProseAroundJSON(t *testing.T) {
	completer := &fakeCompleter{response: "Here is the analysis:\n" +
		`[{"isQuestion": false, "hasFoodRecommendation": true}]` + "\nHope that helps!"}
	analyzer := NewAnalyzer(completer, zap.NewNop())

	ranked := analyzer.AnalyzeAndRank(context.Background(), []Candidate{{Content: "a"}})

	require.Len(t, ranked, 1)
	require.NotNil(t, ranked[0].Analysis)
	assert.True(t, ranked[0].Analysis.HasFoodRecommendation)
}

func TestAnalyzer_EmptyInput(t *testing.T) {
	completer := &fakeCompleter{}
	analyzer := NewAnalyzer(completer, zap.NewNop())

	ranked := analyzer.AnalyzeAndRank(context.Background(), nil)

	assert.Empty(t, ranked)
	assert.Empty(t, completer.requests, "no model call for empty input")
}
