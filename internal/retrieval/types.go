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

// Package retrieval implements the retrieval half of the automated reply
// pipeline: query expansion, similarity search with a relevance gate,
// LLM-backed classification and ranking, near-duplicate removal, and
// prompt-context assembly.
package retrieval

import (
	"context"
	"time"

	"github.com/your-org/foodie-chat/internal/openai"
)

// Completer issues one-shot chat completions
type Completer interface {
	Complete(ctx context.Context, req openai.CompletionRequest) (string, error)
}

// Embedder produces embedding vectors for query texts
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Analysis is the LLM's judgment of one candidate passage
type Analysis struct {
	IsQuestion            bool `json:"isQuestion"`
	HasFoodRecommendation bool `json:"hasFoodRecommendation"`
}

// Source identifies where a candidate passage came from
type Source struct {
	ConversationID string
	FileName       string
	CreatedBy      string
	CreatedAt      time.Time
}

// Candidate is a retrieved passage under consideration for the prompt
// context. It lives only for the duration of one retrieval cycle.
type Candidate struct {
	Content  string
	Source   Source
	Score    float64
	Analysis *Analysis
}

// FilePassage is a document-derived passage (chunk or summary) folded into
// the assembled context alongside conversation candidates.
type FilePassage struct {
	Content  string
	FileName string
}
