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
	"go.uber.org/zap"

	"github.com/your-org/foodie-chat/internal/openai"
)

type fakeCompleter struct {
	response string
	err      error
	requests []openai.CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req openai.CompletionRequest) (string, error) {
	f.requests = append(f.requests, req)
	return f.response, f.err
}

func TestExpander_ParsesNumberedVariations(t *testing.T) {
	completer := &fakeCompleter{response: "1. best tacos nearby\n2. where to get tacos\n" +
		"3.taco recommendations\nsome stray prose\n4. good taco spots"}
	expander := NewExpander(completer, 5, zap.NewNop())

	variations := expander.Expand(context.Background(), "where should I get tacos?")

	assert.Equal(t, []string{
		"best tacos nearby",
		"where to get tacos",
		"taco recommendations",
		"good taco spots",
	}, variations)
}

func TestExpander_ReturnsOnlyParaphrases(t *testing.T) {
	completer := &fakeCompleter{response: "1. variation one"}
	expander := NewExpander(completer, 5, zap.NewNop())

	variations := expander.Expand(context.Background(), "original question")

	assert.Equal(t, []string{"variation one"}, variations)
}

func TestExpander_RequestsFullVariationCount(t *testing.T) {
	completer := &fakeCompleter{response: "1. a"}
	expander := NewExpander(completer, 5, zap.NewNop())

	expander.Expand(context.Background(), "q")

	assert.Contains(t, completer.requests[0].UserPrompt, "Generate 5 variations")
}

func TestExpander_LimitEnforced(t *testing.T) {
	completer := &fakeCompleter{response: "1. a\n2. b\n3. c\n4. d\n5. e\n6. f"}
	expander := NewExpander(completer, 3, zap.NewNop())

	variations := expander.Expand(context.Background(), "q")

	assert.Len(t, variations, 3)
}

func TestExpander_CompletionFailureFallsBack(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("model unavailable")}
	expander := NewExpander(completer, 5, zap.NewNop())

	variations := expander.Expand(context.Background(), "where to eat?")

	assert.Equal(t, []string{"where to eat?"}, variations)
}

func TestExpander_UnparseableResponseFallsBack(t *testing.T) {
	completer := &fakeCompleter{response: "I cannot produce variations for that."}
	expander := NewExpander(completer, 5, zap.NewNop())

	variations := expander.Expand(context.Background(), "where to eat?")

	assert.Equal(t, []string{"where to eat?"}, variations)
}

