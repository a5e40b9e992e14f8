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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembler_LabelsSpeakersAndScope(t *testing.T) {
	assembler := NewAssembler("user_ai", "Piggy")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	result := assembler.Assemble([]Candidate{
		{
			Content: "where should we eat tonight?",
			Source:  Source{ConversationID: "conv-1", CreatedBy: "user-7", CreatedAt: base},
		},
		{
			Content: "the ramen place by the station is great",
			Source:  Source{ConversationID: "conv-2", CreatedBy: "user_ai", CreatedAt: base.Add(time.Minute)},
		},
	}, "conv-1", nil, nil)

	lines := strings.Split(result, "\n\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "User (current conversation): where should we eat tonight?", lines[0])
	assert.Equal(t, "Piggy (related conversation): the ramen place by the station is great", lines[1])
}

func TestAssembler_ChronologicalOrder(t *testing.T) {
	assembler := NewAssembler("user_ai", "Piggy")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	result := assembler.Assemble([]Candidate{
		{Content: "newest", Source: Source{CreatedAt: base.Add(time.Hour)}},
		{Content: "oldest", Source: Source{CreatedAt: base}},
		{Content: "middle", Source: Source{CreatedAt: base.Add(time.Minute)}},
	}, "conv-1", nil, nil)

	oldest := strings.Index(result, "oldest")
	middle := strings.Index(result, "middle")
	newest := strings.Index(result, "newest")
	assert.True(t, oldest < middle && middle < newest,
		"expected chronological order, got:\n%s", result)
}

func TestAssembler_Deterministic(t *testing.T) {
	assembler := NewAssembler("user_ai", "Piggy")
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	candidates := []Candidate{
		{Content: "ranked first", Source: Source{CreatedAt: ts}},
		{Content: "ranked second", Source: Source{CreatedAt: ts}},
	}

	first := assembler.Assemble(candidates, "c", nil, nil)
	second := assembler.Assemble(candidates, "c", nil, nil)

	assert.Equal(t, first, second)
	assert.Less(t, strings.Index(first, "ranked first"), strings.Index(first, "ranked second"),
		"equal timestamps keep ranked order")
}

func TestAssembler_IncludesFilePassages(t *testing.T) {
	assembler := NewAssembler("user_ai", "Piggy")

	result := assembler.Assemble(nil, "conv-1",
		[]FilePassage{{Content: "the tasting menu changes weekly", FileName: "menu.md"}},
		[]FilePassage{{Content: "a guide to downtown restaurants", FileName: "guide.md"}},
	)

	assert.Contains(t, result, "Relevant document excerpts:")
	assert.Contains(t, result, "[menu.md] the tasting menu changes weekly")
	assert.Contains(t, result, "Document summaries:")
	assert.Contains(t, result, "[guide.md] a guide to downtown restaurants")
}

func TestAssembler_EmptyInput(t *testing.T) {
	assembler := NewAssembler("user_ai", "Piggy")
	assert.Equal(t, "", assembler.Assemble(nil, "conv-1", nil, nil))
}
