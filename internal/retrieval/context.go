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
	"fmt"
	"sort"
	"strings"
)

// Assembler turns the surviving candidates and file passages into the
// context block handed to the completion prompt.
type Assembler struct {
	botUserID      string
	botDisplayName string
}

// NewAssembler creates a context assembler. Passages written by botUserID
// are attributed to botDisplayName; everything else is attributed to "User".
func NewAssembler(botUserID, botDisplayName string) *Assembler {
	return &Assembler{botUserID: botUserID, botDisplayName: botDisplayName}
}

// Assemble formats candidates chronologically, each labeled with its speaker
// and whether it came from the current conversation, then appends any file
// chunks and summaries. Candidates with equal timestamps keep their ranked
// order, so the output is deterministic for a given input. Returns the empty
// string when there is nothing to include.
func (a *Assembler) Assemble(candidates []Candidate, conversationID string, chunks, summaries []FilePassage) string {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Source.CreatedAt.Before(ordered[j].Source.CreatedAt)
	})

	lines := make([]string, 0, len(ordered))
	for _, c := range ordered {
		speaker := "User"
		if c.Source.CreatedBy == a.botUserID {
			speaker = a.botDisplayName
		}
		scope := "related"
		if c.Source.ConversationID == conversationID {
			scope = "current"
		}
		lines = append(lines, fmt.Sprintf("%s (%s conversation): %s", speaker, scope, c.Content))
	}

	sections := make([]string, 0, 3)
	if len(lines) > 0 {
		sections = append(sections, strings.Join(lines, "\n\n"))
	}
	if block := fileSection("Relevant document excerpts:", chunks); block != "" {
		sections = append(sections, block)
	}
	if block := fileSection("Document summaries:", summaries); block != "" {
		sections = append(sections, block)
	}
	return strings.Join(sections, "\n\n")
}

func fileSection(heading string, passages []FilePassage) string {
	if len(passages) == 0 {
		return ""
	}
	lines := make([]string, 0, len(passages)+1)
	lines = append(lines, heading)
	for _, p := range passages {
		if p.FileName != "" {
			lines = append(lines, fmt.Sprintf("[%s] %s", p.FileName, p.Content))
		} else {
			lines = append(lines, p.Content)
		}
	}
	return strings.Join(lines, "\n")
}
