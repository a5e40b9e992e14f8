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

import "strings"

// Dedupe removes near-duplicate candidates, preserving order so that the
// first (highest-ranked) occurrence of each passage wins. A candidate is
// dropped when an earlier-kept one is an exact normalized match, when either
// text contains the other, or when their token overlap exceeds threshold.
func Dedupe(candidates []Candidate, threshold float64) []Candidate {
	if threshold <= 0 {
		threshold = 0.7
	}

	kept := make([]Candidate, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))

	for _, candidate := range candidates {
		normalized := normalize(candidate.Content)
		if normalized == "" {
			continue
		}
		if _, exact := seen[normalized]; exact {
			continue
		}

		duplicate := false
		for _, previous := range kept {
			prevNorm := normalize(previous.Content)
			if strings.Contains(prevNorm, normalized) || strings.Contains(normalized, prevNorm) {
				duplicate = true
				break
			}
			if tokenOverlap(prevNorm, normalized) > threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		seen[normalized] = struct{}{}
		kept = append(kept, candidate)
	}
	return kept
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// tokenOverlap measures the shared-word ratio of two texts as the size of
// the token intersection over the size of the larger token set.
func tokenOverlap(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	intersection := 0
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			intersection++
		}
	}

	larger := len(tokensA)
	if len(tokensB) > larger {
		larger = len(tokensB)
	}
	return float64(intersection) / float64(larger)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(text) {
		set[token] = struct{}{}
	}
	return set
}
