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

// Package chunker splits uploaded documents into overlapping chunks suitable
// for embedding and retrieval, preferring sentence boundaries so chunks stay
// readable on their own.
package chunker

import (
	"strings"
)

// Split breaks text into chunks of roughly chunkSize characters, with each
// chunk repeating the last overlap characters of its predecessor so that
// sentences cut at a boundary still appear whole somewhere. It tries to end
// each chunk at a sentence boundary before falling back to a hard cut.
func Split(text string, chunkSize, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			chunk := strings.TrimSpace(text[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		window := text[start:end]
		cut := len(window)
		if sentence := findSentenceBreak(window); sentence != "" {
			cut = len(sentence)
		} else if idx := strings.LastIndexAny(window, " \n\t"); idx > 0 {
			// No sentence end in the window, break at whitespace instead
			cut = idx + 1
		}

		chunk := strings.TrimSpace(window[:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := start + cut - overlap
		if next <= start {
			next = start + cut
		}
		start = next
	}

	return chunks
}

// findSentenceBreak finds the last sentence boundary in the text
func findSentenceBreak(text string) string {
	sentenceEnders := []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}

	lastIndex := -1
	for _, ender := range sentenceEnders {
		if idx := strings.LastIndex(text, ender); idx > lastIndex {
			lastIndex = idx + len(ender)
		}
	}

	if lastIndex > 0 {
		return text[:lastIndex]
	}

	return ""
}

// ParseMarkdown extracts and cleans text content from a markdown file
func ParseMarkdown(content string) string {
	// Remove excessive newlines (keep doing until no more triple newlines)
	for strings.Contains(content, "\n\n\n") {
		content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
	}

	// Remove markdown headers (###, ##, #)
	lines := strings.Split(content, "\n")
	var cleanLines []string

	for _, line := range lines {
		// Convert headers to plain text
		switch {
		case strings.HasPrefix(line, "# "):
			cleanLines = append(cleanLines, strings.TrimPrefix(line, "# "))
		case strings.HasPrefix(line, "## "):
			cleanLines = append(cleanLines, strings.TrimPrefix(line, "## "))
		case strings.HasPrefix(line, "### "):
			cleanLines = append(cleanLines, strings.TrimPrefix(line, "### "))
		default:
			cleanLines = append(cleanLines, line)
		}
	}

	return strings.Join(cleanLines, "\n")
}
