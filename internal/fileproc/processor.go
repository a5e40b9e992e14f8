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

// Package fileproc indexes uploaded files: it fetches the file content,
// splits it into overlapping chunks, summarizes it, and upserts embeddings
// into the chunk and summary indexes so later messages can retrieve it.
package fileproc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/foodie-chat/internal/chunker"
	"github.com/your-org/foodie-chat/internal/openai"
	"github.com/your-org/foodie-chat/internal/pinecone"
	"github.com/your-org/foodie-chat/internal/retrieval"
	"github.com/your-org/foodie-chat/internal/store"
)

const maxFileBytes = 10 << 20 // refuse to slurp arbitrarily large uploads

// Embedder batch-embeds chunk texts.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Processor runs the indexing pipeline for one attachment at a time.
type Processor struct {
	completer  retrieval.Completer
	embedder   Embedder
	chunks     *pinecone.LazyIndex
	summaries  *pinecone.LazyIndex
	httpClient *http.Client
	logger     *zap.Logger
	chunkSize  int
	overlap    int
}

// NewProcessor creates a file processor splitting files into chunkSize
// character chunks with the given overlap.
func NewProcessor(completer retrieval.Completer, embedder Embedder, chunks, summaries *pinecone.LazyIndex, chunkSize, overlap int, logger *zap.Logger) *Processor {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 200
	}
	return &Processor{
		completer:  completer,
		embedder:   embedder,
		chunks:     chunks,
		summaries:  summaries,
		httpClient: &http.Client{},
		logger:     logger,
		chunkSize:  chunkSize,
		overlap:    overlap,
	}
}

// Process fetches, chunks, summarizes, embeds, and upserts one attachment.
// Only text-like files are indexed; anything else is skipped silently so a
// photo upload never fails the message that carried it.
func (p *Processor) Process(ctx context.Context, att store.Attachment) error {
	if !isTextFile(att) {
		p.logger.Debug("Skipping non-text attachment",
			zap.String("file_id", att.FileID),
			zap.String("file_type", att.FileType))
		return nil
	}

	text, err := p.fetchContent(ctx, att)
	if err != nil {
		return fmt.Errorf("failed to fetch file %s: %w", att.FileID, err)
	}
	if isMarkdown(att) {
		text = chunker.ParseMarkdown(text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		p.logger.Debug("Skipping empty attachment",
			zap.String("file_id", att.FileID))
		return nil
	}

	pieces := chunker.Split(text, p.chunkSize, p.overlap)
	if len(pieces) == 0 {
		return nil
	}

	summary, err := p.summarize(ctx, att.FileName, text)
	if err != nil {
		return fmt.Errorf("failed to summarize file %s: %w", att.FileID, err)
	}

	if err := p.upsertChunks(ctx, att, pieces); err != nil {
		return err
	}
	if err := p.upsertSummary(ctx, att, summary); err != nil {
		return err
	}

	p.logger.Info("Indexed file",
		zap.String("file_id", att.FileID),
		zap.String("file_name", att.FileName),
		zap.Int("chunk_count", len(pieces)))
	return nil
}

func (p *Processor) fetchContent(ctx context.Context, att store.Attachment) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.FileURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching file", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (p *Processor) summarize(ctx context.Context, fileName, text string) (string, error) {
	systemPrompt := "You summarize documents shared in a food discussion. Write a " +
		"concise summary capturing the restaurants, dishes, and recommendations the " +
		"document mentions, so the summary alone is enough to decide whether the " +
		"document is relevant to a question."
	userPrompt := fmt.Sprintf("Summarize the following document (%s):\n\n%s", fileName, text)

	return p.completer.Complete(ctx, openai.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		MaxTokens:    300,
	})
}

func (p *Processor) upsertChunks(ctx context.Context, att store.Attachment, pieces []string) error {
	index, err := p.chunks.Get()
	if err != nil {
		return err
	}

	embeddings, err := p.embedder.EmbedTexts(ctx, pieces)
	if err != nil {
		return fmt.Errorf("failed to embed chunks for file %s: %w", att.FileID, err)
	}

	vectors := make([]pinecone.Vector, len(pieces))
	for i, piece := range pieces {
		vectors[i] = pinecone.Vector{
			ID:     fmt.Sprintf("%s-chunk-%d", att.FileID, i),
			Values: embeddings[i],
			Metadata: map[string]string{
				"content":    piece,
				"fileId":     att.FileID,
				"fileName":   att.FileName,
				"chunkIndex": fmt.Sprintf("%d", i),
			},
		}
	}
	return index.Upsert(ctx, vectors)
}

func (p *Processor) upsertSummary(ctx context.Context, att store.Attachment, summary string) error {
	index, err := p.summaries.Get()
	if err != nil {
		return err
	}

	embeddings, err := p.embedder.EmbedTexts(ctx, []string{summary})
	if err != nil {
		return fmt.Errorf("failed to embed summary for file %s: %w", att.FileID, err)
	}

	return index.Upsert(ctx, []pinecone.Vector{{
		ID:     att.FileID + "-summary",
		Values: embeddings[0],
		Metadata: map[string]string{
			"content":  summary,
			"fileId":   att.FileID,
			"fileName": att.FileName,
		},
	}})
}

func isTextFile(att store.Attachment) bool {
	fileType := strings.ToLower(att.FileType)
	if strings.HasPrefix(fileType, "text/") {
		return true
	}
	return isMarkdown(att)
}

func isMarkdown(att store.Attachment) bool {
	if strings.Contains(strings.ToLower(att.FileType), "markdown") {
		return true
	}
	name := strings.ToLower(att.FileName)
	return strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".markdown")
}
