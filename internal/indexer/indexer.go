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

// Package indexer feeds stored chat messages into the vector index so the
// retrieval pipeline can find them later. It runs incrementally: a cursor in
// the relational store marks the newest message already indexed.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/foodie-chat/internal/fileproc"
	"github.com/your-org/foodie-chat/internal/openai"
	"github.com/your-org/foodie-chat/internal/pinecone"
	"github.com/your-org/foodie-chat/internal/retrieval"
	"github.com/your-org/foodie-chat/internal/store"
)

// messageContext is the structured reading of a food mention, stored as
// index metadata so retrieval can filter without re-analyzing.
type messageContext struct {
	Location string `json:"location"`
	Cuisine  string `json:"cuisine"`
	Type     string `json:"type"`
}

// messageAnalysis is the model's reading of one message. Only messages with
// HasFoodInfo are indexed; ExtractedInfo, when present, replaces the raw
// content as the indexed text.
type messageAnalysis struct {
	IsQuestion    bool           `json:"isQuestion"`
	HasFoodInfo   bool           `json:"hasFoodInfo"`
	ExtractedInfo string         `json:"extractedInfo"`
	Context       messageContext `json:"context"`
}

// MessageStore is the slice of the relational store the indexer needs.
type MessageStore interface {
	GetIndexCursor() (int64, error)
	SetIndexCursor(seq int64) error
	ListMessagesAfterSeq(seq int64) ([]store.Message, error)
}

// Indexer pushes new user messages into the message index.
type Indexer struct {
	store     MessageStore
	completer retrieval.Completer
	embedder  fileproc.Embedder
	messages  *pinecone.LazyIndex
	logger    *zap.Logger
	botUserID string
}

// New creates an indexer. Messages written by botUserID are skipped; the
// bot's replies are derived from context, indexing them back would let the
// bot cite itself as evidence.
func New(s MessageStore, completer retrieval.Completer, embedder fileproc.Embedder, messages *pinecone.LazyIndex, botUserID string, logger *zap.Logger) *Indexer {
	return &Indexer{
		store:     s,
		completer: completer,
		embedder:  embedder,
		messages:  messages,
		logger:    logger,
		botUserID: botUserID,
	}
}

// indexItem pairs a message with its analysis; content is the text that gets
// embedded, the extracted food info when the analysis produced one.
type indexItem struct {
	msg      store.Message
	content  string
	analysis messageAnalysis
}

// Run indexes every message newer than the stored cursor and advances the
// cursor past them. Only messages whose analysis finds food information are
// indexed; the rest still advance the cursor so they are never rescanned.
// It returns the number of messages indexed.
func (ix *Indexer) Run(ctx context.Context) (int, error) {
	cursor, err := ix.store.GetIndexCursor()
	if err != nil {
		return 0, err
	}

	pending, err := ix.store.ListMessagesAfterSeq(cursor)
	if err != nil {
		return 0, fmt.Errorf("failed to list messages after seq %d: %w", cursor, err)
	}

	var (
		indexable []indexItem
		maxSeq    = cursor
	)
	for _, msg := range pending {
		if msg.Seq > maxSeq {
			maxSeq = msg.Seq
		}
		if msg.CreatedBy == ix.botUserID || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		analysis := ix.analyze(ctx, msg.Content)
		if !analysis.HasFoodInfo {
			continue
		}
		content := analysis.ExtractedInfo
		if content == "" {
			content = msg.Content
		}
		indexable = append(indexable, indexItem{msg: msg, content: content, analysis: analysis})
	}

	if len(indexable) > 0 {
		if err := ix.indexBatch(ctx, indexable); err != nil {
			return 0, err
		}
	}

	if maxSeq > cursor {
		if err := ix.store.SetIndexCursor(maxSeq); err != nil {
			return 0, err
		}
	}

	ix.logger.Info("Indexing pass complete",
		zap.Int("scanned", len(pending)),
		zap.Int("indexed", len(indexable)),
		zap.Int64("cursor", maxSeq))
	return len(indexable), nil
}

func (ix *Indexer) indexBatch(ctx context.Context, batch []indexItem) error {
	index, err := ix.messages.Get()
	if err != nil {
		return err
	}

	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = item.content
	}
	embeddings, err := ix.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed messages: %w", err)
	}

	vectors := make([]pinecone.Vector, len(batch))
	for i, item := range batch {
		vectors[i] = pinecone.Vector{
			ID:     item.msg.ID,
			Values: embeddings[i],
			Metadata: map[string]string{
				"content":        item.content,
				"conversationId": item.msg.ConversationID,
				"created_by":     item.msg.CreatedBy,
				"created_at":     item.msg.CreatedAt.UTC().Format(time.RFC3339),
				"seq":            strconv.FormatInt(item.msg.Seq, 10),
				"isQuestion":     strconv.FormatBool(item.analysis.IsQuestion),
				"location":       item.analysis.Context.Location,
				"cuisine":        item.analysis.Context.Cuisine,
				"type":           item.analysis.Context.Type,
			},
		}
	}

	return index.Upsert(ctx, vectors)
}

// analyze classifies one message. On any failure the message is treated as
// carrying no food information, so it is skipped rather than indexed with
// garbage.
func (ix *Indexer) analyze(ctx context.Context, content string) messageAnalysis {
	systemPrompt := "You analyze a chat message from a food discussion. Decide whether it " +
		"is a question and whether it contains important food-related information " +
		"(recommendations, experiences, preferences). If it does, extract only the " +
		"important food information, preserving restaurant names, dishes, and locations. " +
		"Respond with only a JSON object of the form " +
		`{"isQuestion": boolean, "hasFoodInfo": boolean, "extractedInfo": string, ` +
		`"context": {"location": string, "cuisine": string, ` +
		`"type": "recommendation" | "experience" | "preference" | "question"}}.`

	raw, err := ix.completer.Complete(ctx, openai.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   content,
		Temperature:  0,
		MaxTokens:    200,
	})
	if err != nil {
		ix.logger.Warn("Message analysis failed, indexing with defaults",
			zap.Error(err))
		return messageAnalysis{}
	}

	var analysis messageAnalysis
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &analysis); err != nil {
		ix.logger.Warn("Message analysis unparseable, indexing with defaults",
			zap.Error(err))
		return messageAnalysis{}
	}
	return analysis
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
