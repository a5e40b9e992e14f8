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

// Package responder generates the bot's replies. It drives the retrieval
// pipeline, calls the completion model, persists and publishes the reply,
// and optionally attaches synthesized audio.
package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/foodie-chat/internal/filesearch"
	"github.com/your-org/foodie-chat/internal/openai"
	"github.com/your-org/foodie-chat/internal/realtime"
	"github.com/your-org/foodie-chat/internal/resilience"
	"github.com/your-org/foodie-chat/internal/retrieval"
	"github.com/your-org/foodie-chat/internal/store"
)

// Expander rewrites a question into search variations.
type Expander interface {
	Expand(ctx context.Context, query string) []string
}

// Retriever finds candidate passages for a set of variations.
type Retriever interface {
	Retrieve(ctx context.Context, query, conversationID string, variations []string) ([]retrieval.Candidate, error)
}

// Analyzer classifies and reorders candidates.
type Analyzer interface {
	AnalyzeAndRank(ctx context.Context, candidates []retrieval.Candidate) []retrieval.Candidate
}

// FileSearcher queries the document indexes.
type FileSearcher interface {
	Search(ctx context.Context, query string) (filesearch.Result, error)
}

// Synthesizer produces a spoken version of a reply.
type Synthesizer interface {
	SynthesizeReply(ctx context.Context, messageID, text string) (string, error)
}

// MessageStore is the slice of the relational store the responder writes to.
type MessageStore interface {
	CreateMessage(input store.NewMessageInput) (*store.Message, error)
	SetAudioURL(messageID, audioURL string) error
}

// Config carries the responder's tunables.
type Config struct {
	BotUserID        string
	BotDisplayName   string
	ChannelPrefix    string
	MaxTokens        int
	Temperature      float32
	OverlapThreshold float64
}

// audioTimeout bounds speech synthesis so a slow provider cannot eat the
// whole reply window.
const audioTimeout = 30 * time.Second

// Orchestrator runs the reply pipeline for one triggering message at a time
// per conversation, guarded by the lock manager.
type Orchestrator struct {
	cfg       Config
	locks     *LockManager
	expander  Expander
	retriever Retriever
	analyzer  Analyzer
	files     FileSearcher
	assembler *retrieval.Assembler
	completer retrieval.Completer
	store     MessageStore
	publisher realtime.Publisher
	audio     Synthesizer
	logger    *zap.Logger
}

// NewOrchestrator wires the reply pipeline. audio may be nil, in which case
// replies are text-only.
func NewOrchestrator(cfg Config, locks *LockManager, expander Expander, retriever Retriever, analyzer Analyzer, files FileSearcher, completer retrieval.Completer, messageStore MessageStore, publisher realtime.Publisher, audio Synthesizer, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		locks:     locks,
		expander:  expander,
		retriever: retriever,
		analyzer:  analyzer,
		files:     files,
		assembler: retrieval.NewAssembler(cfg.BotUserID, cfg.BotDisplayName),
		completer: completer,
		store:     messageStore,
		publisher: publisher,
		audio:     audio,
		logger:    logger,
	}
}

// Respond generates and posts the bot's reply to trigger. It returns the
// posted message, or (nil, nil) when the reply was skipped: either the
// trigger came from the bot itself, or another generation already holds the
// conversation's lock.
func (o *Orchestrator) Respond(ctx context.Context, trigger store.Message) (*store.Message, error) {
	if trigger.CreatedBy == o.cfg.BotUserID {
		return nil, nil
	}
	question := strings.TrimSpace(trigger.Content)
	if question == "" {
		return nil, nil
	}

	if !o.locks.Acquire(trigger.ConversationID) {
		o.logger.Debug("Skipping reply, conversation lock held",
			zap.String("conversation_id", trigger.ConversationID),
			zap.String("message_id", trigger.ID))
		return nil, nil
	}
	defer o.locks.Release(trigger.ConversationID)

	start := time.Now()
	contextBlock := o.buildContext(ctx, question, trigger.ConversationID)

	reply, err := o.complete(ctx, question, contextBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to generate reply for message %s: %w", trigger.ID, err)
	}
	if strings.TrimSpace(reply) == "" {
		o.logger.Warn("Model returned empty reply, using fallback",
			zap.String("message_id", trigger.ID))
		reply = apologyReply
	}

	var message *store.Message
	err = resilience.SimpleRetry(ctx, o.logger, func(ctx context.Context) error {
		var err error
		message, err = o.store.CreateMessage(store.NewMessageInput{
			ConversationID:  trigger.ConversationID,
			CreatedBy:       o.cfg.BotUserID,
			Content:         reply,
			ParentMessageID: trigger.ParentMessageID,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist reply: %w", err)
	}

	o.publish(ctx, trigger.ConversationID, "new-message", message)
	o.attachAudio(ctx, message)

	o.logger.Info("Posted reply",
		zap.String("conversation_id", trigger.ConversationID),
		zap.String("message_id", message.ID),
		zap.Duration("elapsed", time.Since(start)))
	return message, nil
}

// buildContext runs expansion, retrieval, analysis, deduplication, document
// search, and assembly. Every stage is best-effort: a failure shrinks the
// context instead of aborting the reply.
func (o *Orchestrator) buildContext(ctx context.Context, question, conversationID string) string {
	variations := o.expander.Expand(ctx, question)

	candidates, err := o.retriever.Retrieve(ctx, question, conversationID, variations)
	if err != nil {
		o.logger.Warn("Retrieval failed, continuing without conversation context",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		candidates = nil
	}

	if len(candidates) > 0 {
		candidates = o.analyzer.AnalyzeAndRank(ctx, candidates)
		candidates = retrieval.Dedupe(candidates, o.cfg.OverlapThreshold)
	}

	var docs filesearch.Result
	if o.files != nil {
		docs, err = o.files.Search(ctx, question)
		if err != nil {
			o.logger.Warn("Document search failed, continuing without file context",
				zap.Error(err))
			docs = filesearch.Result{}
		}
	}

	return o.assembler.Assemble(candidates, conversationID, docs.Chunks, docs.Summaries)
}

func (o *Orchestrator) complete(ctx context.Context, question, contextBlock string) (string, error) {
	var reply string
	err := resilience.SimpleRetry(ctx, o.logger, func(ctx context.Context) error {
		var err error
		reply, err = o.completer.Complete(ctx, openai.CompletionRequest{
			SystemPrompt: systemPrompt(o.cfg.BotDisplayName),
			UserPrompt:   userPrompt(question, contextBlock),
			Temperature:  o.cfg.Temperature,
			MaxTokens:    o.cfg.MaxTokens,
		})
		return err
	})
	return reply, err
}

// attachAudio synthesizes speech for the reply and republishes it with the
// audio URL. Audio is an enhancement: any failure leaves the text reply
// standing and is only logged.
func (o *Orchestrator) attachAudio(ctx context.Context, message *store.Message) {
	if o.audio == nil {
		return
	}

	var audioURL string
	err := resilience.WithTimeout(ctx, audioTimeout, o.logger, func(ctx context.Context) error {
		var err error
		audioURL, err = o.audio.SynthesizeReply(ctx, message.ID, message.Content)
		return err
	})
	if err != nil {
		o.logger.Warn("Audio synthesis failed, reply stays text-only",
			zap.String("message_id", message.ID),
			zap.Error(err))
		return
	}
	if err := o.store.SetAudioURL(message.ID, audioURL); err != nil {
		o.logger.Warn("Failed to store audio URL",
			zap.String("message_id", message.ID),
			zap.Error(err))
		return
	}

	message.AudioURL = audioURL
	o.publish(ctx, message.ConversationID, "message-updated", message)
}

func (o *Orchestrator) publish(ctx context.Context, conversationID, event string, message *store.Message) {
	if o.publisher == nil {
		return
	}
	channel := realtime.ConversationChannel(o.cfg.ChannelPrefix, conversationID)
	err := resilience.SimpleRetry(ctx, o.logger, func(ctx context.Context) error {
		return o.publisher.Publish(ctx, channel, event, message)
	})
	if err != nil {
		o.logger.Warn("Failed to publish realtime event",
			zap.String("channel", channel),
			zap.String("event", event),
			zap.Error(err))
	}
}
