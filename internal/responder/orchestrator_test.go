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

package responder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/foodie-chat/internal/filesearch"
	"github.com/your-org/foodie-chat/internal/openai"
	"github.com/your-org/foodie-chat/internal/retrieval"
	"github.com/your-org/foodie-chat/internal/store"
)

type fakeExpander struct{}

func (fakeExpander) Expand(ctx context.Context, query string) []string {
	return []string{query}
}

type fakeRetriever struct {
	candidates []retrieval.Candidate
	err        error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query, conversationID string, variations []string) ([]retrieval.Candidate, error) {
	return f.candidates, f.err
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) AnalyzeAndRank(ctx context.Context, candidates []retrieval.Candidate) []retrieval.Candidate {
	return candidates
}

type fakeFileSearcher struct {
	result filesearch.Result
	err    error
}

func (f *fakeFileSearcher) Search(ctx context.Context, query string) (filesearch.Result, error) {
	return f.result, f.err
}

type fakeCompleter struct {
	response string
	err      error
	prompts  []openai.CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req openai.CompletionRequest) (string, error) {
	f.prompts = append(f.prompts, req)
	return f.response, f.err
}

type fakeMessageStore struct {
	created   []store.NewMessageInput
	audioURLs map[string]string
	createErr error
}

func (f *fakeMessageStore) CreateMessage(input store.NewMessageInput) (*store.Message, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, input)
	return &store.Message{
		ID:             "reply-1",
		ConversationID: input.ConversationID,
		CreatedBy:      input.CreatedBy,
		Content:        input.Content,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (f *fakeMessageStore) SetAudioURL(messageID, audioURL string) error {
	if f.audioURLs == nil {
		f.audioURLs = make(map[string]string)
	}
	f.audioURLs[messageID] = audioURL
	return nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeSynthesizer struct {
	url string
	err error
}

func (f *fakeSynthesizer) SynthesizeReply(ctx context.Context, messageID, text string) (string, error) {
	return f.url, f.err
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	completer    *fakeCompleter
	store        *fakeMessageStore
	publisher    *fakePublisher
}

func newFixture(completer *fakeCompleter, retriever *fakeRetriever, audio Synthesizer) *orchestratorFixture {
	messageStore := &fakeMessageStore{}
	publisher := &fakePublisher{}
	orchestrator := NewOrchestrator(Config{
		BotUserID:        "user_ai",
		BotDisplayName:   "Piggy",
		ChannelPrefix:    "conversation",
		MaxTokens:        500,
		Temperature:      0.7,
		OverlapThreshold: 0.7,
	}, NewLockManager(30*time.Second), fakeExpander{}, retriever, fakeAnalyzer{},
		&fakeFileSearcher{}, completer, messageStore, publisher, audio, zap.NewNop())

	return &orchestratorFixture{
		orchestrator: orchestrator,
		completer:    completer,
		store:        messageStore,
		publisher:    publisher,
	}
}

func trigger() store.Message {
	return store.Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		CreatedBy:      "user-7",
		Content:        "where should we get dinner?",
	}
}

func TestOrchestrator_PostsReply(t *testing.T) {
	completer := &fakeCompleter{response: "Try the ramen shop by the station!"}
	fx := newFixture(completer, &fakeRetriever{candidates: []retrieval.Candidate{
		{Content: "the ramen shop by the station is great",
			Source: retrieval.Source{ConversationID: "conv-1", CreatedBy: "user-2"}},
	}}, nil)

	reply, err := fx.orchestrator.Respond(context.Background(), trigger())
	require.NoError(t, err)
	require.NotNil(t, reply)

	assert.Equal(t, "Try the ramen shop by the station!", reply.Content)
	assert.Equal(t, "user_ai", reply.CreatedBy)
	assert.Equal(t, []string{"new-message"}, fx.publisher.events)

	require.Len(t, fx.completer.prompts, 1)
	assert.Contains(t, fx.completer.prompts[0].UserPrompt, "the ramen shop by the station is great")
}

func TestOrchestrator_IgnoresOwnMessages(t *testing.T) {
	fx := newFixture(&fakeCompleter{response: "hi"}, &fakeRetriever{}, nil)

	msg := trigger()
	msg.CreatedBy = "user_ai"

	reply, err := fx.orchestrator.Respond(context.Background(), msg)
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Empty(t, fx.store.created)
}

func TestOrchestrator_SkipsOnLockContention(t *testing.T) {
	fx := newFixture(&fakeCompleter{response: "hi"}, &fakeRetriever{}, nil)

	require.True(t, fx.orchestrator.locks.Acquire("conv-1"))

	reply, err := fx.orchestrator.Respond(context.Background(), trigger())
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Empty(t, fx.store.created)
}

func TestOrchestrator_ReleasesLockAfterReply(t *testing.T) {
	fx := newFixture(&fakeCompleter{response: "hi"}, &fakeRetriever{}, nil)

	_, err := fx.orchestrator.Respond(context.Background(), trigger())
	require.NoError(t, err)

	assert.Equal(t, 0, fx.orchestrator.locks.Len())
}

func TestOrchestrator_ReleasesLockOnFailure(t *testing.T) {
	fx := newFixture(&fakeCompleter{err: context.Canceled}, &fakeRetriever{}, nil)

	_, err := fx.orchestrator.Respond(context.Background(), trigger())
	require.Error(t, err)

	assert.Equal(t, 0, fx.orchestrator.locks.Len())
}

func TestOrchestrator_RetrievalFailureStillReplies(t *testing.T) {
	completer := &fakeCompleter{response: "I don't have much context, but try the food hall!"}
	fx := newFixture(completer, &fakeRetriever{err: errors.New("index down")}, nil)

	reply, err := fx.orchestrator.Respond(context.Background(), trigger())
	require.NoError(t, err)
	require.NotNil(t, reply)

	require.Len(t, fx.completer.prompts, 1)
	assert.Contains(t, fx.completer.prompts[0].UserPrompt, "No context available.")
}

func TestOrchestrator_EmptyCompletionFallsBackToApology(t *testing.T) {
	fx := newFixture(&fakeCompleter{response: "   "}, &fakeRetriever{}, nil)

	reply, err := fx.orchestrator.Respond(context.Background(), trigger())
	require.NoError(t, err)
	require.NotNil(t, reply)

	assert.Equal(t, apologyReply, reply.Content)
}

func TestOrchestrator_CompletionFailureReturnsError(t *testing.T) {
	fx := newFixture(&fakeCompleter{err: context.Canceled}, &fakeRetriever{}, nil)

	reply, err := fx.orchestrator.Respond(context.Background(), trigger())
	assert.Error(t, err)
	assert.Nil(t, reply)
	assert.Empty(t, fx.store.created, "no message persisted when generation fails")
}

func TestOrchestrator_AttachesAudio(t *testing.T) {
	fx := newFixture(&fakeCompleter{response: "Try the dumpling house!"},
		&fakeRetriever{}, &fakeSynthesizer{url: "https://bucket/audio/reply-1.mp3"})

	reply, err := fx.orchestrator.Respond(context.Background(), trigger())
	require.NoError(t, err)
	require.NotNil(t, reply)

	assert.Equal(t, "https://bucket/audio/reply-1.mp3", reply.AudioURL)
	assert.Equal(t, "https://bucket/audio/reply-1.mp3", fx.store.audioURLs["reply-1"])
	assert.Equal(t, []string{"new-message", "message-updated"}, fx.publisher.events)
}

func TestOrchestrator_AudioFailureIsNonFatal(t *testing.T) {
	fx := newFixture(&fakeCompleter{response: "Try the dumpling house!"},
		&fakeRetriever{}, &fakeSynthesizer{err: errors.New("speech API down")})

	reply, err := fx.orchestrator.Respond(context.Background(), trigger())
	require.NoError(t, err)
	require.NotNil(t, reply)

	assert.Empty(t, reply.AudioURL)
	assert.Equal(t, []string{"new-message"}, fx.publisher.events)
}

func TestOrchestrator_SkipsEmptyTrigger(t *testing.T) {
	fx := newFixture(&fakeCompleter{response: "hi"}, &fakeRetriever{}, nil)

	msg := trigger()
	msg.Content = "   "

	reply, err := fx.orchestrator.Respond(context.Background(), msg)
	require.NoError(t, err)
	assert.Nil(t, reply)
}
