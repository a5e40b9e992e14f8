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

// Package audio turns bot replies into speech. Synthesized audio is cached
// in a storage bucket keyed by message id, so regenerating a reply's audio
// is a cache lookup rather than a second synthesis call.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const defaultEndpoint = "https://api.elevenlabs.io"

// Config carries the synthesis and storage settings.
type Config struct {
	APIKey          string
	VoiceID         string
	BucketName      string
	URLTTL          time.Duration
	BaseEndpoint    string
	CredentialsJSON []byte
}

// Synthesizer converts reply text to speech and serves it from a bucket.
type Synthesizer struct {
	httpClient *http.Client
	storage    *storage.Client
	bucket     *storage.BucketHandle
	logger     *zap.Logger
	apiKey     string
	voiceID    string
	endpoint   string
	urlTTL     time.Duration
}

// NewSynthesizer creates a synthesizer backed by the configured bucket.
func NewSynthesizer(ctx context.Context, cfg Config, logger *zap.Logger) (*Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("speech API key is required")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("audio bucket name is required")
	}

	var opts []option.ClientOption
	if len(cfg.CredentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	endpoint := cfg.BaseEndpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Synthesizer{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		storage:    client,
		bucket:     client.Bucket(cfg.BucketName),
		logger:     logger,
		apiKey:     cfg.APIKey,
		voiceID:    cfg.VoiceID,
		endpoint:   endpoint,
		urlTTL:     ttl,
	}, nil
}

// Close releases the underlying storage client.
func (s *Synthesizer) Close() error {
	return s.storage.Close()
}

// SynthesizeReply returns a time-limited URL for the spoken version of text.
// If audio for messageID already exists in the bucket it is reused without
// calling the speech API again.
func (s *Synthesizer) SynthesizeReply(ctx context.Context, messageID, text string) (string, error) {
	objectName := fmt.Sprintf("audio/%s.mp3", messageID)
	object := s.bucket.Object(objectName)

	if _, err := object.Attrs(ctx); err == nil {
		s.logger.Debug("Reusing cached audio",
			zap.String("message_id", messageID))
		return s.signedURL(objectName)
	} else if err != storage.ErrObjectNotExist {
		return "", fmt.Errorf("failed to check cached audio: %w", err)
	}

	speech, err := s.textToSpeech(ctx, text)
	if err != nil {
		return "", err
	}

	writer := object.NewWriter(ctx)
	writer.ContentType = "audio/mpeg"
	if _, err := writer.Write(speech); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write audio to bucket: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize audio upload: %w", err)
	}

	s.logger.Info("Synthesized reply audio",
		zap.String("message_id", messageID),
		zap.Int("bytes", len(speech)))
	return s.signedURL(objectName)
}

func (s *Synthesizer) textToSpeech(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"text":     text,
		"model_id": "eleven_monolingual_v1",
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.5,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", s.endpoint, s.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("speech API returned status %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

func (s *Synthesizer) signedURL(objectName string) (string, error) {
	url, err := s.bucket.SignedURL(objectName, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.urlTTL),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign audio URL: %w", err)
	}
	return url, nil
}
