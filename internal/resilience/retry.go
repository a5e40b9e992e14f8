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

// Package resilience provides retry and timeout primitives used on every
// externally-fallible call in the automated reply path.
package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts is the default number of attempts including the first
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the delay before the second attempt; it doubles
	// after each subsequent failure
	DefaultBaseDelay = 1 * time.Second
)

// RetryConfig holds configuration for exponential backoff retry logic
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	RetryOnFunc func(error) bool
}

// DefaultRetryConfig returns the default retry configuration: 3 attempts,
// 1s initial delay, doubling after each failure.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		RetryOnFunc: DefaultRetryOnFunc,
	}
}

// DefaultRetryOnFunc determines if an error should trigger a retry
func DefaultRetryOnFunc(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation and deadline exhaustion are never retried
	if err == context.Canceled || err == context.DeadlineExceeded {
		return false
	}

	return true
}

// RetryFunc is a function that can be retried with exponential backoff
type RetryFunc func(ctx context.Context) error

// Retry executes fn with exponential backoff. When all attempts are
// exhausted the error from the final attempt is returned as-is so callers
// can inspect it unwrapped.
func Retry(ctx context.Context, logger *zap.Logger, config RetryConfig, fn RetryFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultBaseDelay
	}
	if config.RetryOnFunc == nil {
		config.RetryOnFunc = DefaultRetryOnFunc
	}

	var lastErr error
	delay := config.BaseDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", config.MaxAttempts))
			}
			return nil
		}

		lastErr = err

		if !config.RetryOnFunc(err) {
			logger.Debug("Error is not retryable, stopping attempts",
				zap.Error(err),
				zap.Int("attempt", attempt))
			return err
		}

		if attempt == config.MaxAttempts {
			break
		}

		logger.Debug("Retrying after delay",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Int("max_attempts", config.MaxAttempts))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
	}

	logger.Error("All retry attempts exhausted",
		zap.Error(lastErr),
		zap.Int("max_attempts", config.MaxAttempts))

	return lastErr
}

// SimpleRetry is a convenience wrapper using the default configuration
func SimpleRetry(ctx context.Context, logger *zap.Logger, fn RetryFunc) error {
	return Retry(ctx, logger, DefaultRetryConfig(), fn)
}
