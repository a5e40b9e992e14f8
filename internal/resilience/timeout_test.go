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

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeout_FastFunctionSucceeds(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, nil, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}

func TestWithTimeout_PropagatesFunctionError(t *testing.T) {
	wantErr := errors.New("boom")
	err := WithTimeout(context.Background(), time.Second, nil, func(ctx context.Context) error {
		return wantErr
	})
	if err != wantErr {
		t.Errorf("Expected %v, got %v", wantErr, err)
	}
}

func TestWithTimeout_SlowFunctionTimesOut(t *testing.T) {
	start := time.Now()
	err := WithTimeout(context.Background(), 20*time.Millisecond, nil, func(ctx context.Context) error {
		select {
		case <-time.After(10 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Timed out too slowly: %v", elapsed)
	}
}

func TestWithTimeout_ZeroTimeoutUsesDefault(t *testing.T) {
	// A non-positive timeout falls back to the default rather than
	// expiring immediately.
	err := WithTimeout(context.Background(), 0, nil, func(ctx context.Context) error {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) < time.Second {
			return errors.New("expected a generous default deadline")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}
