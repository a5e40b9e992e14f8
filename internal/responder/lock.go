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
	"sync"
	"time"
)

// LockManager serializes reply generation per conversation so two messages
// arriving together produce one bot reply, not two. Holders that never
// release (a crashed generation) go stale after staleAfter and are purged
// on the next acquire attempt for any conversation.
type LockManager struct {
	mu         sync.Mutex
	held       map[string]time.Time
	staleAfter time.Duration
	now        func() time.Time
}

// NewLockManager creates a lock manager whose entries expire after
// staleAfter without a release.
func NewLockManager(staleAfter time.Duration) *LockManager {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &LockManager{
		held:       make(map[string]time.Time),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Acquire attempts to take the lock for conversationID. Stale entries across
// all conversations are purged first, so a crash in one conversation cannot
// pin another forever. Returns false when a live holder already exists.
func (lm *LockManager) Acquire(conversationID string) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	// An entry is stale once it has been held for the full staleAfter
	// window, boundary included.
	cutoff := lm.now().Add(-lm.staleAfter)
	for id, acquiredAt := range lm.held {
		if !acquiredAt.After(cutoff) {
			delete(lm.held, id)
		}
	}

	if _, taken := lm.held[conversationID]; taken {
		return false
	}
	lm.held[conversationID] = lm.now()
	return true
}

// Release drops the lock for conversationID. Releasing an unheld lock is a
// no-op, so callers can defer it unconditionally.
func (lm *LockManager) Release(conversationID string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	delete(lm.held, conversationID)
}

// Len reports the number of currently held locks, stale or not.
func (lm *LockManager) Len() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.held)
}
