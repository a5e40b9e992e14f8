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

// Package jobs provides a bounded in-process task queue for work that must
// not block a request, such as indexing an uploaded file.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/foodie-chat/internal/resilience"
)

// ErrQueueFull is returned by Enqueue when the queue has no room; callers
// decide whether to drop the work or surface the pressure.
var ErrQueueFull = errors.New("job queue is full")

// ErrQueueClosed is returned by Enqueue after Shutdown has begun.
var ErrQueueClosed = errors.New("job queue is closed")

// Task is one unit of background work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue runs tasks on a fixed pool of workers. Each task gets a bounded
// number of attempts with backoff before being abandoned with a log entry;
// background work never propagates errors to the caller that enqueued it.
type Queue struct {
	tasks       chan Task
	logger      *zap.Logger
	maxAttempts int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue creates a queue and starts its workers immediately. ctx bounds
// the lifetime of all task executions.
func NewQueue(ctx context.Context, workers, queueSize, maxAttempts int, logger *zap.Logger) *Queue {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	q := &Queue{
		tasks:       make(chan Task, queueSize),
		logger:      logger,
		maxAttempts: maxAttempts,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	return q
}

// Enqueue submits a task without blocking. It fails fast with ErrQueueFull
// under backpressure and ErrQueueClosed after shutdown.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for in-flight work to finish or
// for ctx to expire, whichever comes first.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for task := range q.tasks {
		if ctx.Err() != nil {
			q.logger.Warn("Dropping queued task, queue context canceled",
				zap.String("task", task.Name))
			continue
		}
		q.runTask(ctx, id, task)
	}
}

func (q *Queue) runTask(ctx context.Context, workerID int, task Task) {
	start := time.Now()
	err := resilience.Retry(ctx, q.logger, resilience.RetryConfig{
		MaxAttempts: q.maxAttempts,
		BaseDelay:   time.Second,
	}, task.Run)
	if err != nil {
		q.logger.Error("Background task abandoned",
			zap.String("task", task.Name),
			zap.Int("worker", workerID),
			zap.Int("max_attempts", q.maxAttempts),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	q.logger.Debug("Background task completed",
		zap.String("task", task.Name),
		zap.Int("worker", workerID),
		zap.Duration("elapsed", time.Since(start)))
}
