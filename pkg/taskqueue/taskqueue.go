// Copyright 2024 the taintmut authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package taskqueue defines the abstract TaskManager collaborator and
// a default FIFO implementation, applying a dedup-by-derived-id
// pattern to SearchTasks.
package taskqueue

import (
	"sync"

	"github.com/symsan-go/taintmut/pkg/task"
)

// TaskManager owns the engine's pending-task backlog. AddTask must be
// idempotent: adding a task whose dedup key has already been seen is a
// no-op, since the same branch can surface the same negated direction
// many times across fuzzing iterations.
type TaskManager interface {
	AddTask(key uint64, t *task.SearchTask) bool
	Next() (*task.SearchTask, bool)
	Len() int
}

// FIFOTaskManager is the default TaskManager: a seen-set keyed however
// the caller likes (the engine folds a BranchContext-derived key with
// each task's constraints, or keys memcmp tasks by label) guarding a
// plain FIFO queue.
type FIFOTaskManager struct {
	mu    sync.Mutex
	seen  map[uint64]struct{}
	queue []*task.SearchTask
}

// NewFIFOTaskManager returns an empty FIFOTaskManager.
func NewFIFOTaskManager() *FIFOTaskManager {
	return &FIFOTaskManager{seen: make(map[uint64]struct{})}
}

// AddTask enqueues t under key, returning false if key was already
// present (t is then dropped).
func (m *FIFOTaskManager) AddTask(key uint64, t *task.SearchTask) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[key]; ok {
		return false
	}
	m.seen[key] = struct{}{}
	m.queue = append(m.queue, t)
	return true
}

// Next pops the oldest pending task.
func (m *FIFOTaskManager) Next() (*task.SearchTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, false
	}
	t := m.queue[0]
	m.queue = m.queue[1:]
	return t, true
}

// Len reports the number of tasks currently queued.
func (m *FIFOTaskManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
