package tasks

import (
	"context"
	"errors"
	"sync"

	"github.com/agentfleet/agentfleet/internal/a2a"
)

// ErrTaskNotFound is returned by stores for unknown task IDs.
var ErrTaskNotFound = errors.New("task not found")

// Store persists tasks. Implementations must be safe for concurrent use and
// must not retain the caller's pointer.
type Store interface {
	Save(ctx context.Context, task *a2a.Task) error
	Get(ctx context.Context, id string) (*a2a.Task, error)
}

// MemoryStore keeps tasks in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*a2a.Task)}
}

// Save inserts or replaces a task.
func (m *MemoryStore) Save(_ context.Context, task *a2a.Task) error {
	if task == nil || task.ID == "" {
		return errors.New("task id is required")
	}
	clone := Clone(task)
	m.mu.Lock()
	m.tasks[task.ID] = clone
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the stored task.
func (m *MemoryStore) Get(_ context.Context, id string) (*a2a.Task, error) {
	m.mu.RLock()
	task, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrTaskNotFound
	}
	return Clone(task), nil
}

// Len returns the number of stored tasks.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

// Clone deep-copies a task.
func Clone(task *a2a.Task) *a2a.Task {
	if task == nil {
		return nil
	}
	out := *task
	out.Status.Message = cloneMessagePtr(task.Status.Message)
	if task.Artifacts != nil {
		out.Artifacts = make([]a2a.Artifact, len(task.Artifacts))
		for i, artifact := range task.Artifacts {
			artifact.Parts = append([]a2a.Part(nil), artifact.Parts...)
			out.Artifacts[i] = artifact
		}
	}
	if task.History != nil {
		out.History = make([]a2a.Message, len(task.History))
		for i, msg := range task.History {
			msg.Parts = append([]a2a.Part(nil), msg.Parts...)
			out.History[i] = msg
		}
	}
	return &out
}

func cloneMessagePtr(msg *a2a.Message) *a2a.Message {
	if msg == nil {
		return nil
	}
	out := *msg
	out.Parts = append([]a2a.Part(nil), msg.Parts...)
	return &out
}
