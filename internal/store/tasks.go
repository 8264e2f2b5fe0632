package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentfleet/agentfleet/internal/a2a"
	"github.com/agentfleet/agentfleet/internal/correlation"
	"github.com/agentfleet/agentfleet/internal/tasks"
)

// TaskStore is a tasks.Store backed by the tasks table. Each agent gets its
// own view so several agents can share one database.
type TaskStore struct {
	store *Store
	agent string
	now   func() time.Time
}

var _ tasks.Store = (*TaskStore)(nil)

// Tasks returns the task store of agent.
func (s *Store) Tasks(agent string) *TaskStore {
	return &TaskStore{store: s, agent: agent, now: time.Now}
}

// Save inserts or replaces a task.
func (t *TaskStore) Save(ctx context.Context, task *a2a.Task) error {
	if t == nil || t.store == nil || t.store.DB == nil {
		return ErrNotInitialized
	}
	if task == nil || strings.TrimSpace(task.ID) == "" {
		return errors.New("task id is required")
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	now := t.now().UTC().Unix()
	_, err = t.store.DB.ExecContext(ctx, `
		INSERT INTO tasks (id, agent, context_id, state, payload, correlation_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, task.ID, t.agent, task.ContextID, string(task.Status.State), string(payload),
		correlation.FromContext(ctx), now, now)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// Get returns the task with id, or tasks.ErrTaskNotFound.
func (t *TaskStore) Get(ctx context.Context, id string) (*a2a.Task, error) {
	if t == nil || t.store == nil || t.store.DB == nil {
		return nil, ErrNotInitialized
	}

	var payload string
	row := t.store.DB.QueryRowContext(ctx,
		`SELECT payload FROM tasks WHERE id = ? AND agent = ?`, id, t.agent)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tasks.ErrTaskNotFound
		}
		return nil, fmt.Errorf("fetch task: %w", err)
	}

	var task a2a.Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &task, nil
}

// CheckHealth reports whether the agent's tasks can be read. Readiness of
// each agent server is tied to its own view of the shared database.
func (t *TaskStore) CheckHealth(ctx context.Context) error {
	if t == nil {
		return ErrNotInitialized
	}
	if err := t.store.CheckHealth(ctx); err != nil {
		return err
	}
	if _, err := t.CountByState(ctx); err != nil {
		return fmt.Errorf("tasks of %s unreadable: %w", t.agent, err)
	}
	return nil
}

// CountByState returns how many of the agent's tasks are in each state.
func (t *TaskStore) CountByState(ctx context.Context) (map[string]int, error) {
	if t == nil || t.store == nil || t.store.DB == nil {
		return nil, ErrNotInitialized
	}

	rows, err := t.store.DB.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM tasks WHERE agent = ? GROUP BY state`, t.agent)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	counts := make(map[string]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("count tasks: %w", err)
		}
		counts[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	return counts, nil
}
