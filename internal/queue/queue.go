// Package queue publishes build tasks for the execution pipeline.
package queue

import (
	"context"
	"sync"
)

// Task names.
const (
	TaskCreateJob = "create_job"
	TaskSyncBuild = "sync_build"
)

// Task is one unit of asynchronous work. ID is the consumer's dedup key;
// ParentID links a job task to its build.
type Task struct {
	Name     string
	ID       string
	ParentID string
	Payload  map[string]string
}

// Enqueuer publishes tasks. Delivery is at least once.
type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) error
}

// CreateJob returns the task that starts a job of a build.
func CreateJob(jobID, buildID string) Task {
	return Task{
		Name:     TaskCreateJob,
		ID:       jobID,
		ParentID: buildID,
		Payload:  map[string]string{"job_id": jobID},
	}
}

// SyncBuild returns the task that keeps a build's status in step with its jobs.
func SyncBuild(buildID string) Task {
	return Task{
		Name:    TaskSyncBuild,
		ID:      buildID,
		Payload: map[string]string{"build_id": buildID},
	}
}

// Memory records tasks in publish order. It backs `queue.driver: memory`
// and tests.
type Memory struct {
	mu    sync.Mutex
	tasks []Task
	// Fail, when set, is consulted before each task is recorded.
	Fail func(Task) error
}

// NewMemory returns an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{}
}

// Enqueue records task unless ctx is done or Fail rejects it.
func (m *Memory) Enqueue(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		if err := m.Fail(task); err != nil {
			return err
		}
	}
	m.tasks = append(m.tasks, task)
	return nil
}

// Tasks returns a copy of the recorded tasks.
func (m *Memory) Tasks() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, len(m.tasks))
	copy(out, m.tasks)
	return out
}
