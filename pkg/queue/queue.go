// pkg/queue/queue.go
package queue

import (
	"context"
	"time"
)

// TaskTypePipelineRun 触发一次流水线执行
const TaskTypePipelineRun = "pipeline:run"

// Task status values stored alongside queued tasks.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// Queue 接口定义
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	SaveFinalStatus(ctx context.Context, status *TaskStatus) error
	Close() error
}

// RunPayload carries what a worker needs to run an execution. Empty
// DocumentIDs means every document.
type RunPayload struct {
	ExecutionID string   `json:"execution_id"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// Task 定义任务结构
type Task struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Payload   RunPayload `json:"payload"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewRunTask builds a pipeline task whose id is the execution id.
func NewRunTask(executionID string, documentIDs []string) *Task {
	return &Task{
		ID:        executionID,
		Type:      TaskTypePipelineRun,
		Payload:   RunPayload{ExecutionID: executionID, DocumentIDs: documentIDs},
		CreatedAt: time.Now().UTC(),
	}
}

// TaskStatus 定义任务状态
type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}
