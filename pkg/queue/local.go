package queue

import (
	"context"
	"sync"

	"github.com/feichai0017/document-monitor/internal/metrics"
	"github.com/feichai0017/document-monitor/pkg/errors"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("queue closed")

// LocalQueue is an in-process queue backed by a buffered channel. Task
// status is kept in memory.
type LocalQueue struct {
	mu       sync.RWMutex
	closed   bool
	tasks    chan *Task
	statuses map[string]*TaskStatus
}

func NewLocalQueue(buffer int) *LocalQueue {
	if buffer <= 0 {
		buffer = 1
	}
	return &LocalQueue{
		tasks:    make(chan *Task, buffer),
		statuses: make(map[string]*TaskStatus),
	}
}

// Enqueue blocks while the buffer is full, until ctx ends.
func (q *LocalQueue) Enqueue(ctx context.Context, task *Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		metrics.IncrementQueueDepth()
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "enqueue task")
	}
}

// Tasks is the receive side consumed by workers. It is closed by Close.
func (q *LocalQueue) Tasks() <-chan *Task {
	return q.tasks
}

// Ack is called by a worker once it has taken a task off the channel.
func (q *LocalQueue) Ack(*Task) {
	metrics.DecrementQueueDepth()
}

func (q *LocalQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	st, ok := q.statuses[taskID]
	if !ok {
		return nil, errors.NotFoundf("task %s not found", taskID)
	}
	cp := *st
	return &cp, nil
}

func (q *LocalQueue) SaveFinalStatus(ctx context.Context, status *TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *status
	q.statuses[status.TaskID] = &cp
	return nil
}

func (q *LocalQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	return nil
}
