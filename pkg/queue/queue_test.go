package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

func TestNewRunTask(t *testing.T) {
	task := NewRunTask("exec-1", []string{"a", "b"})
	assert.Equal(t, "exec-1", task.ID)
	assert.Equal(t, TaskTypePipelineRun, task.Type)
	assert.Equal(t, "exec-1", task.Payload.ExecutionID)
	assert.Equal(t, []string{"a", "b"}, task.Payload.DocumentIDs)
	assert.False(t, task.CreatedAt.IsZero())
}

func TestLocalQueueEnqueueAndConsume(t *testing.T) {
	q := NewLocalQueue(2)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, NewRunTask("e1", nil)))
	require.NoError(t, q.Enqueue(ctx, NewRunTask("e2", nil)))

	got := <-q.Tasks()
	q.Ack(got)
	assert.Equal(t, "e1", got.ID)
	got = <-q.Tasks()
	q.Ack(got)
	assert.Equal(t, "e2", got.ID)
}

func TestLocalQueueFullRespectsContext(t *testing.T) {
	q := NewLocalQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), NewRunTask("e1", nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, NewRunTask("e2", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLocalQueueClose(t *testing.T) {
	q := NewLocalQueue(1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	err := q.Enqueue(context.Background(), NewRunTask("e1", nil))
	assert.True(t, errors.Is(err, ErrQueueClosed))

	_, ok := <-q.Tasks()
	assert.False(t, ok)
}

func TestLocalQueueStatus(t *testing.T) {
	q := NewLocalQueue(1)
	ctx := context.Background()

	_, err := q.GetTaskStatus(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, q.SaveFinalStatus(ctx, &TaskStatus{TaskID: "e1", Status: TaskCompleted}))
	st, err := q.GetTaskStatus(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, st.Status)
}

func newMiniredisQueue(t *testing.T) (*AsynqQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q := NewAsynqQueue(config.QueueConfig{RedisAddr: mr.Addr(), MaxRetry: 2}, logger.NewTestLogger())
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func TestAsynqQueueSaveAndGetStatus(t *testing.T) {
	q, mr := newMiniredisQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Ping(ctx))

	finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, q.SaveFinalStatus(ctx, &TaskStatus{
		TaskID:     "exec-9",
		Status:     TaskFailed,
		Error:      "boom",
		FinishedAt: finished,
	}))

	assert.True(t, mr.Exists("task_status:exec-9"))
	assert.Equal(t, statusTTL, mr.TTL("task_status:exec-9"))

	st, err := q.GetTaskStatus(ctx, "exec-9")
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, st.Status)
	assert.Equal(t, "boom", st.Error)
	assert.True(t, finished.Equal(st.FinishedAt))
}

func TestAsynqQueueCorruptStatus(t *testing.T) {
	q, mr := newMiniredisQueue(t)
	require.NoError(t, mr.Set("task_status:bad", "{not json"))

	_, err := q.GetTaskStatus(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestConvertAsynqStatus(t *testing.T) {
	done := time.Now().UTC()
	cases := []struct {
		state asynq.TaskState
		want  string
	}{
		{asynq.TaskStatePending, TaskPending},
		{asynq.TaskStateActive, TaskRunning},
		{asynq.TaskStateRetry, TaskPending},
		{asynq.TaskStateArchived, TaskFailed},
		{asynq.TaskStateCompleted, TaskCompleted},
	}
	for _, c := range cases {
		st := convertAsynqStatus(&asynq.TaskInfo{ID: "x", State: c.state, CompletedAt: done, LastErr: "e"})
		assert.Equal(t, c.want, st.Status, c.state.String())
	}
}
