package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/feichai0017/document-monitor/pkg/queue"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs map[string][]string
	err  error
	ran  chan string
}

func newFakeRunner(err error) *fakeRunner {
	return &fakeRunner{runs: map[string][]string{}, err: err, ran: make(chan string, 8)}
}

func (f *fakeRunner) Run(ctx context.Context, executionID string, documentIDs []string) error {
	f.mu.Lock()
	f.runs[executionID] = documentIDs
	f.mu.Unlock()
	f.ran <- executionID
	return f.err
}

func TestHandlerRecordsCompletedStatus(t *testing.T) {
	runner := newFakeRunner(nil)
	q := queue.NewLocalQueue(1)
	h := NewHandler(runner, q, logger.NewTestLogger())

	require.NoError(t, h.Handle(context.Background(), queue.NewRunTask("exec-1", []string{"d1"})))
	assert.Equal(t, []string{"d1"}, runner.runs["exec-1"])

	st, err := q.GetTaskStatus(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, queue.TaskCompleted, st.Status)
	assert.False(t, st.FinishedAt.IsZero())
}

func TestHandlerRecordsFailure(t *testing.T) {
	runner := newFakeRunner(errors.New("ledger down"))
	q := queue.NewLocalQueue(1)
	log := logger.NewTestLogger()
	h := NewHandler(runner, q, log)

	err := h.Handle(context.Background(), queue.NewRunTask("exec-2", nil))
	require.Error(t, err)

	st, err := q.GetTaskStatus(context.Background(), "exec-2")
	require.NoError(t, err)
	assert.Equal(t, queue.TaskFailed, st.Status)
	assert.Equal(t, "ledger down", st.Error)
	assert.True(t, log.HasMessage("ERROR", "Pipeline task failed"))
}

func TestHandlerRejectsInvalidTask(t *testing.T) {
	runner := newFakeRunner(nil)
	h := NewHandler(runner, nil, logger.NewTestLogger())

	err := h.Handle(context.Background(), &queue.Task{ID: "x", Type: queue.TaskTypePipelineRun})
	assert.True(t, errors.Is(err, ErrInvalidTask))
	err = h.Handle(context.Background(), &queue.Task{ID: "x", Type: "other", Payload: queue.RunPayload{ExecutionID: "x"}})
	assert.True(t, errors.Is(err, ErrInvalidTask))
	assert.Empty(t, runner.runs)
}

func TestLocalWorkerDrainsQueue(t *testing.T) {
	runner := newFakeRunner(nil)
	q := queue.NewLocalQueue(4)
	w := NewLocalWorker(q, NewHandler(runner, q, logger.NewTestLogger()), 2, logger.NewTestLogger())
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, q.Enqueue(context.Background(), queue.NewRunTask("a", nil)))
	require.NoError(t, q.Enqueue(context.Background(), queue.NewRunTask("b", nil)))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-runner.ran:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("task not processed")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, seen)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestLocalWorkerExitsWhenQueueClosed(t *testing.T) {
	q := queue.NewLocalQueue(1)
	w := NewLocalWorker(q, NewHandler(newFakeRunner(nil), nil, logger.NewTestLogger()), 1, logger.NewTestLogger())
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, q.Close())

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func TestAsynqHandlerDecodesPayload(t *testing.T) {
	runner := newFakeRunner(nil)
	w := NewAsynqWorker(config.QueueConfig{RedisAddr: "127.0.0.1:0", Workers: 1}, NewHandler(runner, nil, logger.NewTestLogger()), logger.NewTestLogger())

	payload, err := json.Marshal(queue.NewRunTask("exec-3", []string{"d"}))
	require.NoError(t, err)
	require.NoError(t, w.handlePipelineRun(context.Background(), asynq.NewTask(queue.TaskTypePipelineRun, payload)))
	assert.Equal(t, []string{"d"}, runner.runs["exec-3"])

	err = w.handlePipelineRun(context.Background(), asynq.NewTask(queue.TaskTypePipelineRun, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = w.handlePipelineRun(context.Background(), asynq.NewTask(queue.TaskTypePipelineRun, []byte(`{"type":"pipeline:run"}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestEncodeResultIsValidJSON(t *testing.T) {
	body, err := encodeResult(queue.TaskFailed, errors.New("bad byte \x00 and \"quote\"  "))
	require.NoError(t, err)
	require.True(t, json.Valid(body))

	var got taskResult
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "bad byte \x00 and \"quote\"  ", got.Error)

	body, err = encodeResult(queue.TaskCompleted, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"completed"}`, string(body))
}
