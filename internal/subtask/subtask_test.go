package subtask

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardpipe/wizard/internal/common/wire"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []struct {
		topic string
		msg   wire.Message
	}
}

func (r *recordingNotifier) Publish(topic string, msg wire.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, struct {
		topic string
		msg   wire.Message
	}{topic, msg})
}

func (r *recordingNotifier) byStream(id, stream string) []wire.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []wire.Message
	for _, m := range r.msgs {
		if m.topic == "subtask."+id+"."+stream {
			out = append(out, m.msg)
		}
	}
	return out
}

func waitStatus(t *testing.T, task *Task, status string) {
	t.Helper()
	require.Eventually(t, func() bool { return task.Status() == status },
		5*time.Second, 10*time.Millisecond, "want status %s, have %s", status, task.Status())
}

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell based test")
	}
}

func TestRunToCompletion(t *testing.T) {
	skipOnWindows(t)
	n := &recordingNotifier{}
	p := NewPool(2, n, t.TempDir())
	p.Start(context.Background())
	defer p.Stop()

	task, err := p.Submit("playblast",
		[]string{"sh", "-c", "echo hello; echo wizard_task_progress:percent=50; echo done"}, nil, "")
	require.NoError(t, err)
	waitStatus(t, task, StatusDone)

	stdout := n.byStream(task.ID, "stdout")
	require.Len(t, stdout, 2)
	assert.Equal(t, "hello", stdout[0].Text)
	assert.Equal(t, "done", stdout[1].Text)

	progress := n.byStream(task.ID, "progress")
	require.Len(t, progress, 1)
	assert.Equal(t, "percent=50", progress[0].Text)

	statuses := n.byStream(task.ID, "status")
	require.NotEmpty(t, statuses)
	assert.Equal(t, "playblast", statuses[0].Title)

	logText, err := p.ReadLog(task.ID)
	require.NoError(t, err)
	assert.Contains(t, logText, "out| hello")
	assert.Contains(t, logText, "out| wizard_task_progress:percent=50")
}

func TestFuncTaskRunsAndReports(t *testing.T) {
	n := &recordingNotifier{}
	p := NewPool(1, n, t.TempDir())
	p.Start(context.Background())
	defer p.Stop()

	task, err := p.SubmitFunc("encode", func(ctx context.Context, em *Emitter) error {
		em.Stdout("encoding")
		em.Progress("frames", "12")
		em.Progress("frames", "24")
		return nil
	})
	require.NoError(t, err)
	waitStatus(t, task, StatusDone)

	progress := n.byStream(task.ID, "progress")
	require.Len(t, progress, 2)
	assert.Equal(t, "frames=12", progress[0].Text)
	assert.Equal(t, "frames=24", progress[1].Text)

	statuses := n.byStream(task.ID, "status")
	require.NotEmpty(t, statuses)
	assert.Equal(t, "encode", statuses[0].Title)

	logText, err := p.ReadLog(task.ID)
	require.NoError(t, err)
	assert.Contains(t, logText, "out| encoding")
	assert.Contains(t, logText, "out| wizard_task_progress:frames=24")
}

func TestFuncTaskCancellation(t *testing.T) {
	n := &recordingNotifier{}
	p := NewPool(1, n, "")
	p.Start(context.Background())
	defer p.Stop()

	started := make(chan struct{})
	task, err := p.SubmitFunc("long encode", func(ctx context.Context, em *Emitter) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	<-started

	require.True(t, p.Cancel(task.ID))
	waitStatus(t, task, StatusCancelled)
}

func TestFuncTaskPanicBecomesError(t *testing.T) {
	n := &recordingNotifier{}
	p := NewPool(1, n, "")
	p.Start(context.Background())
	defer p.Stop()

	task, err := p.SubmitFunc("broken", func(ctx context.Context, em *Emitter) error {
		panic("boom")
	})
	require.NoError(t, err)
	waitStatus(t, task, StatusError)

	stderr := n.byStream(task.ID, "stderr")
	require.NotEmpty(t, stderr)
	assert.Contains(t, stderr[0].Text, "task panic")

	// the worker survives
	next, err := p.SubmitFunc("after", func(ctx context.Context, em *Emitter) error { return nil })
	require.NoError(t, err)
	waitStatus(t, next, StatusDone)
}

func TestSubmitFuncRequiresName(t *testing.T) {
	p := NewPool(1, nil, "")
	_, err := p.SubmitFunc("", func(ctx context.Context, em *Emitter) error { return nil })
	require.Error(t, err)
}

func TestFailureCarriesStderr(t *testing.T) {
	skipOnWindows(t)
	n := &recordingNotifier{}
	p := NewPool(1, n, t.TempDir())
	p.Start(context.Background())
	defer p.Stop()

	task, err := p.Submit("doomed", []string{"sh", "-c", "echo boom >&2; exit 3"}, nil, "")
	require.NoError(t, err)
	waitStatus(t, task, StatusError)

	stderr := n.byStream(task.ID, "stderr")
	require.NotEmpty(t, stderr)
	assert.Equal(t, "boom", stderr[0].Text)

	logText, err := p.ReadLog(task.ID)
	require.NoError(t, err)
	assert.Contains(t, logText, "err| boom")
}

func TestCancelRunningTask(t *testing.T) {
	skipOnWindows(t)
	n := &recordingNotifier{}
	p := NewPool(1, n, t.TempDir())
	p.Start(context.Background())
	defer p.Stop()

	task, err := p.Submit("sleeper", []string{"sh", "-c", "echo started; sleep 30"}, nil, "")
	require.NoError(t, err)
	waitStatus(t, task, StatusProcess)

	require.True(t, p.Cancel(task.ID))
	waitStatus(t, task, StatusCancelled)

	statuses := n.byStream(task.ID, "status")
	var last wire.Message
	for _, m := range statuses {
		last = m
	}
	assert.Equal(t, StatusCancelled, last.Status)
}

func TestCancelPendingTask(t *testing.T) {
	skipOnWindows(t)
	p := NewPool(1, nil, "")
	p.Start(context.Background())
	defer p.Stop()

	// occupy the single worker
	blocker, err := p.Submit("blocker", []string{"sh", "-c", "sleep 30"}, nil, "")
	require.NoError(t, err)
	waitStatus(t, blocker, StatusProcess)

	pending, err := p.Submit("queued", []string{"sh", "-c", "echo never"}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, pending.Status())

	require.True(t, p.Cancel(pending.ID))
	assert.Equal(t, StatusCancelled, pending.Status())
	require.True(t, p.Cancel(blocker.ID))
	waitStatus(t, blocker, StatusCancelled)
}

func TestFIFOOrder(t *testing.T) {
	skipOnWindows(t)
	n := &recordingNotifier{}
	p := NewPool(1, n, "")
	p.Start(context.Background())
	defer p.Stop()

	var ids []string
	for i := 0; i < 3; i++ {
		task, err := p.Submit("noop", []string{"sh", "-c", "true"}, nil, "")
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}
	for _, id := range ids {
		task, ok := p.Get(id)
		require.True(t, ok)
		waitStatus(t, task, StatusDone)
	}

	var started []string
	n.mu.Lock()
	for _, m := range n.msgs {
		if strings.HasSuffix(m.topic, ".status") && m.msg.Status == StatusProcess {
			started = append(started, m.msg.TaskID)
		}
	}
	n.mu.Unlock()
	assert.Equal(t, ids, started, "tasks must start in submission order")
}
