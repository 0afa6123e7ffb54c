// Package subtask runs background jobs (playblasts, encodes, batch
// exports) in a bounded FIFO worker pool, streaming their output live
// and retaining compressed logs after completion.
package subtask

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/uuid"
	"github.com/wizardpipe/wizard/internal/common/wire"
)

// Task states, published on every transition.
const (
	StatusPending   = "pending"
	StatusProcess   = "process"
	StatusDone      = "done"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// progressToken prefixes a stdout line carrying one named progress
// value, e.g. "wizard_task_progress:frames=42".
const progressToken = "wizard_task_progress:"

// TaskFunc is an in-process job. It must watch ctx for cancellation and
// report through the emitter; children registered on the emitter are
// killed on cancel.
type TaskFunc func(ctx context.Context, em *Emitter) error

// Task is one queued job: either an OS command or a TaskFunc, under a
// human readable name.
type Task struct {
	ID      string
	Name    string
	Command []string
	Env     []string
	Dir     string

	fn TaskFunc

	mu       sync.Mutex
	status   string
	cancel   context.CancelFunc
	children []*os.Process
}

// Status returns the current state.
func (t *Task) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) setStatus(s string) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// Notifier receives the live streams and status transitions. Satisfied
// by the guiserver bus.
type Notifier interface {
	Publish(topic string, msg wire.Message)
}

// Pool is the FIFO subtask runtime. Tasks start in submission order,
// at most Size at a time.
type Pool struct {
	size     int
	queue    chan *Task
	notifier Notifier
	logDir   string

	mu    sync.Mutex
	tasks map[string]*Task

	wg      sync.WaitGroup
	started bool
	cancel  context.CancelFunc
}

// NewPool builds a pool of size workers. notifier may be nil; logDir
// empty disables log retention.
func NewPool(size int, notifier Notifier, logDir string) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		size:     size,
		queue:    make(chan *Task, 1024),
		notifier: notifier,
		logDir:   logDir,
		tasks:    make(map[string]*Task),
	}
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.started = true
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Stop cancels everything running and waits for the workers.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	for _, t := range p.tasks {
		t.mu.Lock()
		if t.cancel != nil {
			t.cancel()
		}
		t.mu.Unlock()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Submit queues an OS command under a human readable name. Returns the
// task, already visible through Get, in state pending.
func (p *Pool) Submit(name string, command []string, env []string, dir string) (*Task, error) {
	if len(command) == 0 {
		return nil, errors.New("empty command")
	}
	if name == "" {
		name = command[0]
	}
	return p.enqueue(&Task{
		ID:      uuid.New().String(),
		Name:    name,
		Command: command,
		Env:     env,
		Dir:     dir,
		status:  StatusPending,
	})
}

// SubmitFunc queues an in-process job. Encodes and batch operations run
// this way when no external tool is involved.
func (p *Pool) SubmitFunc(name string, fn TaskFunc) (*Task, error) {
	if fn == nil {
		return nil, errors.New("nil task func")
	}
	if name == "" {
		return nil, errors.New("task name is empty")
	}
	return p.enqueue(&Task{
		ID:     uuid.New().String(),
		Name:   name,
		fn:     fn,
		status: StatusPending,
	})
}

func (p *Pool) enqueue(t *Task) (*Task, error) {
	p.mu.Lock()
	p.tasks[t.ID] = t
	p.mu.Unlock()
	select {
	case p.queue <- t:
		return t, nil
	default:
		p.mu.Lock()
		delete(p.tasks, t.ID)
		p.mu.Unlock()
		return nil, errors.New("subtask queue full")
	}
}

// Get returns a known task by id.
func (p *Pool) Get(id string) (*Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[id]
	return t, ok
}

// Cancel requests cooperative cancellation: the context is canceled and
// any child process killed. A pending task is cancelled without ever
// starting.
func (p *Pool) Cancel(id string) bool {
	t, ok := p.Get(id)
	if !ok {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case StatusDone, StatusError, StatusCancelled:
		return false
	case StatusPending:
		t.status = StatusCancelled
		p.publishStatus(t, StatusCancelled)
		return true
	default:
		if t.cancel != nil {
			t.cancel()
		}
		for _, c := range t.children {
			_ = c.Kill()
		}
		return true
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.queue:
			if t.Status() == StatusCancelled {
				continue
			}
			p.run(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// run executes one task to completion, streaming stdout and stderr line
// by line and retaining the full log.
func (p *Pool) run(ctx context.Context, t *Task) {
	taskCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.status = StatusProcess
	t.mu.Unlock()
	defer cancel()

	p.publishStatus(t, StatusProcess)

	var retained strings.Builder
	var retainedMu sync.Mutex
	keep := func(stream, line string) {
		retainedMu.Lock()
		retained.WriteString(stream + "| " + line + "\n")
		retainedMu.Unlock()
	}

	if t.fn != nil {
		p.runFunc(taskCtx, ctx, t, keep, &retained, &retainedMu)
		return
	}

	cmd := exec.CommandContext(taskCtx, t.Command[0], t.Command[1:]...)
	cmd.Env = t.Env
	cmd.Dir = t.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.finish(t, StatusError, fmt.Sprintf("%+v", errors.WithStack(err)), &retained, &retainedMu)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		p.finish(t, StatusError, fmt.Sprintf("%+v", errors.WithStack(err)), &retained, &retainedMu)
		return
	}
	if err := cmd.Start(); err != nil {
		p.finish(t, StatusError, fmt.Sprintf("%+v", errors.WithStack(err)), &retained, &retainedMu)
		return
	}

	var streams sync.WaitGroup
	streams.Add(2)
	go func() {
		defer streams.Done()
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			keep("out", line)
			if strings.HasPrefix(line, progressToken) {
				if key, value, ok := strings.Cut(strings.TrimPrefix(line, progressToken), "="); ok {
					p.publish(t.ID, "progress",
						strings.TrimSpace(key)+"="+strings.TrimSpace(value))
					continue
				}
			}
			p.publish(t.ID, "stdout", line)
		}
	}()
	go func() {
		defer streams.Done()
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			keep("err", sc.Text())
			p.publish(t.ID, "stderr", sc.Text())
		}
	}()
	streams.Wait()

	err = cmd.Wait()
	switch {
	case taskCtx.Err() != nil && ctx.Err() == nil:
		p.finish(t, StatusCancelled, "", &retained, &retainedMu)
	case err != nil:
		p.finish(t, StatusError, fmt.Sprintf("%+v", errors.WithStack(err)), &retained, &retainedMu)
	default:
		p.finish(t, StatusDone, "", &retained, &retainedMu)
	}
}

// runFunc drives an in-process task. Panics are contained so one broken
// job never takes the worker down.
func (p *Pool) runFunc(taskCtx, poolCtx context.Context, t *Task, keep func(stream, line string), retained *strings.Builder, mu *sync.Mutex) {
	em := &Emitter{pool: p, task: t, keep: keep}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("task panic: %v", r)
			}
		}()
		return t.fn(taskCtx, em)
	}()
	switch {
	case taskCtx.Err() != nil && poolCtx.Err() == nil:
		p.finish(t, StatusCancelled, "", retained, mu)
	case err != nil:
		p.finish(t, StatusError, fmt.Sprintf("%+v", errors.WithStack(err)), retained, mu)
	default:
		p.finish(t, StatusDone, "", retained, mu)
	}
}

// Emitter is the reporting handle of a running in-process task.
type Emitter struct {
	pool *Pool
	task *Task
	keep func(stream, line string)
}

// Stdout streams one output line.
func (e *Emitter) Stdout(line string) {
	e.keep("out", line)
	e.pool.publish(e.task.ID, "stdout", line)
}

// Stderr streams one error line.
func (e *Emitter) Stderr(line string) {
	e.keep("err", line)
	e.pool.publish(e.task.ID, "stderr", line)
}

// Progress reports one named progress value, e.g. ("frames", "42").
func (e *Emitter) Progress(key, value string) {
	e.keep("out", progressToken+key+"="+value)
	e.pool.publish(e.task.ID, "progress", key+"="+value)
}

// RegisterChild ties a spawned process to the task's cancellation, so
// Cancel kills it along with the context.
func (e *Emitter) RegisterChild(proc *os.Process) {
	e.task.mu.Lock()
	e.task.children = append(e.task.children, proc)
	e.task.mu.Unlock()
}

func (p *Pool) finish(t *Task, status, failure string, retained *strings.Builder, mu *sync.Mutex) {
	if failure != "" {
		mu.Lock()
		retained.WriteString("err| " + failure + "\n")
		mu.Unlock()
		p.publish(t.ID, "stderr", failure)
	}
	t.setStatus(status)
	p.publishStatus(t, status)
	p.retainLog(t.ID, retained, mu)
}

// retainLog compresses the accumulated output and writes it next to the
// other retained logs. Replays cheap, reads rare.
func (p *Pool) retainLog(id string, retained *strings.Builder, mu *sync.Mutex) {
	if p.logDir == "" {
		return
	}
	if err := os.MkdirAll(p.logDir, 0o755); err != nil {
		log.Warn().Err(err).Msg("cannot create subtask log dir")
		return
	}
	mu.Lock()
	data := snappy.Encode(nil, []byte(retained.String()))
	mu.Unlock()
	path := filepath.Join(p.logDir, id+".log.sz")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to retain subtask log")
	}
}

// ReadLog returns the decompressed retained log of a finished task.
func (p *Pool) ReadLog(id string) (string, error) {
	data, err := os.ReadFile(filepath.Join(p.logDir, id+".log.sz"))
	if err != nil {
		return "", err
	}
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return "", errors.Wrap(err, "corrupt retained log")
	}
	return string(out), nil
}

func (p *Pool) publish(id, stream, text string) {
	if p.notifier == nil {
		return
	}
	p.notifier.Publish("subtask."+id+"."+stream, wire.Message{
		Type:   wire.TypeSubtask,
		TaskID: id,
		Status: stream,
		Text:   text,
	})
}

func (p *Pool) publishStatus(t *Task, status string) {
	if p.notifier == nil {
		return
	}
	p.notifier.Publish("subtask."+t.ID+".status", wire.Message{
		Type:   wire.TypeSubtask,
		TaskID: t.ID,
		Title:  t.Name,
		Status: status,
	})
}
