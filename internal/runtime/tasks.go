package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// TaskState is the lifecycle state of a background task.
type TaskState string

const (
	TaskRunning  TaskState = "running"
	TaskFinished TaskState = "finished"
	TaskFailed   TaskState = "failed"
	TaskCanceled TaskState = "canceled"
)

// TaskFunc is the body of a background task. It should return when ctx is done.
type TaskFunc func(ctx context.Context) error

// TaskInfo is a point-in-time copy of a task's state.
type TaskInfo struct {
	Name    string        `json:"name"`
	State   TaskState     `json:"state"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`
	Err     string        `json:"error,omitempty"`
}

type task struct {
	name    string
	state   TaskState
	started time.Time
	ended   time.Time
	err     error
	cancel  context.CancelFunc
}

// Tasks runs named background work (credential watch, config reload,
// visitor bootstrap) under one parent context.
type Tasks struct {
	mu     sync.RWMutex
	tasks  map[string]*task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// ErrTaskExists is returned when a name is already running.
var ErrTaskExists = errors.New("task already running")

// NewTasks derives the task context from parent.
func NewTasks(parent context.Context) *Tasks {
	ctx, cancel := context.WithCancel(parent)
	return &Tasks{tasks: make(map[string]*task), ctx: ctx, cancel: cancel}
}

// Go starts fn under name. A finished task's name can be reused.
func (t *Tasks) Go(name string, fn TaskFunc) error {
	t.mu.Lock()
	if cur, ok := t.tasks[name]; ok && cur.state == TaskRunning {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskExists, name)
	}
	ctx, cancel := context.WithCancel(t.ctx)
	tk := &task{name: name, state: TaskRunning, started: time.Now(), cancel: cancel}
	t.tasks[name] = tk
	t.wg.Add(1)
	t.mu.Unlock()

	go t.run(ctx, tk, fn)
	return nil
}

func (t *Tasks) run(ctx context.Context, tk *task, fn TaskFunc) {
	defer t.wg.Done()
	defer tk.cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		log.WithField("task", tk.name).Debug("task started")
		err = fn(ctx)
	}()

	t.mu.Lock()
	defer t.mu.Unlock()
	tk.ended = time.Now()
	switch {
	case err == nil:
		tk.state = TaskFinished
		log.WithField("task", tk.name).Debug("task finished")
	case ctx.Err() != nil:
		tk.state = TaskCanceled
	default:
		tk.state = TaskFailed
		tk.err = err
		log.WithError(err).WithField("task", tk.name).Error("task failed")
	}
}

// Stop cancels one running task.
func (t *Tasks) Stop(name string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tk, ok := t.tasks[name]
	if !ok {
		return fmt.Errorf("task %s not found", name)
	}
	if tk.state != TaskRunning {
		return fmt.Errorf("task %s is not running", name)
	}
	tk.cancel()
	return nil
}

// StopAll cancels every task; Wait blocks until they have returned.
func (t *Tasks) StopAll() { t.cancel() }

func (t *Tasks) Wait() { t.wg.Wait() }

// Info returns one task's state.
func (t *Tasks) Info(name string) (TaskInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tk, ok := t.tasks[name]
	if !ok {
		return TaskInfo{}, false
	}
	return tk.info(), true
}

// List returns every task sorted by name.
func (t *Tasks) List() []TaskInfo {
	t.mu.RLock()
	out := make([]TaskInfo, 0, len(t.tasks))
	for _, tk := range t.tasks {
		out = append(out, tk.info())
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (tk *task) info() TaskInfo {
	end := tk.ended
	if end.IsZero() {
		end = time.Now()
	}
	ti := TaskInfo{Name: tk.name, State: tk.state, Started: tk.started, Elapsed: end.Sub(tk.started)}
	if tk.err != nil {
		ti.Err = tk.err.Error()
	}
	return ti
}
