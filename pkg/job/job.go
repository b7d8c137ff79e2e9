// SPDX-License-Identifier: BSD-3-Clause

// Package job runs long-lived operations (profile import, detection) in
// the background and exposes their lifecycle — pending, running, done,
// error — for polling and cancellation over RPC. Grounded on the
// original implementation's ImportJobManager: one goroutine per job,
// a mutex-protected status snapshot, and commit-then-destroy semantics
// so a finished job's result is claimed exactly once.
package job

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// State is a job's lifecycle stage.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// Status is a point-in-time, immutable snapshot of a job.
type Status struct {
	ID       string
	State    State
	Progress int
	Message  string
	Error    string
}

// Progress is passed to a job's Func so it can report intermediate
// status; calls after the job's context is canceled are harmless no-ops.
type Progress func(percent int, message string)

// Func is the work a job performs. It must poll ctx.Err() at suspend
// points and return promptly once canceled.
type Func func(ctx context.Context, progress Progress) (result any, err error)

// job is one running or completed unit of work.
type job struct {
	id     string
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	progress int
	message  string
	errMsg   string
	result   any
}

func (j *job) snapshot() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Status{ID: j.id, State: j.state, Progress: j.progress, Message: j.message, Error: j.errMsg}
}

func (j *job) setProgress(pct int, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateError {
		return
	}
	j.state = StateRunning
	j.progress = pct
	j.message = msg
}

func (j *job) finish(result any, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateError {
		// Already canceled; a late-finishing goroutine must not
		// overwrite the cancellation outcome.
		return
	}
	if err != nil {
		j.state = StateError
		j.errMsg = err.Error()
		j.progress = 0
		return
	}
	j.state = StateDone
	j.progress = 100
	j.result = result
}

// Manager tracks the set of in-flight and completed jobs.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*job
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{jobs: make(map[string]*job)}
}

// Create starts fn in its own goroutine under a fresh id and returns
// that id immediately; fn runs asynchronously.
func (m *Manager) Create(ctx context.Context, fn Func) string {
	id := uuid.New().String()
	jctx, cancel := context.WithCancel(ctx)
	j := &job{id: id, cancel: cancel, state: StatePending}

	m.mu.Lock()
	m.jobs[id] = j
	m.mu.Unlock()

	go func() {
		result, err := fn(jctx, j.setProgress)
		j.finish(result, err)
	}()

	return id
}

// Status returns the current snapshot of job id.
func (m *Manager) Status(id string) (Status, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return j.snapshot(), nil
}

// List returns a snapshot of every tracked job, in no particular order.
func (m *Manager) List() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.snapshot())
	}
	return out
}

// Cancel moves a pending or running job to the error state with
// message "canceled" and signals its context. An already-terminal job
// returns ErrNotCancelable.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	j.mu.Lock()
	if j.state != StatePending && j.state != StateRunning {
		j.mu.Unlock()
		return ErrNotCancelable
	}
	j.state = StateError
	j.errMsg = "canceled"
	j.progress = 0
	j.mu.Unlock()

	j.cancel()
	return nil
}

// Commit claims a done job's result exactly once: it removes the job
// from the manager and invokes apply with the result. If apply returns
// an error, the job is NOT restored; the caller is expected to surface
// the failure and, if retryable, create a fresh job.
func (m *Manager) Commit(id string, apply func(result any) error) error {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if ok {
		delete(m.jobs, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	j.mu.Lock()
	state := j.state
	errMsg := j.errMsg
	result := j.result
	j.mu.Unlock()

	if state != StateDone {
		if state == StateError {
			return fmt.Errorf("%w: %s", ErrNotDone, errMsg)
		}
		return ErrNotDone
	}

	return apply(result)
}
