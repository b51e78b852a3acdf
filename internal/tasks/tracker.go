package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"scribe/internal/backend"
	"scribe/internal/logging"
)

// API is the subset of the backend client the tracker drives.
type API interface {
	ListTasks(ctx context.Context) ([]backend.TaskRecord, error)
	Status(ctx context.Context, id string) (backend.TaskStatus, error)
	Transcribe(ctx context.Context, audio io.Reader, fileName, language string) (string, error)
	DeleteTask(ctx context.Context, id string) error
}

// TrackerOption customises Tracker construction.
type TrackerOption func(*Tracker)

// WithLanguage sets the language hint sent with uploads.
func WithLanguage(lang string) TrackerOption {
	return func(t *Tracker) {
		t.language = strings.TrimSpace(lang)
	}
}

// WithLogger sets the tracker logger.
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithNow overrides the clock used to stamp submitted tasks.
func WithNow(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracker owns the in-memory task list and reconciles it with the backend.
// It is safe for concurrent use.
type Tracker struct {
	api      API
	names    *NameBook
	logger   *slog.Logger
	language string
	now      func() time.Time

	mu       sync.Mutex
	tasks    []Task
	lastErr  error
	onChange []func()
}

// NewTracker builds a Tracker with an empty list.
func NewTracker(api API, names *NameBook, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		api:      api,
		names:    names,
		language: backend.DefaultLanguage,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.language == "" {
		t.language = backend.DefaultLanguage
	}
	t.logger = logging.NewComponentLogger(t.logger, "tracker")
	return t
}

// OnChange registers fn to run whenever list membership changes.
func (t *Tracker) OnChange(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.onChange = append(t.onChange, fn)
	t.mu.Unlock()
}

// Snapshot returns a copy of the current list, newest first.
func (t *Tracker) Snapshot() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Task(nil), t.tasks...)
}

// Len returns the number of tasks in the list.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// ActiveCount returns how many tasks are still PENDING or PROCESSING.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, task := range t.tasks {
		if task.Active() {
			count++
		}
	}
	return count
}

// LastError returns the most recent swallowed list failure, cleared by the
// next successful List.
func (t *Tracker) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// List replaces the in-memory list with the backend's and returns it.
// Unauthorized is returned; other failures are logged and the stale list is
// returned with a nil error.
func (t *Tracker) List(ctx context.Context) ([]Task, error) {
	records, err := t.api.ListTasks(ctx)
	if err != nil {
		if backend.IsUnauthorized(err) {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		logging.WithContext(ctx, t.logger).Warn("task list refresh failed; keeping previous list",
			logging.Error(err),
			logging.String(logging.FieldEventType, "list_failed"),
		)
		t.mu.Lock()
		t.lastErr = err
		t.mu.Unlock()
		return t.Snapshot(), nil
	}

	names := t.names.All(ctx)
	fresh := make([]Task, 0, len(records))
	seen := make(map[string]int, len(records))
	for _, rec := range records {
		task := fromRecord(rec, names)
		if task.ID == "" {
			continue
		}
		if idx, dup := seen[task.ID]; dup {
			fresh[idx] = task
			continue
		}
		seen[task.ID] = len(fresh)
		fresh = append(fresh, task)
	}
	SortNewestFirst(fresh)

	t.mu.Lock()
	changed := !sameMembers(t.tasks, fresh)
	t.tasks = fresh
	t.lastErr = nil
	out := append([]Task(nil), fresh...)
	t.mu.Unlock()

	if changed {
		t.notify()
	}
	return out, nil
}

// PollActive fetches the status of every active task concurrently and applies
// each result in place by id. A failed fetch keeps that task's prior state and
// never affects its siblings. If any fetch is rejected as unauthorized the
// returned error wraps backend.ErrUnauthorized; successful updates from the
// same tick are still applied.
func (t *Tracker) PollActive(ctx context.Context) ([]Task, error) {
	t.mu.Lock()
	var ids []string
	for _, task := range t.tasks {
		if task.Active() {
			ids = append(ids, task.ID)
		}
	}
	t.mu.Unlock()
	if len(ids) == 0 {
		return t.Snapshot(), nil
	}

	var (
		wg       sync.WaitGroup
		authMu   sync.Mutex
		authErrs error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			logger := logging.WithContext(ctx, t.logger).With(logging.String(logging.FieldTaskID, id))
			status, err := t.api.Status(ctx, id)
			if err != nil {
				if backend.IsUnauthorized(err) {
					authMu.Lock()
					if authErrs == nil {
						authErrs = fmt.Errorf("poll task %s: %w", id, err)
					}
					authMu.Unlock()
					return
				}
				logger.Warn("task status fetch failed; keeping previous state",
					logging.Error(err),
					logging.String(logging.FieldEventType, "status_failed"),
				)
				return
			}
			if ctx.Err() != nil {
				return
			}
			if !t.apply(id, status) {
				logger.Debug("discarding status for task no longer listed")
			}
		}(id)
	}
	wg.Wait()

	return t.Snapshot(), authErrs
}

// apply merges a status response into the task with the given id. It reports
// false when the task is gone.
func (t *Tracker) apply(id string, status backend.TaskStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.tasks {
		if t.tasks[i].ID != id {
			continue
		}
		t.tasks[i].Status = ParseStatus(status.Status)
		t.tasks[i].RawStatus = status.Status
		t.tasks[i].Result = status.Result
		return true
	}
	return false
}

// Refresh fetches one task's status, merging it into the list when present.
func (t *Tracker) Refresh(ctx context.Context, id string) (Task, error) {
	id = strings.TrimSpace(id)
	status, err := t.api.Status(ctx, id)
	if err != nil {
		return Task{}, fmt.Errorf("task %s: %w", id, err)
	}
	t.apply(id, status)

	task := Task{
		ID:        id,
		Name:      id,
		Status:    ParseStatus(status.Status),
		RawStatus: status.Status,
		Result:    status.Result,
	}
	for _, existing := range t.Snapshot() {
		if existing.ID == id {
			task.Name = existing.Name
			task.CreatedAt = existing.CreatedAt
			return task, nil
		}
	}
	if name, ok := t.names.Lookup(ctx, id); ok {
		task.Name = name
	}
	return task, nil
}

// Submit uploads audio and inserts the new task as PENDING. The file name is
// remembered so it survives restarts. On failure the list is unchanged.
func (t *Tracker) Submit(ctx context.Context, audio io.Reader, fileName string) (Task, error) {
	id, err := t.api.Transcribe(ctx, audio, fileName, t.language)
	if err != nil {
		return Task{}, fmt.Errorf("submit %s: %w", fileName, err)
	}

	name := strings.TrimSpace(fileName)
	if name == "" {
		name = id
	}
	task := Task{
		ID:        id,
		Name:      name,
		Status:    StatusPending,
		RawStatus: string(StatusPending),
		CreatedAt: t.now().UTC(),
	}
	t.names.Remember(ctx, id, name)

	t.mu.Lock()
	next := make([]Task, 0, len(t.tasks)+1)
	next = append(next, task)
	for _, existing := range t.tasks {
		if existing.ID != id {
			next = append(next, existing)
		}
	}
	SortNewestFirst(next)
	t.tasks = next
	t.mu.Unlock()

	logging.WithContext(ctx, t.logger).Info("task submitted",
		logging.String(logging.FieldTaskID, id),
		logging.String("file", name),
	)
	t.notify()
	return task, nil
}

// Delete removes a task on the backend and locally. A task the backend no
// longer knows counts as deleted. Any other failure leaves the list and the
// remembered name untouched.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := t.api.DeleteTask(ctx, id); err != nil && !errors.Is(err, backend.ErrNotFound) {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	t.names.Forget(ctx, id)

	t.mu.Lock()
	removed := false
	next := t.tasks[:0:0]
	for _, existing := range t.tasks {
		if existing.ID == id {
			removed = true
			continue
		}
		next = append(next, existing)
	}
	t.tasks = next
	t.mu.Unlock()

	logging.WithContext(ctx, t.logger).Info("task deleted", logging.String(logging.FieldTaskID, id))
	if removed {
		t.notify()
	}
	return nil
}

func (t *Tracker) notify() {
	t.mu.Lock()
	hooks := append([]func(){}, t.onChange...)
	t.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func sameMembers(a, b []Task) bool {
	if len(a) != len(b) {
		return false
	}
	ids := make(map[string]struct{}, len(a))
	for _, task := range a {
		ids[task.ID] = struct{}{}
	}
	for _, task := range b {
		if _, ok := ids[task.ID]; !ok {
			return false
		}
	}
	return true
}
