package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scribe/internal/backend"
	"scribe/internal/kvstore"
	"scribe/internal/session"
)

type fakeAPI struct {
	mu        sync.Mutex
	records   []backend.TaskRecord
	listErr   error
	statuses  map[string]backend.TaskStatus
	statusErr map[string]error
	submitID  string
	submitErr error
	deleteErr error
	deleted   []string
	polled    atomic.Int32
}

func (f *fakeAPI) ListTasks(context.Context) ([]backend.TaskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]backend.TaskRecord(nil), f.records...), nil
}

func (f *fakeAPI) Status(_ context.Context, id string) (backend.TaskStatus, error) {
	f.polled.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErr[id]; err != nil {
		return backend.TaskStatus{}, err
	}
	status, ok := f.statuses[id]
	if !ok {
		return backend.TaskStatus{}, &backend.APIError{Op: "status", StatusCode: 404, Kind: backend.ErrNotFound}
	}
	return status, nil
}

func (f *fakeAPI) Transcribe(_ context.Context, audio io.Reader, _ string, _ string) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	_, _ = io.Copy(io.Discard, audio)
	return f.submitID, nil
}

func (f *fakeAPI) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func newTracker(api API, store kvstore.Store) *Tracker {
	return NewTracker(api, NewNameBook(store, nil))
}

func ids(list []Task) []string {
	out := make([]string, len(list))
	for i, task := range list {
		out[i] = task.ID
	}
	return out
}

func TestListSortsNewestFirstWithStableTies(t *testing.T) {
	api := &fakeAPI{records: []backend.TaskRecord{
		{ID: "old", Status: "SUCCESS", CreatedAt: "2024-01-01T10:00:00"},
		{ID: "tie-a", Status: "SUCCESS", CreatedAt: "2024-03-01T10:00:00Z"},
		{ID: "none", Status: "SUCCESS"},
		{ID: "new", Status: "pending", CreatedAt: "2024-05-01 08:30:00.123456"},
		{ID: "tie-b", Status: "SUCCESS", CreatedAt: "2024-03-01T10:00:00+00:00"},
	}}
	tracker := newTracker(api, kvstore.NewMemory())

	list, err := tracker.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"new", "tie-a", "tie-b", "old", "none"}
	if got := ids(list); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if list[0].Name != "new" {
		t.Fatalf("name should fall back to id, got %q", list[0].Name)
	}
}

func TestParseStatusCaseInsensitive(t *testing.T) {
	cases := []struct {
		raw    string
		want   Status
		active bool
	}{
		{raw: "pending", want: StatusPending, active: true},
		{raw: "PENDING", want: StatusPending, active: true},
		{raw: " Processing ", want: StatusProcessing, active: true},
		{raw: "success", want: StatusSuccess},
		{raw: "FAILURE", want: StatusFailure},
		{raw: "RETRY", want: StatusUnknown},
		{raw: "", want: StatusUnknown},
	}
	for _, tc := range cases {
		got := ParseStatus(tc.raw)
		if got != tc.want || got.Active() != tc.active || got.Terminal() == tc.active {
			t.Fatalf("ParseStatus(%q) = %s active=%v terminal=%v", tc.raw, got, got.Active(), got.Terminal())
		}
	}
}

func TestSubmittedNameSurvivesReload(t *testing.T) {
	store := kvstore.NewMemory()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{submitID: "t-9"}
	tracker := NewTracker(api, NewNameBook(store, nil), WithNow(func() time.Time { return fixed }))

	var changes atomic.Int32
	tracker.OnChange(func() { changes.Add(1) })

	task, err := tracker.Submit(context.Background(), strings.NewReader("RIFF"), "interview.wav")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.Name != "interview.wav" || task.Status != StatusPending || !task.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected task %+v", task)
	}
	if tracker.Len() != 1 || changes.Load() != 1 {
		t.Fatalf("len=%d changes=%d", tracker.Len(), changes.Load())
	}

	api.records = []backend.TaskRecord{{ID: "t-9", Status: "PROCESSING", CreatedAt: "2024-06-01T12:00:00"}}
	reloaded := newTracker(api, store)
	list, err := reloaded.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "interview.wav" {
		t.Fatalf("name lost after reload: %+v", list)
	}
}

func TestSubmitFailureLeavesListUnchanged(t *testing.T) {
	api := &fakeAPI{submitErr: &backend.APIError{Op: "transcribe", Kind: backend.ErrTransport}}
	tracker := newTracker(api, kvstore.NewMemory())
	if _, err := tracker.Submit(context.Background(), strings.NewReader("x"), "a.wav"); !errors.Is(err, backend.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if tracker.Len() != 0 {
		t.Fatal("failed submit must not insert a task")
	}
}

func TestDeleteNotFoundStillRemoves(t *testing.T) {
	store := kvstore.NewMemory()
	api := &fakeAPI{records: []backend.TaskRecord{{ID: "gone", Status: "SUCCESS"}}}
	tracker := newTracker(api, store)
	tracker.names.Remember(context.Background(), "gone", "memo.m4a")
	if _, err := tracker.List(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}

	api.deleteErr = &backend.APIError{Op: "delete task", StatusCode: 404, Kind: backend.ErrNotFound}
	if err := tracker.Delete(context.Background(), "gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if tracker.Len() != 0 {
		t.Fatal("task should be removed")
	}
	if _, ok := tracker.names.Lookup(context.Background(), "gone"); ok {
		t.Fatal("name binding should be forgotten")
	}
}

func TestDeleteFailureKeepsState(t *testing.T) {
	api := &fakeAPI{records: []backend.TaskRecord{{ID: "keep", Status: "SUCCESS"}}}
	tracker := newTracker(api, kvstore.NewMemory())
	tracker.names.Remember(context.Background(), "keep", "memo.m4a")
	if _, err := tracker.List(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}

	api.deleteErr = &backend.APIError{Op: "delete task", StatusCode: 500, Kind: backend.ErrTransport}
	if err := tracker.Delete(context.Background(), "keep"); !errors.Is(err, backend.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if tracker.Len() != 1 {
		t.Fatal("list should be unchanged")
	}
	if name, ok := tracker.names.Lookup(context.Background(), "keep"); !ok || name != "memo.m4a" {
		t.Fatal("name binding should survive a failed delete")
	}
}

func TestPollIsolatesPerTaskFailures(t *testing.T) {
	api := &fakeAPI{
		records: []backend.TaskRecord{
			{ID: "a", Status: "PENDING", CreatedAt: "2024-01-02T00:00:00"},
			{ID: "b", Status: "PROCESSING", CreatedAt: "2024-01-01T00:00:00"},
			{ID: "c", Status: "SUCCESS", Result: "done", CreatedAt: "2023-12-31T00:00:00"},
		},
		statuses: map[string]backend.TaskStatus{
			"b": {ID: "b", Status: "SUCCESS", Result: "hello world"},
		},
		statusErr: map[string]error{
			"a": &backend.APIError{Op: "status", Kind: backend.ErrTransport, Err: errors.New("connection reset")},
		},
	}
	tracker := newTracker(api, kvstore.NewMemory())
	if _, err := tracker.List(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}

	list, err := tracker.PollActive(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if api.polled.Load() != 2 {
		t.Fatalf("polled %d tasks, want 2 active", api.polled.Load())
	}
	byID := map[string]Task{}
	for _, task := range list {
		byID[task.ID] = task
	}
	if byID["a"].Status != StatusPending || byID["a"].Result != "" {
		t.Fatalf("a should keep prior state: %+v", byID["a"])
	}
	if byID["b"].Status != StatusSuccess || byID["b"].Result != "hello world" {
		t.Fatalf("b should update: %+v", byID["b"])
	}
	if tracker.ActiveCount() != 1 {
		t.Fatalf("active = %d", tracker.ActiveCount())
	}
}

func TestPollIdempotent(t *testing.T) {
	api := &fakeAPI{
		records: []backend.TaskRecord{
			{ID: "a", Status: "PENDING", CreatedAt: "2024-01-02T00:00:00"},
			{ID: "b", Status: "processing", CreatedAt: "2024-01-01T00:00:00"},
		},
		statuses: map[string]backend.TaskStatus{
			"a": {ID: "a", Status: "PROCESSING"},
			"b": {ID: "b", Status: "PROCESSING"},
		},
	}
	tracker := newTracker(api, kvstore.NewMemory())
	if _, err := tracker.List(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}

	first, err := tracker.PollActive(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	second, err := tracker.PollActive(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("poll not idempotent:\n%s\n%s", a, b)
	}
}

func TestListKeepsStaleDataOnTransportError(t *testing.T) {
	api := &fakeAPI{records: []backend.TaskRecord{{ID: "a", Status: "SUCCESS"}}}
	tracker := newTracker(api, kvstore.NewMemory())
	if _, err := tracker.List(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}

	api.listErr = &backend.APIError{Op: "list tasks", StatusCode: 502, Kind: backend.ErrTransport}
	list, err := tracker.List(context.Background())
	if err != nil {
		t.Fatalf("transport failures should be swallowed, got %v", err)
	}
	if len(list) != 1 || list[0].ID != "a" {
		t.Fatalf("stale list not retained: %+v", list)
	}
	if !errors.Is(tracker.LastError(), backend.ErrTransport) {
		t.Fatalf("last error = %v", tracker.LastError())
	}

	api.listErr = &backend.APIError{Op: "list tasks", StatusCode: 401, Kind: backend.ErrUnauthorized}
	if _, err := tracker.List(context.Background()); !backend.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestStatusDiscardedForDeletedTask(t *testing.T) {
	tracker := newTracker(&fakeAPI{}, kvstore.NewMemory())
	if tracker.apply("missing", backend.TaskStatus{Status: "SUCCESS"}) {
		t.Fatal("apply should report a missing task")
	}
}

// unauthorizedServer answers every authenticated route with 401.
func unauthorizedServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Could not validate credentials"}`)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestUnauthorizedEndsSessionOnceFromEveryCallSite(t *testing.T) {
	calls := []struct {
		name string
		run  func(context.Context, *Tracker) error
	}{
		{name: "status", run: func(ctx context.Context, tr *Tracker) error {
			_, err := tr.PollActive(ctx)
			return err
		}},
		{name: "list", run: func(ctx context.Context, tr *Tracker) error {
			_, err := tr.List(ctx)
			return err
		}},
		{name: "upload", run: func(ctx context.Context, tr *Tracker) error {
			_, err := tr.Submit(ctx, strings.NewReader("RIFF"), "a.wav")
			return err
		}},
	}

	for _, call := range calls {
		t.Run(call.name, func(t *testing.T) {
			var hits atomic.Int32
			server := unauthorizedServer(t, &hits)
			store := kvstore.NewMemory()
			mgr, err := session.New(store)
			if err != nil {
				t.Fatalf("session: %v", err)
			}
			if err := mgr.Save("stale"); err != nil {
				t.Fatalf("save: %v", err)
			}
			var redirects atomic.Int32
			mgr.OnExpired(func() { redirects.Add(1) })

			client, err := backend.New(server.URL,
				backend.WithTokenSource(mgr),
				backend.WithUnauthorizedHandler(mgr.Expire),
			)
			if err != nil {
				t.Fatalf("client: %v", err)
			}
			tracker := newTracker(client, store)
			tracker.tasks = []Task{
				{ID: "a", Status: StatusPending},
				{ID: "b", Status: StatusProcessing},
				{ID: "c", Status: StatusPending},
			}

			if err := call.run(context.Background(), tracker); !backend.IsUnauthorized(err) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
			if mgr.SignedIn() {
				t.Fatal("credential should be cleared")
			}
			if redirects.Load() != 1 {
				t.Fatalf("session ended %d times, want 1", redirects.Load())
			}
			if hits.Load() == 0 {
				t.Fatal("backend was never called")
			}
		})
	}
}
