package tasks

import (
	"sort"
	"strings"
	"time"

	"scribe/internal/backend"
)

// Task is one transcription job as the client knows it.
type Task struct {
	ID        string
	Name      string
	Status    Status
	RawStatus string
	Result    string
	CreatedAt time.Time
}

// Active reports whether the task is still polled.
func (t Task) Active() bool {
	return t.Status.Active()
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseCreatedAt reads the backend timestamp. Naive values are UTC; missing
// or unreadable values yield the zero time.
func ParseCreatedAt(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

var epoch = time.Unix(0, 0).UTC()

func sortKey(t Task) time.Time {
	if t.CreatedAt.IsZero() {
		return epoch
	}
	return t.CreatedAt
}

// SortNewestFirst orders tasks by CreatedAt descending. Ties keep their
// relative order.
func SortNewestFirst(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return sortKey(tasks[i]).After(sortKey(tasks[j]))
	})
}

func fromRecord(rec backend.TaskRecord, names map[string]string) Task {
	id := rec.ID.String()
	name := id
	if remembered, ok := names[id]; ok && strings.TrimSpace(remembered) != "" {
		name = remembered
	}
	return Task{
		ID:        id,
		Name:      name,
		Status:    ParseStatus(rec.Status),
		RawStatus: rec.Status,
		Result:    rec.Result,
		CreatedAt: ParseCreatedAt(rec.CreatedAt),
	}
}
