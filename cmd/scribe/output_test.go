package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"scribe/internal/tasks"
)

func TestResultPreview(t *testing.T) {
	cases := []struct {
		name string
		task tasks.Task
		want string
	}{
		{name: "pending", task: tasks.Task{Status: tasks.StatusPending, Result: "stale"}, want: "…"},
		{name: "processing", task: tasks.Task{Status: tasks.StatusProcessing}, want: "…"},
		{name: "failed without text", task: tasks.Task{Status: tasks.StatusFailure}, want: "(failed)"},
		{name: "success collapses whitespace", task: tasks.Task{Status: tasks.StatusSuccess, Result: "hello\n  there"}, want: "hello there"},
		{name: "unknown shows result", task: tasks.Task{Status: tasks.StatusUnknown, Result: "partial"}, want: "partial"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resultPreview(tc.task); got != tc.want {
				t.Fatalf("resultPreview = %q, want %q", got, tc.want)
			}
		})
	}

	long := tasks.Task{Status: tasks.StatusSuccess, Result: strings.Repeat("a", resultPreviewWidth+20)}
	if got := resultPreview(long); len(got) > resultPreviewWidth {
		t.Fatalf("expected preview trimmed to %d, got %d", resultPreviewWidth, len(got))
	}
}

func TestTaskViewsUseSnakeCaseKeys(t *testing.T) {
	list := []tasks.Task{{
		ID:        "t-1",
		Name:      "interview.wav",
		Status:    tasks.StatusSuccess,
		RawStatus: "success",
		Result:    "hello",
		CreatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}}
	data, err := json.Marshal(toTaskViews(list))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"id":         "t-1",
		"name":       "interview.wav",
		"status":     "SUCCESS",
		"result":     "hello",
		"created_at": "2024-01-01T12:00:00Z",
	}
	if len(decoded) != 1 || len(decoded[0]) != len(want) {
		t.Fatalf("unexpected views %v", decoded)
	}
	for key, value := range want {
		if decoded[0][key] != value {
			t.Fatalf("%s = %v, want %v", key, decoded[0][key], value)
		}
	}
}
