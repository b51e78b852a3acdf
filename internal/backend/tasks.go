package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
)

// DefaultLanguage lets the backend detect the spoken language.
const DefaultLanguage = "auto"

// Transcribe uploads audio and returns the backend task id.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, fileName, language string) (string, error) {
	const op = "transcribe"
	if audio == nil {
		return "", validationError(op, []FieldError{{Field: "file", Message: "Please choose a file to upload."}})
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		fileName = "audio"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("language", language); err != nil {
		return "", fmt.Errorf("%s: write language field: %w", op, err)
	}
	field, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("%s: create file field: %w", op, err)
	}
	if _, err := io.Copy(field, audio); err != nil {
		return "", fmt.Errorf("%s: copy audio: %w", op, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%s: close multipart writer: %w", op, err)
	}

	var resp transcribeResponse
	err = c.do(ctx, request{
		op:            op,
		method:        http.MethodPost,
		path:          "/transcribe",
		body:          body,
		contentType:   writer.FormDataContentType(),
		authenticated: true,
	}, &resp)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(resp.TaskID.String())
	if id == "" {
		return "", &APIError{Op: op, Message: "Upload accepted without a task id.", Kind: ErrTransport}
	}
	return id, nil
}

// Status fetches the current state of one task.
func (c *Client) Status(ctx context.Context, id string) (TaskStatus, error) {
	var status TaskStatus
	err := c.do(ctx, request{
		op:            "status",
		method:        http.MethodGet,
		path:          "/status/" + url.PathEscape(id),
		authenticated: true,
	}, &status)
	if err != nil {
		return TaskStatus{}, err
	}
	if status.ID == "" {
		status.ID = FlexString(id)
	}
	return status, nil
}

// ListTasks returns every task owned by the signed-in user.
func (c *Client) ListTasks(ctx context.Context) ([]TaskRecord, error) {
	var records []TaskRecord
	err := c.do(ctx, request{
		op:            "list tasks",
		method:        http.MethodGet,
		path:          "/tasks",
		authenticated: true,
	}, &records)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteTask removes a task. A task that no longer exists is reported as
// ErrNotFound so callers can treat it as already deleted.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, request{
		op:            "delete task",
		method:        http.MethodDelete,
		path:          "/tasks/" + url.PathEscape(id),
		authenticated: true,
	}, nil)
}
