package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrTransport    = errors.New("transport error")
)

// FieldError is a single structured validation failure.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// APIError describes a failed backend call. Kind is one of the sentinel
// errors above; Err holds the underlying network error, if any.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Fields     []FieldError
	Kind       error
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, "status %d: ", e.StatusCode)
	}
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	default:
		b.WriteString("request failed")
	}
	return b.String()
}

func (e *APIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsUnauthorized reports whether err ends the session.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// Message returns the text a user should see for err: the backend's own
// detail when there is one, otherwise a generic sentence.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if len(apiErr.Fields) > 0 {
			return apiErr.Fields[0].Message
		}
		if apiErr.Err != nil {
			return apiErr.Err.Error()
		}
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return "Unexpected error. Please try again."
}

func validationError(op string, fields []FieldError) *APIError {
	msg := ""
	if len(fields) > 0 {
		msg = fields[0].Message
	}
	return &APIError{Op: op, Message: msg, Fields: fields, Kind: ErrValidation}
}

// classify maps an HTTP failure to the taxonomy. authenticated reports
// whether the request carried the bearer credential; a 401 on the login
// endpoints means bad credentials, not an expired session.
func classify(op string, status int, body []byte, authenticated bool) *APIError {
	msg, fields := parseErrorBody(body)
	apiErr := &APIError{Op: op, StatusCode: status, Message: msg, Fields: fields}

	switch {
	case status == http.StatusUnauthorized && authenticated:
		apiErr.Kind = ErrUnauthorized
	case status == http.StatusNotFound:
		apiErr.Kind = ErrNotFound
	case status == http.StatusUnprocessableEntity,
		status == http.StatusBadRequest && (msg != "" || len(fields) > 0),
		status == http.StatusUnauthorized:
		apiErr.Kind = ErrValidation
	default:
		apiErr.Kind = ErrTransport
	}
	if apiErr.Message == "" && apiErr.Kind == ErrTransport {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message *string         `json:"message"`
}

type detailItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// parseErrorBody understands {"detail": "text"}, {"detail": ["text"]},
// {"detail": [{"loc": [...], "msg": "text"}]} and {"message": "text"}.
func parseErrorBody(body []byte) (string, []FieldError) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", nil
	}
	var payload errorBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}

	if len(payload.Detail) > 0 {
		var text string
		if err := json.Unmarshal(payload.Detail, &text); err == nil {
			return strings.TrimSpace(text), nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(payload.Detail, &items); err == nil {
			var fields []FieldError
			for _, raw := range items {
				var s string
				if err := json.Unmarshal(raw, &s); err == nil {
					fields = append(fields, FieldError{Message: s})
					continue
				}
				var item detailItem
				if err := json.Unmarshal(raw, &item); err == nil && item.Msg != "" {
					fields = append(fields, FieldError{Field: locField(item.Loc), Message: item.Msg})
				}
			}
			if len(fields) > 0 {
				return fields[0].Message, fields
			}
		}
	}
	if payload.Message != nil {
		return strings.TrimSpace(*payload.Message), nil
	}
	return "", nil
}

// locField picks the last string element of a FastAPI-style loc path.
func locField(loc []any) string {
	for i := len(loc) - 1; i >= 0; i-- {
		if s, ok := loc[i].(string); ok {
			return s
		}
	}
	return ""
}
