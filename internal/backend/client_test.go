package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

type staticToken string

func (s staticToken) Token() (string, error) {
	if s == "" {
		return "", ErrUnauthorized
	}
	return string(s), nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(server.URL+"/api", opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestLoginPostsFormAndReturnsToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != formContentType {
			t.Errorf("content type = %q", ct)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("login must not send a bearer credential")
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("email") != "ada@example.com" || r.PostForm.Get("password") != "secret" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		_, _ = io.WriteString(w, `{"access_token":"abc","token_type":"bearer"}`)
	})

	token, err := client.Login(context.Background(), Credentials{Email: " ada@example.com ", Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token.AccessToken != "abc" || token.TokenType != "bearer" {
		t.Fatalf("unexpected token %+v", token)
	}
}

func TestLoginRejectedIsValidationNotUnauthorized(t *testing.T) {
	var hooked atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Incorrect email or password"}`)
	}, WithUnauthorizedHandler(func() { hooked.Add(1) }))

	_, err := client.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "nope"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if IsUnauthorized(err) {
		t.Fatal("rejected login must not end a session")
	}
	if got := Message(err); got != "Incorrect email or password" {
		t.Fatalf("message = %q", got)
	}
	if hooked.Load() != 0 {
		t.Fatal("unauthorized hook fired for unauthenticated call")
	}
}

func TestCredentialsValidatedLocally(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	cases := []struct {
		name  string
		creds Credentials
		field string
	}{
		{name: "missing email", creds: Credentials{Password: "x"}, field: "email"},
		{name: "bad email", creds: Credentials{Email: "not-an-email", Password: "x"}, field: "email"},
		{name: "missing password", creds: Credentials{Email: "ada@example.com"}, field: "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Login(context.Background(), tc.creds)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || len(apiErr.Fields) == 0 || apiErr.Fields[0].Field != tc.field {
				t.Fatalf("unexpected fields: %+v", apiErr)
			}
		})
	}
	if calls.Load() != 0 {
		t.Fatalf("invalid credentials reached the backend %d times", calls.Load())
	}
}

func TestRegisterTokenOptional(t *testing.T) {
	body := `{"message":"created"}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/register" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, body)
	})

	token, err := client.Register(context.Background(), Credentials{Email: "ada@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if token != nil {
		t.Fatalf("expected no token, got %+v", token)
	}

	body = `{"access_token":"fresh","token_type":"bearer"}`
	token, err = client.Register(context.Background(), Credentials{Email: "ada@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if token == nil || token.AccessToken != "fresh" {
		t.Fatalf("expected token, got %+v", token)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail":"Email already registered"}`)
	})
	_, err := client.Register(context.Background(), Credentials{Email: "ada@example.com", Password: "pw"})
	if !errors.Is(err, ErrValidation) || Message(err) != "Email already registered" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestTranscribeSendsMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transcribe" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if lang := r.FormValue("language"); lang != "auto" {
			t.Errorf("language = %q", lang)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "interview.wav" || string(data) != "RIFF" {
			t.Errorf("unexpected upload %q %q", header.Filename, data)
		}
		_, _ = io.WriteString(w, `{"task_id":"t-1"}`)
	}, WithTokenSource(staticToken("tok")))

	id, err := client.Transcribe(context.Background(), strings.NewReader("RIFF"), "/tmp/interview.wav", "")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if id != "t-1" {
		t.Fatalf("id = %q", id)
	}
}

func TestMissingCredentialSkipsRequest(t *testing.T) {
	var calls, hooked atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, WithTokenSource(staticToken("")), WithUnauthorizedHandler(func() { hooked.Add(1) }))

	_, err := client.ListTasks(context.Background())
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if calls.Load() != 0 || hooked.Load() != 0 {
		t.Fatalf("calls=%d hooked=%d", calls.Load(), hooked.Load())
	}
}

func TestAuthenticatedErrorsClassified(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
		hook   bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"detail":"Could not validate credentials"}`, want: ErrUnauthorized, hook: true},
		{name: "not found", status: http.StatusNotFound, body: `{"detail":"Task not found"}`, want: ErrNotFound},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, body: `{"detail":[{"loc":["body","file"],"msg":"field required"}]}`, want: ErrValidation},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, want: ErrTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hooked atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}, WithTokenSource(staticToken("tok")), WithUnauthorizedHandler(func() { hooked.Add(1) }))

			_, err := client.Status(context.Background(), "t-1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if tc.hook != (hooked.Load() == 1) {
				t.Fatalf("hook fired %d times", hooked.Load())
			}
		})
	}
}

func TestValidationDetailFields(t *testing.T) {
	msg, fields := parseErrorBody([]byte(`{"detail":[{"loc":["body","file"],"msg":"field required"},{"loc":["body","language"],"msg":"bad language"}]}`))
	if msg != "field required" || len(fields) != 2 || fields[0].Field != "file" || fields[1].Field != "language" {
		t.Fatalf("unexpected parse %q %+v", msg, fields)
	}
}

func TestNetworkFailureIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := New(url, WithTokenSource(staticToken("tok")))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.ListTasks(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if Message(err) == "" {
		t.Fatal("expected a user-facing message")
	}
}

func TestListTasksAcceptsNumericIDs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":42,"status":"SUCCESS","result":"hi","created_at":"2024-01-01T00:00:00"},{"id":"abc","status":"pending","result":null,"created_at":null}]`)
	}, WithTokenSource(staticToken("tok")))

	records, err := client.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].ID != "42" || records[1].ID != "abc" {
		t.Fatalf("unexpected records %+v", records)
	}
	if records[1].Result != "" || records[1].CreatedAt != "" {
		t.Fatalf("expected nulls to decode empty, got %+v", records[1])
	}
}

func TestDeleteTaskEscapesID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.EscapedPath() != "/api/tasks/a%2Fb" {
			t.Errorf("path = %s", r.URL.EscapedPath())
		}
		w.WriteHeader(http.StatusNoContent)
	}, WithTokenSource(staticToken("tok")))

	if err := client.DeleteTask(context.Background(), "a/b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestCompleteGitHubLoginRequiresCodeAndState(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("code") != "c" || r.URL.Query().Get("state") != "s" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"access_token":"gh","token_type":"bearer"}`)
	})

	if _, err := client.CompleteGitHubLogin(context.Background(), "", "s"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	token, err := client.CompleteGitHubLogin(context.Background(), "c", "s")
	if err != nil || token.AccessToken != "gh" {
		t.Fatalf("complete: %+v %v", token, err)
	}
}

func TestNewNormalizesBaseURL(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{raw: "http://localhost:8000/api/", want: "http://localhost:8000/api"},
		{raw: " localhost:8000/api ", want: "http://localhost:8000/api"},
		{raw: "https://scribe.example.com/api?x=1#frag", want: "https://scribe.example.com/api"},
	}
	for _, tc := range cases {
		client, err := New(tc.raw)
		if err != nil {
			t.Fatalf("New(%q): %v", tc.raw, err)
		}
		if got := client.BaseURL(); got != tc.want {
			t.Fatalf("BaseURL() for %q = %q, want %q", tc.raw, got, tc.want)
		}
	}
	if _, err := New("   "); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
