package oauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHandlerRejectsMissingData(t *testing.T) {
	results := make(chan Result, 1)
	handler := NewHandler("/github/callback", "s1", results, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/github/callback?code=abc", nil))
	if rec.Code != http.StatusBadRequest || rec.Body.String() != missingDataMessage {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if len(results) != 0 {
		t.Fatal("no result should be delivered")
	}
}

func TestHandlerRejectsStateMismatch(t *testing.T) {
	results := make(chan Result, 1)
	handler := NewHandler("/github/callback", "s1", results, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/github/callback?code=abc&state=other", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(results) != 0 {
		t.Fatal("no result should be delivered")
	}
}

func TestHandlerDeliversResult(t *testing.T) {
	results := make(chan Result, 1)
	handler := NewHandler("github/callback", "s1", results, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/github/callback?code=abc&state=s1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	select {
	case res := <-results:
		if res.Code != "abc" || res.State != "s1" {
			t.Fatalf("unexpected result %+v", res)
		}
	default:
		t.Fatal("expected a result")
	}
}

func TestListenerRoundTrip(t *testing.T) {
	l, err := Listen("127.0.0.1:0", "/github/callback", "s1", nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	resp, err := http.Get(l.RedirectURL() + "?code=abc&state=s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "return to the terminal") {
		t.Fatalf("unexpected body %q", body)
	}

	res, err := l.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.Code != "abc" {
		t.Fatalf("code = %q", res.Code)
	}
}

func TestListenerTimeout(t *testing.T) {
	l, err := Listen("127.0.0.1:0", "/github/callback", "s1", nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	if _, err := l.Wait(context.Background(), 20*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestCheckResult(t *testing.T) {
	if err := CheckResult(Result{Code: "c"}, "s"); !errors.Is(err, ErrMissingData) {
		t.Fatalf("expected missing data, got %v", err)
	}
	if err := CheckResult(Result{Code: "c", State: "x"}, "s"); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := CheckResult(Result{Code: "c", State: "s"}, "s"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
