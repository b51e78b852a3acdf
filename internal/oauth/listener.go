// Package oauth receives the GitHub OAuth redirect on a loopback address so
// the CLI can finish a browser login.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"scribe/internal/logging"
)

const (
	missingDataMessage = "Missing GitHub authorization data."
	stateMessage       = "GitHub login could not be verified. Start the login again."
	successMessage     = "GitHub login received. You can close this window and return to the terminal."
)

var (
	// ErrMissingData means the redirect lacked a code or state.
	ErrMissingData = errors.New("missing github authorization data")
	// ErrStateMismatch means the redirect carried a state we did not issue.
	ErrStateMismatch = errors.New("github oauth state mismatch")
	// ErrTimeout means no redirect arrived in time.
	ErrTimeout = errors.New("timed out waiting for github login")
)

// Result is the code/state pair delivered by the redirect.
type Result struct {
	Code  string
	State string
}

// NewHandler builds the gin engine serving GET path. Valid redirects are sent
// on results; the first one wins and later ones are dropped.
func NewHandler(path, expectedState string, results chan<- Result, logger *slog.Logger) http.Handler {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	logger = logging.NewComponentLogger(logger, "oauth")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET(path, func(c *gin.Context) {
		code := strings.TrimSpace(c.Query("code"))
		state := strings.TrimSpace(c.Query("state"))
		if code == "" || state == "" {
			logger.Warn("github redirect missing data", logging.String(logging.FieldEventType, "oauth_missing_data"))
			c.String(http.StatusBadRequest, missingDataMessage)
			return
		}
		if expectedState != "" && state != expectedState {
			logger.Warn("github redirect state mismatch", logging.String(logging.FieldEventType, "oauth_state_mismatch"))
			c.String(http.StatusBadRequest, stateMessage)
			return
		}
		select {
		case results <- Result{Code: code, State: state}:
		default:
		}
		c.String(http.StatusOK, successMessage)
	})
	return router
}

// Listener serves the redirect endpoint until closed.
type Listener struct {
	path    string
	ln      net.Listener
	server  *http.Server
	results chan Result
	logger  *slog.Logger
}

// Listen binds bind (host:port) and starts serving the redirect path.
func Listen(bind, path, expectedState string, logger *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("listen for github redirect on %s: %w", bind, err)
	}
	results := make(chan Result, 1)
	l := &Listener{
		path:    path,
		ln:      ln,
		results: results,
		logger:  logging.NewComponentLogger(logger, "oauth"),
	}
	l.server = &http.Server{
		Handler:           NewHandler(path, expectedState, results, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Warn("github redirect listener stopped", logging.Error(err))
		}
	}()
	return l, nil
}

// RedirectURL is the address GitHub should send the browser back to.
func (l *Listener) RedirectURL() string {
	return "http://" + l.ln.Addr().String() + l.path
}

// Wait blocks until a valid redirect arrives, ctx ends, or timeout elapses.
func (l *Listener) Wait(ctx context.Context, timeout time.Duration) (Result, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case res := <-l.results:
		return res, nil
	case <-expired:
		return Result{}, ErrTimeout
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close shuts the listener down.
func (l *Listener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return l.server.Shutdown(ctx)
}

// CheckResult validates a code/state pair supplied by hand.
func CheckResult(res Result, expectedState string) error {
	if strings.TrimSpace(res.Code) == "" || strings.TrimSpace(res.State) == "" {
		return ErrMissingData
	}
	if expectedState != "" && res.State != expectedState {
		return ErrStateMismatch
	}
	return nil
}
