package testsupport

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// FakeToken is the bearer credential FakeBackend issues and accepts.
const FakeToken = "test-token"

// FakeOAuthState is the state FakeBackend issues for GitHub logins.
const FakeOAuthState = "gh-state"

// FakeTask is a task held by FakeBackend.
type FakeTask struct {
	ID        string
	Status    string
	Result    string
	CreatedAt time.Time
	FileName  string
	Language  string
	Audio     []byte
}

// FakeBackend is an in-memory transcription backend served over HTTP under
// the /api prefix.
type FakeBackend struct {
	Server *httptest.Server

	mu          sync.Mutex
	token       string
	users       map[string]string
	tasks       map[string]*FakeTask
	nextID      int
	statusFail  map[string]int
	deleteFail  map[string]int
	hits        map[string]int
	registerTok bool
}

// NewFakeBackend starts a FakeBackend and closes it when the test ends.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()

	gin.SetMode(gin.TestMode)
	f := &FakeBackend{
		token:       FakeToken,
		users:       make(map[string]string),
		tasks:       make(map[string]*FakeTask),
		statusFail:  make(map[string]int),
		deleteFail:  make(map[string]int),
		hits:        make(map[string]int),
		registerTok: true,
	}

	router := gin.New()
	router.Use(f.countHits)
	api := router.Group("/api")
	api.POST("/auth/register", f.register)
	api.POST("/auth/token", f.login)
	api.GET("/auth/github/login", f.githubLogin)
	api.GET("/auth/github/callback", f.githubCallback)

	authed := api.Group("", f.requireToken)
	authed.POST("/transcribe", f.transcribe)
	authed.GET("/status/:id", f.status)
	authed.GET("/tasks", f.list)
	authed.DELETE("/tasks/:id", f.delete)

	f.Server = httptest.NewServer(router)
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the API base URL clients should use.
func (f *FakeBackend) URL() string {
	return f.Server.URL + "/api"
}

// AddUser registers an account.
func (f *FakeBackend) AddUser(email, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email] = password
}

// AddTask seeds a task.
func (f *FakeBackend) AddTask(id, status, result string, createdAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id] = &FakeTask{ID: id, Status: status, Result: result, CreatedAt: createdAt}
}

// SetStatus changes a task's reported status and result.
func (f *FakeBackend) SetStatus(id, status, result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task, ok := f.tasks[id]; ok {
		task.Status = status
		task.Result = result
	}
}

// FailStatus makes GET /status/{id} answer with code. Zero clears it.
func (f *FakeBackend) FailStatus(id string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code == 0 {
		delete(f.statusFail, id)
		return
	}
	f.statusFail[id] = code
}

// FailDelete makes DELETE /tasks/{id} answer with code. Zero clears it.
func (f *FakeBackend) FailDelete(id string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code == 0 {
		delete(f.deleteFail, id)
		return
	}
	f.deleteFail[id] = code
}

// RevokeTokens makes every authenticated call answer 401.
func (f *FakeBackend) RevokeTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
}

// RegisterWithoutToken makes registration answer without a token.
func (f *FakeBackend) RegisterWithoutToken() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerTok = false
}

// Task returns a copy of the stored task.
func (f *FakeBackend) Task(id string) (FakeTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return FakeTask{}, false
	}
	return *task, true
}

// TaskIDs returns stored task ids in creation order.
func (f *FakeBackend) TaskIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedIDs()
}

// Hits returns how many requests reached "METHOD /path" (route pattern).
func (f *FakeBackend) Hits(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[route]
}

func (f *FakeBackend) sortedIDs() []string {
	ids := make([]string, 0, len(f.tasks))
	for id := range f.tasks {
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return f.tasks[ids[i]].CreatedAt.Before(f.tasks[ids[j]].CreatedAt)
	})
	return ids
}

func (f *FakeBackend) countHits(c *gin.Context) {
	c.Next()
	f.mu.Lock()
	f.hits[c.Request.Method+" "+c.FullPath()]++
	f.mu.Unlock()
}

func (f *FakeBackend) requireToken(c *gin.Context) {
	f.mu.Lock()
	token := f.token
	f.mu.Unlock()
	if token == "" || c.GetHeader("Authorization") != "Bearer "+token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
		return
	}
	c.Next()
}

func (f *FakeBackend) issue() gin.H {
	return gin.H{"access_token": f.token, "token_type": "bearer"}
}

func (f *FakeBackend) register(c *gin.Context) {
	email := c.PostForm("email")
	password := c.PostForm("password")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[email]; exists {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Email already registered"})
		return
	}
	f.users[email] = password
	if !f.registerTok {
		c.JSON(http.StatusCreated, gin.H{"message": "created"})
		return
	}
	c.JSON(http.StatusOK, f.issue())
}

func (f *FakeBackend) login(c *gin.Context) {
	email := c.PostForm("email")
	password := c.PostForm("password")
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.users[email]; !ok || stored != password {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect email or password"})
		return
	}
	c.JSON(http.StatusOK, f.issue())
}

func (f *FakeBackend) githubLogin(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"authorization_url": "https://github.com/login/oauth/authorize?state=" + FakeOAuthState,
		"state":             FakeOAuthState,
	})
}

func (f *FakeBackend) githubCallback(c *gin.Context) {
	if c.Query("code") == "" || c.Query("state") != FakeOAuthState {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid OAuth state"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c.JSON(http.StatusOK, f.issue())
}

func (f *FakeBackend) transcribe(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"loc": []string{"body", "file"}, "msg": "field required"}}})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not read upload"})
		return
	}
	defer file.Close()
	audio, _ := io.ReadAll(file)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("task-%d", f.nextID)
	f.tasks[id] = &FakeTask{
		ID:        id,
		Status:    "PENDING",
		CreatedAt: time.Now().UTC(),
		FileName:  header.Filename,
		Language:  c.PostForm("language"),
		Audio:     audio,
	}
	c.JSON(http.StatusOK, gin.H{"task_id": id})
}

func (f *FakeBackend) status(c *gin.Context) {
	id := c.Param("id")
	f.mu.Lock()
	defer f.mu.Unlock()
	if code, ok := f.statusFail[id]; ok {
		c.String(code, http.StatusText(code))
		return
	}
	task, ok := f.tasks[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": task.ID, "status": task.Status, "result": nullable(task.Result)})
}

func (f *FakeBackend) list(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gin.H, 0, len(f.tasks))
	for _, id := range f.sortedIDs() {
		task := f.tasks[id]
		out = append(out, gin.H{
			"id":         task.ID,
			"status":     task.Status,
			"result":     nullable(task.Result),
			"created_at": task.CreatedAt.Format("2006-01-02T15:04:05.000000"),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (f *FakeBackend) delete(c *gin.Context) {
	id := c.Param("id")
	f.mu.Lock()
	defer f.mu.Unlock()
	if code, ok := f.deleteFail[id]; ok {
		c.JSON(code, gin.H{"detail": strings.ToLower(http.StatusText(code))})
		return
	}
	delete(f.tasks, id)
	c.Status(http.StatusNoContent)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
