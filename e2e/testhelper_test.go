package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/musicforge/internal/agent"
	"github.com/makeasinger/musicforge/internal/client"
	"github.com/makeasinger/musicforge/internal/handler"
	"github.com/makeasinger/musicforge/internal/repository"
	"github.com/makeasinger/musicforge/internal/service"
)

// recordingQueue stands in for the asynq client
type recordingQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *recordingQueue) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: service.QueueGeneration}, nil
}

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	orch     *agent.Orchestrator
	registry *agent.Registry
	repo     *repository.RedisRepository
	queue    *recordingQueue
}

// setupApp creates a Fiber app wired like main.go, backed by miniredis and
// the mock chat client.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	repo := repository.NewRedisRepository(redisClient)
	queue := &recordingQueue{}
	chat := client.MockChatClient{}

	registry := agent.NewRegistry(time.Minute, nil)
	orch := agent.NewOrchestrator(chat, repo, agent.WithRegistry(registry))
	projectService := service.NewProjectService(repo, redisClient, queue, nil, 30*time.Minute, nil)

	projectHandler := handler.NewProjectHandler(projectService, orch, validator.New())
	healthHandler := handler.NewHealthHandler("groq", chat, nil, nil, redisClient)

	app := fiber.New()
	handler.RegisterRoutes(app, projectHandler, healthHandler)

	return &testApp{app: app, orch: orch, registry: registry, repo: repo, queue: queue}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// createProject posts a valid project and returns its id.
func createProject(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, err := doRequest(app, http.MethodPost, "/api/projects", validProjectBody, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)

	body := parseJSON(t, resp)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("expected project id, got %v", body)
	}
	return id
}

const validProjectBody = `{
	"name": "Night Drive",
	"description": "moody synthwave for late night driving",
	"genre": "electronic",
	"mood": "dark",
	"tempo": 110,
	"key": "A minor",
	"durationSeconds": 120
}`
