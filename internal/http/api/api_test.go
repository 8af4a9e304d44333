package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/devagent/internal/app/develop"
	"github.com/slok/devagent/internal/app/service"
	"github.com/slok/devagent/internal/hub"
	"github.com/slok/devagent/internal/http/api"
	"github.com/slok/devagent/internal/model"
	"github.com/slok/devagent/internal/queue"
	"github.com/slok/devagent/internal/scaffold"
	"github.com/slok/devagent/internal/storage/memory"
)

type noopRegistrar struct{}

func (noopRegistrar) Register(context.Context, hub.Registration) {}

// taskResults records the outcome of every processed task.
type taskResults struct {
	mu      sync.Mutex
	results map[string]error
}

func (t *taskResults) wrap(h queue.Handler) queue.Handler {
	return queue.HandlerFunc(func(ctx context.Context, task model.Task) error {
		err := h.Handle(ctx, task)
		t.mu.Lock()
		defer t.mu.Unlock()
		t.results[task.ID] = err
		return err
	})
}

func (t *taskResults) Done(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.results[id]
	return ok
}

func (t *taskResults) Err(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.results[id]
}

type testAgent struct {
	root    string
	handler http.Handler
	queue   *queue.Queue
	results *taskResults
}

func newTestAgent(t *testing.T) testAgent {
	t.Helper()

	root := t.TempDir()
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	sc, err := scaffold.New(scaffold.Config{Root: root})
	require.NoError(t, err)

	dev, err := develop.NewHandler(develop.HandlerConfig{Repository: repo, Scaffolder: sc, Registrar: noopRegistrar{}})
	require.NoError(t, err)

	results := &taskResults{results: map[string]error{}}
	q, err := queue.New(context.Background(), queue.Config{Repository: repo, Handler: results.wrap(dev)})
	require.NoError(t, err)

	svc, err := service.NewService(service.ServiceConfig{Repository: repo})
	require.NoError(t, err)

	h, err := api.NewHandler(api.HandlerConfig{Services: svc, Queue: q})
	require.NoError(t, err)

	return testAgent{root: root, handler: h, queue: q, results: results}
}

func (a testAgent) startConsumer(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = a.queue.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (a testAgent) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			reqBody.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	resp := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func TestNewHandler(t *testing.T) {
	_, err := api.NewHandler(api.HandlerConfig{})
	assert.Error(t, err)
}

func TestHealthAndStatus(t *testing.T) {
	a := newTestAgent(t)

	code, resp := a.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["ok"])

	code, resp = a.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["success"])
	status := resp["status"].(map[string]any)
	assert.Equal(t, true, status["running"])
	assert.Equal(t, false, status["processing"])
	assert.Equal(t, float64(0), status["queueSize"])
	assert.Nil(t, status["activeTask"])
	assert.GreaterOrEqual(t, status["uptime"], float64(0))

	// Queued tasks without a consumer, the head is reported.
	code, resp = a.do(t, http.MethodPost, "/api/tasks", map[string]any{"type": "createService", "serviceName": "users", "serviceType": "backend"})
	require.Equal(t, http.StatusCreated, code)
	headID := resp["taskId"]
	code, _ = a.do(t, http.MethodPost, "/api/tasks", map[string]any{"type": "createService", "serviceName": "orders", "serviceType": "backend"})
	require.Equal(t, http.StatusCreated, code)

	code, resp = a.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, code)
	status = resp["status"].(map[string]any)
	assert.Equal(t, true, status["running"])
	assert.Equal(t, false, status["processing"])
	assert.Equal(t, float64(2), status["queueSize"])
	head, ok := status["activeTask"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, headID, head["id"])
	assert.Equal(t, "queued", head["status"])

	code, resp = a.do(t, http.MethodGet, "/api/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, resp["success"])
}

func TestServicesAPI(t *testing.T) {
	type call struct {
		method  string
		path    string
		body    any
		expCode int
	}

	tests := map[string]struct {
		calls []call
		check func(t *testing.T, resp map[string]any)
	}{
		"Creating a service should return it": {
			calls: []call{
				{http.MethodPost, "/api/services", map[string]any{"name": "users", "type": "backend", "requirements": map[string]any{"description": "users api"}}, http.StatusCreated},
			},
			check: func(t *testing.T, resp map[string]any) {
				svc := resp["service"].(map[string]any)
				assert.Equal(t, "users", svc["name"])
				assert.Equal(t, "backend", svc["type"])
			},
		},
		"Creating a service without type should fail": {
			calls: []call{
				{http.MethodPost, "/api/services", map[string]any{"name": "users"}, http.StatusBadRequest},
			},
		},
		"Creating a service with an unknown type should fail": {
			calls: []call{
				{http.MethodPost, "/api/services", map[string]any{"name": "users", "type": "mobile"}, http.StatusBadRequest},
			},
		},
		"Creating a service with a path-like name should fail": {
			calls: []call{
				{http.MethodPost, "/api/services", map[string]any{"name": "../users", "type": "backend"}, http.StatusBadRequest},
			},
		},
		"Creating a service with invalid JSON should fail": {
			calls: []call{
				{http.MethodPost, "/api/services", "{", http.StatusBadRequest},
			},
		},
		"Creating a duplicated service should conflict": {
			calls: []call{
				{http.MethodPost, "/api/services", map[string]any{"name": "users", "type": "backend"}, http.StatusCreated},
				{http.MethodPost, "/api/services", map[string]any{"name": "users", "type": "frontend"}, http.StatusConflict},
			},
		},
		"Getting a missing service should fail": {
			calls: []call{
				{http.MethodGet, "/api/services/users", nil, http.StatusNotFound},
			},
		},
		"Listing services should return them sorted": {
			calls: []call{
				{http.MethodPost, "/api/services", map[string]any{"name": "web", "type": "frontend"}, http.StatusCreated},
				{http.MethodPost, "/api/services", map[string]any{"name": "api", "type": "backend"}, http.StatusCreated},
				{http.MethodGet, "/api/services", nil, http.StatusOK},
			},
			check: func(t *testing.T, resp map[string]any) {
				services := resp["services"].([]any)
				require.Len(t, services, 2)
				assert.Equal(t, "api", services[0].(map[string]any)["name"])
				assert.Equal(t, "web", services[1].(map[string]any)["name"])
			},
		},
		"Listing no services should return an empty list": {
			calls: []call{
				{http.MethodGet, "/api/services", nil, http.StatusOK},
			},
			check: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, []any{}, resp["services"])
			},
		},
		"Updating a service should change it": {
			calls: []call{
				{http.MethodPost, "/api/services", map[string]any{"name": "users", "type": "backend"}, http.StatusCreated},
				{http.MethodPut, "/api/services/users", map[string]any{"type": "fullstack"}, http.StatusOK},
				{http.MethodGet, "/api/services/users", nil, http.StatusOK},
			},
			check: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, "fullstack", resp["service"].(map[string]any)["type"])
			},
		},
		"Updating a service with an unknown type should fail": {
			calls: []call{
				{http.MethodPost, "/api/services", map[string]any{"name": "users", "type": "backend"}, http.StatusCreated},
				{http.MethodPut, "/api/services/users", map[string]any{"type": "mobile"}, http.StatusBadRequest},
			},
		},
		"Updating a missing service should fail": {
			calls: []call{
				{http.MethodPut, "/api/services/users", map[string]any{"type": "backend"}, http.StatusNotFound},
			},
		},
		"Deleting a service should remove it": {
			calls: []call{
				{http.MethodPost, "/api/services", map[string]any{"name": "users", "type": "backend"}, http.StatusCreated},
				{http.MethodDelete, "/api/services/users", nil, http.StatusOK},
				{http.MethodGet, "/api/services/users", nil, http.StatusNotFound},
			},
		},
		"Deleting a missing service should fail": {
			calls: []call{
				{http.MethodDelete, "/api/services/users", nil, http.StatusNotFound},
			},
		},
		"Adding features should append them without dedup": {
			calls: []call{
				{http.MethodPost, "/api/services", map[string]any{"name": "users", "type": "backend"}, http.StatusCreated},
				{http.MethodPost, "/api/services/users/features", map[string]any{"featureName": "login", "priority": "high"}, http.StatusCreated},
				{http.MethodPost, "/api/services/users/features", map[string]any{"featureName": "login"}, http.StatusCreated},
			},
			check: func(t *testing.T, resp map[string]any) {
				features := resp["service"].(map[string]any)["features"].([]any)
				require.Len(t, features, 2)
				f := resp["feature"].(map[string]any)
				assert.Equal(t, "login", f["name"])
				assert.Equal(t, "medium", f["priority"])
				assert.Equal(t, "pending", f["status"])
			},
		},
		"Adding a feature without name should fail": {
			calls: []call{
				{http.MethodPost, "/api/services", map[string]any{"name": "users", "type": "backend"}, http.StatusCreated},
				{http.MethodPost, "/api/services/users/features", map[string]any{"description": "x"}, http.StatusBadRequest},
			},
		},
		"Adding a feature to a missing service should fail": {
			calls: []call{
				{http.MethodPost, "/api/services/users/features", map[string]any{"featureName": "login"}, http.StatusNotFound},
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			a := newTestAgent(t)

			var resp map[string]any
			for _, c := range test.calls {
				var code int
				code, resp = a.do(t, c.method, c.path, c.body)
				require.Equal(t, c.expCode, code, "%s %s: %v", c.method, c.path, resp)
				assert.Equal(t, code < 300, resp["success"])
			}

			if test.check != nil {
				test.check(t, resp)
			}

			// Service mutations never enqueue tasks.
			assert.Empty(t, a.queue.Tasks())
		})
	}
}

func TestCreateTaskValidation(t *testing.T) {
	tests := map[string]struct {
		body    any
		expCode int
	}{
		"A task without type should fail":         {body: map[string]any{"serviceName": "a"}, expCode: http.StatusBadRequest},
		"A task without service name should fail": {body: map[string]any{"type": "createService"}, expCode: http.StatusBadRequest},
		"Invalid JSON should fail":                {body: "nope", expCode: http.StatusBadRequest},
		"An unknown task type should be accepted": {body: map[string]any{"type": "deploy", "serviceName": "a"}, expCode: http.StatusCreated},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			a := newTestAgent(t)

			code, resp := a.do(t, http.MethodPost, "/api/tasks", test.body)
			assert.Equal(t, test.expCode, code)
			if test.expCode == http.StatusCreated {
				assert.NotEmpty(t, resp["taskId"])
				assert.Len(t, a.queue.Tasks(), 1)
			} else {
				assert.Empty(t, a.queue.Tasks())
			}
		})
	}
}

func TestCreateServiceEndToEnd(t *testing.T) {
	a := newTestAgent(t)

	code, _ := a.do(t, http.MethodPost, "/api/services", map[string]any{"name": "svc-a", "type": "backend"})
	require.Equal(t, http.StatusCreated, code)

	code, resp := a.do(t, http.MethodPost, "/api/tasks", map[string]any{"type": "createService", "serviceName": "svc-a", "serviceType": "backend"})
	require.Equal(t, http.StatusCreated, code)
	taskID := resp["taskId"].(string)

	_, resp = a.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, float64(1), resp["status"].(map[string]any)["queueSize"])

	a.startConsumer(t)
	require.Eventually(t, func() bool {
		_, resp := a.do(t, http.MethodGet, "/api/tasks", nil)
		return len(resp["tasks"].([]any)) == 0
	}, 5*time.Second, 10*time.Millisecond)

	require.True(t, a.results.Done(taskID))
	assert.NoError(t, a.results.Err(taskID))

	for _, dir := range []string{"controllers", "models", "routes", "middlewares", "services", "config"} {
		assert.DirExists(t, filepath.Join(a.root, "svc-a", dir))
	}
	assert.FileExists(t, filepath.Join(a.root, "svc-a", "server.js"))
}

func TestEnqueuedTasksAreListedInOrder(t *testing.T) {
	a := newTestAgent(t)

	_, resp1 := a.do(t, http.MethodPost, "/api/tasks", map[string]any{"type": "createService", "serviceName": "svc-b", "serviceType": "backend"})
	_, resp2 := a.do(t, http.MethodPost, "/api/tasks", map[string]any{"type": "addFeature", "serviceName": "svc-b", "requirements": map[string]any{"featureName": "login"}})

	code, resp := a.do(t, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, code)
	tasks := resp["tasks"].([]any)
	require.Len(t, tasks, 2)

	first, second := tasks[0].(map[string]any), tasks[1].(map[string]any)
	assert.Equal(t, resp1["taskId"], first["id"])
	assert.Equal(t, "createService", first["type"])
	assert.Equal(t, "queued", first["status"])
	assert.Equal(t, resp2["taskId"], second["id"])
	assert.Equal(t, "addFeature", second["type"])
}

func TestFailedTaskDoesNotBlockQueue(t *testing.T) {
	a := newTestAgent(t)

	_, bad := a.do(t, http.MethodPost, "/api/tasks", map[string]any{"type": "createService", "serviceName": "svc-c", "serviceType": "unknown"})
	_, good := a.do(t, http.MethodPost, "/api/tasks", map[string]any{"type": "createService", "serviceName": "svc-d", "serviceType": "frontend"})

	a.startConsumer(t)
	require.Eventually(t, func() bool {
		return a.results.Done(good["taskId"].(string))
	}, 5*time.Second, 10*time.Millisecond)

	badID := bad["taskId"].(string)
	require.True(t, a.results.Done(badID))
	err := a.results.Err(badID)
	require.ErrorIs(t, err, model.ErrNotValid)
	assert.NotEmpty(t, err.Error())

	assert.NoError(t, a.results.Err(good["taskId"].(string)))
	assert.DirExists(t, filepath.Join(a.root, "svc-d", "src", "components"))
	assert.NoDirExists(t, filepath.Join(a.root, "svc-c"))
}
