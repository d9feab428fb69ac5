package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"smart_mailbox/adapter/in/worker"
	"smart_mailbox/adapter/out/realtime"
	"smart_mailbox/config"
	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
	"smart_mailbox/infra/middleware"
)

type fakeService struct {
	emails    []*domain.EmailRecord
	connected bool
	lastQuery *domain.EmailFilter
}

func (f *fakeService) ProcessFiles(ctx context.Context, paths []string, progress out.ProgressPublisher) (*domain.BatchSummary, error) {
	return domain.NewBatchSummary(len(paths)), nil
}

func (f *fakeService) ReanalyzeUnprocessed(ctx context.Context, limit int, progress out.ProgressPublisher) (*domain.BatchSummary, error) {
	return domain.NewBatchSummary(0), nil
}

func (f *fakeService) Reanalyze(ctx context.Context, id string) (*domain.ReanalyzeResult, error) {
	switch id {
	case "e1":
		return &domain.ReanalyzeResult{EmailID: id, AIProcessed: true, Tags: []string{"Important"}}, nil
	case "offline":
		return nil, domain.ErrModelUnavailable
	}
	return nil, domain.ErrEmailNotFound
}

func (f *fakeService) CheckConnection(ctx context.Context) (bool, []string) {
	if !f.connected {
		return false, nil
	}
	return true, []string{"llama3.2:latest"}
}

func (f *fakeService) Replies(ctx context.Context, id string) ([]*domain.EmailRecord, error) {
	if id != "e1" {
		return nil, domain.ErrEmailNotFound
	}
	return nil, nil
}

func (f *fakeService) ListEmails(ctx context.Context, filter *domain.EmailFilter) ([]*domain.EmailRecord, error) {
	f.lastQuery = filter
	var matched []*domain.EmailRecord
	for _, e := range f.emails {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	return filter.Page(matched), nil
}

func (f *fakeService) DeleteEmails(ctx context.Context, ids []string) (*domain.DeleteResult, error) {
	return &domain.DeleteResult{Succeeded: len(ids)}, nil
}

func (f *fakeService) Stats(ctx context.Context) (*domain.ProcessingStats, error) {
	return &domain.ProcessingStats{Total: len(f.emails)}, nil
}

type fakeRunner struct {
	jobs map[string]*worker.JobView
	full bool
}

func (r *fakeRunner) SubmitFiles(paths []string) (*worker.JobView, error) {
	if r.full {
		return nil, worker.ErrQueueFull
	}
	v := &worker.JobView{ID: fmt.Sprintf("job-%d", len(r.jobs)+1), Type: worker.JobProcessFiles, State: worker.StateQueued, Files: len(paths)}
	r.jobs[v.ID] = v
	return v, nil
}

func (r *fakeRunner) SubmitSweep(limit int) (*worker.JobView, error) {
	v := &worker.JobView{ID: "sweep", Type: worker.JobSweep, State: worker.StateQueued}
	r.jobs[v.ID] = v
	return v, nil
}

func (r *fakeRunner) Get(id string) (*worker.JobView, error) {
	if v, ok := r.jobs[id]; ok {
		return v, nil
	}
	return nil, domain.ErrBatchNotFound
}

func (r *fakeRunner) Cancel(id string) (*worker.JobView, error) {
	v, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	v.State = worker.StateCancelled
	return v, nil
}

func (r *fakeRunner) List() []*worker.JobView {
	views := make([]*worker.JobView, 0, len(r.jobs))
	for _, v := range r.jobs {
		views = append(views, v)
	}
	return views
}

type testEnv struct {
	app     *fiber.App
	svc     *fakeService
	runner  *fakeRunner
	hub     *realtime.Hub
	applied []config.AISettings
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		svc:    &fakeService{connected: true},
		runner: &fakeRunner{jobs: map[string]*worker.JobView{}},
		hub:    realtime.NewHub(zerolog.Nop()),
	}
	for i := 0; i < 5; i++ {
		env.svc.emails = append(env.svc.emails, &domain.EmailRecord{
			ID:      fmt.Sprintf("e%d", i+1),
			Subject: fmt.Sprintf("Report %d", i+1),
			Tags:    []string{"Important"},
		})
	}

	store, err := config.LoadAISettings(t.TempDir(), config.AISettings{
		Provider: "ollama", Model: "llama3.2", ServerURL: "http://localhost:11434", TimeoutSec: 60, MaxTokens: 1024,
	})
	if err != nil {
		t.Fatal(err)
	}

	env.app = fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	NewHealthHandler(nil).Register(env.app)
	api := env.app.Group("/api")
	NewEmailHandler(env.svc).Register(api)
	NewBatchHandler(env.runner).Register(api)
	NewSSEHandler(env.hub, zerolog.Nop()).Register(api)
	NewSettingsHandler(store, func(s config.AISettings) error {
		env.applied = append(env.applied, s)
		return nil
	}).Register(api)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestEmailRoutes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"health", "GET", "/health", "", 200, ""},
		{"connection", "GET", "/api/connection", "", 200, ""},
		{"stats", "GET", "/api/stats", "", 200, ""},
		{"reanalyze", "POST", "/api/emails/e1/reanalyze", "", 200, ""},
		{"reanalyze missing", "POST", "/api/emails/nope/reanalyze", "", 404, "NOT_FOUND"},
		{"reanalyze offline", "POST", "/api/emails/offline/reanalyze", "", 503, "MODEL_UNAVAILABLE"},
		{"replies", "GET", "/api/emails/e1/replies", "", 200, ""},
		{"replies missing", "GET", "/api/emails/zz/replies", "", 404, "NOT_FOUND"},
		{"delete", "DELETE", "/api/emails", `{"ids":["e1","e2"]}`, 200, ""},
		{"delete without ids", "DELETE", "/api/emails", `{"ids":[]}`, 400, "MISSING_FIELD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.target, tt.body)
			if status != tt.status {
				t.Errorf("expected %d, got %d (%v)", tt.status, status, body)
			}
			if tt.code != "" && errorCode(body) != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, errorCode(body))
			}
		})
	}
}

func TestConnectionOffline(t *testing.T) {
	env := newTestEnv(t)
	env.svc.connected = false

	_, body := env.do(t, "GET", "/api/connection", "")
	data := body["data"].(map[string]any)
	if data["connected"] != false {
		t.Errorf("expected disconnected, got %v", data["connected"])
	}
	if models, ok := data["models"].([]any); !ok || len(models) != 0 {
		t.Errorf("expected empty model list, got %v", data["models"])
	}
}

func TestListEmailsPaging(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, "GET", "/api/emails?limit=2&offset=1&q=report", "")
	data := body["data"].(map[string]any)
	if data["count"] != float64(2) || data["has_more"] != true {
		t.Errorf("unexpected page %v", data)
	}
	if env.svc.lastQuery.Query != "report" || env.svc.lastQuery.Offset != 1 {
		t.Errorf("unexpected filter %+v", env.svc.lastQuery)
	}

	_, body = env.do(t, "GET", "/api/emails?limit=2&offset=4", "")
	data = body["data"].(map[string]any)
	if data["count"] != float64(1) || data["has_more"] != false {
		t.Errorf("unexpected last page %v", data)
	}
}

func TestBatchRoutes(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, "POST", "/api/batches", `{"paths":["/tmp/a.eml","/tmp/b.eml"]}`)
	if status != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
	id := body["data"].(map[string]any)["id"].(string)

	if status, _ := env.do(t, "GET", "/api/batches/"+id, ""); status != 200 {
		t.Errorf("expected 200, got %d", status)
	}
	_, body = env.do(t, "DELETE", "/api/batches/"+id, "")
	if state := body["data"].(map[string]any)["state"]; state != string(worker.StateCancelled) {
		t.Errorf("expected cancelled, got %v", state)
	}
	if status, _ := env.do(t, "GET", "/api/batches/unknown", ""); status != 404 {
		t.Errorf("expected 404, got %d", status)
	}
	if status, _ := env.do(t, "POST", "/api/batches", `{"paths":[]}`); status != 400 {
		t.Errorf("expected 400, got %d", status)
	}
	if status, _ := env.do(t, "POST", "/api/batches/sweep", ""); status != fiber.StatusAccepted {
		t.Errorf("expected 202, got %d", status)
	}

	env.runner.full = true
	status, body = env.do(t, "POST", "/api/batches", `{"paths":["/tmp/c.eml"]}`)
	if status != fiber.StatusTooManyRequests || errorCode(body) != "QUEUE_FULL" {
		t.Errorf("expected 429 QUEUE_FULL, got %d %s", status, errorCode(body))
	}
}

func TestSettingsRoutes(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, "GET", "/api/settings/ai", "")
	if model := body["data"].(map[string]any)["model"]; model != "llama3.2" {
		t.Errorf("expected llama3.2, got %v", model)
	}

	status, body := env.do(t, "PUT", "/api/settings/ai", `{"model":"qwen3","disable_thinking":true}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	if len(env.applied) != 1 || env.applied[0].Model != "qwen3" {
		t.Errorf("expected applier called with new model, got %+v", env.applied)
	}

	if status, _ := env.do(t, "PUT", "/api/settings/ai", `{"provider":"bard"}`); status != 400 {
		t.Errorf("expected 400, got %d", status)
	}
	if len(env.applied) != 1 {
		t.Errorf("expected invalid settings not applied, got %d calls", len(env.applied))
	}
}

func TestSSEStreamEndsOnBatchDone(t *testing.T) {
	env := newTestEnv(t)

	var (
		wg   sync.WaitGroup
		resp *http.Response
		err  error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err = env.app.Test(httptest.NewRequest("GET", "/api/events?batch=b1", nil), 5000)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for env.hub.Metrics().Connections == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx := context.Background()
	_ = env.hub.PublishProgress(ctx, &domain.Progress{BatchID: "other", Index: 1, Total: 1})
	_ = env.hub.PublishProgress(ctx, &domain.Progress{BatchID: "b1", Index: 1, Total: 2, Status: "Processed a.eml"})
	_ = env.hub.PublishProgress(ctx, &domain.Progress{BatchID: "b1", Index: 2, Total: 2, Status: "2 succeeded / 0 failed", Done: true})
	wg.Wait()

	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	stream := string(raw)

	for _, want := range []string{"event: connected", "event: progress", "Processed a.eml", "event: batch_done"} {
		if !strings.Contains(stream, want) {
			t.Errorf("expected stream to contain %q:\n%s", want, stream)
		}
	}
	if strings.Contains(stream, `"batch_id":"other"`) {
		t.Errorf("expected other batches filtered out:\n%s", stream)
	}
}
