package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/marketsci/robynq/internal/client"
	"github.com/marketsci/robynq/internal/model"
	"github.com/marketsci/robynq/internal/orchestrator"
	"github.com/marketsci/robynq/internal/service"
	"github.com/marketsci/robynq/internal/store"
	"github.com/marketsci/robynq/internal/trainer"
)

type fakeObjectStore struct {
	objects map[string][]byte
}

func (f *fakeObjectStore) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = data
	return nil
}

func (f *fakeObjectStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, client.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeObjectStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for full := range f.objects {
		if strings.HasPrefix(full, bucket+"/"+prefix) {
			keys = append(keys, strings.TrimPrefix(full, bucket+"/"))
		}
	}
	return keys, nil
}

func (f *fakeObjectStore) URI(bucket, key string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, key)
}

type fakeRunner struct {
	launched int
}

func (f *fakeRunner) RunJob(ctx context.Context, env map[string]string) (string, error) {
	f.launched++
	return fmt.Sprintf("executions/exec-%d", f.launched), nil
}

func (f *fakeRunner) GetExecution(ctx context.Context, name string) (*client.Execution, error) {
	return &client.Execution{Name: name, State: client.ExecutionStateRunning}, nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	storage := &fakeObjectStore{objects: make(map[string][]byte)}
	runner := &fakeRunner{}
	queues := store.NewQueueStore(storage, "control")
	launcher := trainer.NewLauncher(storage, runner, "control", "robyn-output")
	verifier := trainer.NewVerifier(storage, "robyn-output", 5*time.Millisecond, 15*time.Millisecond)
	processor := orchestrator.NewProcessor(queues, launcher, verifier, runner, nil, 50)

	h := NewQueueHandler(service.NewQueueService(queues, processor), validator.New())

	app := fiber.New()
	queuesGroup := app.Group("/api/queues")
	queuesGroup.Post("/:queue/jobs", h.Enqueue)
	queuesGroup.Get("/:queue", h.Get)
	queuesGroup.Post("/:queue/pause", h.Pause)
	queuesGroup.Post("/:queue/resume", h.Resume)
	queuesGroup.Post("/:queue/tick", h.Tick)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestEnqueue(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/queues/main/jobs", model.EnqueueRequest{
		Jobs: []map[string]interface{}{
			{"data_gcs_path": "gs://data/input.csv", "country": "de"},
			{"data_gcs_path": "gs://data/input.csv", "country": "fr"},
		},
	})
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var body model.EnqueueResponse
	decode(t, resp, &body)
	if body.Count != 2 || len(body.IDs) != 2 {
		t.Fatalf("expected 2 accepted jobs, got %+v", body)
	}
	if body.IDs[0] != 1 || body.IDs[1] != 2 {
		t.Errorf("expected ids 1,2 got %v", body.IDs)
	}
}

func TestEnqueue_EmptyJobList(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/queues/main/jobs", model.EnqueueRequest{})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEnqueue_InvalidBody(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/queues/main/jobs", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGet_EmptyQueue(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/api/queues/main", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body model.QueueResponse
	decode(t, resp, &body)
	if body.Status != model.QueueStatusRunning {
		t.Errorf("missing queue should read as RUNNING, got %s", body.Status)
	}
	if len(body.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(body.Entries))
	}
}

func TestPauseAndResume(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/queues/main/pause", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var paused model.QueueControlResponse
	decode(t, resp, &paused)
	if paused.Status != model.QueueStatusPaused {
		t.Errorf("expected PAUSED, got %s", paused.Status)
	}

	resp = doJSON(t, app, http.MethodPost, "/api/queues/main/resume", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var resumed model.QueueControlResponse
	decode(t, resp, &resumed)
	if resumed.Status != model.QueueStatusRunning {
		t.Errorf("expected RUNNING, got %s", resumed.Status)
	}
}

func TestTick_EndToEnd(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/queues/main/jobs", model.EnqueueRequest{
		Jobs: []map[string]interface{}{
			{"data_gcs_path": "gs://data/input.csv", "country": "de"},
		},
	})
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("enqueue failed with %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, "/api/queues/main/tick", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var tick model.TickResponse
	decode(t, resp, &tick)
	if !tick.Processed || tick.EntryID == nil || *tick.EntryID != 1 {
		t.Fatalf("expected entry 1 processed, got %+v", tick)
	}

	resp = doJSON(t, app, http.MethodGet, "/api/queues/main", nil)
	var queue model.QueueResponse
	decode(t, resp, &queue)
	if len(queue.Entries) != 1 || queue.Entries[0].Status != model.EntryStatusRunning {
		t.Fatalf("expected entry RUNNING after tick, got %+v", queue.Entries)
	}

	// A second tick with nothing pending reports idle
	resp = doJSON(t, app, http.MethodPost, "/api/queues/main/tick", nil)
	decode(t, resp, &tick)
	if tick.Processed {
		t.Error("expected an idle tick with nothing pending")
	}
}
