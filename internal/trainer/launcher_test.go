package trainer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marketsci/robynq/internal/client"
	"github.com/marketsci/robynq/internal/model"
)

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", value, err)
	}
	return ts
}

// fakeObjectStore is an in-memory ObjectStore; failKey makes uploads to
// one specific key fail
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failKey string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	if f.failKey != "" && strings.Contains(key, f.failKey) {
		return errors.New("injected upload failure")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
	return nil
}

func (f *fakeObjectStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, client.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeObjectStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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

// fakeRunner records RunJob calls and returns a canned execution ref
type fakeRunner struct {
	ref   string
	err   error
	env   map[string]string
	calls int
}

func (f *fakeRunner) RunJob(ctx context.Context, env map[string]string) (string, error) {
	f.calls++
	f.env = env
	if f.err != nil {
		return "", f.err
	}
	return f.ref, nil
}

func (f *fakeRunner) GetExecution(ctx context.Context, name string) (*client.Execution, error) {
	return &client.Execution{Name: name, State: client.ExecutionStateRunning}, nil
}

func pendingEntry(params map[string]interface{}) *model.JobEntry {
	return &model.JobEntry{ID: 1, Status: model.EntryStatusPending, Params: params}
}

// findUploadedConfig returns the authoritative (timestamped) config blob
func findUploadedConfig(t *testing.T, fake *fakeObjectStore, bucket string) (string, *model.TrainingConfig) {
	t.Helper()
	for full, data := range fake.objects {
		if !strings.HasPrefix(full, bucket+"/"+configPrefix+"/") {
			continue
		}
		if strings.Contains(full, "/latest/") {
			continue
		}
		var cfg model.TrainingConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			t.Fatalf("uploaded config is not valid JSON: %v", err)
		}
		return strings.TrimPrefix(full, bucket+"/"), &cfg
	}
	t.Fatal("no timestamped config uploaded")
	return "", nil
}

func TestLaunch_UploadsConfigAndStartsExecution(t *testing.T) {
	fake := newFakeObjectStore()
	runner := &fakeRunner{ref: "projects/p/locations/l/jobs/j/executions/exec-1"}
	launcher := NewLauncher(fake, runner, "control", "robyn-output")

	ref, prefix, err := launcher.Launch(context.Background(), pendingEntry(map[string]interface{}{
		"data_gcs_path": "gs://data/input.csv",
		"country":       "de",
	}))
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}
	if ref != runner.ref {
		t.Errorf("expected execution ref %q, got %q", runner.ref, ref)
	}
	if !strings.HasPrefix(prefix, "default/de/") {
		t.Errorf("unexpected result prefix %q", prefix)
	}
	if runner.calls != 1 {
		t.Errorf("expected exactly one remote launch, got %d", runner.calls)
	}

	configKey, cfg := findUploadedConfig(t, fake, "control")

	// The execution pointer must name the timestamped copy
	wantURI := fake.URI("control", configKey)
	if runner.env[ConfigURIEnvVar] != wantURI {
		t.Errorf("expected %s=%q, got %q", ConfigURIEnvVar, wantURI, runner.env[ConfigURIEnvVar])
	}

	// The latest mirror must carry identical bytes
	latestKey := configPrefix + "/latest/" + configFilename
	latest, ok := fake.objects["control/"+latestKey]
	if !ok {
		t.Fatal("latest mirror not uploaded")
	}
	authoritative := fake.objects["control/"+configKey]
	if string(latest) != string(authoritative) {
		t.Error("latest mirror differs from the timestamped copy")
	}

	if cfg.RunID == "" {
		t.Error("expected a generated run_id")
	}
}

func TestLaunch_TimestampConsistency(t *testing.T) {
	fake := newFakeObjectStore()
	runner := &fakeRunner{ref: "exec-1"}
	launcher := NewLauncher(fake, runner, "control", "robyn-output")

	_, prefix, err := launcher.Launch(context.Background(), pendingEntry(map[string]interface{}{
		"data_gcs_path": "gs://data/input.csv",
		"country":       "de",
		"revision":      "v42",
	}))
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	configKey, cfg := findUploadedConfig(t, fake, "control")

	if cfg.Timestamp != cfg.OutputTimestamp {
		t.Errorf("timestamp %q and output_timestamp %q diverged", cfg.Timestamp, cfg.OutputTimestamp)
	}
	want := ResultPrefix("v42", "de", cfg.OutputTimestamp)
	if prefix != want {
		t.Errorf("returned prefix %q does not share the config timestamp (want %q)", prefix, want)
	}
	if cfg.ResultPrefix != want {
		t.Errorf("embedded result_prefix %q does not share the config timestamp (want %q)", cfg.ResultPrefix, want)
	}
	if !strings.Contains(configKey, cfg.OutputTimestamp) {
		t.Errorf("config key %q not under the run timestamp %q", configKey, cfg.OutputTimestamp)
	}
}

func TestLaunch_ConfigErrorBeforeRemoteCall(t *testing.T) {
	fake := newFakeObjectStore()
	runner := &fakeRunner{ref: "exec-1"}
	launcher := NewLauncher(fake, runner, "control", "robyn-output")

	_, _, err := launcher.Launch(context.Background(), pendingEntry(map[string]interface{}{}))
	if err == nil {
		t.Fatal("expected error for params without a data pointer")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
	if runner.calls != 0 {
		t.Errorf("remote service called %d times for an invalid job", runner.calls)
	}
	if len(fake.objects) != 0 {
		t.Errorf("config uploaded for an invalid job: %v", fake.objects)
	}
}

func TestLaunch_RunJobFailure(t *testing.T) {
	fake := newFakeObjectStore()
	runner := &fakeRunner{err: errors.New("quota exceeded")}
	launcher := NewLauncher(fake, runner, "control", "robyn-output")

	_, _, err := launcher.Launch(context.Background(), pendingEntry(map[string]interface{}{
		"data_gcs_path": "gs://data/input.csv",
	}))
	if err == nil {
		t.Fatal("expected launch error")
	}

	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected LaunchError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("remote error not preserved: %v", err)
	}
}

func TestLaunch_LatestMirrorFailureTolerated(t *testing.T) {
	fake := newFakeObjectStore()
	fake.failKey = "/latest/"
	runner := &fakeRunner{ref: "exec-1"}
	launcher := NewLauncher(fake, runner, "control", "robyn-output")

	ref, _, err := launcher.Launch(context.Background(), pendingEntry(map[string]interface{}{
		"data_gcs_path": "gs://data/input.csv",
	}))
	if err != nil {
		t.Fatalf("mirror failure should not fail the launch: %v", err)
	}
	if ref == "" {
		t.Error("expected an execution ref")
	}
	if runner.calls != 1 {
		t.Errorf("expected the launch to proceed, got %d remote calls", runner.calls)
	}
}
