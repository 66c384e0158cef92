package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/marketsci/robynq/internal/client"
	"github.com/marketsci/robynq/internal/model"
)

const (
	configPrefix   = "training-configs"
	configFilename = "job_config.json"

	// ConfigURIEnvVar is the execution pointer: the one env var telling
	// a worker instance exactly which config document to load. Always
	// the timestamped copy, never "latest".
	ConfigURIEnvVar = "ROBYN_CONFIG_URI"
)

// LaunchError reports a failed launch attempt. The entry is marked
// FAILED with the error text captured verbatim; there is no retry.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch error: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// RunTimestamp renders the single wall-clock value for a launch. The
// microsecond suffix disambiguates jobs launched within the same
// second.
func RunTimestamp(now time.Time) string {
	return now.UTC().Format("20060102-150405.000000")
}

// Launcher uploads config documents and starts executions on the
// remote service
type Launcher struct {
	store         client.ObjectStore
	runner        client.JobRunner
	controlBucket string
	outputBucket  string
}

// NewLauncher creates a launcher over the given storage and execution
// clients
func NewLauncher(store client.ObjectStore, runner client.JobRunner, controlBucket, outputBucket string) *Launcher {
	return &Launcher{
		store:         store,
		runner:        runner,
		controlBucket: controlBucket,
		outputBucket:  outputBucket,
	}
}

// Launch builds the config for an entry, uploads it, and starts one
// remote execution. Returns the execution ref and the result prefix
// where output is expected. The result prefix and the config's
// output_timestamp derive from the same timestamp, generated here
// exactly once.
func (l *Launcher) Launch(ctx context.Context, entry *model.JobEntry) (string, string, error) {
	timestamp := RunTimestamp(time.Now())

	cfg, err := BuildConfig(entry.Params, timestamp, l.outputBucket)
	if err != nil {
		return "", "", err
	}
	cfg.RunID = uuid.NewString()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal config: %w", err)
	}

	// Authoritative copy at the timestamped path
	configKey := fmt.Sprintf("%s/%s/%s", configPrefix, timestamp, configFilename)
	if err := l.store.Upload(ctx, l.controlBucket, configKey, bytes.NewReader(data), "application/json"); err != nil {
		return "", "", &LaunchError{Err: fmt.Errorf("config upload failed: %w", err)}
	}

	// "latest" is a fallback for workers started without an explicit
	// pointer. Close launches can overwrite it before a slower worker
	// reads it, so a failed mirror is logged, not fatal.
	latestKey := fmt.Sprintf("%s/latest/%s", configPrefix, configFilename)
	if err := l.store.Upload(ctx, l.controlBucket, latestKey, bytes.NewReader(data), "application/json"); err != nil {
		log.Printf("[Launcher] warning: failed to mirror config to latest: %v", err)
	}

	configURI := l.store.URI(l.controlBucket, configKey)
	log.Printf("[Launcher] job %d: config at %s (run_id=%s)", entry.ID, configURI, cfg.RunID)

	ref, err := l.runner.RunJob(ctx, map[string]string{ConfigURIEnvVar: configURI})
	if err != nil {
		return "", "", &LaunchError{Err: err}
	}

	log.Printf("[Launcher] job %d: execution %s started, results expected under %s", entry.ID, ref, cfg.ResultPrefix)
	return ref, cfg.ResultPrefix, nil
}
