package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/marketsci/robynq/internal/config"
)

// Execution states derived from the Cloud Run Jobs execution resource
const (
	ExecutionStateRunning   = "RUNNING"
	ExecutionStateSucceeded = "SUCCEEDED"
	ExecutionStateFailed    = "FAILED"
)

// Execution is the orchestrator's view of one remote job execution
type Execution struct {
	Name  string
	State string
}

// JobRunner defines the interface for the remote execution service
type JobRunner interface {
	RunJob(ctx context.Context, env map[string]string) (string, error)
	GetExecution(ctx context.Context, name string) (*Execution, error)
}

// CloudRunClient implements JobRunner for the Cloud Run Jobs v2 API
type CloudRunClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	project    string
	region     string
	job        string
}

type runJobRequest struct {
	Overrides struct {
		ContainerOverrides []containerOverride `json:"containerOverrides"`
	} `json:"overrides"`
}

type containerOverride struct {
	Env []envVar `json:"env"`
}

type envVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// runJobResponse is the long-running operation returned by :run. The
// operation metadata carries the created execution resource.
type runJobResponse struct {
	Name     string `json:"name"`
	Metadata struct {
		Name string `json:"name"`
	} `json:"metadata"`
}

type executionResource struct {
	Name           string `json:"name"`
	CompletionTime string `json:"completionTime"`
	SucceededCount int    `json:"succeededCount"`
	FailedCount    int    `json:"failedCount"`
	CancelledCount int    `json:"cancelledCount"`
}

// NewCloudRunClient creates a new Cloud Run Jobs client
func NewCloudRunClient(cfg *config.CloudRunConfig) *CloudRunClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://run.googleapis.com"
	}
	return &CloudRunClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: baseURL,
		token:   cfg.Token,
		project: cfg.Project,
		region:  cfg.Region,
		job:     cfg.Job,
	}
}

// RunJob starts one execution of the configured job with the given
// environment overrides and returns the execution name
func (c *CloudRunClient) RunJob(ctx context.Context, env map[string]string) (string, error) {
	endpoint := fmt.Sprintf("/v2/projects/%s/locations/%s/jobs/%s:run", c.project, c.region, c.job)

	var req runJobRequest
	override := containerOverride{}
	for name, value := range env {
		override.Env = append(override.Env, envVar{Name: name, Value: value})
	}
	req.Overrides.ContainerOverrides = []containerOverride{override}

	var result runJobResponse
	if err := c.post(ctx, endpoint, &req, &result); err != nil {
		return "", err
	}

	// The execution resource name lives in the operation metadata; fall
	// back to the operation name if the metadata shape changes.
	ref := result.Metadata.Name
	if ref == "" {
		ref = result.Name
	}
	return ref, nil
}

// GetExecution fetches the current state of an execution by its
// fully-qualified resource name
func (c *CloudRunClient) GetExecution(ctx context.Context, name string) (*Execution, error) {
	endpoint := fmt.Sprintf("/v2/%s", name)

	var res executionResource
	if err := c.get(ctx, endpoint, &res); err != nil {
		return nil, err
	}

	state := ExecutionStateRunning
	if res.CompletionTime != "" {
		if res.FailedCount > 0 || res.CancelledCount > 0 {
			state = ExecutionStateFailed
		} else {
			state = ExecutionStateSucceeded
		}
	}

	return &Execution{Name: res.Name, State: state}, nil
}

// post sends a POST request with JSON body
func (c *CloudRunClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *CloudRunClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *CloudRunClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	log.Printf("[Cloud Run] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Cloud Run] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Cloud Run] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Cloud Run] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cloud run API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Cloud Run] ✗ unmarshal error for %s %s: %v (body: %s)", req.Method, req.URL.String(), err, string(respBody))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *CloudRunClient) IsConfigured() bool {
	return c.token != "" && c.project != ""
}
