// Package compute wraps the instance-control API: describing the managed
// instance and switching its power state, including the bounded poll loop
// that waits for a state transition to complete.
package compute

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/aweller/gamewarden/internal/domain"
)

const (
	apiKeyHeader    = "X-API-Key"
	applicationJSON = "application/json"
)

type Client struct {
	baseURL      string
	apiKey       string
	instanceID   string
	pollInterval time.Duration
	pollTimeout  time.Duration
	http         *retryablehttp.Client
	logger       *slog.Logger
}

func NewClient(baseURL, apiKey, instanceID string, pollInterval, pollTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		instanceID:   instanceID,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		http:         retryablehttp.NewClient(),
		logger:       logger,
	}
}

type describeResponse struct {
	Instances []domain.InstanceDescription `json:"instances"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e apiError) Error() string {
	return fmt.Sprintf("instance-control api: %s: %s", e.Code, e.Message)
}

// Describe fetches a fresh description of the managed instance. Zero
// matching instances is a configuration error and is not retried here.
func (c *Client) Describe(ctx context.Context) (domain.InstanceDescription, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/instances/%s", c.instanceID))
	if err != nil {
		return domain.InstanceDescription{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return domain.InstanceDescription{}, err
	}

	var body describeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.InstanceDescription{}, fmt.Errorf("decode instance description: %w", err)
	}
	if len(body.Instances) == 0 {
		return domain.InstanceDescription{}, domain.ErrNoInstanceDescription{}
	}

	desc := body.Instances[0]
	if !desc.State.Valid() {
		return domain.InstanceDescription{}, fmt.Errorf("instance description carries unknown state %q", desc.State)
	}
	c.logger.Debug("instance described", "state", desc.State, "image_id", desc.ImageID)
	return desc, nil
}

// Start requests the instance to start and blocks until it is running.
func (c *Client) Start(ctx context.Context) (domain.InstanceDescription, error) {
	if err := c.post(ctx, fmt.Sprintf("/instances/%s/start", c.instanceID)); err != nil {
		return domain.InstanceDescription{}, err
	}
	return c.waitFor(ctx, domain.StateRunning)
}

// Stop requests the instance to stop and blocks until it is stopped.
func (c *Client) Stop(ctx context.Context) (domain.InstanceDescription, error) {
	if err := c.post(ctx, fmt.Sprintf("/instances/%s/stop", c.instanceID)); err != nil {
		return domain.InstanceDescription{}, err
	}
	return c.waitFor(ctx, domain.StateStopped)
}

// waitFor polls the description until the instance reaches the target state.
// Descriptor errors propagate; the loop itself only bounds the wait.
func (c *Client) waitFor(ctx context.Context, target domain.InstanceState) (domain.InstanceDescription, error) {
	deadline := time.Now().Add(c.pollTimeout)
	for {
		desc, err := c.Describe(ctx)
		if err != nil {
			return domain.InstanceDescription{}, err
		}
		if desc.State == target {
			return desc, nil
		}
		if time.Now().After(deadline) {
			return domain.InstanceDescription{}, fmt.Errorf("instance did not reach state %s within %s (last state %s)", target, c.pollTimeout, desc.State)
		}

		select {
		case <-ctx.Done():
			return domain.InstanceDescription{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) post(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodPost, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := retryablehttp.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", applicationJSON)
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	return c.http.Do(req)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	data, _ := io.ReadAll(resp.Body)
	var envelope struct {
		Error apiError `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Code != "" {
		return envelope.Error
	}
	return fmt.Errorf("instance-control api: unexpected status %d", resp.StatusCode)
}
