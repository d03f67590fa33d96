// Package remotecmd wraps the remote-command-execution API. The API is
// eventually consistent in two distinct ways: a freshly started instance is
// not recognized for a while, and a freshly created invocation record lags
// behind its command id. Each consistency class surfaces as a machine-readable
// error code, and the Runner gives each its own retry budget.
package remotecmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/aweller/gamewarden/internal/domain"
)

const (
	apiKeyHeader    = "X-API-Key"
	applicationJSON = "application/json"

	// CodeInvalidInstance is returned while the instance is not yet
	// recognized by the execution service, typically during boot.
	CodeInvalidInstance = "InvalidInstanceId"

	// CodeInvocationMissing is returned while the invocation record has not
	// yet propagated.
	CodeInvocationMissing = "InvocationDoesNotExist"
)

// APIError is a machine-readable error returned by the execution service.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("remote-command api: %s: %s", e.Code, e.Message)
}

// HasCode reports whether err is an APIError carrying the given code.
func HasCode(err error, code string) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type Client struct {
	baseURL    string
	apiKey     string
	instanceID string
	http       *retryablehttp.Client
}

func NewClient(baseURL, apiKey, instanceID string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		instanceID: instanceID,
		http:       retryablehttp.NewClient(),
	}
}

type sendRequest struct {
	Commands []string `json:"commands"`
}

type sendResponse struct {
	CommandID string `json:"command_id"`
}

type invocationResponse struct {
	Status string `json:"status"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Send submits commands for execution and returns the command id to poll.
func (c *Client) Send(ctx context.Context, commands []string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/instances/%s/commands", c.instanceID), sendRequest{Commands: commands})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var body sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if body.CommandID == "" {
		return "", fmt.Errorf("send response carried no command id")
	}
	return body.CommandID, nil
}

// Invocation fetches the current record of one command invocation.
func (c *Client) Invocation(ctx context.Context, commandID string, commands []string) (domain.CommandInvocation, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/instances/%s/commands/%s", c.instanceID, commandID), nil)
	if err != nil {
		return domain.CommandInvocation{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return domain.CommandInvocation{}, err
	}

	var body invocationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.CommandInvocation{}, fmt.Errorf("decode invocation: %w", err)
	}

	return domain.CommandInvocation{
		Commands:    commands,
		Status:      domain.CommandStatus(body.Status),
		Output:      strings.TrimSpace(body.Stdout),
		ErrorOutput: strings.TrimSpace(body.Stderr),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequest(method, c.baseURL+path, payload)
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
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Code != "" {
		return envelope.Error
	}
	return fmt.Errorf("remote-command api: unexpected status %d", resp.StatusCode)
}
