package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/roadops/operator-console/internal/monitor"
)

// Client talks to a running console's API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the console API is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/api/health")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Status fetches the console status.
func (c *Client) Status() (monitor.Status, error) {
	var st monitor.Status
	resp, err := c.httpClient.Get(c.baseURL + "/api/status")
	if err != nil {
		return st, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := decode(resp)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to decode status: %w", err)
	}
	return st, nil
}

// Command sends an operator command and returns the raw result.
func (c *Client) Command(command string, args ...string) (json.RawMessage, error) {
	body, err := json.Marshal(commandRequest{Command: command, Args: args})
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Post(c.baseURL+"/api/commands", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("command request failed: %w", err)
	}
	defer resp.Body.Close()
	return decode(resp)
}

// decode unwraps the response envelope.
func decode(resp *http.Response) (json.RawMessage, error) {
	var env struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, env.Message)
	}
	return env.Data, nil
}
