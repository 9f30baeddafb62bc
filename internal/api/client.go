package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stuphys1729/SenHons/internal/agents"
	"github.com/stuphys1729/SenHons/internal/telemetry"
)

// Client drives a remote run through its HTTP API.
type Client struct {
	BaseURL  string
	AdminKey string
	HTTP     *http.Client
}

// NewClient returns a client for the API at baseURL.
func NewClient(baseURL, adminKey string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		AdminKey: adminKey,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
	}
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Unwrap maps well-known answers back onto the local sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return agents.ErrUnknownAgent
	case http.StatusServiceUnavailable:
		return telemetry.ErrClosed
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if method == http.MethodPost && c.AdminKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.AdminKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) status(ctx context.Context, method, path string) (telemetry.Status, error) {
	var st telemetry.Status
	err := c.do(ctx, method, path, &st)
	return st, err
}

func (c *Client) Status(ctx context.Context) (telemetry.Status, error) {
	return c.status(ctx, http.MethodGet, "/api/v1/status")
}

func (c *Client) Pause(ctx context.Context) (telemetry.Status, error) {
	return c.status(ctx, http.MethodPost, "/api/v1/pause")
}

func (c *Client) Resume(ctx context.Context) (telemetry.Status, error) {
	return c.status(ctx, http.MethodPost, "/api/v1/resume")
}

func (c *Client) Stop(ctx context.Context) (telemetry.Status, error) {
	return c.status(ctx, http.MethodPost, "/api/v1/stop")
}

func (c *Client) Inspect(ctx context.Context, id uint64) (telemetry.AgentView, error) {
	var v telemetry.AgentView
	err := c.do(ctx, http.MethodGet, "/api/v1/agent/"+strconv.FormatUint(id, 10), &v)
	return v, err
}

// History fetches the most recent steps recorded by the run.
func (c *Client) History(ctx context.Context, limit int) ([]telemetry.StepStats, error) {
	var out struct {
		Steps []telemetry.StepStats `json:"steps"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/history?limit="+strconv.Itoa(limit), &out)
	return out.Steps, err
}
