// Package jobs polls the bike API for remote jobs addressed to this
// gateway and reports their results.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const requestTimeout = 10 * time.Second

const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

type Job struct {
	ID     string         `json:"job_id"`
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

type PollResponse struct {
	Job *Job `json:"job"`
}

type Result struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	Output     string `json:"output"`
	DurationMS int64  `json:"duration_ms"`
}

type Client struct {
	baseURL string
	piID    string
	http    *http.Client
}

func NewClient(baseURL, piID string) *Client {
	return &Client{
		baseURL: baseURL,
		piID:    piID,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Poll asks for the next job. It returns nil, nil when none is queued.
func (c *Client) Poll(ctx context.Context) (*Job, error) {
	u := c.baseURL + "/api/job/poll?" + url.Values{"pi_id": {c.piID}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build poll request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("poll failed with status %d", resp.StatusCode)
	}

	var body PollResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode poll response: %w", err)
	}
	return body.Job, nil
}

func (c *Client) Report(ctx context.Context, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/job/result", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build result request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("result request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to report result: HTTP %d", resp.StatusCode)
	}
	return nil
}
