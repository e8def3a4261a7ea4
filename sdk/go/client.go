package pabsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal verifier HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     30 * time.Second,
	}
}

// Check is one named verdict of a run.
type Check struct {
	Name    string `json:"name"`
	Verdict bool   `json:"verdict"`
	Reason  string `json:"reason"`
}

// Run is a stored verification result.
type Run struct {
	ID         string  `json:"id"`
	ScenarioID string  `json:"scenario_id"`
	Kind       string  `json:"kind"`
	Source     string  `json:"source"`
	Reward     float64 `json:"reward"`
	Passed     bool    `json:"passed"`
	Message    string  `json:"message"`
	Checks     []Check `json:"checks"`
	CreatedAt  string  `json:"created_at"`
}

// Scenario summarizes one scenario directory.
type Scenario struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Today       string `json:"today"`
	Error       string `json:"error,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ScenarioID string         `json:"scenario_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// StateUnavailable reports whether the server could not read the live state.
func (e *APIError) StateUnavailable() bool {
	return e.Code == "state_unavailable"
}

// RunsPage wraps run listings with a cursor.
type RunsPage struct {
	Items      []Run  `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// EventsPage wraps event listings with a cursor.
type EventsPage struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Verify scores a scenario. A nil state asks the server to read its live
// instances; otherwise state is the combined snapshot object.
func (c *Client) Verify(ctx context.Context, scenarioID string, state any) (Run, error) {
	var body any
	if state != nil {
		body = map[string]any{"state": state}
	}
	var resp Run
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/scenarios/%s/verify", url.PathEscape(scenarioID)), body, &resp)
	return resp, err
}

// Run fetches a run with its checks.
func (c *Client) Run(ctx context.Context, id string) (Run, error) {
	var resp Run
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/runs/%s", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Runs lists runs, newest first. An empty scenarioID lists all.
func (c *Client) Runs(ctx context.Context, scenarioID string, limit int, cursor string) (RunsPage, error) {
	q := url.Values{}
	if scenarioID != "" {
		q.Set("scenario_id", scenarioID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp RunsPage
	err := c.do(ctx, http.MethodGet, withQuery("v0/runs", q), nil, &resp)
	return resp, err
}

// Scenarios lists the scenarios the server knows.
func (c *Client) Scenarios(ctx context.Context) ([]Scenario, error) {
	var resp struct {
		Items []Scenario `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/scenarios", nil, &resp)
	return resp.Items, err
}

// Events returns a page of recent events.
func (c *Client) Events(ctx context.Context, limit int, cursor string) (EventsPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp EventsPage
	err := c.do(ctx, http.MethodGet, withQuery("v0/events", q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
