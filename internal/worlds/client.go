package worlds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL      = "http://worlds.vibrantlabs.com"
	DefaultHostTemplate = "http://%s.worlds.vibrantlabs.com"

	MailboxEnv  = "gmail-clone"
	CalendarEnv = "calendar-clone"
)

// Endpoints holds the instance URLs of the two simulated services.
type Endpoints struct {
	Mailbox  string `json:"mailbox"`
	Calendar string `json:"calendar"`
}

// Client talks to running mailbox and calendar instances.
type Client struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	// HostTemplate turns an instance id into its base URL.
	HostTemplate string
}

func New(timeout time.Duration) *Client {
	return &Client{
		HTTPClient:   &http.Client{Timeout: timeout},
		Timeout:      timeout,
		HostTemplate: DefaultHostTemplate,
	}
}

// APIError wraps non-2xx responses from an instance or the worlds API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed: status=%d body=%s", e.Op, e.StatusCode, e.Body)
}

// GetState reads the full state document of one instance.
func (c *Client) GetState(ctx context.Context, instanceURL string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, "get_state", http.MethodGet, join(instanceURL, "api/get_state"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetState replaces the state of one instance.
func (c *Client) SetState(ctx context.Context, instanceURL string, state json.RawMessage) error {
	return c.do(ctx, "set_state", http.MethodPost, join(instanceURL, "api/set_state"), state, nil)
}

// FetchStates reads both services concurrently. Either failure cancels the
// other read and no partial state is returned.
func (c *Client) FetchStates(ctx context.Context, ep Endpoints) (mailbox, calendar json.RawMessage, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mailbox, err = c.GetState(gctx, ep.Mailbox)
		if err != nil {
			return fmt.Errorf("mailbox: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		calendar, err = c.GetState(gctx, ep.Calendar)
		if err != nil {
			return fmt.Errorf("calendar: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return mailbox, calendar, nil
}

// PushStates seeds both instances, mailbox first.
func (c *Client) PushStates(ctx context.Context, ep Endpoints, mailbox, calendar json.RawMessage) error {
	if err := c.SetState(ctx, ep.Mailbox, mailbox); err != nil {
		return fmt.Errorf("mailbox: %w", err)
	}
	if err := c.SetState(ctx, ep.Calendar, calendar); err != nil {
		return fmt.Errorf("calendar: %w", err)
	}
	return nil
}

// CreateInstance provisions a new instance of env and returns its URL.
func (c *Client) CreateInstance(ctx context.Context, baseURL, env string) (string, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	var resp struct {
		InstanceID string `json:"instance_id"`
		ID         string `json:"id"`
	}
	if err := c.do(ctx, "create "+env, http.MethodPost, join(baseURL, "envs/"+env+"/create"), nil, &resp); err != nil {
		return "", err
	}
	id := resp.InstanceID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return "", fmt.Errorf("create %s: response missing instance identifier", env)
	}
	tmpl := c.HostTemplate
	if tmpl == "" {
		tmpl = DefaultHostTemplate
	}
	return fmt.Sprintf(tmpl, id), nil
}

// CreateInstances provisions a mailbox and a calendar instance concurrently.
func (c *Client) CreateInstances(ctx context.Context, baseURL string) (Endpoints, error) {
	var ep Endpoints
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ep.Mailbox, err = c.CreateInstance(gctx, baseURL, MailboxEnv)
		return err
	})
	g.Go(func() error {
		var err error
		ep.Calendar, err = c.CreateInstance(gctx, baseURL, CalendarEnv)
		return err
	})
	if err := g.Wait(); err != nil {
		return Endpoints{}, err
	}
	return ep, nil
}

func (c *Client) do(ctx context.Context, op, method, url string, body json.RawMessage, out any) error {
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
