package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/actsim/internal/sim"
)

// DefaultTimeout bounds every request made by a Client.
const DefaultTimeout = 10 * time.Second

// ErrUnexpectedStatus is wrapped by errors for non-success HTTP responses.
var ErrUnexpectedStatus = errors.New("unexpected status")

// maxErrorBody caps how much of an error response is quoted in errors.
const maxErrorBody = 512

// Client reads and writes session snapshots over HTTP.
type Client struct {
	http   *http.Client
	base   string
	origin string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

// WithOrigin tags every push with the given client id.
func WithOrigin(origin string) Option {
	return func(c *Client) { c.origin = origin }
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("remote url %q: missing host", baseURL)
	}

	c := &Client{
		http: &http.Client{Timeout: DefaultTimeout},
		base: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string {
	return c.base
}

// Fetch reads the stored snapshot for sessionID. A 404 reports found=false
// with a nil error.
func (c *Client) Fetch(ctx context.Context, sessionID string) (sim.State, bool, error) {
	return c.fetchState(ctx, "fetch session "+sessionID, StatePath(sessionID))
}

// FetchRebuild asks the server to refold sessionID from its stored event
// log. A 404 reports found=false with a nil error.
func (c *Client) FetchRebuild(ctx context.Context, sessionID string) (sim.State, bool, error) {
	return c.fetchState(ctx, "rebuild session "+sessionID, RebuildPath(sessionID))
}

func (c *Client) fetchState(ctx context.Context, op, path string) (sim.State, bool, error) {
	var env StateEnvelope
	found, err := c.get(ctx, path, &env)
	if err != nil || !found {
		return sim.State{}, false, err
	}
	if env.Status != StatusSuccess || env.Data == nil {
		return sim.State{}, false, fmt.Errorf("%s: status %q: %s", op, env.Status, env.Error)
	}
	return env.Data.State, true, nil
}

// FetchEvents reads the stored event log for sessionID. A 404 reports
// found=false with a nil error.
func (c *Client) FetchEvents(ctx context.Context, sessionID string) ([]sim.Event, bool, error) {
	var env EventsEnvelope
	found, err := c.get(ctx, EventsPath(sessionID), &env)
	if err != nil || !found {
		return nil, false, err
	}
	if env.Status != StatusSuccess || env.Data == nil {
		return nil, false, fmt.Errorf("fetch events %s: status %q: %s", sessionID, env.Status, env.Error)
	}
	events := env.Data.Events
	if events == nil {
		events = []sim.Event{}
	}
	return events, true, nil
}

// Push upserts state on the server.
func (c *Client) Push(ctx context.Context, state sim.State) error {
	if state.SessionID == "" {
		return errors.New("push: preview runs have no session")
	}
	body, err := json.Marshal(PushRequest{StateSnapshot: state})
	if err != nil {
		return fmt.Errorf("push: encode snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+StatePath(state.SessionID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.origin != "" {
		req.Header.Set(OriginHeader, c.origin)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push session %s: %w", state.SessionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError("push session "+state.SessionID, resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if resp.StatusCode/100 != 2 {
		return false, statusError("get "+path, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("get %s: decode: %w", path, err)
	}
	return true, nil
}

func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%s: %w %d: %s", op, ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
