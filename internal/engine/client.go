package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bz888/llamagate/internal/models"
)

const (
	DefaultBaseURL = "http://localhost:11434"

	// Non-streaming calls either answer quickly or are dead; streaming
	// generations and model pulls can legitimately run for minutes. A single
	// shared timeout would kill long generations or mask dead short calls.
	DefaultTimeout       = 30 * time.Second
	DefaultStreamTimeout = 300 * time.Second
)

// ErrUnavailable wraps a failure to connect to the engine at all.
var ErrUnavailable = errors.New("generation engine unavailable")

// StatusError is a non-2xx reply from the engine; the raw body is preserved
// so the gateway can mirror it to the caller.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine returned status %d: %s", e.Code, e.Body)
}

// Config configures a dispatcher client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	StreamTimeout time.Duration
}

// Client dispatches generation calls to the engine. Instances own their HTTP
// clients; construct one per gateway rather than sharing process-wide state.
type Client struct {
	base       *url.URL
	http       *http.Client
	streamHTTP *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = DefaultStreamTimeout
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid engine url: %w", err)
	}
	return &Client{
		base:       base,
		http:       &http.Client{Timeout: cfg.Timeout},
		streamHTTP: &http.Client{Timeout: cfg.StreamTimeout},
	}, nil
}

// Generate issues a buffered generation call and parses the single record
// the engine returns.
func (c *Client) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateRecord, error) {
	req.Stream = false

	body, err := c.call(ctx, c.http, http.MethodPost, "/api/generate", req)
	if err != nil {
		return models.GenerateRecord{}, err
	}

	var rec models.GenerateRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return models.GenerateRecord{}, fmt.Errorf("failed to decode engine response: %w", err)
	}
	return rec, nil
}

// Stream is a live generation reply. The caller owns Body and must close it.
type Stream struct {
	Body        io.ReadCloser
	ContentType string
}

// GenerateStream issues a streaming generation call and hands back the open
// response body once the status check passes. Connect and status failures
// behave exactly as in Generate; read failures after that belong to the
// caller's copy loop.
func (c *Client) GenerateStream(ctx context.Context, req models.GenerateRequest) (*Stream, error) {
	req.Stream = true

	resp, err := c.do(ctx, c.streamHTTP, http.MethodPost, "/api/generate", req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: body}
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/x-ndjson"
	}
	return &Stream{Body: resp.Body, ContentType: ct}, nil
}

// Tags lists the models installed on the engine, as the engine's raw JSON.
func (c *Client) Tags(ctx context.Context) ([]byte, error) {
	return c.call(ctx, c.http, http.MethodGet, "/api/tags", nil)
}

// Ps lists the models currently loaded, as the engine's raw JSON.
func (c *Client) Ps(ctx context.Context) ([]byte, error) {
	return c.call(ctx, c.http, http.MethodGet, "/api/ps", nil)
}

// Pull starts a model download and returns the engine's NDJSON progress
// stream. The caller owns the body.
func (c *Client) Pull(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, c.streamHTTP, http.MethodPost, "/api/pull", map[string]string{"name": name})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: body}
	}
	return resp.Body, nil
}

// Delete removes a model from the engine.
func (c *Client) Delete(ctx context.Context, name string) ([]byte, error) {
	return c.call(ctx, c.http, http.MethodDelete, "/api/delete", map[string]string{"name": name})
}

// call performs a buffered request and returns the body on 2xx, a
// StatusError otherwise.
func (c *Client) call(ctx context.Context, client *http.Client, method, path string, payload any) ([]byte, error) {
	resp, err := c.do(ctx, client, method, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: body}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, client *http.Client, method, path string, payload any) (*http.Response, error) {
	var buf io.Reader
	if payload != nil {
		bts, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewBuffer(bts)
	}

	requestURL := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, requestURL.String(), buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}
