package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bz888/llamagate/internal/models"
)

const (
	// Non-streaming calls finish quickly or are dead; streaming generations
	// can legitimately run for minutes. The two budgets are independent so
	// neither masks the other.
	defaultTimeout       = 30 * time.Second
	defaultStreamTimeout = 300 * time.Second

	readChunkSize = 4 * 1024
)

// Chunk is one delivery on a streaming byte channel. A terminal read failure
// arrives as the final chunk with Err set; the channel is closed afterwards.
type Chunk struct {
	Data []byte
	Err  error
}

// APIError is a non-2xx reply from the gateway.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error (status %d): %s", e.Status, e.Message)
}

// KeyInfo describes the project behind an API key.
type KeyInfo struct {
	Valid   bool     `json:"valid"`
	Project struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	} `json:"project"`
	Models []string `json:"models"`
}

// Client talks to the gateway's generation API on behalf of one project key.
// Both HTTP clients are constructed here and owned by the Client; there is no
// process-wide shared client.
type Client struct {
	base       *url.URL
	apiKey     string
	http       *http.Client
	streamHTTP *http.Client
}

func NewClient(baseURL, apiKey string) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	return &Client{
		base:       base,
		apiKey:     apiKey,
		http:       &http.Client{Timeout: defaultTimeout},
		streamHTTP: &http.Client{Timeout: defaultStreamTimeout},
	}, nil
}

// Generate issues a buffered (non-streaming) generation call and parses the
// single record the gateway returns.
func (c *Client) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateRecord, error) {
	req.Stream = false

	resp, err := c.post(ctx, c.http, "/api/ollama/generate", req)
	if err != nil {
		return models.GenerateRecord{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.GenerateRecord{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.GenerateRecord{}, apiError(resp.StatusCode, body)
	}

	var rec models.GenerateRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return models.GenerateRecord{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

// GenerateStream issues a streaming generation call and returns a channel of
// raw byte chunks bound to the open connection. Cancelling ctx stops the
// reader and releases the connection; the channel closes without a terminal
// error in that case.
func (c *Client) GenerateStream(ctx context.Context, req models.GenerateRequest) (<-chan Chunk, error) {
	req.Stream = true

	resp, err := c.post(ctx, c.streamHTTP, "/api/ollama/generate", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apiError(resp.StatusCode, body)
	}

	chunks := make(chan Chunk)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		buf := make([]byte, readChunkSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case chunks <- Chunk{Data: data}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err == io.EOF || ctx.Err() != nil {
					return
				}
				select {
				case chunks <- Chunk{Err: fmt.Errorf("stream read failed: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return chunks, nil
}

// KeyInfo validates the client's API key and lists the models assigned to
// its project.
func (c *Client) KeyInfo(ctx context.Context) (KeyInfo, error) {
	requestURL := c.base.ResolveReference(&url.URL{Path: "/api/validate_key"})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return KeyInfo{}, err
	}
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return KeyInfo{}, fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return KeyInfo{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return KeyInfo{}, apiError(resp.StatusCode, body)
	}

	var info KeyInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return KeyInfo{}, fmt.Errorf("failed to decode key info: %w", err)
	}
	return info, nil
}

func (c *Client) post(ctx context.Context, client *http.Client, path string, payload any) (*http.Response, error) {
	bts, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	requestURL := c.base.ResolveReference(&url.URL{Path: path})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL.String(), bytes.NewBuffer(bts))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway: %w", err)
	}
	return resp, nil
}

func apiError(status int, body []byte) error {
	var envelope models.ErrorResponse
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
		msg := envelope.Error
		if envelope.Message != "" {
			msg += ": " + envelope.Message
		}
		return &APIError{Status: status, Message: msg}
	}
	return &APIError{Status: status, Message: string(body)}
}
