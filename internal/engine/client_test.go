package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bz888/llamagate/internal/models"
)

func TestGenerateParsesSingleRecord(t *testing.T) {
	var got models.GenerateRequest
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(models.GenerateRecord{
			Model:    got.Model,
			Response: "hello",
			Done:     true,
		})
	}))
	defer engine.Close()

	c, err := NewClient(Config{BaseURL: engine.URL})
	require.NoError(t, err)

	rec, err := c.Generate(context.Background(), models.GenerateRequest{Model: "llama2", Prompt: "hi", Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.Response)
	assert.True(t, rec.Done)
	// The dispatcher pins stream=false regardless of what the caller set.
	assert.False(t, got.Stream)
}

func TestGenerateMirrorsEngineStatus(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'nope' not found"}`))
	}))
	defer engine.Close()

	c, err := NewClient(Config{BaseURL: engine.URL})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), models.GenerateRequest{Model: "nope", Prompt: "hi"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Contains(t, string(statusErr.Body), "not found")
}

func TestGenerateConnectFailureIsUnavailable(t *testing.T) {
	// A closed server guarantees a refused connection.
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	engine.Close()

	c, err := NewClient(Config{BaseURL: engine.URL})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), models.GenerateRequest{Model: "llama2", Prompt: "hi"})
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestGenerateStreamHandsBackLiveBody(t *testing.T) {
	records := []string{
		`{"response":"Hi","done":false}`,
		`{"response":" there","done":true}`,
	}
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, rec := range records {
			fmt.Fprintln(w, rec)
			flusher.Flush()
		}
	}))
	defer engine.Close()

	c, err := NewClient(Config{BaseURL: engine.URL})
	require.NoError(t, err)

	stream, err := c.GenerateStream(context.Background(), models.GenerateRequest{Model: "llama2", Prompt: "hi"})
	require.NoError(t, err)
	defer stream.Body.Close()

	assert.Equal(t, "application/x-ndjson", stream.ContentType)

	scanner := bufio.NewScanner(stream.Body)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	assert.Equal(t, records, lines)
}

func TestGenerateStreamStatusCheckedBeforeHandoff(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("engine exploded"))
	}))
	defer engine.Close()

	c, err := NewClient(Config{BaseURL: engine.URL})
	require.NoError(t, err)

	_, err = c.GenerateStream(context.Background(), models.GenerateRequest{Model: "llama2", Prompt: "hi"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Equal(t, "engine exploded", string(statusErr.Body))
}

func TestGenerateStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"response":"a","done":false}`)
		w.(http.Flusher).Flush()
		<-release
	}))
	defer engine.Close()
	defer close(release)

	c, err := NewClient(Config{BaseURL: engine.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.GenerateStream(ctx, models.GenerateRequest{Model: "llama2", Prompt: "hi"})
	require.NoError(t, err)
	defer stream.Body.Close()

	buf := make([]byte, 64)
	_, err = stream.Body.Read(buf)
	require.NoError(t, err)

	cancel()
	_, err = io.ReadAll(stream.Body)
	assert.Error(t, err, "reads after cancellation must fail, not hang")
}

func TestTagsAndDelete(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			assert.Equal(t, http.MethodGet, r.Method)
			w.Write([]byte(`{"models":[{"name":"llama2"}]}`))
		case "/api/delete":
			assert.Equal(t, http.MethodDelete, r.Method)
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "llama2", req["name"])
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer engine.Close()

	c, err := NewClient(Config{BaseURL: engine.URL})
	require.NoError(t, err)

	body, err := c.Tags(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(body), "llama2")

	_, err = c.Delete(context.Background(), "llama2")
	require.NoError(t, err)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "://not-a-url"})
	assert.Error(t, err)
}
