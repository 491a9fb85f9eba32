package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bz888/llamagate/internal/engine"
	"github.com/bz888/llamagate/internal/middleware"
	"github.com/bz888/llamagate/internal/models"
)

// fakeStore is an in-memory registry standing in for the GORM store.
type fakeStore struct {
	projects map[uint]*models.Project
	nextID   uint
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{projects: make(map[uint]*models.Project), nextID: 1}
}

func (f *fakeStore) addProject(name, apiKey string, active bool, modelNames ...string) *models.Project {
	p := &models.Project{
		ID:       f.nextID,
		Name:     name,
		APIKey:   apiKey,
		IsActive: active,
	}
	for i, m := range modelNames {
		p.Models = append(p.Models, models.ProjectModel{
			ID:        uint(i + 1),
			ProjectID: p.ID,
			ModelName: m,
		})
	}
	f.projects[p.ID] = p
	f.nextID++
	return p
}

func (f *fakeStore) ListProjects() ([]models.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Project
	for _, p := range f.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) GetProject(id string) (*models.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, nil
	}
	p, ok := f.projects[uint(n)]
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (f *fakeStore) ProjectByAPIKey(key string) (*models.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.projects {
		if p.APIKey == key {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateProject(project *models.Project) error {
	if f.err != nil {
		return f.err
	}
	project.ID = f.nextID
	f.nextID++
	f.projects[project.ID] = project
	return nil
}

func (f *fakeStore) SaveProject(project *models.Project) error {
	if f.err != nil {
		return f.err
	}
	f.projects[project.ID] = project
	return nil
}

func (f *fakeStore) DeleteProject(project *models.Project) error {
	if f.err != nil {
		return f.err
	}
	delete(f.projects, project.ID)
	return nil
}

func (f *fakeStore) ProjectModels(projectID string) ([]models.ProjectModel, error) {
	p, err := f.GetProject(projectID)
	if err != nil || p == nil {
		return nil, err
	}
	return p.Models, nil
}

func (f *fakeStore) ModelAssignment(projectID, assignmentID string) (*models.ProjectModel, error) {
	p, err := f.GetProject(projectID)
	if err != nil || p == nil {
		return nil, err
	}
	for i := range p.Models {
		if strconv.FormatUint(uint64(p.Models[i].ID), 10) == assignmentID {
			return &p.Models[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) AssignmentExists(projectID uint, modelName string) (bool, error) {
	p, ok := f.projects[projectID]
	if !ok {
		return false, nil
	}
	return p.HasModel(modelName), nil
}

func (f *fakeStore) CreateAssignment(assignment *models.ProjectModel) error {
	p, ok := f.projects[assignment.ProjectID]
	if !ok {
		return errors.New("project not found")
	}
	assignment.ID = uint(len(p.Models) + 1)
	p.Models = append(p.Models, *assignment)
	return nil
}

func (f *fakeStore) DeleteAssignment(assignment *models.ProjectModel) error {
	p, ok := f.projects[assignment.ProjectID]
	if !ok {
		return errors.New("project not found")
	}
	for i := range p.Models {
		if p.Models[i].ID == assignment.ID {
			p.Models = append(p.Models[:i], p.Models[i+1:]...)
			return nil
		}
	}
	return nil
}

// fakeEngine records the request it was dispatched and replays canned
// responses.
type fakeEngine struct {
	lastReq     models.GenerateRequest
	record      models.GenerateRecord
	streamBody  string
	contentType string
	err         error
}

func (f *fakeEngine) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateRecord, error) {
	f.lastReq = req
	if f.err != nil {
		return models.GenerateRecord{}, f.err
	}
	return f.record, nil
}

func (f *fakeEngine) GenerateStream(ctx context.Context, req models.GenerateRequest) (*engine.Stream, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	ct := f.contentType
	if ct == "" {
		ct = "application/x-ndjson"
	}
	return &engine.Stream{
		Body:        io.NopCloser(strings.NewReader(f.streamBody)),
		ContentType: ct,
	}, nil
}

func (f *fakeEngine) Tags(ctx context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{"models":[{"name":"llama2"}]}`), nil
}

func (f *fakeEngine) Ps(ctx context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{"models":[]}`), nil
}

func (f *fakeEngine) Pull(ctx context.Context, name string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.streamBody)), nil
}

func (f *fakeEngine) Delete(ctx context.Context, name string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{}`), nil
}

func newTestApp(store Store, eng Engine) *fiber.App {
	app := fiber.New()
	auth := middleware.NewAuth("test-secret")
	h := NewHandler(Config{AdminUser: "admin", AdminPassword: "secret"}, store, eng, auth)
	app.Post("/api/ollama/generate", middleware.RequireAPIKey(), h.Generate)
	return app
}

func generateJSON(t *testing.T, app *fiber.App, apiKey string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/ollama/generate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func TestGenerateValidation(t *testing.T) {
	store := newFakeStore()
	store.addProject("p", "key-1", true, "llama2")
	app := newTestApp(store, &fakeEngine{})

	tests := []struct {
		name    string
		payload map[string]any
		field   string
	}{
		{"missing model", map[string]any{"prompt": "hi"}, "model"},
		{"empty model", map[string]any{"model": "  ", "prompt": "hi"}, "model"},
		{"missing prompt", map[string]any{"model": "llama2"}, "prompt"},
		{"empty prompt", map[string]any{"model": "llama2", "prompt": ""}, "prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := generateJSON(t, app, "key-1", tt.payload)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

			var envelope models.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
			assert.Contains(t, envelope.Message, tt.field)
		})
	}
}

func TestGenerateAuthorizationTable(t *testing.T) {
	store := newFakeStore()
	store.addProject("active", "key-active", true, "llama2")
	store.addProject("inactive", "key-inactive", false, "llama2")
	eng := &fakeEngine{record: models.GenerateRecord{Response: "ok", Done: true}}
	app := newTestApp(store, eng)

	payload := map[string]any{"model": "llama2", "prompt": "hi"}

	resp := generateJSON(t, app, "", payload)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "missing key")

	resp = generateJSON(t, app, "key-unknown", payload)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "unknown key")

	resp = generateJSON(t, app, "key-inactive", payload)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "inactive project")

	resp = generateJSON(t, app, "key-active", map[string]any{"model": "mistral", "prompt": "hi"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "model not assigned")

	resp = generateJSON(t, app, "key-active", payload)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "allowed")
}

func TestGenerateAuthFailuresNeverReachEngine(t *testing.T) {
	store := newFakeStore()
	store.addProject("inactive", "key-inactive", false, "llama2")
	eng := &fakeEngine{}
	app := newTestApp(store, eng)

	generateJSON(t, app, "key-inactive", map[string]any{"model": "llama2", "prompt": "hi"})
	generateJSON(t, app, "key-unknown", map[string]any{"model": "llama2", "prompt": "hi"})
	generateJSON(t, app, "key-inactive", map[string]any{"prompt": "no model"})

	assert.Empty(t, eng.lastReq.Model, "the dispatcher must not be called on validation/auth failure")
}

func TestGenerateNonStreamingReturnsSingleRecord(t *testing.T) {
	store := newFakeStore()
	store.addProject("p", "key-1", true, "llama2")
	eng := &fakeEngine{record: models.GenerateRecord{Model: "llama2", Response: "hello", Done: true}}
	app := newTestApp(store, eng)

	resp := generateJSON(t, app, "key-1", map[string]any{"model": "llama2", "prompt": "hi"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var rec models.GenerateRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "hello", rec.Response)
	assert.True(t, rec.Done)
}

func TestGenerateUpstreamUnavailable(t *testing.T) {
	store := newFakeStore()
	store.addProject("p", "key-1", true, "llama2")
	eng := &fakeEngine{err: fmt.Errorf("%w: connection refused", engine.ErrUnavailable)}
	app := newTestApp(store, eng)

	resp := generateJSON(t, app, "key-1", map[string]any{"model": "llama2", "prompt": "hi"})
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

func TestGenerateMirrorsEngineStatus(t *testing.T) {
	store := newFakeStore()
	store.addProject("p", "key-1", true, "llama2")
	eng := &fakeEngine{err: &engine.StatusError{Code: 404, Body: []byte(`{"error":"model not found"}`)}}
	app := newTestApp(store, eng)

	resp := generateJSON(t, app, "key-1", map[string]any{"model": "llama2", "prompt": "hi"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var envelope models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Contains(t, envelope.Message, "model not found")
}

func TestGenerateStreamingRelaysBody(t *testing.T) {
	store := newFakeStore()
	store.addProject("p", "key-1", true, "llama2")
	ndjson := `{"response":"Hi","done":false}` + "\n" + `{"response":" there","done":true}` + "\n"
	eng := &fakeEngine{streamBody: ndjson}
	app := newTestApp(store, eng)

	resp := generateJSON(t, app, "key-1", map[string]any{"model": "llama2", "prompt": "hi", "stream": true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, ndjson, string(body))
	assert.True(t, eng.lastReq.Stream)
}

func TestGenerateStreamingPreservesUpstreamContentType(t *testing.T) {
	store := newFakeStore()
	store.addProject("p", "key-1", true, "llama2")
	eng := &fakeEngine{streamBody: "{}\n", contentType: "application/json; charset=utf-8"}
	app := newTestApp(store, eng)

	resp := generateJSON(t, app, "key-1", map[string]any{"model": "llama2", "prompt": "hi", "stream": true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
}

func multipartRequest(t *testing.T, fields map[string]string, attachments [][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for i, data := range attachments {
		part, err := w.CreateFormFile("attachments", fmt.Sprintf("file-%d.png", i))
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/ollama/generate", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestGenerateMultipartIngestion(t *testing.T) {
	store := newFakeStore()
	store.addProject("p", "key-1", true, "llava")
	eng := &fakeEngine{record: models.GenerateRecord{Response: "a cat", Done: true}}
	app := newTestApp(store, eng)

	first := []byte{0x89, 0x50, 0x4e, 0x47}
	second := []byte{0xff, 0xd8, 0xff, 0xe0}
	req := multipartRequest(t, map[string]string{
		"model":  "llava",
		"prompt": "what is in these?",
		"stream": "false",
	}, [][]byte{first, second})
	req.Header.Set("X-API-Key", "key-1")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Len(t, eng.lastReq.Images, 2)
	assert.Equal(t, base64.StdEncoding.EncodeToString(first), eng.lastReq.Images[0])
	assert.Equal(t, base64.StdEncoding.EncodeToString(second), eng.lastReq.Images[1])
	assert.Equal(t, "llava", eng.lastReq.Model)
	assert.Equal(t, "what is in these?", eng.lastReq.Prompt)
}

func TestGenerateMultipartStreamDefaultsFalse(t *testing.T) {
	store := newFakeStore()
	store.addProject("p", "key-1", true, "llama2")
	eng := &fakeEngine{record: models.GenerateRecord{Done: true}}
	app := newTestApp(store, eng)

	req := multipartRequest(t, map[string]string{"model": "llama2", "prompt": "hi"}, nil)
	req.Header.Set("X-API-Key", "key-1")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.False(t, eng.lastReq.Stream)
}

func TestGenerateMultipartMissingModel(t *testing.T) {
	store := newFakeStore()
	store.addProject("p", "key-1", true, "llama2")
	app := newTestApp(store, &fakeEngine{})

	req := multipartRequest(t, map[string]string{"prompt": "hi"}, nil)
	req.Header.Set("X-API-Key", "key-1")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
