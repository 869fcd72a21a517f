package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarforge/avatar-api/internal/generator"
	"github.com/avatarforge/avatar-api/internal/job"
	"github.com/avatarforge/avatar-api/internal/orchestrator"
	"github.com/avatarforge/avatar-api/internal/storage"
)

// noopAdapter satisfies generator.Adapter; orchestration is disabled in
// these tests so it is never reached.
type noopAdapter struct{}

func (noopAdapter) Submit(context.Context, generator.Spec) (string, error) {
	return "handle", nil
}

func (noopAdapter) Poll(context.Context, string) (generator.Outcome, error) {
	return generator.Outcome{Phase: generator.PhasePending}, nil
}

// noopCombiner satisfies mux.Combiner.
type noopCombiner struct{}

func (noopCombiner) Combine(context.Context, string, string, string) error {
	return nil
}

// presignStore wraps a LocalStore with canned presign responses.
type presignStore struct {
	*storage.LocalStore
}

func (s *presignStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://cdn.example.com/" + key + "?sig=abc", nil
}

func (s *presignStore) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://cdn.example.com/" + key + "?sig=put", nil
}

type testEnv struct {
	handlers *Handlers
	repo     *job.MemoryRepository
	router   http.Handler
}

func newTestEnv(t *testing.T, store storage.Store) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := job.NewMemoryRepository()
	svc := orchestrator.NewService(repo, noopAdapter{}, noopAdapter{}, noopCombiner{}, logger)
	runner := orchestrator.NewRunner(svc, logger)

	if store == nil {
		local, err := storage.NewLocalStore(t.TempDir())
		require.NoError(t, err)
		store = local
	}

	h := NewHandlers(svc, runner, store, logger, WithOrchestration(false))
	return &testEnv{
		handlers: h,
		repo:     repo,
		router:   NewRouter(h, logger, DefaultConfig()),
	}
}

func createJobBody() map[string]any {
	return map[string]any{
		"portrait_key":     "uploads/user-1/portrait.png",
		"script":           "Welcome to the product tour.",
		"voice_mode":       "standard",
		"gesture_mode":     "subtle",
		"duration_seconds": 18,
	}
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := doJSON(t, env.router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateJob_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := doJSON(t, env.router, http.MethodPost, "/jobs", createJobBody())
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, string(job.StateCreated), resp.State)

	stored, err := env.repo.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "uploads/user-1/portrait.png", stored.Input.PortraitKey)
	assert.Equal(t, job.VoiceModeStandard, stored.Input.VoiceMode)
}

func TestCreateJob_Defaults(t *testing.T) {
	env := newTestEnv(t, nil)

	body := map[string]any{
		"portrait_key": "uploads/user-1/portrait.png",
		"script":       "Hello.",
	}
	rec := doJSON(t, env.router, http.MethodPost, "/jobs", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	stored, err := env.repo.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, job.VoiceModeStandard, stored.Input.VoiceMode)
	assert.Equal(t, job.GestureModeSubtle, stored.Input.GestureMode)
	assert.Equal(t, 18, stored.Input.DurationSeconds)
}

func TestCreateJob_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing portrait key", func(b map[string]any) { delete(b, "portrait_key") }},
		{"missing script", func(b map[string]any) { delete(b, "script") }},
		{"script too long", func(b map[string]any) { b["script"] = strings.Repeat("a", 3001) }},
		{"invalid voice mode", func(b map[string]any) { b["voice_mode"] = "robotic" }},
		{"invalid gesture mode", func(b map[string]any) { b["gesture_mode"] = "wild" }},
		{"duration too short", func(b map[string]any) { b["duration_seconds"] = 2 }},
		{"duration too long", func(b map[string]any) { b["duration_seconds"] = 600 }},
		{"cloned voice without user", func(b map[string]any) { b["voice_mode"] = "cloned"; delete(b, "user_id") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := createJobBody()
			tt.mutate(body)

			rec := doJSON(t, env.router, http.MethodPost, "/jobs", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
		})
	}
}

func TestCreateJob_ClonedVoiceWithUser(t *testing.T) {
	env := newTestEnv(t, nil)

	body := createJobBody()
	body["voice_mode"] = "cloned"
	body["user_id"] = "user-42"

	rec := doJSON(t, env.router, http.MethodPost, "/jobs", body)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCreateJob_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_JSON", resp.Code)
}

func TestGetJob_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := doJSON(t, env.router, http.MethodGet, "/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "JOB_NOT_FOUND", resp.Code)
}

func TestGetJob_Projection(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := doJSON(t, env.router, http.MethodPost, "/jobs", createJobBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, env.router, http.MethodGet, "/jobs/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.ID, resp.ID)
	assert.Equal(t, string(job.StateCreated), resp.State)
	assert.Empty(t, resp.FinalVideoKey)
	assert.Empty(t, resp.FailureReason)
}

func TestGetJob_FailedSurfacesReason(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	j := job.New(job.Input{
		PortraitKey: "uploads/u/p.png",
		Script:      "hi",
		VoiceMode:   job.VoiceModeStandard,
		GestureMode: job.GestureModeSubtle,
	}, time.Minute)
	j.State = job.StateGenerating
	require.NoError(t, j.Fail("video leg: render rejected"))
	require.NoError(t, env.repo.Create(ctx, j))

	rec := doJSON(t, env.router, http.MethodGet, "/jobs/"+j.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(job.StateFailed), resp.State)
	assert.Equal(t, "video leg: render rejected", resp.FailureReason)
	assert.Empty(t, resp.FinalVideoKey)
}

func TestGetJob_SucceededWithPresignedURL(t *testing.T) {
	local, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	env := newTestEnv(t, &presignStore{LocalStore: local})
	ctx := context.Background()

	j := job.New(job.Input{PortraitKey: "p", Script: "s"}, time.Minute)
	j.State = job.StateCombining
	require.NoError(t, j.Succeed("renders/final/"+j.ID+".mp4"))
	require.NoError(t, env.repo.Create(ctx, j))

	rec := doJSON(t, env.router, http.MethodGet, "/jobs/"+j.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(job.StateSucceeded), resp.State)
	assert.Equal(t, "renders/final/"+j.ID+".mp4", resp.FinalVideoKey)
	assert.Contains(t, resp.FinalVideoURL, "https://cdn.example.com/renders/final/")
}

func TestGetJob_SucceededWithoutPresignSupport(t *testing.T) {
	env := newTestEnv(t, nil) // local store, no presign
	ctx := context.Background()

	j := job.New(job.Input{PortraitKey: "p", Script: "s"}, time.Minute)
	j.State = job.StateCombining
	require.NoError(t, j.Succeed("renders/final/"+j.ID+".mp4"))
	require.NoError(t, env.repo.Create(ctx, j))

	rec := doJSON(t, env.router, http.MethodGet, "/jobs/"+j.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "renders/final/"+j.ID+".mp4", resp.FinalVideoKey)
	assert.Empty(t, resp.FinalVideoURL)
}

func TestCreateUploadURL_Portrait(t *testing.T) {
	local, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	env := newTestEnv(t, &presignStore{LocalStore: local})

	body := map[string]any{
		"file_name": "portrait.png",
		"file_type": "portrait",
		"user_id":   "user-1",
	}
	rec := doJSON(t, env.router, http.MethodPost, "/uploads", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp UploadURLResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "uploads/user-1/portrait.png", resp.ObjectKey)
	assert.Equal(t, "image/png", resp.ContentType)
	assert.Contains(t, resp.UploadURL, "sig=put")
}

func TestCreateUploadURL_VoiceSample(t *testing.T) {
	local, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	env := newTestEnv(t, &presignStore{LocalStore: local})

	body := map[string]any{
		"file_name": "sample.wav",
		"file_type": "voice",
		"user_id":   "user-1",
	}
	rec := doJSON(t, env.router, http.MethodPost, "/uploads", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp UploadURLResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "voice-samples/user-1/sample.wav", resp.ObjectKey)
	assert.Equal(t, "audio/wav", resp.ContentType)
}

func TestCreateUploadURL_StripsPathComponents(t *testing.T) {
	local, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	env := newTestEnv(t, &presignStore{LocalStore: local})

	body := map[string]any{
		"file_name": "../../etc/passwd",
		"user_id":   "user-1",
	}
	rec := doJSON(t, env.router, http.MethodPost, "/uploads", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp UploadURLResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "uploads/user-1/passwd", resp.ObjectKey)
}

func TestCreateUploadURL_LocalStoreUnsupported(t *testing.T) {
	env := newTestEnv(t, nil)

	body := map[string]any{
		"file_name": "portrait.png",
	}
	rec := doJSON(t, env.router, http.MethodPost, "/uploads", body)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PRESIGN_UNSUPPORTED", resp.Code)
}

func TestCreateUploadURL_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := doJSON(t, env.router, http.MethodPost, "/uploads", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		fileName string
		expected string
	}{
		{"portrait.png", "image/png"},
		{"portrait.PNG", "image/png"},
		{"photo.jpg", "image/jpeg"},
		{"photo.jpeg", "image/jpeg"},
		{"anim.gif", "image/gif"},
		{"sample.wav", "audio/wav"},
		{"sample.mp3", "audio/mpeg"},
		{"unknown.bin", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			assert.Equal(t, tt.expected, contentTypeFor(tt.fileName))
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodDelete, "/jobs", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
