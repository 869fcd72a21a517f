package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avatarforge/avatar-api/internal/job"
	"github.com/avatarforge/avatar-api/internal/orchestrator"
	"github.com/avatarforge/avatar-api/internal/storage"
)

// Request defaults applied after validation.
const (
	defaultDurationSeconds = 18
	presignTTL             = time.Hour
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service       *orchestrator.Service
	runner        *orchestrator.Runner
	store         storage.Store
	validator     *validator.Validate
	logger        *slog.Logger
	enableRunning bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithOrchestration enables or disables background orchestration. When
// disabled, CreateJob only creates the record and returns; used in tests.
func WithOrchestration(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableRunning = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *orchestrator.Service, runner *orchestrator.Runner, store storage.Store, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:       service,
		runner:        runner,
		store:         store,
		validator:     validator.New(),
		logger:        logger,
		enableRunning: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests. Validation failures are the only
// errors surfaced synchronously; everything after job creation is observed
// through the status projection.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	input := job.Input{
		PortraitKey:     req.PortraitKey,
		Script:          req.Script,
		VoiceMode:       job.VoiceMode(req.VoiceMode),
		GestureMode:     job.GestureMode(req.GestureMode),
		DurationSeconds: req.DurationSeconds,
		UserID:          req.UserID,
	}
	if input.VoiceMode == "" {
		input.VoiceMode = job.VoiceModeStandard
	}
	if input.GestureMode == "" {
		input.GestureMode = job.GestureModeSubtle
	}
	if input.DurationSeconds == 0 {
		input.DurationSeconds = defaultDurationSeconds
	}

	created, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// Orchestrate on a detached context so the request ending does not
	// cancel the job's poll loop.
	if h.enableRunning {
		go h.runner.Run(context.WithoutCancel(r.Context()), created.ID)
	}

	h.logger.Info("job created",
		slog.String("job_id", created.ID),
		slog.String("voice_mode", string(input.VoiceMode)),
		slog.String("gesture_mode", string(input.GestureMode)),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:    created.ID,
		State: string(created.State),
	})
}

// GetJob handles GET /jobs/{id} requests with a read-only projection of
// the job record.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	resp := JobResponse{
		ID:            found.ID,
		State:         string(found.State),
		FailureReason: found.FailureReason,
	}

	if found.State == job.StateSucceeded && found.FinalArtifactKey != "" {
		resp.FinalVideoKey = found.FinalArtifactKey
		url, err := h.store.PresignGet(r.Context(), found.FinalArtifactKey, presignTTL)
		switch {
		case err == nil:
			resp.FinalVideoURL = url
		case errors.Is(err, storage.ErrPresignNotSupported):
			// Local store: the key alone is enough for dev clients.
		default:
			h.logger.Error("failed to presign final video",
				slog.String("job_id", jobID),
				slog.String("key", found.FinalArtifactKey),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateUploadURL handles POST /uploads requests, issuing a presigned PUT
// URL for a portrait image or a voice sample.
func (h *Handlers) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	var req UploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}

	fileName := path.Base(req.FileName)
	var key string
	switch req.FileType {
	case "voice":
		key = "voice-samples/" + userID + "/" + fileName
	default:
		key = "uploads/" + userID + "/" + fileName
	}

	contentType := contentTypeFor(fileName)

	url, err := h.store.PresignPut(r.Context(), key, contentType, presignTTL)
	if err != nil {
		if errors.Is(err, storage.ErrPresignNotSupported) {
			writeError(w, http.StatusNotImplemented, "uploads require S3 storage", "PRESIGN_UNSUPPORTED")
			return
		}
		h.logger.Error("failed to presign upload",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create upload URL", "PRESIGN_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, UploadURLResponse{
		UploadURL:   url,
		ObjectKey:   key,
		ContentType: contentType,
	})
}

// contentTypeFor infers the upload content type from the file extension.
// The content type is part of the presigned signature, so the client must
// send the same header.
func contentTypeFor(fileName string) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
