// Package server provides the HTTP intake layer for the avatar render API.
// It includes handlers, middleware, routes, and DTOs separated from domain
// types. The intake layer creates jobs and projects their status; all
// orchestration happens behind it.
package server

// CreateJobRequest is the HTTP request body for creating a render job.
type CreateJobRequest struct {
	// PortraitKey is the artifact-store key of the uploaded portrait.
	PortraitKey string `json:"portrait_key" validate:"required"`
	// Script is the text the avatar speaks.
	Script string `json:"script" validate:"required,max=3000"`
	// VoiceMode selects speech synthesis: "standard" or "cloned".
	VoiceMode string `json:"voice_mode" validate:"omitempty,oneof=standard cloned"`
	// GestureMode controls presenter animation: "subtle" or "expressive".
	GestureMode string `json:"gesture_mode" validate:"omitempty,oneof=subtle expressive"`
	// DurationSeconds is the requested video length.
	DurationSeconds int `json:"duration_seconds" validate:"omitempty,min=5,max=120"`
	// UserID identifies the caller; required for cloned voice mode.
	UserID string `json:"user_id" validate:"required_if=VoiceMode cloned"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// State is the initial job state.
	State string `json:"state"`
}

// JobResponse is the read-only status projection of a job record.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// State is the current job state.
	State string `json:"state"`
	// FinalVideoKey is the artifact key of the muxed video (SUCCEEDED only).
	FinalVideoKey string `json:"final_video_key,omitempty"`
	// FinalVideoURL is a time-limited download URL (SUCCEEDED only, when
	// the artifact store can presign).
	FinalVideoURL string `json:"final_video_url,omitempty"`
	// FailureReason names the failed leg or stage (FAILED/TIMED_OUT only).
	FailureReason string `json:"failure_reason,omitempty"`
}

// UploadURLRequest is the HTTP request body for a presigned upload URL.
type UploadURLRequest struct {
	// FileName is the name of the file the client will upload.
	FileName string `json:"file_name" validate:"required"`
	// FileType is "portrait" or "voice".
	FileType string `json:"file_type" validate:"omitempty,oneof=portrait voice"`
	// UserID namespaces the uploaded object.
	UserID string `json:"user_id"`
}

// UploadURLResponse carries the presigned PUT URL and the resulting key.
type UploadURLResponse struct {
	// UploadURL is the presigned URL the client PUTs the file to.
	UploadURL string `json:"upload_url"`
	// ObjectKey is the artifact-store key the upload lands under.
	ObjectKey string `json:"object_key"`
	// ContentType must be sent as the Content-Type header of the PUT.
	ContentType string `json:"content_type"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
