// Package reel provides an HTTP client for the remote video-synthesis
// service that animates a still portrait into presenter footage.
package reel

// Status represents the status of a render as reported by the service.
type Status string

// Render statuses aligned with the service API.
const (
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	// StatusRejected means the input was refused by the service's content
	// policy; the render will never run.
	StatusRejected Status = "REJECTED"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected:
		return true
	default:
		return false
	}
}

// RenderRequest contains the parameters for starting a render.
type RenderRequest struct {
	// PortraitKey is the artifact-store key of the conditioning portrait.
	PortraitKey string
	// Prompt describes the presenter shot, including gesture style.
	Prompt string
	// DurationSeconds is the requested clip length. The service supports a
	// fixed set of durations; out-of-range values are clamped by the caller.
	DurationSeconds int
	// OutputKey is the artifact-store key the service writes the clip to.
	OutputKey string
}

// renderRequest is the wire shape for POST /v1/renders.
type renderRequest struct {
	PortraitKey     string `json:"portrait_key"`
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
	FPS             int    `json:"fps"`
	Dimension       string `json:"dimension"`
	OutputKey       string `json:"output_key"`
}

// renderResponse is the wire shape returned by POST /v1/renders.
type renderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusResponse is the wire shape returned by GET /v1/renders/{id}.
type statusResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output statusOutput `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// statusOutput carries the produced artifact reference.
type statusOutput struct {
	VideoKey string `json:"video_key,omitempty"`
}

// PollResult contains the result of polling a render's status.
type PollResult struct {
	Status Status
	// VideoKey is the artifact-store key of the clip (set on COMPLETED).
	VideoKey string
	// Error is the service's failure message (set on FAILED/REJECTED).
	Error string
}
