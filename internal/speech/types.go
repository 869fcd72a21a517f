// Package speech provides an HTTP client for the remote text-to-speech
// service. Synthesis is asynchronous: a submit returns a synthesis ID and
// the produced audio artifact is polled for, matching the render service's
// request/poll contract.
package speech

// Status represents the status of a synthesis as reported by the service.
type Status string

// Synthesis statuses aligned with the service API.
const (
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	// StatusRejected means the text was refused (content policy or an
	// unsupported voice); the synthesis will never run.
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

// SynthesisRequest contains the parameters for starting a synthesis.
type SynthesisRequest struct {
	// Text is the script to speak.
	Text string
	// VoiceID selects the stock voice. Ignored when VoiceSamplesPrefix is set.
	VoiceID string
	// VoiceSamplesPrefix locates uploaded voice samples for cloned synthesis.
	VoiceSamplesPrefix string
	// OutputKey is the artifact-store key the service writes the audio to.
	OutputKey string
}

// synthesisRequest is the wire shape for POST /v1/speech.
type synthesisRequest struct {
	Text               string `json:"text"`
	VoiceID            string `json:"voice_id,omitempty"`
	VoiceSamplesPrefix string `json:"voice_samples_prefix,omitempty"`
	Format             string `json:"format"`
	SampleRate         int    `json:"sample_rate"`
	OutputKey          string `json:"output_key"`
}

// synthesisResponse is the wire shape returned by POST /v1/speech.
type synthesisResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusResponse is the wire shape returned by GET /v1/speech/{id}.
type statusResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output statusOutput `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// statusOutput carries the produced artifact reference.
type statusOutput struct {
	AudioKey string `json:"audio_key,omitempty"`
}

// PollResult contains the result of polling a synthesis.
type PollResult struct {
	Status Status
	// AudioKey is the artifact-store key of the audio (set on COMPLETED).
	AudioKey string
	// Error is the service's failure message (set on FAILED/REJECTED).
	Error string
}
