// Package generator provides the uniform async-request/poll contract over
// the two remote generation services. The video and speech adapters hide
// the services' distinct request and response shapes behind one interface
// and normalize their native error codes into the transient/permanent
// taxonomy the orchestrator retries against.
package generator

import (
	"context"
	"errors"
	"fmt"
)

// MaxScriptChars bounds the script length accepted by Submit. Longer
// scripts are rejected synchronously and never create a remote job.
const MaxScriptChars = 3000

// Kind identifies which generation service a request targets.
type Kind string

const (
	// KindVideo targets the video-synthesis service.
	KindVideo Kind = "video"
	// KindAudio targets the speech-synthesis service.
	KindAudio Kind = "audio"
)

// Spec describes one generation request. Fields irrelevant to a kind are
// ignored by that kind's adapter.
type Spec struct {
	// PortraitKey is the artifact-store key of the source portrait (video).
	PortraitKey string
	// Script is the text to speak (audio) and to prompt from (video).
	Script string
	// GesturePrompt is the gesture description folded into the video prompt.
	GesturePrompt string
	// DurationSeconds is the requested video length.
	DurationSeconds int
	// VoiceID selects the speech service voice (audio).
	VoiceID string
	// VoiceSamplesPrefix locates cloned-voice samples (audio, cloned mode).
	VoiceSamplesPrefix string
	// OutputKey is the artifact-store key the service writes its result to.
	OutputKey string
}

// Phase is the coarse progress of a polled request.
type Phase int

const (
	// PhasePending means the remote request has not finished.
	PhasePending Phase = iota
	// PhaseReady means the artifact is available.
	PhaseReady
	// PhaseFailed means the remote request failed permanently.
	PhaseFailed
)

// Outcome is the result of polling a handle.
// Exactly one of ArtifactKey (Ready) or FailureReason (Failed) is set.
type Outcome struct {
	Phase         Phase
	ArtifactKey   string
	FailureReason string
}

// Adapter is the uniform contract wrapping a remote generation service.
//
// Submit validates the spec shape before dispatch; a validation failure is
// reported synchronously and never reaches the remote service. Poll is
// idempotent and side-effect-free from the caller's perspective: repeated
// polls of a handle after Ready or Failed return the same terminal outcome.
type Adapter interface {
	Submit(ctx context.Context, spec Spec) (handle string, err error)
	Poll(ctx context.Context, handle string) (Outcome, error)
}

// Static validation errors shared by the adapters.
var (
	// ErrScriptRequired is returned when the spec has no script text.
	ErrScriptRequired = errors.New("generator: script is required")
	// ErrScriptTooLong is returned when the script exceeds MaxScriptChars.
	ErrScriptTooLong = fmt.Errorf("generator: script exceeds %d characters", MaxScriptChars)
	// ErrPortraitRequired is returned when a video spec has no portrait key.
	ErrPortraitRequired = errors.New("generator: portrait key is required")
	// ErrHandleRequired is returned when Poll is called with an empty handle.
	ErrHandleRequired = errors.New("generator: handle is required")
)

// PermanentError marks an adapter error that must not be retried: the
// remote service rejected the input (content policy, malformed request,
// quota permanently exhausted). Anything not wrapped in PermanentError is
// treated as transient and retried on the next poll tick.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent: %s: %v", e.Reason, e.Err)
	}
	return "permanent: " + e.Reason
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a PermanentError with the given reason.
func Permanent(reason string, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

// IsPermanent reports whether err carries a PermanentError anywhere in its
// chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// validateSpec applies the shared submit-time shape checks.
func validateSpec(kind Kind, spec Spec) error {
	if spec.Script == "" {
		return Permanent("empty script", ErrScriptRequired)
	}
	if len(spec.Script) > MaxScriptChars {
		return Permanent("script too long", ErrScriptTooLong)
	}
	if kind == KindVideo && spec.PortraitKey == "" {
		return Permanent("missing portrait", ErrPortraitRequired)
	}
	return nil
}
