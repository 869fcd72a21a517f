// Package job provides the Job aggregate for avatar render orchestration.
// A Job owns the two independent generation legs (video and audio), the
// state machine that joins them, and the version counter used for
// optimistic concurrency on every mutation.
package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VoiceMode selects how the audio leg synthesizes speech.
type VoiceMode string

const (
	// VoiceModeStandard uses the speech service's stock neural voice.
	VoiceModeStandard VoiceMode = "standard"
	// VoiceModeCloned uses a voice cloned from the caller's uploaded samples.
	VoiceModeCloned VoiceMode = "cloned"
)

// IsValid returns true if the voice mode is valid.
func (m VoiceMode) IsValid() bool {
	return m == VoiceModeStandard || m == VoiceModeCloned
}

// GestureMode controls how animated the rendered presenter is.
type GestureMode string

const (
	// GestureModeSubtle renders minimal, natural movement.
	GestureModeSubtle GestureMode = "subtle"
	// GestureModeExpressive renders clear, dynamic hand gestures.
	GestureModeExpressive GestureMode = "expressive"
)

// IsValid returns true if the gesture mode is valid.
func (m GestureMode) IsValid() bool {
	return m == GestureModeSubtle || m == GestureModeExpressive
}

// State represents the current state of a Job.
type State string

const (
	// StateCreated indicates the job record exists but no generation work
	// has been submitted yet.
	StateCreated State = "CREATED"
	// StateGenerating indicates both legs were submitted and are being polled.
	StateGenerating State = "GENERATING"
	// StateAwaitingCombination indicates both legs are ready and the job is
	// queued for the combination stage.
	StateAwaitingCombination State = "AWAITING_COMBINATION"
	// StateCombining indicates the combination stage has been invoked.
	StateCombining State = "COMBINING"
	// StateSucceeded indicates the final artifact was produced.
	StateSucceeded State = "SUCCEEDED"
	// StateFailed indicates a leg or the combination stage failed permanently.
	StateFailed State = "FAILED"
	// StateTimedOut indicates the job did not finish within its deadline.
	StateTimedOut State = "TIMED_OUT"
)

// IsTerminal returns true if the state is a terminal state.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("job: invalid state transition")

// validTransitions defines which state transitions are allowed.
// The graph is strictly forward: no transition ever moves backward.
var validTransitions = map[State][]State{
	StateCreated:             {StateGenerating, StateFailed, StateTimedOut},
	StateGenerating:          {StateAwaitingCombination, StateFailed, StateTimedOut},
	StateAwaitingCombination: {StateCombining, StateFailed, StateTimedOut},
	StateCombining:           {StateSucceeded, StateFailed, StateTimedOut},
	StateSucceeded:           {},
	StateFailed:              {},
	StateTimedOut:            {},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// LegKind identifies one of the two generation legs.
type LegKind string

const (
	// LegVideo is the video-synthesis leg.
	LegVideo LegKind = "video"
	// LegAudio is the speech-synthesis leg.
	LegAudio LegKind = "audio"
)

// LegStatus represents the status of a single generation leg.
type LegStatus string

const (
	// LegPending indicates the leg has not been submitted yet.
	LegPending LegStatus = "PENDING"
	// LegSubmitted indicates the remote service accepted the request and
	// the leg is being polled.
	LegSubmitted LegStatus = "SUBMITTED"
	// LegReady indicates the leg produced its artifact.
	LegReady LegStatus = "READY"
	// LegFailed indicates the remote service rejected or failed the request.
	LegFailed LegStatus = "FAILED"
	// LegSuperseded indicates the orchestrator stopped polling the leg
	// because the other leg failed the job first.
	LegSuperseded LegStatus = "SUPERSEDED"
)

// IsTerminal returns true if the leg status is final.
func (s LegStatus) IsTerminal() bool {
	switch s {
	case LegReady, LegFailed, LegSuperseded:
		return true
	default:
		return false
	}
}

// Leg is the sub-record tracking one generation leg.
type Leg struct {
	// Status is the leg's current status.
	Status LegStatus `json:"status"`
	// ExternalHandle is the remote service's identifier for the request.
	ExternalHandle string `json:"external_handle,omitempty"`
	// ArtifactKey references the produced artifact; set only on READY.
	ArtifactKey string `json:"artifact_key,omitempty"`
	// FailureReason is set only on FAILED.
	FailureReason string `json:"failure_reason,omitempty"`
	// LastPolledAt is when the leg was last polled.
	LastPolledAt time.Time `json:"last_polled_at,omitzero"`
	// AttemptCount is the number of polls issued for this leg.
	AttemptCount int `json:"attempt_count"`
}

// Input holds the caller-owned references and options a job renders from.
// The job keeps read-only references, never copies of the blobs.
type Input struct {
	// PortraitKey is the artifact-store key of the source portrait image.
	PortraitKey string `json:"portrait_key"`
	// Script is the text to speak.
	Script string `json:"script"`
	// VoiceMode selects standard or cloned speech synthesis.
	VoiceMode VoiceMode `json:"voice_mode"`
	// GestureMode controls presenter animation in the video prompt.
	GestureMode GestureMode `json:"gesture_mode"`
	// DurationSeconds is the requested video length.
	DurationSeconds int `json:"duration_seconds"`
	// UserID identifies the caller, used to locate cloned-voice samples.
	UserID string `json:"user_id,omitempty"`
}

// Job is the durable record for one avatar render. It is the only shared
// mutable resource in the orchestration core; every write is conditional on
// Version being unchanged since the record was read.
type Job struct {
	// ID is the unique identifier, assigned at creation, immutable.
	ID string `json:"id"`
	// State is the current state machine position.
	State State `json:"state"`
	// Input holds the source references and render options.
	Input Input `json:"input"`
	// VideoLeg tracks the video-synthesis leg.
	VideoLeg Leg `json:"video_leg"`
	// AudioLeg tracks the speech-synthesis leg.
	AudioLeg Leg `json:"audio_leg"`
	// FinalArtifactKey references the muxed output; set only on SUCCEEDED.
	FinalArtifactKey string `json:"final_artifact_key,omitempty"`
	// FailureReason names the failed leg or stage; set only on FAILED/TIMED_OUT.
	FailureReason string `json:"failure_reason,omitempty"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// DeadlineAt is CreatedAt plus the orchestration budget.
	DeadlineAt time.Time `json:"deadline_at"`
	// UpdatedAt is when the record was last written.
	UpdatedAt time.Time `json:"updated_at"`
	// Version is the monotonic counter guarding every mutation.
	Version int64 `json:"version"`
}

// New creates a Job in CREATED state with a generated ID and a deadline of
// now plus the given orchestration budget.
func New(input Input, budget time.Duration) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:         uuid.NewString(),
		State:      StateCreated,
		Input:      input,
		VideoLeg:   Leg{Status: LegPending},
		AudioLeg:   Leg{Status: LegPending},
		CreatedAt:  now,
		DeadlineAt: now.Add(budget),
		UpdatedAt:  now,
		Version:    1,
	}
}

// TransitionTo moves the job to the given state, enforcing the forward-only
// transition graph. Returns ErrInvalidTransition otherwise.
func (j *Job) TransitionTo(state State) error {
	if !canTransition(j.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, state)
	}
	j.State = state
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail transitions the job to FAILED and records the reason.
func (j *Job) Fail(reason string) error {
	if err := j.TransitionTo(StateFailed); err != nil {
		return err
	}
	j.FailureReason = reason
	return nil
}

// Timeout transitions the job to TIMED_OUT and records the reason.
func (j *Job) Timeout(reason string) error {
	if err := j.TransitionTo(StateTimedOut); err != nil {
		return err
	}
	j.FailureReason = reason
	return nil
}

// Succeed transitions the job to SUCCEEDED and records the final artifact
// key. The key must be non-empty: FinalArtifactKey is set exactly when the
// job succeeds, never otherwise.
func (j *Job) Succeed(finalArtifactKey string) error {
	if finalArtifactKey == "" {
		return errors.New("job: final artifact key is required")
	}
	if err := j.TransitionTo(StateSucceeded); err != nil {
		return err
	}
	j.FinalArtifactKey = finalArtifactKey
	return nil
}

// Leg returns a pointer to the sub-record for the given kind.
func (j *Job) Leg(kind LegKind) *Leg {
	if kind == LegAudio {
		return &j.AudioLeg
	}
	return &j.VideoLeg
}

// BothLegsReady reports whether both generation legs produced artifacts.
func (j *Job) BothLegsReady() bool {
	return j.VideoLeg.Status == LegReady && j.AudioLeg.Status == LegReady
}

// DeadlineExceeded reports whether the orchestration budget has expired.
func (j *Job) DeadlineExceeded(now time.Time) bool {
	return now.After(j.DeadlineAt)
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.State.IsTerminal()
}

// Clone creates a deep copy of the job for safe hand-off across goroutines.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}
