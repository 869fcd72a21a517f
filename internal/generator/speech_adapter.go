package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/avatarforge/avatar-api/internal/speech"
)

// SpeechAdapter adapts the speech service client to the Adapter interface
// for the audio leg.
type SpeechAdapter struct {
	client speech.Client
}

// NewSpeechAdapter creates a new speech service adapter.
func NewSpeechAdapter(client speech.Client) *SpeechAdapter {
	return &SpeechAdapter{client: client}
}

// Submit validates the spec and starts a synthesis.
func (a *SpeechAdapter) Submit(ctx context.Context, spec Spec) (string, error) {
	if err := validateSpec(KindAudio, spec); err != nil {
		return "", err
	}

	synthesisID, err := a.client.Submit(ctx, speech.SynthesisRequest{
		Text:               spec.Script,
		VoiceID:            spec.VoiceID,
		VoiceSamplesPrefix: spec.VoiceSamplesPrefix,
		OutputKey:          spec.OutputKey,
	})
	if err != nil {
		if errors.Is(err, speech.ErrRequestFailed) || errors.Is(err, speech.ErrSubmitFailed) {
			return "", Permanent("speech service rejected submit", err)
		}
		return "", fmt.Errorf("speech adapter submit: %w", err)
	}
	return synthesisID, nil
}

// Poll checks the synthesis status. Terminal results are stable across
// repeated polls of the same handle.
func (a *SpeechAdapter) Poll(ctx context.Context, handle string) (Outcome, error) {
	if handle == "" {
		return Outcome{}, Permanent("empty handle", ErrHandleRequired)
	}

	result, err := a.client.Poll(ctx, handle)
	if err != nil {
		if errors.Is(err, speech.ErrRequestFailed) {
			return Outcome{}, Permanent("speech service refused poll", err)
		}
		return Outcome{}, fmt.Errorf("speech adapter poll: %w", err)
	}

	switch result.Status {
	case speech.StatusCompleted:
		if result.AudioKey == "" {
			return Outcome{}, Permanent("synthesis completed without artifact", nil)
		}
		return Outcome{Phase: PhaseReady, ArtifactKey: result.AudioKey}, nil
	case speech.StatusFailed:
		return Outcome{Phase: PhaseFailed, FailureReason: failureReason("synthesis failed", result.Error)}, nil
	case speech.StatusRejected:
		return Outcome{Phase: PhaseFailed, FailureReason: failureReason("synthesis rejected", result.Error)}, nil
	default:
		return Outcome{Phase: PhasePending}, nil
	}
}

// Compile-time check that SpeechAdapter implements Adapter.
var _ Adapter = (*SpeechAdapter)(nil)
