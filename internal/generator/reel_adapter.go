package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/avatarforge/avatar-api/internal/reel"
)

// ReelAdapter adapts the render service client to the Adapter interface
// for the video leg.
type ReelAdapter struct {
	client reel.Client
}

// NewReelAdapter creates a new render service adapter.
func NewReelAdapter(client reel.Client) *ReelAdapter {
	return &ReelAdapter{client: client}
}

// Submit validates the spec and starts a render.
func (a *ReelAdapter) Submit(ctx context.Context, spec Spec) (string, error) {
	if err := validateSpec(KindVideo, spec); err != nil {
		return "", err
	}

	renderID, err := a.client.Submit(ctx, reel.RenderRequest{
		PortraitKey:     spec.PortraitKey,
		Prompt:          presenterPrompt(spec.GesturePrompt),
		DurationSeconds: spec.DurationSeconds,
		OutputKey:       spec.OutputKey,
	})
	if err != nil {
		if errors.Is(err, reel.ErrRequestFailed) || errors.Is(err, reel.ErrSubmitFailed) {
			return "", Permanent("render service rejected submit", err)
		}
		return "", fmt.Errorf("reel adapter submit: %w", err)
	}
	return renderID, nil
}

// Poll checks the render status. Terminal results are stable: the service
// keeps reporting the same COMPLETED artifact or failure for a finished
// render, so repeated polls return the same outcome.
func (a *ReelAdapter) Poll(ctx context.Context, handle string) (Outcome, error) {
	if handle == "" {
		return Outcome{}, Permanent("empty handle", ErrHandleRequired)
	}

	result, err := a.client.Poll(ctx, handle)
	if err != nil {
		if errors.Is(err, reel.ErrRequestFailed) {
			return Outcome{}, Permanent("render service refused poll", err)
		}
		return Outcome{}, fmt.Errorf("reel adapter poll: %w", err)
	}

	switch result.Status {
	case reel.StatusCompleted:
		if result.VideoKey == "" {
			return Outcome{}, Permanent("render completed without artifact", nil)
		}
		return Outcome{Phase: PhaseReady, ArtifactKey: result.VideoKey}, nil
	case reel.StatusFailed:
		return Outcome{Phase: PhaseFailed, FailureReason: failureReason("render failed", result.Error)}, nil
	case reel.StatusRejected:
		return Outcome{Phase: PhaseFailed, FailureReason: failureReason("render rejected by content policy", result.Error)}, nil
	default:
		return Outcome{Phase: PhasePending}, nil
	}
}

// presenterPrompt builds the render prompt around the gesture description.
func presenterPrompt(gesture string) string {
	if gesture == "" {
		gesture = "natural hand gestures"
	}
	return fmt.Sprintf(
		"Medium shot of a professional presenter looking directly into the camera, %s, "+
			"calm confident body language, slight head movement and occasional nods while speaking, "+
			"natural facial expressions with subtle smile, professional demeanor.",
		gesture,
	)
}

// failureReason joins the local context with the remote message when present.
func failureReason(context, remote string) string {
	if remote == "" {
		return context
	}
	return context + ": " + remote
}

// Compile-time check that ReelAdapter implements Adapter.
var _ Adapter = (*ReelAdapter)(nil)
