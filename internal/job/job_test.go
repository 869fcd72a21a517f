package job

import (
	"testing"
	"time"
)

func testInput() Input {
	return Input{
		PortraitKey:     "uploads/user-1/avatar.png",
		Script:          "Hello, welcome to the product tour.",
		VoiceMode:       VoiceModeStandard,
		GestureMode:     GestureModeSubtle,
		DurationSeconds: 18,
	}
}

func TestNew(t *testing.T) {
	before := time.Now().UTC()
	j := New(testInput(), 20*time.Minute)

	if j.ID == "" {
		t.Error("expected job to have an ID")
	}
	if j.State != StateCreated {
		t.Errorf("expected state %s, got %s", StateCreated, j.State)
	}
	if j.Version != 1 {
		t.Errorf("expected version 1, got %d", j.Version)
	}
	if j.VideoLeg.Status != LegPending || j.AudioLeg.Status != LegPending {
		t.Error("expected both legs to start PENDING")
	}
	if j.CreatedAt.Before(before) {
		t.Error("expected CreatedAt to be set")
	}
	wantDeadline := j.CreatedAt.Add(20 * time.Minute)
	if !j.DeadlineAt.Equal(wantDeadline) {
		t.Errorf("expected deadline %v, got %v", wantDeadline, j.DeadlineAt)
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		wantErr bool
	}{
		// Forward path
		{"CREATED to GENERATING", StateCreated, StateGenerating, false},
		{"GENERATING to AWAITING_COMBINATION", StateGenerating, StateAwaitingCombination, false},
		{"AWAITING_COMBINATION to COMBINING", StateAwaitingCombination, StateCombining, false},
		{"COMBINING to SUCCEEDED", StateCombining, StateSucceeded, false},
		// Failure and timeout edges
		{"CREATED to FAILED", StateCreated, StateFailed, false},
		{"GENERATING to FAILED", StateGenerating, StateFailed, false},
		{"GENERATING to TIMED_OUT", StateGenerating, StateTimedOut, false},
		{"AWAITING_COMBINATION to FAILED", StateAwaitingCombination, StateFailed, false},
		{"AWAITING_COMBINATION to TIMED_OUT", StateAwaitingCombination, StateTimedOut, false},
		{"COMBINING to FAILED", StateCombining, StateFailed, false},
		{"COMBINING to TIMED_OUT", StateCombining, StateTimedOut, false},
		// Skips forward are not allowed
		{"CREATED to AWAITING_COMBINATION", StateCreated, StateAwaitingCombination, true},
		{"CREATED to SUCCEEDED", StateCreated, StateSucceeded, true},
		{"GENERATING to COMBINING", StateGenerating, StateCombining, true},
		{"GENERATING to SUCCEEDED", StateGenerating, StateSucceeded, true},
		// Backward moves are never allowed
		{"GENERATING to CREATED", StateGenerating, StateCreated, true},
		{"AWAITING_COMBINATION to GENERATING", StateAwaitingCombination, StateGenerating, true},
		{"COMBINING to AWAITING_COMBINATION", StateCombining, StateAwaitingCombination, true},
		// Terminal states never move
		{"SUCCEEDED to COMBINING", StateSucceeded, StateCombining, true},
		{"SUCCEEDED to FAILED", StateSucceeded, StateFailed, true},
		{"FAILED to GENERATING", StateFailed, StateGenerating, true},
		{"TIMED_OUT to GENERATING", StateTimedOut, StateGenerating, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := New(testInput(), time.Minute)
			j.State = tt.from

			err := j.TransitionTo(tt.to)

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_Succeed(t *testing.T) {
	j := New(testInput(), time.Minute)
	j.State = StateCombining

	if err := j.Succeed("renders/final/abc.mp4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.State != StateSucceeded {
		t.Errorf("expected state %s, got %s", StateSucceeded, j.State)
	}
	if j.FinalArtifactKey != "renders/final/abc.mp4" {
		t.Errorf("expected final artifact key to be set, got %q", j.FinalArtifactKey)
	}
}

func TestJob_Succeed_RequiresArtifactKey(t *testing.T) {
	j := New(testInput(), time.Minute)
	j.State = StateCombining

	if err := j.Succeed(""); err == nil {
		t.Error("expected error for empty final artifact key")
	}
	if j.State != StateCombining {
		t.Errorf("state must not move on rejected success, got %s", j.State)
	}
	if j.FinalArtifactKey != "" {
		t.Error("final artifact key must not be set outside SUCCEEDED")
	}
}

func TestJob_Fail(t *testing.T) {
	j := New(testInput(), time.Minute)
	j.State = StateGenerating

	if err := j.Fail("video leg: render rejected"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.State != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, j.State)
	}
	if j.FailureReason != "video leg: render rejected" {
		t.Errorf("unexpected failure reason: %q", j.FailureReason)
	}
	if j.FinalArtifactKey != "" {
		t.Error("final artifact key must not be set on FAILED")
	}
}

func TestJob_Timeout(t *testing.T) {
	j := New(testInput(), time.Minute)
	j.State = StateGenerating

	if err := j.Timeout("deadline exceeded in GENERATING"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.State != StateTimedOut {
		t.Errorf("expected state %s, got %s", StateTimedOut, j.State)
	}
	if !j.IsTerminal() {
		t.Error("expected TIMED_OUT to be terminal")
	}
}

func TestJob_BothLegsReady(t *testing.T) {
	j := New(testInput(), time.Minute)
	if j.BothLegsReady() {
		t.Error("pending legs must not report ready")
	}

	j.VideoLeg.Status = LegReady
	if j.BothLegsReady() {
		t.Error("one ready leg must not report both ready")
	}

	j.AudioLeg.Status = LegReady
	if !j.BothLegsReady() {
		t.Error("expected both legs ready")
	}
}

func TestJob_DeadlineExceeded(t *testing.T) {
	j := New(testInput(), time.Minute)

	if j.DeadlineExceeded(j.CreatedAt) {
		t.Error("deadline must not be exceeded at creation")
	}
	if !j.DeadlineExceeded(j.DeadlineAt.Add(time.Second)) {
		t.Error("expected deadline to be exceeded after DeadlineAt")
	}
}

func TestJob_Leg(t *testing.T) {
	j := New(testInput(), time.Minute)

	j.Leg(LegVideo).Status = LegSubmitted
	j.Leg(LegAudio).Status = LegReady

	if j.VideoLeg.Status != LegSubmitted {
		t.Errorf("expected video leg SUBMITTED, got %s", j.VideoLeg.Status)
	}
	if j.AudioLeg.Status != LegReady {
		t.Errorf("expected audio leg READY, got %s", j.AudioLeg.Status)
	}
}

func TestLegStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   LegStatus
		terminal bool
	}{
		{LegPending, false},
		{LegSubmitted, false},
		{LegReady, true},
		{LegFailed, true},
		{LegSuperseded, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("LegStatus(%q).IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestJob_Clone(t *testing.T) {
	j := New(testInput(), time.Minute)
	j.VideoLeg.Status = LegSubmitted
	j.VideoLeg.ExternalHandle = "render-1"

	c := j.Clone()
	c.VideoLeg.Status = LegReady
	c.State = StateGenerating

	if j.VideoLeg.Status != LegSubmitted {
		t.Error("mutating the clone must not affect the original")
	}
	if j.State != StateCreated {
		t.Error("mutating the clone must not affect the original state")
	}
}
