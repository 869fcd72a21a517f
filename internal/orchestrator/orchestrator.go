// Package orchestrator owns the job lifecycle: it submits the two
// generation legs, polls them under the job's time budget, joins the
// results, and triggers the combination stage exactly once per job.
//
// Orchestration proceeds as a sequence of short-lived ticks rather than a
// long-lived blocking routine. Every tick re-reads the job record, derives
// the next transition from fresh state, and writes it back with a
// version-conditional update; a conflict means another tick got there
// first, and the loser simply re-reads and re-decides.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avatarforge/avatar-api/internal/generator"
	"github.com/avatarforge/avatar-api/internal/job"
	"github.com/avatarforge/avatar-api/internal/mux"
)

// Defaults for the orchestration budget and poll cadence.
const (
	// DefaultBudget is the fixed orchestration time budget per job.
	DefaultBudget = 20 * time.Minute
	// DefaultPollInterval is the fixed per-leg poll interval.
	DefaultPollInterval = 30 * time.Second
)

// conflictRetries bounds how many times a tick re-reads after losing a
// conditional write before giving up until the next tick.
const conflictRetries = 3

// Option configures a Service.
type Option func(*Service)

// WithBudget overrides the per-job orchestration time budget.
func WithBudget(d time.Duration) Option {
	return func(s *Service) {
		s.budget = d
	}
}

// WithPollInterval overrides the per-leg poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		s.pollInterval = d
	}
}

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service drives jobs through the state machine.
type Service struct {
	repo         job.Repository
	video        generator.Adapter
	audio        generator.Adapter
	combiner     mux.Combiner
	logger       *slog.Logger
	budget       time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

// NewService creates an orchestration service.
func NewService(repo job.Repository, video, audio generator.Adapter, combiner mux.Combiner, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:         repo,
		video:        video,
		audio:        audio,
		combiner:     combiner,
		logger:       logger,
		budget:       DefaultBudget,
		pollInterval: DefaultPollInterval,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PollInterval returns the configured poll cadence.
func (s *Service) PollInterval() time.Duration {
	return s.pollInterval
}

// attemptCap derives the per-leg poll attempt bound from the budget, so leg
// exhaustion and deadline expiry converge instead of racing.
func (s *Service) attemptCap() int {
	return int(s.budget / s.pollInterval)
}

// CreateJob validates nothing beyond what the intake layer already checked;
// it persists a new CREATED job with the configured budget.
func (s *Service) CreateJob(ctx context.Context, input job.Input) (*job.Job, error) {
	j := job.New(input, s.budget)

	s.logger.Info("creating job",
		slog.String("job_id", j.ID),
		slog.String("voice_mode", string(input.VoiceMode)),
		slog.String("gesture_mode", string(input.GestureMode)),
		slog.Time("deadline_at", j.DeadlineAt),
	)

	if err := s.repo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*job.Job, error) {
	return s.repo.Get(ctx, id)
}

// Tick runs one orchestration pass for the job: deadline check, submit or
// poll depending on state, fan-in, and at most one combination invocation.
// Ticks are safe to run concurrently for the same job; conditional writes
// serialize them.
func (s *Service) Tick(ctx context.Context, jobID string) error {
	for attempt := 0; ; attempt++ {
		j, err := s.repo.Get(ctx, jobID)
		if err != nil {
			return fmt.Errorf("tick %s: %w", jobID, err)
		}
		if j.IsTerminal() {
			return nil
		}

		err = s.advance(ctx, j)
		if errors.Is(err, job.ErrVersionConflict) && attempt < conflictRetries {
			// Lost against a concurrent tick; re-read and re-decide.
			s.logger.Debug("version conflict, retrying decision",
				slog.String("job_id", jobID),
			)
			continue
		}
		return err
	}
}

// advance applies at most one pass of transitions to the job snapshot.
func (s *Service) advance(ctx context.Context, j *job.Job) error {
	if j.DeadlineExceeded(s.now()) {
		return s.timeOut(ctx, j)
	}

	switch j.State {
	case job.StateCreated:
		return s.submitLegs(ctx, j)
	case job.StateGenerating:
		return s.pollLegs(ctx, j)
	case job.StateAwaitingCombination:
		return s.combine(ctx, j)
	case job.StateCombining:
		// Another pass owns the combination stage; only the deadline check
		// above applies to this tick.
		return nil
	default:
		return nil
	}
}

// timeOut marks the job TIMED_OUT regardless of leg states.
func (s *Service) timeOut(ctx context.Context, j *job.Job) error {
	reason := fmt.Sprintf("deadline exceeded in %s", j.State)
	if err := j.Timeout(reason); err != nil {
		return err
	}
	supersedeOpenLegs(j)

	if err := s.repo.Update(ctx, j); err != nil {
		return err
	}
	s.logger.Warn("job timed out",
		slog.String("job_id", j.ID),
		slog.String("reason", reason),
	)
	return nil
}

// submitLegs submits any not-yet-submitted leg. Both legs are dispatched in
// parallel; the remote services are independent. A permanent submit error
// fails the job immediately; a transient one leaves the leg PENDING for the
// next tick to retry.
func (s *Service) submitLegs(ctx context.Context, j *job.Job) error {
	type submitResult struct {
		kind   job.LegKind
		handle string
		err    error
	}

	var toSubmit []job.LegKind
	for _, kind := range []job.LegKind{job.LegVideo, job.LegAudio} {
		if j.Leg(kind).Status == job.LegPending {
			toSubmit = append(toSubmit, kind)
		}
	}

	results := make([]submitResult, len(toSubmit))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range toSubmit {
		g.Go(func() error {
			handle, err := s.adapterFor(kind).Submit(gctx, s.specFor(j, kind))
			results[i] = submitResult{kind: kind, handle: handle, err: err}
			// Submit errors are recorded per leg, not propagated here: a
			// failure on one leg must not cancel the sibling submit.
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		leg := j.Leg(res.kind)
		switch {
		case res.err == nil:
			leg.Status = job.LegSubmitted
			leg.ExternalHandle = res.handle
			s.logger.Info("leg submitted",
				slog.String("job_id", j.ID),
				slog.String("leg", string(res.kind)),
				slog.String("handle", res.handle),
			)
		case generator.IsPermanent(res.err):
			leg.Status = job.LegFailed
			leg.FailureReason = res.err.Error()
			s.logger.Error("leg submit rejected",
				slog.String("job_id", j.ID),
				slog.String("leg", string(res.kind)),
				slog.String("error", res.err.Error()),
			)
		default:
			// Transient: leave PENDING, the next tick resubmits.
			s.logger.Warn("leg submit failed transiently",
				slog.String("job_id", j.ID),
				slog.String("leg", string(res.kind)),
				slog.String("error", res.err.Error()),
			)
		}
	}

	if kind, reason, failed := failedLeg(j); failed {
		return s.failJob(ctx, j, kind, reason)
	}

	if j.VideoLeg.Status == job.LegSubmitted && j.AudioLeg.Status == job.LegSubmitted {
		if err := j.TransitionTo(job.StateGenerating); err != nil {
			return err
		}
	}
	return s.repo.Update(ctx, j)
}

// pollLegs polls every non-terminal leg once and applies forward-only leg
// updates, then evaluates the fan-in and failure rules.
func (s *Service) pollLegs(ctx context.Context, j *job.Job) error {
	maxAttempts := s.attemptCap()

	for _, kind := range []job.LegKind{job.LegVideo, job.LegAudio} {
		leg := j.Leg(kind)
		if leg.Status != job.LegSubmitted {
			// READY and FAILED legs are never re-polled: their recorded
			// artifact or failure must not change.
			continue
		}

		leg.AttemptCount++
		leg.LastPolledAt = s.now()

		outcome, err := s.adapterFor(kind).Poll(ctx, leg.ExternalHandle)
		switch {
		case err == nil:
			s.applyOutcome(j, kind, outcome)
		case generator.IsPermanent(err):
			leg.Status = job.LegFailed
			leg.FailureReason = err.Error()
			s.logger.Error("leg poll failed permanently",
				slog.String("job_id", j.ID),
				slog.String("leg", string(kind)),
				slog.String("error", err.Error()),
			)
		default:
			// Transient poll errors are treated identically to PENDING and
			// retried next tick; logged distinctly for observability.
			s.logger.Warn("transient poll error",
				slog.String("job_id", j.ID),
				slog.String("leg", string(kind)),
				slog.Int("attempt", leg.AttemptCount),
				slog.String("error", err.Error()),
			)
		}

		if leg.Status == job.LegSubmitted && leg.AttemptCount >= maxAttempts {
			leg.Status = job.LegFailed
			leg.FailureReason = fmt.Sprintf("poll attempt budget exhausted after %d attempts", leg.AttemptCount)
		}
	}

	if kind, reason, failed := failedLeg(j); failed {
		return s.failJob(ctx, j, kind, reason)
	}

	if j.BothLegsReady() {
		if err := j.TransitionTo(job.StateAwaitingCombination); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, j); err != nil {
			return err
		}
		// Fall through: the same tick may carry the job into combination.
		return s.combine(ctx, j)
	}

	return s.repo.Update(ctx, j)
}

// applyOutcome folds a poll outcome into the leg, moving strictly forward.
func (s *Service) applyOutcome(j *job.Job, kind job.LegKind, outcome generator.Outcome) {
	leg := j.Leg(kind)
	switch outcome.Phase {
	case generator.PhaseReady:
		leg.Status = job.LegReady
		leg.ArtifactKey = outcome.ArtifactKey
		s.logger.Info("leg ready",
			slog.String("job_id", j.ID),
			slog.String("leg", string(kind)),
			slog.String("artifact_key", outcome.ArtifactKey),
		)
	case generator.PhaseFailed:
		leg.Status = job.LegFailed
		leg.FailureReason = outcome.FailureReason
		s.logger.Error("leg failed",
			slog.String("job_id", j.ID),
			slog.String("leg", string(kind)),
			slog.String("reason", outcome.FailureReason),
		)
	case generator.PhasePending:
		// Still generating.
	}
}

// combine performs the guarded AWAITING_COMBINATION -> COMBINING transition
// and, only if this tick wins that conditional write, invokes the
// combination stage. The guard is what makes the stage run at most once per
// job even under concurrent or duplicated ticks.
func (s *Service) combine(ctx context.Context, j *job.Job) error {
	if err := j.TransitionTo(job.StateCombining); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, j); err != nil {
		// Conflict: another tick won the transition and owns the stage.
		return err
	}

	finalKey := finalArtifactKey(j.ID)
	s.logger.Info("invoking combination stage",
		slog.String("job_id", j.ID),
		slog.String("video_key", j.VideoLeg.ArtifactKey),
		slog.String("audio_key", j.AudioLeg.ArtifactKey),
		slog.String("output_key", finalKey),
	)

	if err := s.combiner.Combine(ctx, j.VideoLeg.ArtifactKey, j.AudioLeg.ArtifactKey, finalKey); err != nil {
		return s.settleCombination(ctx, j.ID, func(fresh *job.Job) error {
			return fresh.Fail("combination stage: " + err.Error())
		})
	}

	return s.settleCombination(ctx, j.ID, func(fresh *job.Job) error {
		return fresh.Succeed(finalKey)
	})
}

// settleCombination records the combination result against fresh state,
// retrying around conditional-write conflicts (the deadline checker may
// interleave). If the job reached a terminal state meanwhile, the result
// is dropped: terminal states never move.
func (s *Service) settleCombination(ctx context.Context, jobID string, apply func(*job.Job) error) error {
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		fresh, err := s.repo.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if fresh.IsTerminal() {
			return nil
		}
		if err := apply(fresh); err != nil {
			return err
		}
		err = s.repo.Update(ctx, fresh)
		if errors.Is(err, job.ErrVersionConflict) {
			continue
		}
		if err == nil {
			s.logger.Info("job settled",
				slog.String("job_id", jobID),
				slog.String("state", string(fresh.State)),
			)
		}
		return err
	}
	return job.ErrVersionConflict
}

// failJob fails the whole job because one leg failed permanently, marking
// the other leg superseded so it is never polled again.
func (s *Service) failJob(ctx context.Context, j *job.Job, kind job.LegKind, reason string) error {
	supersedeOpenLegs(j)
	if err := j.Fail(fmt.Sprintf("%s leg: %s", kind, reason)); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, j); err != nil {
		return err
	}
	s.logger.Error("job failed",
		slog.String("job_id", j.ID),
		slog.String("leg", string(kind)),
		slog.String("reason", reason),
	)
	return nil
}

// failedLeg returns the first permanently failed leg, if any.
func failedLeg(j *job.Job) (job.LegKind, string, bool) {
	if j.VideoLeg.Status == job.LegFailed {
		return job.LegVideo, j.VideoLeg.FailureReason, true
	}
	if j.AudioLeg.Status == job.LegFailed {
		return job.LegAudio, j.AudioLeg.FailureReason, true
	}
	return "", "", false
}

// supersedeOpenLegs marks every non-terminal leg superseded. Remote
// cancellation is not guaranteed to be supported, so abandoning means the
// orchestrator stops polling and records why.
func supersedeOpenLegs(j *job.Job) {
	for _, kind := range []job.LegKind{job.LegVideo, job.LegAudio} {
		leg := j.Leg(kind)
		if !leg.Status.IsTerminal() {
			leg.Status = job.LegSuperseded
		}
	}
}

// adapterFor returns the adapter handling the given leg.
func (s *Service) adapterFor(kind job.LegKind) generator.Adapter {
	if kind == job.LegAudio {
		return s.audio
	}
	return s.video
}

// specFor builds the generation spec for one leg from the job input.
func (s *Service) specFor(j *job.Job, kind job.LegKind) generator.Spec {
	spec := generator.Spec{
		Script:          j.Input.Script,
		DurationSeconds: j.Input.DurationSeconds,
	}
	switch kind {
	case job.LegVideo:
		spec.PortraitKey = j.Input.PortraitKey
		spec.GesturePrompt = gesturePrompt(j.Input.GestureMode)
		spec.OutputKey = rawVideoKey(j.ID)
	case job.LegAudio:
		if j.Input.VoiceMode == job.VoiceModeCloned {
			spec.VoiceSamplesPrefix = fmt.Sprintf("voice-samples/%s/", j.Input.UserID)
		}
		spec.OutputKey = audioKey(j.ID)
	}
	return spec
}

// gesturePrompt maps the gesture mode to the prompt fragment.
func gesturePrompt(mode job.GestureMode) string {
	switch mode {
	case job.GestureModeSubtle:
		return "subtle natural hand gestures, minimal movement"
	case job.GestureModeExpressive:
		return "clear expressive hand gestures, dynamic movement"
	default:
		return "natural hand gestures"
	}
}

// Artifact key layout, shared with the status projection.
func rawVideoKey(jobID string) string {
	return fmt.Sprintf("renders/raw-video/%s.mp4", jobID)
}

func audioKey(jobID string) string {
	return fmt.Sprintf("renders/audio/%s.mp3", jobID)
}

func finalArtifactKey(jobID string) string {
	return fmt.Sprintf("renders/final/%s.mp4", jobID)
}
