// Package mux implements the combination stage: it merges one ready video
// artifact and one ready audio artifact into a single muxed output artifact.
// The stage runs synchronously under its own execution-time ceiling and is
// deterministic: the same two input artifacts always yield an equivalent
// output.
package mux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/avatarforge/avatar-api/internal/storage"
)

// Static errors for combination operations.
var (
	// ErrVideoKeyRequired is returned when no video artifact key is provided.
	ErrVideoKeyRequired = errors.New("mux: video artifact key is required")
	// ErrAudioKeyRequired is returned when no audio artifact key is provided.
	ErrAudioKeyRequired = errors.New("mux: audio artifact key is required")
	// ErrOutputKeyRequired is returned when no output key is provided.
	ErrOutputKeyRequired = errors.New("mux: output key is required")
	// ErrDurationMismatch is returned when the input durations differ
	// beyond the configured tolerance.
	ErrDurationMismatch = errors.New("mux: input durations differ beyond tolerance")
)

// Combiner defines the combination stage contract: exactly one ready video
// artifact and one ready audio artifact in, one muxed artifact out.
type Combiner interface {
	Combine(ctx context.Context, videoKey, audioKey, outputKey string) error
}

// Store is the slice of the artifact store the stage needs.
type Store interface {
	storage.Store
	storage.Stager
}

// Option configures an FFmpegCombiner.
type Option func(*FFmpegCombiner)

// WithFFmpegPath overrides the ffmpeg binary path (default "ffmpeg").
func WithFFmpegPath(path string) Option {
	return func(c *FFmpegCombiner) {
		c.ffmpegPath = path
	}
}

// WithExecCeiling sets the stage's hard execution-time ceiling.
func WithExecCeiling(d time.Duration) Option {
	return func(c *FFmpegCombiner) {
		c.execCeiling = d
	}
}

// WithDurationTolerance sets the accepted video/audio duration delta.
// Zero disables the check.
func WithDurationTolerance(seconds float64) Option {
	return func(c *FFmpegCombiner) {
		c.durationTolerance = seconds
	}
}

// FFmpegCombiner implements Combiner using the ffmpeg CLI. Inputs are
// staged from the artifact store onto local disk, muxed with stream-copied
// video and re-encoded AAC audio trimmed to the shorter stream, and the
// result is uploaded back under the output key.
type FFmpegCombiner struct {
	store             Store
	logger            *slog.Logger
	ffmpegPath        string
	execCeiling       time.Duration
	durationTolerance float64
}

// NewFFmpegCombiner creates a new FFmpegCombiner.
func NewFFmpegCombiner(store Store, logger *slog.Logger, opts ...Option) *FFmpegCombiner {
	if logger == nil {
		logger = slog.Default()
	}
	c := &FFmpegCombiner{
		store:             store,
		logger:            logger,
		ffmpegPath:        "ffmpeg",
		execCeiling:       5 * time.Minute,
		durationTolerance: 2.0,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Combine stages the two artifacts, muxes them and uploads the result.
func (c *FFmpegCombiner) Combine(ctx context.Context, videoKey, audioKey, outputKey string) error {
	if videoKey == "" {
		return ErrVideoKeyRequired
	}
	if audioKey == "" {
		return ErrAudioKeyRequired
	}
	if outputKey == "" {
		return ErrOutputKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, c.execCeiling)
	defer cancel()

	videoPath, err := c.stage(ctx, "mux_video", videoKey)
	if err != nil {
		return err
	}
	audioPath, err := c.stage(ctx, "mux_audio", audioKey)
	if err != nil {
		_ = c.store.CleanupTemp(ctx, []string{videoPath})
		return err
	}

	outPath := videoPath + ".out.mp4"
	cleanup := []string{videoPath, audioPath, outPath}
	defer func() {
		if err := c.store.CleanupTemp(context.WithoutCancel(ctx), cleanup); err != nil {
			c.logger.Warn("temp cleanup failed", slog.String("error", err.Error()))
		}
	}()

	if c.durationTolerance > 0 {
		if err := c.checkDurations(ctx, videoPath, audioPath); err != nil {
			return err
		}
	}

	// Stream-copy the video, encode audio to AAC, trim to the shorter input.
	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outPath,
	}
	if err := runFFmpeg(ctx, c.ffmpegPath, args); err != nil {
		return fmt.Errorf("mux: combine %s + %s: %w", videoKey, audioKey, err)
	}

	out, err := openFile(outPath)
	if err != nil {
		return fmt.Errorf("mux: open output: %w", err)
	}
	defer func() { _ = out.Close() }()

	if err := c.store.Upload(ctx, outputKey, "video/mp4", out); err != nil {
		return fmt.Errorf("mux: upload output: %w", err)
	}

	c.logger.Info("combination complete",
		slog.String("video_key", videoKey),
		slog.String("audio_key", audioKey),
		slog.String("output_key", outputKey),
	)
	return nil
}

// stage downloads an artifact and writes it to a local temp file.
func (c *FFmpegCombiner) stage(ctx context.Context, name, key string) (string, error) {
	rc, err := c.store.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf("mux: download %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()

	path, err := c.store.StageTemp(ctx, name, rc)
	if err != nil {
		return "", fmt.Errorf("mux: stage %s: %w", key, err)
	}
	return path, nil
}

// checkDurations compares the staged inputs' durations against the tolerance.
func (c *FFmpegCombiner) checkDurations(ctx context.Context, videoPath, audioPath string) error {
	videoDur, err := MediaDuration(ctx, videoPath)
	if err != nil {
		return fmt.Errorf("mux: probe video duration: %w", err)
	}
	audioDur, err := MediaDuration(ctx, audioPath)
	if err != nil {
		return fmt.Errorf("mux: probe audio duration: %w", err)
	}

	delta := math.Abs(videoDur - audioDur)
	if delta > c.durationTolerance {
		return fmt.Errorf("%w: video=%.2fs audio=%.2fs delta=%.2fs",
			ErrDurationMismatch, videoDur, audioDur, delta)
	}
	return nil
}

// Compile-time check that FFmpegCombiner implements Combiner.
var _ Combiner = (*FFmpegCombiner)(nil)
