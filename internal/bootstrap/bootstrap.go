// Package bootstrap provides dependency initialization for the avatar API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/avatarforge/avatar-api/internal/config"
	"github.com/avatarforge/avatar-api/internal/generator"
	"github.com/avatarforge/avatar-api/internal/job"
	"github.com/avatarforge/avatar-api/internal/mux"
	"github.com/avatarforge/avatar-api/internal/orchestrator"
	"github.com/avatarforge/avatar-api/internal/reel"
	"github.com/avatarforge/avatar-api/internal/speech"
	"github.com/avatarforge/avatar-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Service *orchestrator.Service
	Runner  *orchestrator.Runner
	Store   storage.Store
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	repo, err := initRepository(cfg, logger)
	if err != nil {
		return nil, err
	}

	reelClient, err := reel.NewClient(cfg.ReelBaseURL, reel.WithAPIKey(cfg.ReelAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create render client: %w", err)
	}

	speechClient, err := speech.NewClient(cfg.SpeechBaseURL, speech.WithToken(cfg.SpeechAPIToken))
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	combiner := mux.NewFFmpegCombiner(store, logger)

	service := orchestrator.NewService(
		repo,
		generator.NewReelAdapter(reelClient),
		generator.NewSpeechAdapter(speechClient),
		combiner,
		logger,
		orchestrator.WithBudget(cfg.JobBudget),
		orchestrator.WithPollInterval(cfg.PollInterval),
	)

	return &Dependencies{
		Service: service,
		Runner:  orchestrator.NewRunner(service, logger),
		Store:   store,
	}, nil
}

// initStorage creates the appropriate artifact store based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (muxStore, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Store(cfg.DataDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 store: %w", err)
		}
		logger.Info("S3 artifact store configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create local store: %w", err)
	}
	logger.Info("local artifact store configured",
		slog.String("data_dir", cfg.DataDir),
	)
	return localStore, nil
}

// initRepository creates the job repository based on configuration.
func initRepository(cfg *config.Config, logger *slog.Logger) (job.Repository, error) {
	if cfg.RedisEnabled() {
		repo, err := job.NewRedisRepository(cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("create redis repository: %w", err)
		}
		logger.Info("redis job store configured",
			slog.String("addr", cfg.RedisAddr),
		)
		return repo, nil
	}

	logger.Info("in-memory job store configured")
	return job.NewMemoryRepository(), nil
}

// muxStore is the storage surface the combiner and handlers share.
type muxStore interface {
	storage.Store
	storage.Stager
}
