package services

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/himpower2025/eps-topik-mate/internal/cache"
	"github.com/himpower2025/eps-topik-mate/internal/config"
	"github.com/himpower2025/eps-topik-mate/internal/events"
	"github.com/himpower2025/eps-topik-mate/internal/genai"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
	"github.com/himpower2025/eps-topik-mate/internal/validator"
)

// ServiceManagerConfig carries everything the services need.
type ServiceManagerConfig struct {
	Repository  repositories.Repository
	RepoManager repositories.RepositoryManager
	RedisClient *redis.Client
	GenAIClient genai.Client
	Bus         *events.Bus
	Validator   *validator.Validator
	Logger      utils.Logger
	ExamConfig  config.ExamConfig
}

type defaultServiceManager struct {
	cfg ServiceManagerConfig

	cacheManager *cache.CacheManager

	session        SessionService
	questionSource QuestionSourceService
	media          MediaService
	profileSync    ProfileSyncService
	analytics      AnalyticsService
	payment        PaymentService
	export         ExportService
}

// NewServiceManager wires all services against shared infrastructure.
func NewServiceManager(cfg ServiceManagerConfig) ServiceManager {
	cacheManager := cache.NewCacheManager(cfg.RedisClient)

	questionSource := NewQuestionSourceService(cfg.GenAIClient, cacheManager, cfg.Validator, cfg.Logger, cfg.ExamConfig)
	media := NewMediaService(cfg.Repository, cfg.GenAIClient, cfg.Logger)

	return &defaultServiceManager{
		cfg:          cfg,
		cacheManager: cacheManager,

		session:        NewSessionService(cfg.Repository, questionSource, media, cfg.Bus, cfg.Validator, cfg.Logger, cfg.ExamConfig),
		questionSource: questionSource,
		media:          media,
		profileSync:    NewProfileSyncService(cfg.Repository, cfg.Bus, cfg.Bus, cacheManager, cfg.Logger, cfg.ExamConfig),
		analytics:      NewAnalyticsService(cfg.Repository, cfg.GenAIClient, cfg.Logger),
		payment:        NewPaymentService(cfg.Repository, cfg.Bus, cfg.Validator, cfg.Logger),
		export:         NewExportService(cfg.Repository, cfg.Logger),
	}
}

func (m *defaultServiceManager) SessionService() SessionService               { return m.session }
func (m *defaultServiceManager) QuestionSourceService() QuestionSourceService { return m.questionSource }
func (m *defaultServiceManager) MediaService() MediaService                   { return m.media }
func (m *defaultServiceManager) ProfileSyncService() ProfileSyncService       { return m.profileSync }
func (m *defaultServiceManager) AnalyticsService() AnalyticsService           { return m.analytics }
func (m *defaultServiceManager) PaymentService() PaymentService               { return m.payment }
func (m *defaultServiceManager) ExportService() ExportService                 { return m.export }

// Initialize migrates storage and verifies connectivity.
func (m *defaultServiceManager) Initialize(ctx context.Context) error {
	if m.cfg.RepoManager != nil {
		if err := m.cfg.RepoManager.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize repositories: %w", err)
		}
	}
	return m.cfg.Repository.Ping(ctx)
}

func (m *defaultServiceManager) HealthCheck(ctx context.Context) error {
	if err := m.cfg.Repository.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := m.cacheManager.HealthCheck(ctx); err != nil {
		m.cfg.Logger.Warn("cache unavailable, running degraded", "error", err)
	}
	return nil
}

func (m *defaultServiceManager) Shutdown(_ context.Context) error {
	if m.cfg.Bus != nil {
		if err := m.cfg.Bus.Close(); err != nil {
			return err
		}
	}
	return m.cfg.Repository.Close()
}
