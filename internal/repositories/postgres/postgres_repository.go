package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/himpower2025/eps-topik-mate/internal/cache"
	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
	"github.com/himpower2025/eps-topik-mate/internal/repositories/casdoor"
)

// PostgreSQLRepository implements the main Repository interface.
type PostgreSQLRepository struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	user     repositories.UserRepository
	session  repositories.SessionRepository
	payment  repositories.PaymentRepository
	identity repositories.IdentityRepository
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	DB            *gorm.DB
	RedisClient   *redis.Client
	CasdoorConfig casdoor.CasdoorConfig
}

// NewPostgreSQLRepository creates the repository manager with all
// sub-repositories.
func NewPostgreSQLRepository(config RepositoryConfig) repositories.Repository {
	cacheManager := cache.NewCacheManager(config.RedisClient)

	repo := &PostgreSQLRepository{
		db:           config.DB,
		redisClient:  config.RedisClient,
		cacheManager: cacheManager,
	}

	repo.user = NewUserPostgreSQL(config.DB, cacheManager)
	repo.session = NewSessionPostgreSQL(config.DB, cacheManager)
	repo.payment = NewPaymentPostgreSQL(config.DB)

	// Identity reads go to Casdoor.
	repo.identity = casdoor.NewIdentityCasdoor(config.CasdoorConfig)

	return repo
}

func (r *PostgreSQLRepository) User() repositories.UserRepository         { return r.user }
func (r *PostgreSQLRepository) Session() repositories.SessionRepository   { return r.session }
func (r *PostgreSQLRepository) Payment() repositories.PaymentRepository   { return r.payment }
func (r *PostgreSQLRepository) Identity() repositories.IdentityRepository { return r.identity }

// WithTransaction runs fn with a Repository bound to a single
// database transaction.
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &PostgreSQLRepository{
			db:           tx,
			redisClient:  r.redisClient,
			cacheManager: r.cacheManager,
			user:         NewUserPostgreSQL(tx, r.cacheManager),
			session:      NewSessionPostgreSQL(tx, r.cacheManager),
			payment:      NewPaymentPostgreSQL(tx),
			identity:     r.identity,
		}
		return fn(txRepo)
	})
}

func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// repositoryManager implements repositories.RepositoryManager.
type repositoryManager struct {
	config RepositoryConfig
	repo   repositories.Repository
}

func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	return &repositoryManager{
		config: config,
		repo:   NewPostgreSQLRepository(config),
	}
}

// Initialize migrates the schema.
func (m *repositoryManager) Initialize() error {
	return m.config.DB.AutoMigrate(
		&models.User{},
		&models.ExamSession{},
		&models.PaymentAttempt{},
	)
}

func (m *repositoryManager) GetRepository() repositories.Repository {
	return m.repo
}

func (m *repositoryManager) HealthCheck(ctx context.Context) error {
	return m.repo.Ping(ctx)
}

func (m *repositoryManager) Shutdown(_ context.Context) error {
	return m.repo.Close()
}
