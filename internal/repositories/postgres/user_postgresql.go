package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/himpower2025/eps-topik-mate/internal/cache"
	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
)

type userPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewUserPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.UserRepository {
	return &userPostgreSQL{db: db, cacheManager: cacheManager}
}

func (r *userPostgreSQL) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User

	cacheKey := fmt.Sprintf("id:%s", id)
	err := r.cacheManager.Profile.CacheOrExecute(ctx, cacheKey, &user, cache.ProfileCacheConfig.TTL, func() (interface{}, error) {
		var fetched models.User
		if err := r.db.WithContext(ctx).First(&fetched, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return &fetched, nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *userPostgreSQL) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (r *userPostgreSQL) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	cache.InvalidateProfileCache(ctx, r.cacheManager, user.ID)
	return nil
}

func (r *userPostgreSQL) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	cache.InvalidateProfileCache(ctx, r.cacheManager, user.ID)
	return nil
}

// DecrementExamsRemaining decrements the free-tier counter atomically,
// floored at zero.
func (r *userPostgreSQL) DecrementExamsRemaining(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Model(&user).
		Clauses(clause.Returning{}).
		Where("id = ? AND exams_remaining > 0", id).
		UpdateColumn("exams_remaining", gorm.Expr("exams_remaining - 1")).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to decrement exams remaining: %w", err)
	}

	if user.ID == "" {
		// Counter was already zero; fetch the current row unchanged.
		if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
	}

	cache.InvalidateProfileCache(ctx, r.cacheManager, id)
	return &user, nil
}

func (r *userPostgreSQL) ExistsByID(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return count > 0, nil
}
