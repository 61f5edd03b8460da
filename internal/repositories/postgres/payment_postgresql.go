package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
)

type paymentPostgreSQL struct {
	db *gorm.DB
}

func NewPaymentPostgreSQL(db *gorm.DB) repositories.PaymentRepository {
	return &paymentPostgreSQL{db: db}
}

func (r *paymentPostgreSQL) Create(ctx context.Context, attempt *models.PaymentAttempt) error {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}
	return nil
}

func (r *paymentPostgreSQL) GetByID(ctx context.Context, requestID string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	if err := r.db.WithContext(ctx).First(&attempt, "request_id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment attempt: %w", err)
	}
	return &attempt, nil
}

func (r *paymentPostgreSQL) UpdateStatus(ctx context.Context, requestID string, status models.PaymentStatus, completedAt *time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("request_id = ?", requestID).
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": completedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update payment status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *paymentPostgreSQL) GetByUser(ctx context.Context, userID string, filters repositories.PaymentFilters) ([]*models.PaymentAttempt, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentAttempt{}).Where("user_id = ?", userID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payment attempts: %w", err)
	}

	query = query.Order("created_at DESC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var attempts []*models.PaymentAttempt
	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payment attempts: %w", err)
	}

	return attempts, total, nil
}
