package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/himpower2025/eps-topik-mate/internal/cache"
	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
)

type sessionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewSessionPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.SessionRepository {
	return &sessionPostgreSQL{db: db, cacheManager: cacheManager}
}

func (r *sessionPostgreSQL) Create(ctx context.Context, session *models.ExamSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionPostgreSQL) GetByID(ctx context.Context, id string) (*models.ExamSession, error) {
	var session models.ExamSession
	if err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// Update persists in-progress state changes. Finalized sessions are
// write-once: any attempt to update a row already in a terminal status
// is rejected.
func (r *sessionPostgreSQL) Update(ctx context.Context, session *models.ExamSession) error {
	result := r.db.WithContext(ctx).
		Model(&models.ExamSession{}).
		Where("id = ? AND status IN ?", session.ID, []models.SessionStatus{
			models.SessionLoading,
			models.SessionAwaitingAudioUnlock,
			models.SessionInProgress,
		}).
		Select("*").
		Omit("id", "created_at").
		Updates(session)
	if result.Error != nil {
		return fmt.Errorf("failed to update session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		r.db.WithContext(ctx).Model(&models.ExamSession{}).Where("id = ?", session.ID).Count(&count)
		if count == 0 {
			return repositories.ErrNotFound
		}
		return fmt.Errorf("session %s is finalized and immutable", session.ID)
	}

	cache.InvalidateSessionCache(ctx, r.cacheManager, session.ID, session.UserID)
	return nil
}

func (r *sessionPostgreSQL) GetActiveByUser(ctx context.Context, userID string) (*models.ExamSession, error) {
	var session models.ExamSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []models.SessionStatus{
			models.SessionAwaitingAudioUnlock,
			models.SessionInProgress,
		}).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return &session, nil
}

func (r *sessionPostgreSQL) List(ctx context.Context, filters repositories.SessionFilters) ([]*models.ExamSession, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ExamSession{})
	query = applySessionFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	query = applySessionOrdering(query, filters)
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var sessions []*models.ExamSession
	if err := query.Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, total, nil
}

func (r *sessionPostgreSQL) GetByUser(ctx context.Context, userID string, filters repositories.SessionFilters) ([]*models.ExamSession, int64, error) {
	filters.UserID = &userID
	return r.List(ctx, filters)
}

func (r *sessionPostgreSQL) GetUserStats(ctx context.Context, userID string) (*repositories.UserSessionStats, error) {
	var stats repositories.UserSessionStats

	row := r.db.WithContext(ctx).
		Model(&models.ExamSession{}).
		Select(`COUNT(*) AS total_sessions,
			COUNT(*) FILTER (WHERE status = ?) AS completed_sessions,
			COALESCE(AVG(score) FILTER (WHERE status = ?), 0) AS average_score,
			COALESCE(MAX(score) FILTER (WHERE status = ?), 0) AS best_score,
			COALESCE(SUM(time_spent), 0) AS total_time_spent`,
			models.SessionSubmitted, models.SessionSubmitted, models.SessionSubmitted).
		Where("user_id = ?", userID).
		Row()

	if err := row.Scan(&stats.TotalSessions, &stats.CompletedSessions,
		&stats.AverageScore, &stats.BestScore, &stats.TotalTimeSpent); err != nil {
		return nil, fmt.Errorf("failed to get user session stats: %w", err)
	}

	return &stats, nil
}

func applySessionFilters(query *gorm.DB, filters repositories.SessionFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Mode != nil {
		query = query.Where("mode = ?", *filters.Mode)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}

func applySessionOrdering(query *gorm.DB, filters repositories.SessionFilters) *gorm.DB {
	sortBy := filters.SortBy
	switch sortBy {
	case "completed_at", "score", "created_at":
	default:
		sortBy = "created_at"
	}
	order := "DESC"
	if filters.SortOrder == "asc" {
		order = "ASC"
	}
	return query.Order(fmt.Sprintf("%s %s", sortBy, order))
}
