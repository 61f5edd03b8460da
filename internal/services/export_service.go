package services

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/himpower2025/eps-topik-mate/internal/repositories"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
)

type exportService struct {
	repo   repositories.Repository
	logger utils.Logger
	now    func() time.Time
}

func NewExportService(repo repositories.Repository, logger utils.Logger) ExportService {
	return &exportService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// ExportSessions renders the user's exam history as an xlsx workbook,
// one row per session, newest first.
func (s *exportService) ExportSessions(ctx context.Context, userID string) (*ExportResult, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	sessions, _, err := s.repo.Session().GetByUser(ctx, userID, repositories.SessionFilters{
		SortBy:    "created_at",
		SortOrder: "desc",
	})
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Exam History"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"Session ID", "Mode", "Set", "Status", "Score", "Total", "Time Spent (s)", "Started At", "Completed At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for row, session := range sessions {
		values := []interface{}{
			session.ID,
			string(session.Mode),
			session.SetNumber,
			string(session.Status),
			session.Score,
			session.TotalQuestions,
			session.TimeSpent,
			formatTime(session.StartedAt),
			formatTime(session.CompletedAt),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 38); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheet, "B", "I", 16); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render export: %w", err)
	}

	s.logger.Info("exported session history",
		"user_id", userID,
		"email", user.Email,
		"sessions", len(sessions))

	return &ExportResult{
		FileName: fmt.Sprintf("exam-history-%s.xlsx", s.now().Format("2006-01-02")),
		Data:     buf.Bytes(),
	}, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
