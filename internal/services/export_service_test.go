package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/himpower2025/eps-topik-mate/internal/models"
)

func TestExportSessions(t *testing.T) {
	repo := newMockRepository()
	repo.users.users["user-1"] = freeUser("user-1", 1)
	repo.sessions.sessions["session-1"] = submittedSession("session-1", "user-1", map[string]int{"q-1": 0})
	repo.sessions.sessions["session-2"] = submittedSession("session-2", "user-1", map[string]int{"q-2": 1})
	repo.sessions.sessions["session-3"] = submittedSession("session-3", "other-user", nil)

	svc := NewExportService(repo, newTestLogger())

	result, err := svc.ExportSessions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Contains(t, result.FileName, ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(result.Data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Exam History")
	require.NoError(t, err)
	// Header plus one row per owned session.
	require.Len(t, rows, 3)
	assert.Equal(t, "Session ID", rows[0][0])
	assert.Equal(t, string(models.SessionSubmitted), rows[1][3])
}

func TestExportSessions_UnknownUser(t *testing.T) {
	svc := NewExportService(newMockRepository(), newTestLogger())

	_, err := svc.ExportSessions(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
