package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academia-portal-api/internal/models"
)

func TestReplacePlanSwapsCalendar(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO session_plans").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("plan-1"))
	mock.ExpectExec("DELETE FROM planned_sessions").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("INSERT INTO planned_sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO planned_sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	plan := &models.SessionPlan{
		SubjectID:   "subject-1",
		BatchID:     "batch-1",
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		LectureDays: pq.StringArray{"MONDAY"},
		HasLabs:     false,
	}
	sessions := []models.PlannedSession{
		{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Type: models.SessionTypeLecture},
		{Date: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), Type: models.SessionTypeLecture},
	}
	err := repo.ReplacePlan(context.Background(), plan, sessions)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", plan.ID)
	assert.Equal(t, "plan-1", sessions[0].PlanID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessionsOrdersLectureFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	shared := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "plan_id", "date", "type", "created_at"}).
		AddRow("s1", "plan-1", shared, string(models.SessionTypeLecture), now).
		AddRow("s2", "plan-1", shared, string(models.SessionTypeLab), now)
	mock.ExpectQuery("SELECT id, plan_id, date, type, created_at FROM planned_sessions").
		WithArgs("plan-1").
		WillReturnRows(rows)

	sessions, err := repo.ListSessions(context.Background(), "plan-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, models.SessionTypeLecture, sessions[0].Type)
	assert.Equal(t, models.SessionTypeLab, sessions[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}
