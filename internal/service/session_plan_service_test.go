package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academia-portal-api/internal/models"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
)

func TestGenerateSessionsSkipsWeekends(t *testing.T) {
	// 2024-01-01 is a Monday, 2024-01-07 a Sunday.
	plan := &models.SessionPlan{
		StartDate:   date(2024, 1, 1),
		EndDate:     date(2024, 1, 7),
		LectureDays: []string{"MONDAY", "WEDNESDAY", "SATURDAY", "SUNDAY"},
	}

	sessions := GenerateSessions(plan)
	require.Len(t, sessions, 2)
	assert.Equal(t, date(2024, 1, 1), sessions[0].Date)
	assert.Equal(t, date(2024, 1, 3), sessions[1].Date)
	for _, s := range sessions {
		assert.Equal(t, models.SessionTypeLecture, s.Type)
	}
}

func TestGenerateSessionsLectureBeforeLabOnSharedDay(t *testing.T) {
	plan := &models.SessionPlan{
		StartDate:   date(2024, 1, 1),
		EndDate:     date(2024, 1, 1),
		LectureDays: []string{"MONDAY"},
		LabDays:     []string{"MONDAY"},
		HasLabs:     true,
	}

	sessions := GenerateSessions(plan)
	require.Len(t, sessions, 2)
	assert.Equal(t, models.SessionTypeLecture, sessions[0].Type)
	assert.Equal(t, models.SessionTypeLab, sessions[1].Type)
	assert.Equal(t, sessions[0].Date, sessions[1].Date)
}

func TestGenerateSessionsLabDaysIgnoredWithoutLabs(t *testing.T) {
	plan := &models.SessionPlan{
		StartDate:   date(2024, 1, 1),
		EndDate:     date(2024, 1, 14),
		LectureDays: []string{"TUESDAY"},
		LabDays:     []string{"THURSDAY"},
		HasLabs:     false,
	}

	for _, s := range GenerateSessions(plan) {
		assert.Equal(t, models.SessionTypeLecture, s.Type)
	}
}

func TestGenerateSessionsAscendingAndDeterministic(t *testing.T) {
	plan := &models.SessionPlan{
		StartDate:   date(2024, 2, 1),
		EndDate:     date(2024, 3, 31),
		LectureDays: []string{"FRIDAY", "MONDAY", "WEDNESDAY"},
		LabDays:     []string{"WEDNESDAY"},
		HasLabs:     true,
	}

	first := GenerateSessions(plan)
	second := GenerateSessions(plan)
	require.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.False(t, first[i].Date.Before(first[i-1].Date), "dates must be ascending")
	}
}

func TestGenerateSessionsSingleDayRange(t *testing.T) {
	plan := &models.SessionPlan{
		StartDate:   date(2024, 1, 3), // Wednesday
		EndDate:     date(2024, 1, 3),
		LectureDays: []string{"WEDNESDAY"},
	}
	require.Len(t, GenerateSessions(plan), 1)

	plan.LectureDays = []string{"MONDAY"}
	assert.Empty(t, GenerateSessions(plan))
}

func TestUpsertPlanRejectsInvertedRange(t *testing.T) {
	svc, _ := newPlanServiceFixture()

	_, _, err := svc.UpsertPlan(context.Background(), adminClaims(), "subj-1", "batch-1", UpsertPlanRequest{
		StartDate:   "2024-03-10",
		EndDate:     "2024-03-01",
		LectureDays: []string{"MONDAY"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpsertPlanRejectsUnknownWeekday(t *testing.T) {
	svc, _ := newPlanServiceFixture()

	_, _, err := svc.UpsertPlan(context.Background(), adminClaims(), "subj-1", "batch-1", UpsertPlanRequest{
		StartDate:   "2024-03-01",
		EndDate:     "2024-03-10",
		LectureDays: []string{"FUNDAY"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpsertPlanDropsLabsWhenSubjectHasNone(t *testing.T) {
	svc, repo := newPlanServiceFixture()
	repo.subjectHasLabs = false

	plan, sessions, err := svc.UpsertPlan(context.Background(), adminClaims(), "subj-1", "batch-1", UpsertPlanRequest{
		StartDate:   "2024-01-01",
		EndDate:     "2024-01-07",
		LectureDays: []string{"MONDAY"},
		LabDays:     []string{"TUESDAY"},
		HasLabs:     true,
	})
	require.NoError(t, err)
	assert.False(t, plan.HasLabs)
	for _, s := range sessions {
		assert.Equal(t, models.SessionTypeLecture, s.Type)
	}
}

func TestUpsertPlanReplacesExistingCalendar(t *testing.T) {
	svc, repo := newPlanServiceFixture()

	_, first, err := svc.UpsertPlan(context.Background(), adminClaims(), "subj-1", "batch-1", UpsertPlanRequest{
		StartDate:   "2024-01-01",
		EndDate:     "2024-01-14",
		LectureDays: []string{"MONDAY", "WEDNESDAY"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, first)
	planID := repo.plan.ID

	plan, second, err := svc.UpsertPlan(context.Background(), adminClaims(), "subj-1", "batch-1", UpsertPlanRequest{
		StartDate:   "2024-01-01",
		EndDate:     "2024-01-07",
		LectureDays: []string{"FRIDAY"},
	})
	require.NoError(t, err)
	assert.Equal(t, planID, plan.ID, "plan identity survives replacement")
	assert.Len(t, second, 1)
	assert.Len(t, repo.sessions, 1)
}

func TestUpsertPlanRequiresAssignmentForStaff(t *testing.T) {
	svc, repo := newPlanServiceFixture()
	repo.assigned = false

	staff := &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff}
	_, _, err := svc.UpsertPlan(context.Background(), staff, "subj-1", "batch-1", UpsertPlanRequest{
		StartDate:   "2024-01-01",
		EndDate:     "2024-01-07",
		LectureDays: []string{"MONDAY"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGetCalendarUnknownPlan(t *testing.T) {
	svc, _ := newPlanServiceFixture()

	_, _, err := svc.GetCalendar(context.Background(), "subj-404", "batch-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

// --- Fixtures ---

type planRepoStub struct {
	plan           *models.SessionPlan
	sessions       []models.PlannedSession
	subjectHasLabs bool
	assigned       bool
}

func newPlanServiceFixture() (*SessionPlanService, *planRepoStub) {
	repo := &planRepoStub{subjectHasLabs: true, assigned: true}
	svc := NewSessionPlanService(repo, repo, repo, nil, nil, nil)
	return svc, repo
}

func (r *planRepoStub) FindPlan(ctx context.Context, subjectID, batchID string) (*models.SessionPlan, error) {
	if r.plan == nil || r.plan.SubjectID != subjectID || r.plan.BatchID != batchID {
		return nil, sql.ErrNoRows
	}
	return r.plan, nil
}

func (r *planRepoStub) ReplacePlan(ctx context.Context, plan *models.SessionPlan, sessions []models.PlannedSession) error {
	if plan.ID == "" {
		plan.ID = "plan-1"
	}
	r.plan = plan
	r.sessions = sessions
	return nil
}

func (r *planRepoStub) ListSessions(ctx context.Context, planID string) ([]models.PlannedSession, error) {
	return r.sessions, nil
}

func (r *planRepoStub) FindByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	detail := &models.SubjectDetail{}
	detail.ID = id
	detail.HasLabs = r.subjectHasLabs
	return detail, nil
}

func (r *planRepoStub) IsAssigned(ctx context.Context, staffID, subjectID, batchID string) (bool, error) {
	return r.assigned, nil
}

func (r *planRepoStub) FindBatchByID(ctx context.Context, id string) (*models.BatchDetail, error) {
	detail := &models.BatchDetail{}
	detail.ID = id
	return detail, nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
