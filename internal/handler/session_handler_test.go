package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academia-portal-api/internal/middleware"
	"github.com/noah-isme/academia-portal-api/internal/models"
	"github.com/noah-isme/academia-portal-api/internal/service"
)

// --- Fixtures ---

type sessionPlansStub struct {
	plan     *models.SessionPlan
	sessions []models.PlannedSession
	replaced []models.PlannedSession
}

func (s *sessionPlansStub) FindPlan(ctx context.Context, subjectID, batchID string) (*models.SessionPlan, error) {
	if s.plan == nil {
		return nil, sql.ErrNoRows
	}
	return s.plan, nil
}

func (s *sessionPlansStub) ReplacePlan(ctx context.Context, plan *models.SessionPlan, sessions []models.PlannedSession) error {
	plan.ID = "plan-1"
	s.plan = plan
	s.replaced = sessions
	return nil
}

func (s *sessionPlansStub) ListSessions(ctx context.Context, planID string) ([]models.PlannedSession, error) {
	return s.sessions, nil
}

type planSubjectsStub struct {
	subject  *models.SubjectDetail
	assigned bool
}

func (s *planSubjectsStub) FindByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	if s.subject == nil || s.subject.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.subject, nil
}

func (s *planSubjectsStub) IsAssigned(ctx context.Context, staffID, subjectID, batchID string) (bool, error) {
	return s.assigned, nil
}

type planBatchesStub struct{}

func (s *planBatchesStub) FindBatchByID(ctx context.Context, id string) (*models.BatchDetail, error) {
	if id != "batch-1" {
		return nil, sql.ErrNoRows
	}
	return &models.BatchDetail{Batch: models.Batch{ID: id, CourseID: "course-1", Name: "2023A", Active: true}}, nil
}

func newSessionHandlerFixture() (*SessionHandler, *sessionPlansStub) {
	plans := &sessionPlansStub{}
	subjects := &planSubjectsStub{
		subject:  &models.SubjectDetail{Subject: models.Subject{ID: "subject-1", Code: "CS201", HasLabs: true, Active: true}},
		assigned: true,
	}
	svc := service.NewSessionPlanService(plans, subjects, &planBatchesStub{}, nil, nil, nil)
	return NewSessionHandler(svc), plans
}

func sessionRouter(h *SessionHandler, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if claims != nil {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.ContextUserKey, claims)
			c.Next()
		})
	}
	staffOrAdmin := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	router.PUT("/subjects/:id/batches/:batch_id/plan", staffOrAdmin, h.UpsertPlan)
	router.GET("/subjects/:id/batches/:batch_id/calendar", h.GetCalendar)
	return router
}

func weeklyPlanPayload() []byte {
	return []byte(`{"start_date":"2024-01-01","end_date":"2024-01-07","lecture_days":["MONDAY","WEDNESDAY"],"lab_days":["FRIDAY"],"has_labs":true}`)
}

// --- Tests ---

func TestUpsertPlanUnauthorized(t *testing.T) {
	h, _ := newSessionHandlerFixture()
	router := sessionRouter(h, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/subjects/subject-1/batches/batch-1/plan", bytes.NewReader(weeklyPlanPayload()))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", envelopeErrorCode(t, w))
}

func TestUpsertPlanForbiddenForStudent(t *testing.T) {
	h, _ := newSessionHandlerFixture()
	router := sessionRouter(h, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/subjects/subject-1/batches/batch-1/plan", bytes.NewReader(weeklyPlanPayload()))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", envelopeErrorCode(t, w))
}

func TestUpsertPlanGeneratesCalendar(t *testing.T) {
	h, plans := newSessionHandlerFixture()
	router := sessionRouter(h, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/subjects/subject-1/batches/batch-1/plan", bytes.NewReader(weeklyPlanPayload()))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Plan     models.SessionPlan      `json:"plan"`
		Sessions []models.PlannedSession `json:"sessions"`
	}
	envelope := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(envelope["data"], &data))

	// Week of Mon Jan 1: lectures Mon+Wed, one Friday lab, weekend skipped.
	require.Len(t, data.Sessions, 3)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), data.Sessions[0].Date)
	assert.Equal(t, models.SessionTypeLecture, data.Sessions[0].Type)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), data.Sessions[1].Date)
	assert.Equal(t, models.SessionTypeLecture, data.Sessions[1].Type)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), data.Sessions[2].Date)
	assert.Equal(t, models.SessionTypeLab, data.Sessions[2].Type)
	assert.Len(t, plans.replaced, 3)
}

func TestUpsertPlanRejectsInvertedRange(t *testing.T) {
	h, _ := newSessionHandlerFixture()
	router := sessionRouter(h, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})

	payload := []byte(`{"start_date":"2024-01-07","end_date":"2024-01-01","lecture_days":["MONDAY"]}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/subjects/subject-1/batches/batch-1/plan", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", envelopeErrorCode(t, w))
}

func TestUpsertPlanUnassignedStaffForbidden(t *testing.T) {
	h, _ := newSessionHandlerFixture()
	subjects := &planSubjectsStub{
		subject: &models.SubjectDetail{Subject: models.Subject{ID: "subject-1", Code: "CS201", Active: true}},
	}
	h.service = service.NewSessionPlanService(&sessionPlansStub{}, subjects, &planBatchesStub{}, nil, nil, nil)
	router := sessionRouter(h, &models.JWTClaims{UserID: "staff-2", Role: models.RoleStaff})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/subjects/subject-1/batches/batch-1/plan", bytes.NewReader(weeklyPlanPayload()))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", envelopeErrorCode(t, w))
}

func TestGetCalendarNotFound(t *testing.T) {
	h, _ := newSessionHandlerFixture()
	router := sessionRouter(h, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/subjects/subject-1/batches/batch-1/calendar", nil)

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", envelopeErrorCode(t, w))
}
