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

type attendanceRecordsStub struct {
	records       map[string]*models.AttendanceRecord
	lectureDates  []time.Time
	labDates      []time.Time
	studentRows   []models.AttendanceRecord
	inserted      []models.AttendanceRecord
	sessionExists bool
}

func (s *attendanceRecordsStub) SessionExists(ctx context.Context, subjectID, batchID string, date time.Time, sessionType models.SessionType) (bool, error) {
	return s.sessionExists, nil
}

func (s *attendanceRecordsStub) BulkInsertSession(ctx context.Context, records []models.AttendanceRecord) error {
	s.inserted = append(s.inserted, records...)
	return nil
}

func (s *attendanceRecordsStub) FindRecord(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	record, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return record, nil
}

func (s *attendanceRecordsStub) UpdatePresence(ctx context.Context, id string, present bool, markedBy string) error {
	if _, ok := s.records[id]; !ok {
		return sql.ErrNoRows
	}
	return nil
}

func (s *attendanceRecordsStub) ListStudentRecords(ctx context.Context, studentID, subjectID string) ([]models.AttendanceRecord, error) {
	return s.studentRows, nil
}

func (s *attendanceRecordsStub) DistinctHeldDates(ctx context.Context, subjectID, batchID string, sessionType models.SessionType) ([]time.Time, error) {
	if sessionType == models.SessionTypeLab {
		return s.labDates, nil
	}
	return s.lectureDates, nil
}

func (s *attendanceRecordsStub) SessionReport(ctx context.Context, subjectID, batchID string, date time.Time, sessionType models.SessionType) ([]models.SessionReportRow, error) {
	return nil, nil
}

type attendanceSubjectsStub struct {
	subject  *models.SubjectDetail
	assigned bool
}

func (s *attendanceSubjectsStub) FindByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	if s.subject == nil || s.subject.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.subject, nil
}

func (s *attendanceSubjectsStub) IsAssigned(ctx context.Context, staffID, subjectID, batchID string) (bool, error) {
	return s.assigned, nil
}

type attendanceUsersStub struct {
	users         map[string]*models.UserDetail
	batchStudents []string
}

func (s *attendanceUsersStub) FindDetailByID(ctx context.Context, id string) (*models.UserDetail, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (s *attendanceUsersStub) ListStudentIDsByBatch(ctx context.Context, batchID string) ([]string, error) {
	return s.batchStudents, nil
}

func (s *attendanceUsersStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

func newAttendanceHandlerFixture() (*AttendanceHandler, *attendanceRecordsStub) {
	batchID := "batch-1"
	records := &attendanceRecordsStub{records: map[string]*models.AttendanceRecord{}}
	subjects := &attendanceSubjectsStub{
		subject:  &models.SubjectDetail{Subject: models.Subject{ID: "subject-1", Code: "CS201", HasLabs: true, Active: true}},
		assigned: true,
	}
	users := &attendanceUsersStub{
		users: map[string]*models.UserDetail{
			"student-1": {
				User:    models.User{ID: "student-1", Role: models.RoleStudent, Active: true},
				BatchID: &batchID,
			},
		},
		batchStudents: []string{"student-1", "student-2"},
	}
	svc := service.NewAttendanceService(records, subjects, users, nil, 0, nil, nil)
	return NewAttendanceHandler(svc), records
}

func attendanceRouter(h *AttendanceHandler, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if claims != nil {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.ContextUserKey, claims)
			c.Next()
		})
	}
	staffOrAdmin := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	router.POST("/attendance/sessions", staffOrAdmin, h.MarkSession)
	router.PATCH("/attendance/records/:id", staffOrAdmin, h.Correct)
	router.GET("/students/:id/subjects/:subject_id/attendance",
		middleware.RBAC(string(models.RoleAdmin), string(models.RoleStaff), string(models.RolePlacementOfficer), middleware.SelfMarker),
		h.StudentStats)
	return router
}

func markSessionPayload() []byte {
	return []byte(`{"subject_id":"subject-1","batch_id":"batch-1","date":"2024-01-08","type":"LECTURE","entries":[{"student_id":"student-1","present":true},{"student_id":"student-2","present":false}]}`)
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func envelopeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

// --- Tests ---

func TestMarkSessionUnauthorized(t *testing.T) {
	h, _ := newAttendanceHandlerFixture()
	router := attendanceRouter(h, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/attendance/sessions", bytes.NewReader(markSessionPayload()))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", envelopeErrorCode(t, w))
}

func TestMarkSessionForbiddenForStudent(t *testing.T) {
	h, _ := newAttendanceHandlerFixture()
	router := attendanceRouter(h, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/attendance/sessions", bytes.NewReader(markSessionPayload()))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", envelopeErrorCode(t, w))
}

func TestMarkSessionCreated(t *testing.T) {
	h, records := newAttendanceHandlerFixture()
	router := attendanceRouter(h, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/attendance/sessions", bytes.NewReader(markSessionPayload()))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, records.inserted, 2)
	assert.Equal(t, "staff-1", records.inserted[0].MarkedBy)

	var data struct {
		Rows int `json:"rows"`
	}
	envelope := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(envelope["data"], &data))
	assert.Equal(t, 2, data.Rows)
}

func TestMarkSessionDuplicateConflict(t *testing.T) {
	h, records := newAttendanceHandlerFixture()
	records.sessionExists = true
	router := attendanceRouter(h, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/attendance/sessions", bytes.NewReader(markSessionPayload()))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SESSION_ALREADY_MARKED", envelopeErrorCode(t, w))
}

func TestMarkSessionMalformedPayload(t *testing.T) {
	h, _ := newAttendanceHandlerFixture()
	router := attendanceRouter(h, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/attendance/sessions", bytes.NewReader([]byte(`{"subject_id":`)))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", envelopeErrorCode(t, w))
}

func TestStudentStatsSelfAccess(t *testing.T) {
	h, records := newAttendanceHandlerFixture()
	records.lectureDates = []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC),
	}
	records.labDates = []time.Time{
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC),
	}
	records.studentRows = []models.AttendanceRecord{
		{StudentID: "student-1", SubjectID: "subject-1", Date: records.lectureDates[0], Type: models.SessionTypeLecture, Present: true},
		{StudentID: "student-1", SubjectID: "subject-1", Date: records.lectureDates[1], Type: models.SessionTypeLecture, Present: true},
		{StudentID: "student-1", SubjectID: "subject-1", Date: records.lectureDates[2], Type: models.SessionTypeLecture, Present: true},
		{StudentID: "student-1", SubjectID: "subject-1", Date: records.lectureDates[3], Type: models.SessionTypeLecture, Present: false},
	}
	router := attendanceRouter(h, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/students/student-1/subjects/subject-1/attendance", nil)

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.SubjectAttendanceStats
	envelope := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(envelope["data"], &stats))
	assert.Equal(t, 4, stats.TotalLecturesTaken)
	assert.Equal(t, 3, stats.LecturesAttended)
	assert.Equal(t, 2, stats.TotalLabsTaken)
	assert.InDelta(t, 75.0, stats.LecturePercentage, 0.001)
	assert.InDelta(t, 37.5, stats.OverallPercentage, 0.001)
}

func TestStudentStatsOtherStudentForbidden(t *testing.T) {
	h, _ := newAttendanceHandlerFixture()
	router := attendanceRouter(h, &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/students/student-1/subjects/subject-1/attendance", nil)

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", envelopeErrorCode(t, w))
}

func TestStudentStatsStaffAccess(t *testing.T) {
	h, records := newAttendanceHandlerFixture()
	records.lectureDates = []time.Time{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	router := attendanceRouter(h, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/students/student-1/subjects/subject-1/attendance", nil)

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCorrectUnknownRecord(t *testing.T) {
	h, _ := newAttendanceHandlerFixture()
	router := attendanceRouter(h, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPatch, "/attendance/records/missing", bytes.NewReader([]byte(`{"present":false}`)))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", envelopeErrorCode(t, w))
}
