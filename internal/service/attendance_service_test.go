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

func TestComputeSubjectStatsWeightsLabsDouble(t *testing.T) {
	lectures := heldDates(2024, 1, []int{1, 2, 3, 4, 8, 9, 10, 11, 15, 16})
	labs := heldDates(2024, 1, []int{4, 11, 18, 25})

	records := make([]models.AttendanceRecord, 0, 11)
	for _, d := range lectures[:8] {
		records = append(records, presentRecord(d, models.SessionTypeLecture))
	}
	for _, d := range labs[:3] {
		records = append(records, presentRecord(d, models.SessionTypeLab))
	}

	stats := ComputeSubjectStats("student-1", "subj-1", lectures, labs, records)
	assert.Equal(t, 10, stats.TotalLecturesTaken)
	assert.Equal(t, 8, stats.LecturesAttended)
	assert.Equal(t, 4, stats.TotalLabsTaken)
	assert.Equal(t, 3, stats.LabsAttended)
	assert.InDelta(t, 80.0, stats.LecturePercentage, 0.001)
	assert.InDelta(t, 75.0, stats.LabPercentage, 0.001)
	// (8 + 2*3) / (10 + 2*4) = 14/18
	assert.InDelta(t, 77.78, stats.OverallPercentage, 0.001)
}

func TestComputeSubjectStatsDenominatorFromHeldDates(t *testing.T) {
	// Student has no rows at all: held sessions still count against them.
	lectures := heldDates(2024, 2, []int{5, 6, 7, 8})
	stats := ComputeSubjectStats("student-1", "subj-1", lectures, nil, nil)
	assert.Equal(t, 4, stats.TotalLecturesTaken)
	assert.Equal(t, 0, stats.LecturesAttended)
	assert.InDelta(t, 0.0, stats.LecturePercentage, 0.001)
}

func TestComputeSubjectStatsZeroDenominators(t *testing.T) {
	stats := ComputeSubjectStats("student-1", "subj-1", nil, nil, nil)
	assert.Zero(t, stats.LecturePercentage)
	assert.Zero(t, stats.LabPercentage)
	assert.Zero(t, stats.OverallPercentage)
}

func TestComputeSubjectStatsRoundsToTwoDecimals(t *testing.T) {
	lectures := heldDates(2024, 3, []int{1, 4, 5})
	records := []models.AttendanceRecord{presentRecord(lectures[0], models.SessionTypeLecture)}

	stats := ComputeSubjectStats("student-1", "subj-1", lectures, nil, records)
	assert.InDelta(t, 33.33, stats.LecturePercentage, 0.001)
}

func TestComputeSubjectStatsAbsencesDoNotCount(t *testing.T) {
	lectures := heldDates(2024, 3, []int{1, 4})
	absent := presentRecord(lectures[0], models.SessionTypeLecture)
	absent.Present = false

	stats := ComputeSubjectStats("student-1", "subj-1", lectures, nil, []models.AttendanceRecord{absent})
	assert.Equal(t, 0, stats.LecturesAttended)
}

func TestMarkSessionRejectsDuplicate(t *testing.T) {
	svc, repo := newAttendanceServiceFixture()
	repo.sessionExists = true

	_, err := svc.MarkSession(context.Background(), staffClaims(), validMarkRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionMarked.Code, appErrors.FromError(err).Code)
}

func TestMarkSessionRejectsWeekend(t *testing.T) {
	svc, _ := newAttendanceServiceFixture()

	req := validMarkRequest()
	req.Date = "2024-01-06" // Saturday
	_, err := svc.MarkSession(context.Background(), staffClaims(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMarkSessionRejectsLabWithoutLabComponent(t *testing.T) {
	svc, repo := newAttendanceServiceFixture()
	repo.subjectHasLabs = false

	req := validMarkRequest()
	req.Type = "LAB"
	_, err := svc.MarkSession(context.Background(), staffClaims(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMarkSessionRejectsStudentOutsideBatch(t *testing.T) {
	svc, repo := newAttendanceServiceFixture()
	repo.batchStudents = []string{"student-1"}

	req := validMarkRequest()
	req.Entries = append(req.Entries, MarkSessionEntry{StudentID: "stranger", Present: true})
	_, err := svc.MarkSession(context.Background(), staffClaims(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMarkSessionRejectsUnassignedStaff(t *testing.T) {
	svc, repo := newAttendanceServiceFixture()
	repo.assigned = false

	_, err := svc.MarkSession(context.Background(), staffClaims(), validMarkRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMarkSessionStoresAllRows(t *testing.T) {
	svc, repo := newAttendanceServiceFixture()

	rows, err := svc.MarkSession(context.Background(), staffClaims(), validMarkRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	require.Len(t, repo.inserted, 2)
	assert.True(t, repo.inserted[0].Present)
	assert.False(t, repo.inserted[1].Present)
	assert.Equal(t, "staff-1", repo.inserted[0].MarkedBy)
}

func TestCorrectIsNoOpWhenUnchanged(t *testing.T) {
	svc, repo := newAttendanceServiceFixture()
	repo.record = &models.AttendanceRecord{ID: "rec-1", SubjectID: "subj-1", BatchID: "batch-1", Present: true}

	record, err := svc.Correct(context.Background(), staffClaims(), "rec-1", CorrectRequest{Present: true})
	require.NoError(t, err)
	assert.True(t, record.Present)
	assert.False(t, repo.presenceUpdated)
}

func TestCorrectFlipsPresence(t *testing.T) {
	svc, repo := newAttendanceServiceFixture()
	repo.record = &models.AttendanceRecord{ID: "rec-1", SubjectID: "subj-1", BatchID: "batch-1", Present: false, MarkedBy: "someone"}

	record, err := svc.Correct(context.Background(), staffClaims(), "rec-1", CorrectRequest{Present: true})
	require.NoError(t, err)
	assert.True(t, record.Present)
	assert.Equal(t, "staff-1", record.MarkedBy)
	assert.True(t, repo.presenceUpdated)
}

func TestStudentSubjectStatsRejectsNonStudent(t *testing.T) {
	svc, repo := newAttendanceServiceFixture()
	repo.userRole = models.RoleStaff

	_, err := svc.StudentSubjectStats(context.Background(), "staff-1", "subj-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSessionReportEmptyIsNotFound(t *testing.T) {
	svc, _ := newAttendanceServiceFixture()

	_, err := svc.SessionReport(context.Background(), staffClaims(), "subj-1", "batch-1", "2024-01-01", "LECTURE")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

// --- Fixtures ---

type attendanceRepoStub struct {
	sessionExists   bool
	inserted        []models.AttendanceRecord
	record          *models.AttendanceRecord
	presenceUpdated bool
	lectureDates    []time.Time
	labDates        []time.Time
	studentRecords  []models.AttendanceRecord
	reportRows      []models.SessionReportRow

	subjectHasLabs bool
	assigned       bool

	batchStudents []string
	userRole      models.UserRole
	userBatchID   *string
}

func newAttendanceServiceFixture() (*AttendanceService, *attendanceRepoStub) {
	batchID := "batch-1"
	repo := &attendanceRepoStub{
		subjectHasLabs: true,
		assigned:       true,
		batchStudents:  []string{"student-1", "student-2"},
		userRole:       models.RoleStudent,
		userBatchID:    &batchID,
	}
	svc := NewAttendanceService(repo, repo, repo, nil, time.Minute, nil, nil)
	return svc, repo
}

func validMarkRequest() MarkSessionRequest {
	return MarkSessionRequest{
		SubjectID: "subj-1",
		BatchID:   "batch-1",
		Date:      "2024-01-01",
		Type:      "LECTURE",
		Entries: []MarkSessionEntry{
			{StudentID: "student-1", Present: true},
			{StudentID: "student-2", Present: false},
		},
	}
}

func staffClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff}
}

func presentRecord(date time.Time, sessionType models.SessionType) models.AttendanceRecord {
	return models.AttendanceRecord{
		StudentID: "student-1",
		SubjectID: "subj-1",
		Date:      date,
		Type:      sessionType,
		Present:   true,
	}
}

func heldDates(year int, month time.Month, days []int) []time.Time {
	dates := make([]time.Time, 0, len(days))
	for _, d := range days {
		dates = append(dates, time.Date(year, month, d, 0, 0, 0, 0, time.UTC))
	}
	return dates
}

func (r *attendanceRepoStub) SessionExists(ctx context.Context, subjectID, batchID string, date time.Time, sessionType models.SessionType) (bool, error) {
	return r.sessionExists, nil
}

func (r *attendanceRepoStub) BulkInsertSession(ctx context.Context, records []models.AttendanceRecord) error {
	r.inserted = records
	return nil
}

func (r *attendanceRepoStub) FindRecord(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	if r.record == nil || r.record.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *r.record
	return &clone, nil
}

func (r *attendanceRepoStub) UpdatePresence(ctx context.Context, id string, present bool, markedBy string) error {
	r.presenceUpdated = true
	return nil
}

func (r *attendanceRepoStub) ListStudentRecords(ctx context.Context, studentID, subjectID string) ([]models.AttendanceRecord, error) {
	return r.studentRecords, nil
}

func (r *attendanceRepoStub) DistinctHeldDates(ctx context.Context, subjectID, batchID string, sessionType models.SessionType) ([]time.Time, error) {
	if sessionType == models.SessionTypeLab {
		return r.labDates, nil
	}
	return r.lectureDates, nil
}

func (r *attendanceRepoStub) SessionReport(ctx context.Context, subjectID, batchID string, date time.Time, sessionType models.SessionType) ([]models.SessionReportRow, error) {
	return r.reportRows, nil
}

func (r *attendanceRepoStub) FindByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	detail := &models.SubjectDetail{}
	detail.ID = id
	detail.HasLabs = r.subjectHasLabs
	return detail, nil
}

func (r *attendanceRepoStub) IsAssigned(ctx context.Context, staffID, subjectID, batchID string) (bool, error) {
	return r.assigned, nil
}

func (r *attendanceRepoStub) FindDetailByID(ctx context.Context, id string) (*models.UserDetail, error) {
	detail := &models.UserDetail{}
	detail.ID = id
	detail.Role = r.userRole
	detail.BatchID = r.userBatchID
	return detail, nil
}

func (r *attendanceRepoStub) ListStudentIDsByBatch(ctx context.Context, batchID string) ([]string, error) {
	return r.batchStudents, nil
}

func (r *attendanceRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}
