package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academia-portal-api/internal/models"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
)

type attendanceRepository interface {
	SessionExists(ctx context.Context, subjectID, batchID string, date time.Time, sessionType models.SessionType) (bool, error)
	BulkInsertSession(ctx context.Context, records []models.AttendanceRecord) error
	FindRecord(ctx context.Context, id string) (*models.AttendanceRecord, error)
	UpdatePresence(ctx context.Context, id string, present bool, markedBy string) error
	ListStudentRecords(ctx context.Context, studentID, subjectID string) ([]models.AttendanceRecord, error)
	DistinctHeldDates(ctx context.Context, subjectID, batchID string, sessionType models.SessionType) ([]time.Time, error)
	SessionReport(ctx context.Context, subjectID, batchID string, date time.Time, sessionType models.SessionType) ([]models.SessionReportRow, error)
}

type attendanceSubjectReader interface {
	FindByID(ctx context.Context, id string) (*models.SubjectDetail, error)
	IsAssigned(ctx context.Context, staffID, subjectID, batchID string) (bool, error)
}

type attendanceUserReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.UserDetail, error)
	ListStudentIDsByBatch(ctx context.Context, batchID string) ([]string, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AttendanceService owns session marking, corrections and the per-student
// statistics projection.
type AttendanceService struct {
	records   attendanceRepository
	subjects  attendanceSubjectReader
	users     attendanceUserReader
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService wires the attendance workflows.
func NewAttendanceService(records attendanceRepository, subjects attendanceSubjectReader, users attendanceUserReader, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		records:   records,
		subjects:  subjects,
		users:     users,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// MarkSessionEntry is one student's row in a marking request.
type MarkSessionEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Present   bool   `json:"present"`
}

// MarkSessionRequest marks attendance for one held session in a single shot.
type MarkSessionRequest struct {
	SubjectID string             `json:"subject_id" validate:"required"`
	BatchID   string             `json:"batch_id" validate:"required"`
	Date      string             `json:"date" validate:"required"`
	Type      string             `json:"type" validate:"required"`
	Entries   []MarkSessionEntry `json:"entries" validate:"required,min=1,dive"`
}

// MarkSession records presence for every listed student atomically. A
// session identified by (subject, batch, date, type) can be marked exactly
// once; later changes go through Correct.
func (s *AttendanceService) MarkSession(ctx context.Context, actor *models.JWTClaims, req MarkSessionRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	sessionType := models.SessionType(req.Type)
	if !sessionType.Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown session type %q", req.Type))
	}
	date, err := parsePlanDate(req.Date)
	if err != nil {
		return 0, err
	}
	if weekday := date.Weekday(); weekday == time.Saturday || weekday == time.Sunday {
		return 0, appErrors.Clone(appErrors.ErrValidation, "sessions are not held on weekends")
	}

	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if sessionType == models.SessionTypeLab && !subject.HasLabs {
		return 0, appErrors.Clone(appErrors.ErrValidation, "subject has no lab component")
	}

	if actor.Role == models.RoleStaff {
		assigned, err := s.subjects.IsAssigned(ctx, actor.UserID, req.SubjectID, req.BatchID)
		if err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
		}
		if !assigned {
			return 0, appErrors.Clone(appErrors.ErrForbidden, "not assigned to this subject and batch")
		}
	}

	exists, err := s.records.SessionExists(ctx, req.SubjectID, req.BatchID, date, sessionType)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check session")
	}
	if exists {
		return 0, appErrors.Clone(appErrors.ErrSessionMarked, "session already marked for this date")
	}

	batchStudents, err := s.users.ListStudentIDsByBatch(ctx, req.BatchID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch students")
	}
	inBatch := make(map[string]bool, len(batchStudents))
	for _, id := range batchStudents {
		inBatch[id] = true
	}

	seen := make(map[string]bool, len(req.Entries))
	records := make([]models.AttendanceRecord, 0, len(req.Entries))
	for _, entry := range req.Entries {
		if !inBatch[entry.StudentID] {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not in the batch", entry.StudentID))
		}
		if seen[entry.StudentID] {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s listed twice", entry.StudentID))
		}
		seen[entry.StudentID] = true
		records = append(records, models.AttendanceRecord{
			StudentID: entry.StudentID,
			SubjectID: req.SubjectID,
			BatchID:   req.BatchID,
			Date:      date,
			Type:      sessionType,
			Present:   entry.Present,
			MarkedBy:  actor.UserID,
		})
	}

	if err := s.records.BulkInsertSession(ctx, records); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrSessionMarked, "session already marked for this date")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attendance")
	}

	s.invalidateSubject(ctx, req.SubjectID)
	s.audit(ctx, actor.UserID, models.AuditActionSessionMark, "attendance_session", nil, map[string]interface{}{
		"subject_id": req.SubjectID,
		"batch_id":   req.BatchID,
		"date":       req.Date,
		"type":       sessionType,
		"rows":       len(records),
	})
	s.logger.Info("attendance session marked",
		zap.String("subject_id", req.SubjectID),
		zap.String("batch_id", req.BatchID),
		zap.String("type", string(sessionType)),
		zap.Int("rows", len(records)))
	return len(records), nil
}

// CorrectRequest flips one record's presence flag.
type CorrectRequest struct {
	Present bool `json:"present"`
}

// Correct updates a single attendance record after marking. Staff can only
// correct records for pairings they teach.
func (s *AttendanceService) Correct(ctx context.Context, actor *models.JWTClaims, recordID string, req CorrectRequest) (*models.AttendanceRecord, error) {
	record, err := s.records.FindRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}

	if actor.Role == models.RoleStaff {
		assigned, err := s.subjects.IsAssigned(ctx, actor.UserID, record.SubjectID, record.BatchID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
		}
		if !assigned {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not assigned to this subject and batch")
		}
	}

	if record.Present == req.Present {
		return record, nil
	}

	if err := s.records.UpdatePresence(ctx, recordID, req.Present, actor.UserID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance record")
	}

	s.invalidateSubject(ctx, record.SubjectID)
	s.audit(ctx, actor.UserID, models.AuditActionSessionMark, "attendance_record", &recordID,
		map[string]interface{}{"present": req.Present})

	record.Present = req.Present
	record.MarkedBy = actor.UserID
	return record, nil
}

// StudentSubjectStats computes the per-subject attendance projection for one
// student. Students may only read their own stats; that check happens at the
// routing layer, callers here pass an already-authorized student id.
func (s *AttendanceService) StudentSubjectStats(ctx context.Context, studentID, subjectID string) (*models.SubjectAttendanceStats, error) {
	cacheKey := fmt.Sprintf("attendance:subject:%s:student:%s", subjectID, studentID)
	var cached models.SubjectAttendanceStats
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	student, err := s.users.FindDetailByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent || student.BatchID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not an enrolled student")
	}

	lectureDates, err := s.records.DistinctHeldDates(ctx, subjectID, *student.BatchID, models.SessionTypeLecture)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load held lectures")
	}
	labDates, err := s.records.DistinctHeldDates(ctx, subjectID, *student.BatchID, models.SessionTypeLab)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load held labs")
	}
	records, err := s.records.ListStudentRecords(ctx, studentID, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}

	stats := ComputeSubjectStats(studentID, subjectID, lectureDates, labDates, records)
	if err := s.cache.Set(ctx, cacheKey, stats, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache attendance stats", zap.String("key", cacheKey), zap.Error(err))
	}
	return stats, nil
}

// SessionReport lists every student row for one held session.
func (s *AttendanceService) SessionReport(ctx context.Context, actor *models.JWTClaims, subjectID, batchID, rawDate, rawType string) ([]models.SessionReportRow, error) {
	sessionType := models.SessionType(rawType)
	if !sessionType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown session type %q", rawType))
	}
	date, err := parsePlanDate(rawDate)
	if err != nil {
		return nil, err
	}

	if actor.Role == models.RoleStaff {
		assigned, err := s.subjects.IsAssigned(ctx, actor.UserID, subjectID, batchID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
		}
		if !assigned {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not assigned to this subject and batch")
		}
	}

	rows, err := s.records.SessionReport(ctx, subjectID, batchID, date, sessionType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build session report")
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no session held for this date")
	}
	return rows, nil
}

// ComputeSubjectStats folds a student's records over the distinct held
// dates of a subject. Denominators come from the held dates, not from the
// student's own rows, so an unmarked student still accrues absences. Labs
// count double in the overall percentage. Percentages are rounded to two
// decimals; an empty denominator yields zero rather than NaN.
func ComputeSubjectStats(studentID, subjectID string, lectureDates, labDates []time.Time, records []models.AttendanceRecord) *models.SubjectAttendanceStats {
	var lecturesAttended, labsAttended int
	for _, record := range records {
		if !record.Present {
			continue
		}
		switch record.Type {
		case models.SessionTypeLecture:
			lecturesAttended++
		case models.SessionTypeLab:
			labsAttended++
		}
	}

	totalLectures := len(lectureDates)
	totalLabs := len(labDates)

	stats := &models.SubjectAttendanceStats{
		StudentID:          studentID,
		SubjectID:          subjectID,
		TotalLecturesTaken: totalLectures,
		LecturesAttended:   lecturesAttended,
		TotalLabsTaken:     totalLabs,
		LabsAttended:       labsAttended,
		LecturePercentage:  percentage(lecturesAttended, totalLectures),
		LabPercentage:      percentage(labsAttended, totalLabs),
		OverallPercentage:  percentage(lecturesAttended+2*labsAttended, totalLectures+2*totalLabs),
		AttendanceDates: models.AttendanceDates{
			Lectures: lectureDates,
			Labs:     labDates,
		},
	}
	return stats
}

func percentage(attended, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(attended)/float64(total)*100*100) / 100
}

func (s *AttendanceService) invalidateSubject(ctx context.Context, subjectID string) {
	pattern := fmt.Sprintf("attendance:subject:%s:*", subjectID)
	if err := s.cache.Invalidate(ctx, pattern); err != nil {
		s.logger.Warn("failed to invalidate attendance cache", zap.String("pattern", pattern), zap.Error(err))
	}
}

func (s *AttendanceService) audit(ctx context.Context, userID, action, resource string, resourceID *string, values map[string]interface{}) {
	payload, err := json.Marshal(values)
	if err != nil {
		payload = nil
	}
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		NewValues:  payload,
	}
	if err := s.users.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
