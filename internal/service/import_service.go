package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/academia-portal-api/internal/models"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
)

// ImportService loads bulk CSV data through the same service paths used by
// the single-record endpoints, so every row sees identical validation.
type ImportService struct {
	users    *UserService
	courses  *CourseService
	subjects *SubjectService
	maxRows  int
	logger   *zap.Logger
}

// NewImportService constructs an ImportService.
func NewImportService(users *UserService, courses *CourseService, subjects *SubjectService, maxRows int, logger *zap.Logger) *ImportService {
	if maxRows <= 0 {
		maxRows = 5000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{users: users, courses: courses, subjects: subjects, maxRows: maxRows, logger: logger}
}

// Run parses the CSV stream and imports each row, classifying every line as
// created, duplicate or failed. The header row names the columns; order is
// free. A failed row never aborts the remainder of the file.
func (s *ImportService) Run(ctx context.Context, actorID string, entity models.ImportEntity, r io.Reader) (*models.ImportSummary, error) {
	if !entity.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown import entity %q", entity))
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read CSV header")
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	summary := &models.ImportSummary{Entity: entity}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			summary.Total++
			summary.Failed++
			summary.Rows = append(summary.Rows, models.ImportRowResult{
				Line:    line,
				Outcome: models.ImportRowFailed,
				Message: err.Error(),
			})
			continue
		}
		if summary.Total >= s.maxRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d row limit", s.maxRows))
		}
		summary.Total++

		row := csvRow{columns: columns, record: record}
		id, err := s.importRow(ctx, actorID, entity, row)
		result := models.ImportRowResult{Line: line, ID: id}
		switch {
		case err == nil:
			result.Outcome = models.ImportRowCreated
			summary.Created++
		case isDuplicate(err):
			result.Outcome = models.ImportRowDuplicate
			result.Message = appErrors.FromError(err).Message
			summary.Duplicates++
		default:
			result.Outcome = models.ImportRowFailed
			result.Message = appErrors.FromError(err).Message
			summary.Failed++
		}
		summary.Rows = append(summary.Rows, result)
	}

	s.logger.Info("import finished",
		zap.String("entity", string(entity)),
		zap.Int("total", summary.Total),
		zap.Int("created", summary.Created),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func (s *ImportService) importRow(ctx context.Context, actorID string, entity models.ImportEntity, row csvRow) (string, error) {
	switch entity {
	case models.ImportEntityUsers:
		detail, err := s.users.Create(ctx, actorID, CreateUserRequest{
			Email:           row.get("email"),
			Password:        row.get("password"),
			FullName:        row.get("full_name"),
			Role:            row.get("role"),
			EnrollmentNo:    row.get("enrollment_no"),
			BatchID:         row.get("batch_id"),
			CurrentSemester: row.getInt("current_semester"),
			StaffNo:         row.get("staff_no"),
			Designation:     row.get("designation"),
			Phone:           row.get("phone"),
		})
		if err != nil {
			return "", err
		}
		return detail.ID, nil
	case models.ImportEntityCourses:
		course, err := s.courses.CreateCourse(ctx, CourseRequest{
			Code:     row.get("code"),
			Name:     row.get("name"),
			Duration: row.getInt("duration_years"),
		})
		if err != nil {
			return "", err
		}
		return course.ID, nil
	case models.ImportEntityBatches:
		batch, err := s.courses.CreateBatch(ctx, BatchRequest{
			CourseID:  row.get("course_id"),
			Name:      row.get("name"),
			StartYear: row.getInt("start_year"),
			EndYear:   row.getInt("end_year"),
		})
		if err != nil {
			return "", err
		}
		return batch.ID, nil
	case models.ImportEntitySubjects:
		subject, err := s.subjects.Create(ctx, SubjectRequest{
			CourseID: row.get("course_id"),
			Code:     row.get("code"),
			Name:     row.get("name"),
			Semester: row.getInt("semester"),
			HasLabs:  row.getBool("has_labs"),
		})
		if err != nil {
			return "", err
		}
		return subject.ID, nil
	}
	return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown import entity %q", entity))
}

func isDuplicate(err error) bool {
	return appErrors.FromError(err).Code == appErrors.ErrConflict.Code
}

type csvRow struct {
	columns map[string]int
	record  []string
}

func (r csvRow) get(name string) string {
	idx, ok := r.columns[name]
	if !ok || idx >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[idx])
}

func (r csvRow) getInt(name string) int {
	value, err := strconv.Atoi(r.get(name))
	if err != nil {
		return 0
	}
	return value
}

func (r csvRow) getBool(name string) bool {
	value, err := strconv.ParseBool(strings.ToLower(r.get(name)))
	if err != nil {
		return false
	}
	return value
}
