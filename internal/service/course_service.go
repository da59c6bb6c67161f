package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academia-portal-api/internal/models"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
)

type courseRepository interface {
	ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindCourseByID(ctx context.Context, id string) (*models.Course, error)
	ExistsCourseByCode(ctx context.Context, code string, excludeID string) (bool, error)
	CreateCourse(ctx context.Context, course *models.Course) error
	UpdateCourse(ctx context.Context, course *models.Course) error
	DeactivateCourse(ctx context.Context, id string) error
	ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, int, error)
	FindBatchByID(ctx context.Context, id string) (*models.BatchDetail, error)
	ExistsBatchByName(ctx context.Context, courseID, name string, excludeID string) (bool, error)
	CreateBatch(ctx context.Context, batch *models.Batch) error
	UpdateBatch(ctx context.Context, batch *models.Batch) error
	DeactivateBatch(ctx context.Context, id string) error
}

// CourseService administers the course catalogue and its batches.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// CourseRequest carries course create/update fields.
type CourseRequest struct {
	Code     string `json:"code" validate:"required,max=16"`
	Name     string `json:"name" validate:"required"`
	Duration int    `json:"duration_years" validate:"required,min=1,max=8"`
}

// CreateCourse adds a course to the catalogue.
func (s *CourseService) CreateCourse(ctx context.Context, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.repo.ExistsCourseByCode(ctx, code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	}

	now := time.Now().UTC()
	course := &models.Course{
		Code:      code,
		Name:      strings.TrimSpace(req.Name),
		Duration:  req.Duration,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateCourse(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("code", course.Code))
	return course, nil
}

// GetCourse returns one course.
func (s *CourseService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindCourseByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// ListCourses returns the catalogue with pagination metadata.
func (s *CourseService) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	courses, total, err := s.repo.ListCourses(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// UpdateCourse mutates course fields.
func (s *CourseService) UpdateCourse(ctx context.Context, id string, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code != course.Code {
		exists, err := s.repo.ExistsCourseByCode(ctx, code, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
		}
	}

	course.Code = code
	course.Name = strings.TrimSpace(req.Name)
	course.Duration = req.Duration
	course.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateCourse(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// DeactivateCourse soft-deletes a course; its batches keep their history.
func (s *CourseService) DeactivateCourse(ctx context.Context, id string) error {
	if err := s.repo.DeactivateCourse(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate course")
	}
	return nil
}

// BatchRequest carries batch create/update fields.
type BatchRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	StartYear int    `json:"start_year" validate:"required,min=2000"`
	EndYear   int    `json:"end_year" validate:"required,min=2000"`
}

// CreateBatch adds a cohort under a course.
func (s *CourseService) CreateBatch(ctx context.Context, req BatchRequest) (*models.BatchDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	if req.EndYear < req.StartYear {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_year must not be before start_year")
	}

	if _, err := s.GetCourse(ctx, req.CourseID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	exists, err := s.repo.ExistsBatchByName(ctx, req.CourseID, name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check batch name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "batch name already exists for this course")
	}

	now := time.Now().UTC()
	batch := &models.Batch{
		CourseID:  req.CourseID,
		Name:      name,
		StartYear: req.StartYear,
		EndYear:   req.EndYear,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}
	s.logger.Info("batch created", zap.String("batch_id", batch.ID), zap.String("course_id", batch.CourseID))
	return s.GetBatch(ctx, batch.ID)
}

// GetBatch returns one batch with course metadata.
func (s *CourseService) GetBatch(ctx context.Context, id string) (*models.BatchDetail, error) {
	batch, err := s.repo.FindBatchByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// ListBatches returns cohorts matching the filter.
func (s *CourseService) ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	batches, total, err := s.repo.ListBatches(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	return batches, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// UpdateBatch mutates batch fields.
func (s *CourseService) UpdateBatch(ctx context.Context, id string, req BatchRequest) (*models.BatchDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	if req.EndYear < req.StartYear {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_year must not be before start_year")
	}

	detail, err := s.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name != detail.Name || req.CourseID != detail.CourseID {
		exists, err := s.repo.ExistsBatchByName(ctx, req.CourseID, name, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check batch name")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "batch name already exists for this course")
		}
	}

	batch := detail.Batch
	batch.CourseID = req.CourseID
	batch.Name = name
	batch.StartYear = req.StartYear
	batch.EndYear = req.EndYear
	batch.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateBatch(ctx, &batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch")
	}
	return s.GetBatch(ctx, id)
}

// DeactivateBatch soft-deletes a batch.
func (s *CourseService) DeactivateBatch(ctx context.Context, id string) error {
	if err := s.repo.DeactivateBatch(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate batch")
	}
	return nil
}
