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

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.SubjectDetail, error)
	ExistsByCode(ctx context.Context, courseID, code string, excludeID string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Deactivate(ctx context.Context, id string) error
	AssignStaff(ctx context.Context, assignment *models.StaffAssignment) error
	ListAssignments(ctx context.Context, staffID, subjectID string) ([]models.StaffAssignment, error)
	CreateElectiveGroup(ctx context.Context, group *models.ElectiveGroup, options []models.ElectiveOption) error
	FindElectiveGroup(ctx context.Context, id string) (*models.ElectiveGroup, error)
	ListElectiveGroups(ctx context.Context, courseID string, semester *int) ([]models.ElectiveGroup, error)
	ListElectiveOptions(ctx context.Context, groupID string) ([]models.ElectiveOptionDetail, error)
	FindElectiveOption(ctx context.Context, id string) (*models.ElectiveOption, error)
	ReplaceElectiveChoice(ctx context.Context, choice *models.ElectiveChoice, capacity int) error
	FindElectiveChoice(ctx context.Context, groupID, studentID string) (*models.ElectiveChoice, error)
}

type subjectCourseReader interface {
	FindCourseByID(ctx context.Context, id string) (*models.Course, error)
	FindBatchByID(ctx context.Context, id string) (*models.BatchDetail, error)
}

type subjectUserReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.UserDetail, error)
}

// SubjectService owns the subject catalogue, teaching assignments and
// elective selection.
type SubjectService struct {
	repo      subjectRepository
	courses   subjectCourseReader
	users     subjectUserReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs a SubjectService.
func NewSubjectService(repo subjectRepository, courses subjectCourseReader, users subjectUserReader, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, courses: courses, users: users, validator: validate, logger: logger}
}

// SubjectRequest carries subject create/update fields.
type SubjectRequest struct {
	CourseID string `json:"course_id" validate:"required"`
	Code     string `json:"code" validate:"required,max=16"`
	Name     string `json:"name" validate:"required"`
	Semester int    `json:"semester" validate:"required,min=1,max=16"`
	HasLabs  bool   `json:"has_labs"`
}

// Create adds a subject to a course semester.
func (s *SubjectService) Create(ctx context.Context, req SubjectRequest) (*models.SubjectDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	if _, err := s.courses.FindCourseByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.repo.ExistsByCode(ctx, req.CourseID, code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already exists for this course")
	}

	now := time.Now().UTC()
	subject := &models.Subject{
		CourseID:  req.CourseID,
		Code:      code,
		Name:      strings.TrimSpace(req.Name),
		Semester:  req.Semester,
		HasLabs:   req.HasLabs,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	s.logger.Info("subject created", zap.String("subject_id", subject.ID), zap.String("code", subject.Code))
	return s.Get(ctx, subject.ID)
}

// Get returns one subject with course metadata.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.SubjectDetail, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// List returns subjects matching the filter.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Update mutates subject fields. Disabling labs does not touch existing lab
// attendance history.
func (s *SubjectService) Update(ctx context.Context, id string, req SubjectRequest) (*models.SubjectDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code != detail.Code || req.CourseID != detail.CourseID {
		exists, err := s.repo.ExistsByCode(ctx, req.CourseID, code, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already exists for this course")
		}
	}

	subject := detail.Subject
	subject.CourseID = req.CourseID
	subject.Code = code
	subject.Name = strings.TrimSpace(req.Name)
	subject.Semester = req.Semester
	subject.HasLabs = req.HasLabs
	subject.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, &subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	return s.Get(ctx, id)
}

// Deactivate soft-deletes a subject.
func (s *SubjectService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate subject")
	}
	return nil
}

// AssignStaffRequest maps a staff member to a subject-batch pairing.
type AssignStaffRequest struct {
	StaffID   string `json:"staff_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
	BatchID   string `json:"batch_id" validate:"required"`
}

// AssignStaff records who teaches a subject for a batch. Duplicate
// assignments conflict.
func (s *SubjectService) AssignStaff(ctx context.Context, req AssignStaffRequest) (*models.StaffAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	staff, err := s.users.FindDetailByID(ctx, req.StaffID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "staff member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staff member")
	}
	if staff.Role != models.RoleStaff {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a staff member")
	}
	if _, err := s.Get(ctx, req.SubjectID); err != nil {
		return nil, err
	}
	if _, err := s.courses.FindBatchByID(ctx, req.BatchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	assignment := &models.StaffAssignment{
		StaffID:   req.StaffID,
		SubjectID: req.SubjectID,
		BatchID:   req.BatchID,
	}
	if err := s.repo.AssignStaff(ctx, assignment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "staff member is already assigned")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	s.logger.Info("staff assigned",
		zap.String("staff_id", req.StaffID),
		zap.String("subject_id", req.SubjectID),
		zap.String("batch_id", req.BatchID))
	return assignment, nil
}

// ListAssignments returns assignments filtered by staff and/or subject.
func (s *SubjectService) ListAssignments(ctx context.Context, staffID, subjectID string) ([]models.StaffAssignment, error) {
	assignments, err := s.repo.ListAssignments(ctx, staffID, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// ElectiveGroupRequest creates a group of mutually-exclusive options.
type ElectiveGroupRequest struct {
	CourseID string                  `json:"course_id" validate:"required"`
	Name     string                  `json:"name" validate:"required"`
	Semester int                     `json:"semester" validate:"required,min=1,max=16"`
	Options  []ElectiveOptionRequest `json:"options" validate:"required,min=2,dive"`
}

// ElectiveOptionRequest is one selectable subject within a group.
type ElectiveOptionRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
	Capacity  int    `json:"capacity" validate:"required,min=1"`
}

// CreateElectiveGroup adds a group with its options in one transaction.
func (s *SubjectService) CreateElectiveGroup(ctx context.Context, req ElectiveGroupRequest) (*models.ElectiveGroup, []models.ElectiveOptionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid elective group payload")
	}

	if _, err := s.courses.FindCourseByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	seen := make(map[string]bool, len(req.Options))
	options := make([]models.ElectiveOption, 0, len(req.Options))
	for _, opt := range req.Options {
		if seen[opt.SubjectID] {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "duplicate subject in options")
		}
		seen[opt.SubjectID] = true
		subject, err := s.Get(ctx, opt.SubjectID)
		if err != nil {
			return nil, nil, err
		}
		if subject.CourseID != req.CourseID {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "option subject belongs to another course")
		}
		options = append(options, models.ElectiveOption{SubjectID: opt.SubjectID, Capacity: opt.Capacity})
	}

	now := time.Now().UTC()
	group := &models.ElectiveGroup{
		CourseID:  req.CourseID,
		Name:      strings.TrimSpace(req.Name),
		Semester:  req.Semester,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateElectiveGroup(ctx, group, options); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create elective group")
	}

	details, err := s.repo.ListElectiveOptions(ctx, group.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list elective options")
	}
	return group, details, nil
}

// ListElectiveGroups returns groups for a course, optionally by semester.
func (s *SubjectService) ListElectiveGroups(ctx context.Context, courseID string, semester *int) ([]models.ElectiveGroup, error) {
	groups, err := s.repo.ListElectiveGroups(ctx, courseID, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list elective groups")
	}
	return groups, nil
}

// GetElectiveGroup returns a group with its options and current demand.
func (s *SubjectService) GetElectiveGroup(ctx context.Context, id string) (*models.ElectiveGroup, []models.ElectiveOptionDetail, error) {
	group, err := s.repo.FindElectiveGroup(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "elective group not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load elective group")
	}
	options, err := s.repo.ListElectiveOptions(ctx, id)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list elective options")
	}
	return group, options, nil
}

// ChooseElective records or replaces a student's choice within a group. The
// previous choice is released and the new option's capacity is enforced in
// the same transaction, so a full option is never oversubscribed.
func (s *SubjectService) ChooseElective(ctx context.Context, studentID, groupID, optionID string) (*models.ElectiveChoice, error) {
	group, err := s.repo.FindElectiveGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "elective group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load elective group")
	}

	option, err := s.repo.FindElectiveOption(ctx, optionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "elective option not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load elective option")
	}
	if option.GroupID != groupID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "option does not belong to this group")
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
	batch, err := s.courses.FindBatchByID(ctx, *student.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if batch.CourseID != group.CourseID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "elective group belongs to another course")
	}

	choice := &models.ElectiveChoice{
		GroupID:   groupID,
		OptionID:  optionID,
		StudentID: studentID,
	}
	if err := s.repo.ReplaceElectiveChoice(ctx, choice, option.Capacity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "elective option is full")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store elective choice")
	}
	s.logger.Info("elective chosen",
		zap.String("student_id", studentID),
		zap.String("group_id", groupID),
		zap.String("option_id", optionID))
	return choice, nil
}

// GetElectiveChoice returns the student's current choice in a group.
func (s *SubjectService) GetElectiveChoice(ctx context.Context, groupID, studentID string) (*models.ElectiveChoice, error) {
	choice, err := s.repo.FindElectiveChoice(ctx, groupID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no elective chosen")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load elective choice")
	}
	return choice, nil
}
