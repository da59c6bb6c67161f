package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academia-portal-api/internal/models"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
)

type sessionPlanRepository interface {
	FindPlan(ctx context.Context, subjectID, batchID string) (*models.SessionPlan, error)
	ReplacePlan(ctx context.Context, plan *models.SessionPlan, sessions []models.PlannedSession) error
	ListSessions(ctx context.Context, planID string) ([]models.PlannedSession, error)
}

type planSubjectReader interface {
	FindByID(ctx context.Context, id string) (*models.SubjectDetail, error)
	IsAssigned(ctx context.Context, staffID, subjectID, batchID string) (bool, error)
}

type planBatchReader interface {
	FindBatchByID(ctx context.Context, id string) (*models.BatchDetail, error)
}

// SessionPlanService manages weekly recurrence plans and derives the concrete
// session calendar from them.
type SessionPlanService struct {
	plans     sessionPlanRepository
	subjects  planSubjectReader
	batches   planBatchReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionPlanService wires the session planner.
func NewSessionPlanService(plans sessionPlanRepository, subjects planSubjectReader, batches planBatchReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SessionPlanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionPlanService{plans: plans, subjects: subjects, batches: batches, metrics: metrics, validator: validate, logger: logger}
}

// UpsertPlanRequest creates or replaces a subject-batch session plan.
type UpsertPlanRequest struct {
	StartDate   string   `json:"start_date" validate:"required"`
	EndDate     string   `json:"end_date" validate:"required"`
	LectureDays []string `json:"lecture_days" validate:"required,min=1"`
	LabDays     []string `json:"lab_days"`
	HasLabs     bool     `json:"has_labs"`
}

// UpsertPlan validates, stores the plan and regenerates its calendar.
// Only staff assigned to the subject-batch pairing may configure it; admins
// bypass the assignment check.
func (s *SessionPlanService) UpsertPlan(ctx context.Context, actor *models.JWTClaims, subjectID, batchID string, req UpsertPlanRequest) (*models.SessionPlan, []models.PlannedSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session plan payload")
	}

	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if _, err := s.batches.FindBatchByID(ctx, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	if actor != nil && actor.Role == models.RoleStaff {
		assigned, err := s.subjects.IsAssigned(ctx, actor.UserID, subjectID, batchID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
		}
		if !assigned {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not assigned to this subject and batch")
		}
	}

	startDate, err := parsePlanDate(req.StartDate)
	if err != nil {
		return nil, nil, err
	}
	endDate, err := parsePlanDate(req.EndDate)
	if err != nil {
		return nil, nil, err
	}
	if endDate.Before(startDate) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}

	lectureDays, err := normalizeWeekdays(req.LectureDays)
	if err != nil {
		return nil, nil, err
	}
	hasLabs := req.HasLabs && subject.HasLabs
	var labDays []string
	if hasLabs {
		labDays, err = normalizeWeekdays(req.LabDays)
		if err != nil {
			return nil, nil, err
		}
		if len(labDays) == 0 {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "lab_days required when has_labs is true")
		}
	}

	plan := &models.SessionPlan{
		SubjectID:   subjectID,
		BatchID:     batchID,
		StartDate:   startDate,
		EndDate:     endDate,
		LectureDays: lectureDays,
		LabDays:     labDays,
		HasLabs:     hasLabs,
	}
	if existing, err := s.plans.FindPlan(ctx, subjectID, batchID); err == nil {
		plan.ID = existing.ID
		plan.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session plan")
	}

	sessions := GenerateSessions(plan)
	if err := s.plans.ReplacePlan(ctx, plan, sessions); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session plan")
	}

	s.metrics.AddSessionsPlanned(len(sessions))
	s.logger.Info("session plan replaced",
		zap.String("subject_id", subjectID),
		zap.String("batch_id", batchID),
		zap.Int("sessions", len(sessions)))
	return plan, sessions, nil
}

// GetCalendar returns the stored session list for a subject-batch pairing.
func (s *SessionPlanService) GetCalendar(ctx context.Context, subjectID, batchID string) (*models.SessionPlan, []models.PlannedSession, error) {
	plan, err := s.plans.FindPlan(ctx, subjectID, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "session plan not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session plan")
	}
	sessions, err := s.plans.ListSessions(ctx, plan.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return plan, sessions, nil
}

// GenerateSessions derives the ordered session calendar from a plan. Every
// calendar date between start and end inclusive is visited in ascending
// order; Saturdays and Sundays never emit sessions even when listed in the
// day sets. A weekday present in both sets emits a lecture entry and then a
// lab entry for the same date. Deterministic and side-effect free.
func GenerateSessions(plan *models.SessionPlan) []models.PlannedSession {
	lectureSet := weekdaySet(plan.LectureDays)
	labSet := weekdaySet(plan.LabDays)

	var sessions []models.PlannedSession
	for date := plan.StartDate; !date.After(plan.EndDate); date = date.AddDate(0, 0, 1) {
		weekday := date.Weekday()
		if weekday == time.Saturday || weekday == time.Sunday {
			continue
		}
		if lectureSet[weekday] {
			sessions = append(sessions, models.PlannedSession{Date: date, Type: models.SessionTypeLecture})
		}
		if plan.HasLabs && labSet[weekday] {
			sessions = append(sessions, models.PlannedSession{Date: date, Type: models.SessionTypeLab})
		}
	}
	return sessions
}

func weekdaySet(names []string) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(names))
	for _, name := range names {
		if day, ok := models.ParseWeekday(name); ok {
			set[day] = true
		}
	}
	return set
}

func normalizeWeekdays(names []string) ([]string, error) {
	seen := make(map[string]bool, len(names))
	result := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.ToUpper(strings.TrimSpace(raw))
		if _, ok := models.ParseWeekday(name); !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown weekday %q", raw))
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, name)
	}
	return result, nil
}

func parsePlanDate(raw string) (time.Time, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", raw))
	}
	return date.UTC(), nil
}
