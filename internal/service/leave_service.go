package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academia-portal-api/internal/models"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
)

type leaveRepository interface {
	Create(ctx context.Context, leave *models.LeaveRequest) error
	FindByID(ctx context.Context, id string) (*models.LeaveRequestDetail, error)
	List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequestDetail, int, error)
	Review(ctx context.Context, id string, status models.LeaveStatus, reviewerID string, note *string, reviewedAt time.Time) error
}

type leaveAuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// LeaveService handles absence requests and their review workflow. Staff
// review student requests; admins review staff requests.
type LeaveService struct {
	repo      leaveRepository
	audit     leaveAuditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLeaveService constructs a LeaveService.
func NewLeaveService(repo leaveRepository, audit leaveAuditWriter, validate *validator.Validate, logger *zap.Logger) *LeaveService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaveService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// SubmitLeaveRequest is the requester payload.
type SubmitLeaveRequest struct {
	FromDate string `json:"from_date" validate:"required"`
	ToDate   string `json:"to_date" validate:"required"`
	Reason   string `json:"reason" validate:"required,min=4"`
}

// Submit files a new pending request for the acting user.
func (s *LeaveService) Submit(ctx context.Context, actor *models.JWTClaims, req SubmitLeaveRequest) (*models.LeaveRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}
	if actor.Role != models.RoleStudent && actor.Role != models.RoleStaff {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students and staff may request leave")
	}

	fromDate, err := parsePlanDate(req.FromDate)
	if err != nil {
		return nil, err
	}
	toDate, err := parsePlanDate(req.ToDate)
	if err != nil {
		return nil, err
	}
	if toDate.Before(fromDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to_date must not be before from_date")
	}

	now := time.Now().UTC()
	leave := &models.LeaveRequest{
		RequesterID: actor.UserID,
		FromDate:    fromDate,
		ToDate:      toDate,
		Reason:      req.Reason,
		Status:      models.LeaveStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, leave); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create leave request")
	}
	s.logger.Info("leave request submitted", zap.String("leave_id", leave.ID), zap.String("requester_id", actor.UserID))
	return s.Get(ctx, actor, leave.ID)
}

// Get returns one request. Requesters see their own; reviewers see requests
// in their review scope.
func (s *LeaveService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.LeaveRequestDetail, error) {
	leave, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}
	if !s.canSee(actor, leave) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "leave request is outside your scope")
	}
	return leave, nil
}

// List returns requests visible to the actor. Students and placement
// officers only ever see their own; staff additionally see pending student
// requests; admins see everything.
func (s *LeaveService) List(ctx context.Context, actor *models.JWTClaims, filter models.LeaveFilter) ([]models.LeaveRequestDetail, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleStaff:
		if filter.RequesterID != actor.UserID {
			studentRole := models.RoleStudent
			filter.RequesterRole = &studentRole
			filter.RequesterID = ""
		}
	default:
		filter.RequesterID = actor.UserID
		filter.RequesterRole = nil
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	leaves, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leave requests")
	}
	return leaves, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// ReviewLeaveRequest carries a reviewer decision.
type ReviewLeaveRequest struct {
	Status string  `json:"status" validate:"required"`
	Note   *string `json:"note"`
}

// Review settles a pending request exactly once. A second decision, or a
// decision on an already reviewed request, conflicts.
func (s *LeaveService) Review(ctx context.Context, actor *models.JWTClaims, id string, req ReviewLeaveRequest) (*models.LeaveRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	status := models.LeaveStatus(req.Status)
	if status != models.LeaveStatusApproved && status != models.LeaveStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be APPROVED or REJECTED")
	}

	leave, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}

	if leave.RequesterID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot review own leave request")
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleStaff:
		if leave.RequesterRole != models.RoleStudent {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "staff may only review student requests")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not review leave requests")
	}

	if leave.Status != models.LeaveStatusPending {
		return nil, appErrors.Clone(appErrors.ErrReviewFinalized, "leave request already reviewed")
	}

	if err := s.repo.Review(ctx, id, status, actor.UserID, req.Note, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrReviewFinalized, "leave request already reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review leave request")
	}

	payload, _ := json.Marshal(map[string]interface{}{"status": status, "note": req.Note})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionLeaveReview,
		Resource:   "leave_request",
		ResourceID: &id,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record leave review audit log", zap.Error(err))
	}

	s.logger.Info("leave request reviewed",
		zap.String("leave_id", id),
		zap.String("reviewer_id", actor.UserID),
		zap.String("status", string(status)))
	return s.repo.FindByID(ctx, id)
}

func (s *LeaveService) canSee(actor *models.JWTClaims, leave *models.LeaveRequestDetail) bool {
	if actor.Role == models.RoleAdmin {
		return true
	}
	if leave.RequesterID == actor.UserID {
		return true
	}
	return actor.Role == models.RoleStaff && leave.RequesterRole == models.RoleStudent
}
