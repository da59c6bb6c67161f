package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academia-portal-api/internal/models"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
)

func TestLeaveSubmitCreatesPendingRequest(t *testing.T) {
	svc, repo := newLeaveServiceFixture()

	leave, err := svc.Submit(context.Background(), studentClaims(), SubmitLeaveRequest{
		FromDate: "2024-04-01",
		ToDate:   "2024-04-03",
		Reason:   "family event",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusPending, leave.Status)
	assert.Equal(t, "student-1", leave.RequesterID)
	assert.Len(t, repo.items, 1)
}

func TestLeaveSubmitRejectsInvertedRange(t *testing.T) {
	svc, _ := newLeaveServiceFixture()

	_, err := svc.Submit(context.Background(), studentClaims(), SubmitLeaveRequest{
		FromDate: "2024-04-05",
		ToDate:   "2024-04-01",
		Reason:   "family event",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLeaveSubmitRejectsAdmin(t *testing.T) {
	svc, _ := newLeaveServiceFixture()

	_, err := svc.Submit(context.Background(), adminLeaveClaims(), SubmitLeaveRequest{
		FromDate: "2024-04-01",
		ToDate:   "2024-04-03",
		Reason:   "family event",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLeaveReviewApprovesOnce(t *testing.T) {
	svc, _ := newLeaveServiceFixture()

	leave, err := svc.Submit(context.Background(), studentClaims(), SubmitLeaveRequest{
		FromDate: "2024-04-01",
		ToDate:   "2024-04-03",
		Reason:   "family event",
	})
	require.NoError(t, err)

	reviewer := &models.JWTClaims{UserID: "staff-9", Role: models.RoleStaff}
	note := "ok"
	reviewed, err := svc.Review(context.Background(), reviewer, leave.ID, ReviewLeaveRequest{Status: "APPROVED", Note: &note})
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewerID)
	assert.Equal(t, "staff-9", *reviewed.ReviewerID)

	// A second decision conflicts.
	_, err = svc.Review(context.Background(), reviewer, leave.ID, ReviewLeaveRequest{Status: "REJECTED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrReviewFinalized.Code, appErrors.FromError(err).Code)
}

func TestLeaveReviewRejectsSelfReview(t *testing.T) {
	svc, _ := newLeaveServiceFixture()

	staff := &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff}
	leave, err := svc.Submit(context.Background(), staff, SubmitLeaveRequest{
		FromDate: "2024-04-01",
		ToDate:   "2024-04-03",
		Reason:   "conference",
	})
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), staff, leave.ID, ReviewLeaveRequest{Status: "APPROVED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLeaveReviewStaffCannotReviewStaff(t *testing.T) {
	svc, _ := newLeaveServiceFixture()

	requester := &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff}
	leave, err := svc.Submit(context.Background(), requester, SubmitLeaveRequest{
		FromDate: "2024-04-01",
		ToDate:   "2024-04-03",
		Reason:   "conference",
	})
	require.NoError(t, err)

	other := &models.JWTClaims{UserID: "staff-2", Role: models.RoleStaff}
	_, err = svc.Review(context.Background(), other, leave.ID, ReviewLeaveRequest{Status: "APPROVED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// An admin may settle it.
	reviewed, err := svc.Review(context.Background(), adminLeaveClaims(), leave.ID, ReviewLeaveRequest{Status: "REJECTED"})
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusRejected, reviewed.Status)
}

func TestLeaveReviewRejectsPendingStatus(t *testing.T) {
	svc, _ := newLeaveServiceFixture()

	leave, err := svc.Submit(context.Background(), studentClaims(), SubmitLeaveRequest{
		FromDate: "2024-04-01",
		ToDate:   "2024-04-03",
		Reason:   "family event",
	})
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), adminLeaveClaims(), leave.ID, ReviewLeaveRequest{Status: "PENDING"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLeaveGetScoping(t *testing.T) {
	svc, _ := newLeaveServiceFixture()

	leave, err := svc.Submit(context.Background(), studentClaims(), SubmitLeaveRequest{
		FromDate: "2024-04-01",
		ToDate:   "2024-04-03",
		Reason:   "family event",
	})
	require.NoError(t, err)

	otherStudent := &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent}
	_, err = svc.Get(context.Background(), otherStudent, leave.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	staff := &models.JWTClaims{UserID: "staff-9", Role: models.RoleStaff}
	_, err = svc.Get(context.Background(), staff, leave.ID)
	assert.NoError(t, err, "staff see student requests")
}

func TestLeaveListForcesOwnScopeForStudents(t *testing.T) {
	svc, repo := newLeaveServiceFixture()

	_, err := svc.Submit(context.Background(), studentClaims(), SubmitLeaveRequest{
		FromDate: "2024-04-01", ToDate: "2024-04-03", Reason: "family event",
	})
	require.NoError(t, err)

	_, _, err = svc.List(context.Background(), &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent}, models.LeaveFilter{RequesterID: "student-1"})
	require.NoError(t, err)
	assert.Equal(t, "student-2", repo.lastFilter.RequesterID, "students cannot widen the filter")
}

// --- Fixtures ---

type leaveRepoStub struct {
	items      map[string]*models.LeaveRequestDetail
	roles      map[string]models.UserRole
	lastFilter models.LeaveFilter
}

func newLeaveServiceFixture() (*LeaveService, *leaveRepoStub) {
	repo := &leaveRepoStub{
		items: make(map[string]*models.LeaveRequestDetail),
		roles: map[string]models.UserRole{
			"student-1": models.RoleStudent,
			"student-2": models.RoleStudent,
			"staff-1":   models.RoleStaff,
			"staff-2":   models.RoleStaff,
		},
	}
	svc := NewLeaveService(repo, repo, nil, nil)
	return svc, repo
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
}

func adminLeaveClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func (r *leaveRepoStub) Create(ctx context.Context, leave *models.LeaveRequest) error {
	leave.ID = fmt.Sprintf("leave-%d", len(r.items)+1)
	detail := &models.LeaveRequestDetail{LeaveRequest: *leave}
	detail.RequesterRole = r.roles[leave.RequesterID]
	r.items[leave.ID] = detail
	return nil
}

func (r *leaveRepoStub) FindByID(ctx context.Context, id string) (*models.LeaveRequestDetail, error) {
	detail, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *detail
	return &clone, nil
}

func (r *leaveRepoStub) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequestDetail, int, error) {
	r.lastFilter = filter
	result := make([]models.LeaveRequestDetail, 0, len(r.items))
	for _, item := range r.items {
		result = append(result, *item)
	}
	return result, len(result), nil
}

func (r *leaveRepoStub) Review(ctx context.Context, id string, status models.LeaveStatus, reviewerID string, note *string, reviewedAt time.Time) error {
	detail, ok := r.items[id]
	if !ok || detail.Status != models.LeaveStatusPending {
		return sql.ErrNoRows
	}
	detail.Status = status
	detail.ReviewerID = &reviewerID
	detail.ReviewerNote = note
	detail.ReviewedAt = &reviewedAt
	return nil
}

func (r *leaveRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}
