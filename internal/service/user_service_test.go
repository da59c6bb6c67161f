package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academia-portal-api/internal/models"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
)

func TestUserCreateStudentWithProfile(t *testing.T) {
	svc, repo := newUserServiceFixture()

	detail, err := svc.Create(context.Background(), "admin-1", CreateUserRequest{
		Email:           "New.Student@Example.com",
		Password:        "secret123",
		FullName:        "New Student",
		Role:            "student",
		EnrollmentNo:    "EN2024001",
		BatchID:         "batch-1",
		CurrentSemester: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "new.student@example.com", detail.Email)
	assert.Equal(t, models.RoleStudent, detail.Role)
	require.NotNil(t, repo.lastStudent)
	assert.Equal(t, "EN2024001", repo.lastStudent.EnrollmentNo)
	require.NotNil(t, repo.lastStudent.BatchID)
	assert.Equal(t, "batch-1", *repo.lastStudent.BatchID)
}

func TestUserCreateStudentRequiresEnrollmentNo(t *testing.T) {
	svc, _ := newUserServiceFixture()

	_, err := svc.Create(context.Background(), "admin-1", CreateUserRequest{
		Email:    "student@example.com",
		Password: "secret123",
		FullName: "No Enrollment",
		Role:     "STUDENT",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserCreateStaffRequiresStaffNo(t *testing.T) {
	svc, _ := newUserServiceFixture()

	_, err := svc.Create(context.Background(), "admin-1", CreateUserRequest{
		Email:    "staff@example.com",
		Password: "secret123",
		FullName: "No Staff No",
		Role:     "STAFF",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserCreateRejectsUnknownRole(t *testing.T) {
	svc, _ := newUserServiceFixture()

	_, err := svc.Create(context.Background(), "admin-1", CreateUserRequest{
		Email:    "someone@example.com",
		Password: "secret123",
		FullName: "Someone",
		Role:     "WIZARD",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserCreateRejectsDuplicateEmail(t *testing.T) {
	svc, repo := newUserServiceFixture()
	repo.emailExists = true

	_, err := svc.Create(context.Background(), "admin-1", CreateUserRequest{
		Email:    "taken@example.com",
		Password: "secret123",
		FullName: "Taken",
		Role:     "PO",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserCreateStudentUnknownBatch(t *testing.T) {
	svc, _ := newUserServiceFixture()

	_, err := svc.Create(context.Background(), "admin-1", CreateUserRequest{
		Email:        "student@example.com",
		Password:     "secret123",
		FullName:     "Lost Student",
		Role:         "STUDENT",
		EnrollmentNo: "EN2024002",
		BatchID:      "batch-missing",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserUpdateEmailConflict(t *testing.T) {
	svc, repo := newUserServiceFixture()
	repo.emailExists = true
	other := "other@example.com"

	_, err := svc.Update(context.Background(), "admin-1", "user-1", UpdateUserRequest{Email: &other})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserUpdateDeactivationRevokesSessions(t *testing.T) {
	svc, repo := newUserServiceFixture()
	inactive := false

	detail, err := svc.Update(context.Background(), "admin-1", "user-1", UpdateUserRequest{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, detail.Active)
	assert.True(t, repo.tokensRevoked)
}

func TestUserDeactivateRejectsSelf(t *testing.T) {
	svc, _ := newUserServiceFixture()

	err := svc.Deactivate(context.Background(), "user-1", "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserDeactivateRevokesSessionsAndAudits(t *testing.T) {
	svc, repo := newUserServiceFixture()

	err := svc.Deactivate(context.Background(), "admin-1", "user-1")
	require.NoError(t, err)
	assert.True(t, repo.tokensRevoked)
	assert.False(t, repo.users["user-1"].Active)
	require.NotEmpty(t, repo.auditLogs)
	assert.Equal(t, models.AuditActionUserDelete, repo.auditLogs[len(repo.auditLogs)-1].Action)
}

func TestUserGetUnknownIsNotFound(t *testing.T) {
	svc, _ := newUserServiceFixture()

	_, err := svc.Get(context.Background(), "user-missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

// --- Fixtures ---

type userRepoStub struct {
	users         map[string]*models.User
	lastStudent   *models.StudentProfile
	lastStaff     *models.StaffProfile
	auditLogs     []*models.AuditLog
	emailExists   bool
	tokensRevoked bool
	nextID        int
}

func newUserServiceFixture() (*UserService, *userRepoStub) {
	repo := &userRepoStub{
		users: map[string]*models.User{
			"user-1": {ID: "user-1", Email: "user@example.com", FullName: "Existing User", Role: models.RoleStaff, Active: true},
		},
	}
	return NewUserService(repo, repo, nil, nil), repo
}

func (s *userRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (s *userRepoStub) FindDetailByID(ctx context.Context, id string) (*models.UserDetail, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.UserDetail{User: *user}, nil
}

func (s *userRepoStub) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	return s.emailExists, nil
}

func (s *userRepoStub) List(ctx context.Context, filter models.UserFilter) ([]models.UserDetail, int, error) {
	out := make([]models.UserDetail, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, models.UserDetail{User: *user})
	}
	return out, len(out), nil
}

func (s *userRepoStub) Create(ctx context.Context, user *models.User, student *models.StudentProfile, staff *models.StaffProfile) error {
	s.nextID++
	user.ID = fmt.Sprintf("user-%d", s.nextID+1)
	s.users[user.ID] = user
	s.lastStudent = student
	s.lastStaff = staff
	return nil
}

func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	if _, ok := s.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	s.users[user.ID] = user
	return nil
}

func (s *userRepoStub) Deactivate(ctx context.Context, id string) error {
	user, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.Active = false
	return nil
}

func (s *userRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	s.tokensRevoked = true
	return nil
}

func (s *userRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.auditLogs = append(s.auditLogs, log)
	return nil
}

func (s *userRepoStub) FindBatchByID(ctx context.Context, id string) (*models.BatchDetail, error) {
	if id != "batch-1" {
		return nil, sql.ErrNoRows
	}
	return &models.BatchDetail{Batch: models.Batch{ID: id, CourseID: "course-1", Name: "2023A", Active: true}}, nil
}
