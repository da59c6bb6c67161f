package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academia-portal-api/internal/models"
)

// LeaveRepository handles persistence for leave requests.
type LeaveRepository struct {
	db *sqlx.DB
}

// NewLeaveRepository constructs the repository.
func NewLeaveRepository(db *sqlx.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

// Create inserts a pending leave request.
func (r *LeaveRepository) Create(ctx context.Context, leave *models.LeaveRequest) error {
	now := time.Now().UTC()
	if leave.ID == "" {
		leave.ID = uuid.NewString()
	}
	leave.CreatedAt = now
	leave.UpdatedAt = now
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO leave_requests (id, requester_id, from_date, to_date, reason, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		leave.ID, leave.RequesterID, leave.FromDate, leave.ToDate, leave.Reason, leave.Status, leave.CreatedAt, leave.UpdatedAt); err != nil {
		return fmt.Errorf("create leave request: %w", err)
	}
	return nil
}

// FindByID loads one request with requester metadata.
func (r *LeaveRepository) FindByID(ctx context.Context, id string) (*models.LeaveRequestDetail, error) {
	query := `SELECT l.id, l.requester_id, l.from_date, l.to_date, l.reason, l.status,
        l.reviewer_id, l.reviewer_note, l.reviewed_at, l.created_at, l.updated_at,
        u.full_name AS requester_name, u.role AS requester_role
        FROM leave_requests l JOIN users u ON u.id = l.requester_id
        WHERE l.id = $1 LIMIT 1`
	var leave models.LeaveRequestDetail
	if err := r.db.GetContext(ctx, &leave, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find leave request: %w", err)
	}
	return &leave, nil
}

// List returns leave requests matching the filter.
func (r *LeaveRepository) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequestDetail, int, error) {
	base := `FROM leave_requests l JOIN users u ON u.id = l.requester_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.RequesterID != "" {
		where = append(where, fmt.Sprintf("l.requester_id = $%d", len(args)+1))
		args = append(args, filter.RequesterID)
	}
	if filter.RequesterRole != nil {
		where = append(where, fmt.Sprintf("u.role = $%d", len(args)+1))
		args = append(args, *filter.RequesterRole)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("l.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{"from_date": "l.from_date", "status": "l.status", "created_at": "l.created_at"}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "l.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT l.id, l.requester_id, l.from_date, l.to_date, l.reason, l.status,
        l.reviewer_id, l.reviewer_note, l.reviewed_at, l.created_at, l.updated_at,
        u.full_name AS requester_name, u.role AS requester_role
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		base, whereClause, sortColumn, order, size, (page-1)*size)
	var rows []models.LeaveRequestDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list leave requests: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count leave requests: %w", err)
	}
	return rows, total, nil
}

// Review finalises a pending request. Returns sql.ErrNoRows when the request
// is missing or already reviewed — the WHERE clause keeps the state change
// one-shot.
func (r *LeaveRepository) Review(ctx context.Context, id string, status models.LeaveStatus, reviewerID string, note *string, reviewedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE leave_requests SET status = $1, reviewer_id = $2, reviewer_note = $3, reviewed_at = $4, updated_at = $5
WHERE id = $6 AND status = $7`,
		status, reviewerID, note, reviewedAt, time.Now().UTC(), id, models.LeaveStatusPending)
	if err != nil {
		return fmt.Errorf("review leave request: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
