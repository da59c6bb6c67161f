package models

import "time"

// LeaveStatus represents the review state of a leave request.
type LeaveStatus string

const (
	LeaveStatusPending  LeaveStatus = "PENDING"
	LeaveStatusApproved LeaveStatus = "APPROVED"
	LeaveStatusRejected LeaveStatus = "REJECTED"
)

// Valid reports whether the status is supported.
func (s LeaveStatus) Valid() bool {
	switch s {
	case LeaveStatusPending, LeaveStatusApproved, LeaveStatusRejected:
		return true
	default:
		return false
	}
}

// LeaveRequest represents a student or staff absence request.
type LeaveRequest struct {
	ID           string      `db:"id" json:"id"`
	RequesterID  string      `db:"requester_id" json:"requester_id"`
	FromDate     time.Time   `db:"from_date" json:"from_date"`
	ToDate       time.Time   `db:"to_date" json:"to_date"`
	Reason       string      `db:"reason" json:"reason"`
	Status       LeaveStatus `db:"status" json:"status"`
	ReviewerID   *string     `db:"reviewer_id" json:"reviewer_id,omitempty"`
	ReviewerNote *string     `db:"reviewer_note" json:"reviewer_note,omitempty"`
	ReviewedAt   *time.Time  `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// LeaveRequestDetail extends a request with requester metadata.
type LeaveRequestDetail struct {
	LeaveRequest
	RequesterName string   `db:"requester_name" json:"requester_name"`
	RequesterRole UserRole `db:"requester_role" json:"requester_role"`
}

// LeaveFilter captures listing criteria for leave requests.
type LeaveFilter struct {
	RequesterID   string
	RequesterRole *UserRole
	Status        *LeaveStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
