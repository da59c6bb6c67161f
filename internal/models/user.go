package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin            UserRole = "ADMIN"
	RoleStaff            UserRole = "STAFF"
	RoleStudent          UserRole = "STUDENT"
	RolePlacementOfficer UserRole = "PO"
)

// Valid reports whether the role is one of the supported values.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleStudent, RolePlacementOfficer:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentProfile carries enrollment details for users with the STUDENT role.
type StudentProfile struct {
	UserID          string    `db:"user_id" json:"user_id"`
	EnrollmentNo    string    `db:"enrollment_no" json:"enrollment_no"`
	BatchID         *string   `db:"batch_id" json:"batch_id,omitempty"`
	CurrentSemester int       `db:"current_semester" json:"current_semester"`
	Phone           string    `db:"phone" json:"phone"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// StaffProfile carries employment details for users with the STAFF role.
type StaffProfile struct {
	UserID      string    `db:"user_id" json:"user_id"`
	StaffNo     string    `db:"staff_no" json:"staff_no"`
	Designation string    `db:"designation" json:"designation"`
	Phone       string    `db:"phone" json:"phone"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// UserDetail joins a user with its role-specific profile when present.
type UserDetail struct {
	User
	EnrollmentNo *string `db:"enrollment_no" json:"enrollment_no,omitempty"`
	BatchID      *string `db:"batch_id" json:"batch_id,omitempty"`
	BatchName    *string `db:"batch_name" json:"batch_name,omitempty"`
	StaffNo      *string `db:"staff_no" json:"staff_no,omitempty"`
	Designation  *string `db:"designation" json:"designation,omitempty"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	BatchID   string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
