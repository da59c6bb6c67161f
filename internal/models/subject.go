package models

import "time"

// Subject represents one taught unit within a course semester.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Semester  int       `db:"semester" json:"semester"`
	HasLabs   bool      `db:"has_labs" json:"has_labs"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectDetail joins a subject with its course metadata.
type SubjectDetail struct {
	Subject
	CourseCode string `db:"course_code" json:"course_code"`
	CourseName string `db:"course_name" json:"course_name"`
}

// SubjectFilter captures listing criteria for subjects.
type SubjectFilter struct {
	CourseID  string
	Semester  *int
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StaffAssignment maps a staff member to the subject they teach for a batch.
type StaffAssignment struct {
	ID        string    `db:"id" json:"id"`
	StaffID   string    `db:"staff_id" json:"staff_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ElectiveGroup is a set of mutually-exclusive subject choices for a semester.
type ElectiveGroup struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Name      string    `db:"name" json:"name"`
	Semester  int       `db:"semester" json:"semester"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ElectiveOption attaches a subject to an elective group.
type ElectiveOption struct {
	ID        string    `db:"id" json:"id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	Capacity  int       `db:"capacity" json:"capacity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ElectiveOptionDetail joins an option with subject metadata and demand.
type ElectiveOptionDetail struct {
	ElectiveOption
	SubjectCode string `db:"subject_code" json:"subject_code"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	ChosenCount int    `db:"chosen_count" json:"chosen_count"`
}

// ElectiveChoice records a student's selection within a group.
// At most one choice may exist per (student, group).
type ElectiveChoice struct {
	ID        string    `db:"id" json:"id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	OptionID  string    `db:"option_id" json:"option_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
