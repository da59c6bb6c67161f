package models

import "time"

// AttendanceRecord is a single student's row for one held session.
// A session is "held" once any record exists for its (subject, batch,
// date, type) tuple.
type AttendanceRecord struct {
	ID        string      `db:"id" json:"id"`
	StudentID string      `db:"student_id" json:"student_id"`
	SubjectID string      `db:"subject_id" json:"subject_id"`
	BatchID   string      `db:"batch_id" json:"batch_id"`
	Date      time.Time   `db:"date" json:"date"`
	Type      SessionType `db:"type" json:"type"`
	Present   bool        `db:"present" json:"present"`
	MarkedBy  string      `db:"marked_by" json:"marked_by"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// AttendanceRecordDetail extends a record with student metadata for reports.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentName  string `db:"student_name" json:"student_name"`
	EnrollmentNo string `db:"enrollment_no" json:"enrollment_no"`
}

// SubjectAttendanceStats is the per-student projection over a subject's
// held sessions. Computed on read, never persisted. Labs weigh double in
// the overall percentage.
type SubjectAttendanceStats struct {
	StudentID          string          `json:"student_id"`
	SubjectID          string          `json:"subject_id"`
	TotalLecturesTaken int             `json:"total_lectures_taken"`
	LecturesAttended   int             `json:"lectures_attended"`
	TotalLabsTaken     int             `json:"total_labs_taken"`
	LabsAttended       int             `json:"labs_attended"`
	LecturePercentage  float64         `json:"lecture_percentage"`
	LabPercentage      float64         `json:"lab_percentage"`
	OverallPercentage  float64         `json:"overall_percentage"`
	AttendanceDates    AttendanceDates `json:"attendance_dates"`
}

// AttendanceDates lists the distinct held dates per session type.
type AttendanceDates struct {
	Lectures []time.Time `json:"lectures"`
	Labs     []time.Time `json:"labs"`
}

// SessionReportRow summarises one student's row within a held session.
type SessionReportRow struct {
	StudentID    string  `db:"student_id" json:"student_id"`
	StudentName  string  `db:"student_name" json:"student_name"`
	EnrollmentNo string  `db:"enrollment_no" json:"enrollment_no"`
	Present      bool    `db:"present" json:"present"`
	MarkedBy     *string `db:"marked_by" json:"marked_by,omitempty"`
}
