package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// SessionType distinguishes lecture and lab occurrences of a subject.
type SessionType string

const (
	SessionTypeLecture SessionType = "LECTURE"
	SessionTypeLab     SessionType = "LAB"
)

// Valid reports whether the session type is supported.
func (t SessionType) Valid() bool {
	return t == SessionTypeLecture || t == SessionTypeLab
}

// Weekday names accepted in session plans. Uppercase English names.
var weekdayNames = map[string]time.Weekday{
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
	"SUNDAY":    time.Sunday,
}

// ParseWeekday resolves an uppercase weekday name.
func ParseWeekday(name string) (time.Weekday, bool) {
	day, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(name))]
	return day, ok
}

// WeekdayName returns the uppercase English name for a weekday.
func WeekdayName(day time.Weekday) string {
	return strings.ToUpper(day.String())
}

// SessionPlan defines the weekly recurrence of a subject for one batch.
type SessionPlan struct {
	ID          string         `db:"id" json:"id"`
	SubjectID   string         `db:"subject_id" json:"subject_id"`
	BatchID     string         `db:"batch_id" json:"batch_id"`
	StartDate   time.Time      `db:"start_date" json:"start_date"`
	EndDate     time.Time      `db:"end_date" json:"end_date"`
	LectureDays pq.StringArray `db:"lecture_days" json:"lecture_days"`
	LabDays     pq.StringArray `db:"lab_days" json:"lab_days"`
	HasLabs     bool           `db:"has_labs" json:"has_labs"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// PlannedSession is one scheduled occurrence derived from a plan.
type PlannedSession struct {
	ID        string      `db:"id" json:"id"`
	PlanID    string      `db:"plan_id" json:"plan_id"`
	Date      time.Time   `db:"date" json:"date"`
	Type      SessionType `db:"type" json:"type"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
