package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academia-portal-api/internal/models"
)

// AttendanceRepository handles persistence for per-session attendance rows.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// SessionExists reports whether any row exists for the session tuple.
func (r *AttendanceRepository) SessionExists(ctx context.Context, subjectID, batchID string, date time.Time, sessionType models.SessionType) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM attendance_records WHERE subject_id = $1 AND batch_id = $2 AND date = $3 AND type = $4)`
	if err := r.db.GetContext(ctx, &exists, query, subjectID, batchID, date, sessionType); err != nil {
		return false, fmt.Errorf("check session exists: %w", err)
	}
	return exists, nil
}

// BulkInsertSession writes one row per student atomically. The unique index
// on (student_id, subject_id, date, type) is the real duplicate guard; any
// conflict aborts the whole transaction.
func (r *AttendanceRepository) BulkInsertSession(ctx context.Context, records []models.AttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk attendance: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	query := `INSERT INTO attendance_records (id, student_id, subject_id, batch_id, date, type, present, marked_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (student_id, subject_id, date, type) DO NOTHING RETURNING id`
	now := time.Now().UTC()
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.CreatedAt = now
		rec.UpdatedAt = now
		var insertedID string
		if err := tx.QueryRowxContext(ctx, query,
			rec.ID, rec.StudentID, rec.SubjectID, rec.BatchID, rec.Date, rec.Type, rec.Present, rec.MarkedBy, rec.CreatedAt, rec.UpdatedAt).Scan(&insertedID); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("bulk insert attendance: duplicate for student %s on %s: %w", rec.StudentID, rec.Date.Format("2006-01-02"), sql.ErrNoRows)
			}
			return fmt.Errorf("bulk insert attendance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk attendance: %w", err)
	}
	committed = true
	return nil
}

// FindRecord loads a single attendance row.
func (r *AttendanceRepository) FindRecord(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := `SELECT id, student_id, subject_id, batch_id, date, type, present, marked_by, created_at, updated_at
FROM attendance_records WHERE id = $1 LIMIT 1`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance record: %w", err)
	}
	return &record, nil
}

// UpdatePresence flips the present flag on one row.
func (r *AttendanceRepository) UpdatePresence(ctx context.Context, id string, present bool, markedBy string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE attendance_records SET present = $1, marked_by = $2, updated_at = $3 WHERE id = $4`,
		present, markedBy, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListStudentRecords returns one student's rows for a subject.
func (r *AttendanceRepository) ListStudentRecords(ctx context.Context, studentID, subjectID string) ([]models.AttendanceRecord, error) {
	query := `SELECT id, student_id, subject_id, batch_id, date, type, present, marked_by, created_at, updated_at
FROM attendance_records
WHERE student_id = $1 AND subject_id = $2
ORDER BY date`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID, subjectID); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	return records, nil
}

// DistinctHeldDates returns the distinct dates any attendance row exists for
// the subject/batch/type, across all students. This is the canonical source
// for "sessions taken" denominators.
func (r *AttendanceRepository) DistinctHeldDates(ctx context.Context, subjectID, batchID string, sessionType models.SessionType) ([]time.Time, error) {
	query := `SELECT DISTINCT date FROM attendance_records
WHERE subject_id = $1 AND batch_id = $2 AND type = $3
ORDER BY date`
	var dates []time.Time
	if err := r.db.SelectContext(ctx, &dates, query, subjectID, batchID, sessionType); err != nil {
		return nil, fmt.Errorf("distinct held dates: %w", err)
	}
	return dates, nil
}

// SessionReport lists the per-student rows of one held session.
func (r *AttendanceRepository) SessionReport(ctx context.Context, subjectID, batchID string, date time.Time, sessionType models.SessionType) ([]models.SessionReportRow, error) {
	query := `SELECT ar.student_id, u.full_name AS student_name, sp.enrollment_no, ar.present, ar.marked_by
FROM attendance_records ar
JOIN users u ON u.id = ar.student_id
JOIN student_profiles sp ON sp.user_id = ar.student_id
WHERE ar.subject_id = $1 AND ar.batch_id = $2 AND ar.date = $3 AND ar.type = $4
ORDER BY sp.enrollment_no`
	var rows []models.SessionReportRow
	if err := r.db.SelectContext(ctx, &rows, query, subjectID, batchID, date, sessionType); err != nil {
		return nil, fmt.Errorf("session report: %w", err)
	}
	return rows, nil
}

// BatchRegister returns every row for a subject/batch ordered for export.
func (r *AttendanceRepository) BatchRegister(ctx context.Context, subjectID, batchID string) ([]models.AttendanceRecordDetail, error) {
	query := `SELECT ar.id, ar.student_id, ar.subject_id, ar.batch_id, ar.date, ar.type, ar.present, ar.marked_by, ar.created_at, ar.updated_at,
        u.full_name AS student_name, sp.enrollment_no
        FROM attendance_records ar
        JOIN users u ON u.id = ar.student_id
        JOIN student_profiles sp ON sp.user_id = ar.student_id
        WHERE ar.subject_id = $1 AND ar.batch_id = $2
        ORDER BY sp.enrollment_no, ar.date`
	var rows []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &rows, query, subjectID, batchID); err != nil {
		return nil, fmt.Errorf("batch register: %w", err)
	}
	return rows, nil
}
