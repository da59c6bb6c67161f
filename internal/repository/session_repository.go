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

// SessionRepository persists session plans and their generated calendars.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindPlan returns the plan for a subject-batch pairing.
func (r *SessionRepository) FindPlan(ctx context.Context, subjectID, batchID string) (*models.SessionPlan, error) {
	query := `SELECT id, subject_id, batch_id, start_date, end_date, lecture_days, lab_days, has_labs, created_at, updated_at
FROM session_plans WHERE subject_id = $1 AND batch_id = $2 LIMIT 1`
	var plan models.SessionPlan
	if err := r.db.GetContext(ctx, &plan, query, subjectID, batchID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session plan: %w", err)
	}
	return &plan, nil
}

// ReplacePlan upserts a plan and swaps its generated session list in one
// transaction. Editing a plan therefore always regenerates the calendar.
func (r *SessionRepository) ReplacePlan(ctx context.Context, plan *models.SessionPlan, sessions []models.PlannedSession) error {
	now := time.Now().UTC()
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace plan: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	query := `INSERT INTO session_plans (id, subject_id, batch_id, start_date, end_date, lecture_days, lab_days, has_labs, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (subject_id, batch_id)
DO UPDATE SET start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
    lecture_days = EXCLUDED.lecture_days, lab_days = EXCLUDED.lab_days,
    has_labs = EXCLUDED.has_labs, updated_at = EXCLUDED.updated_at
RETURNING id`
	if err := tx.QueryRowxContext(ctx, query,
		plan.ID, plan.SubjectID, plan.BatchID, plan.StartDate, plan.EndDate,
		plan.LectureDays, plan.LabDays, plan.HasLabs, plan.CreatedAt, plan.UpdatedAt).Scan(&plan.ID); err != nil {
		return fmt.Errorf("upsert session plan: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM planned_sessions WHERE plan_id = $1`, plan.ID); err != nil {
		return fmt.Errorf("clear planned sessions: %w", err)
	}

	for i := range sessions {
		session := &sessions[i]
		if session.ID == "" {
			session.ID = uuid.NewString()
		}
		session.PlanID = plan.ID
		session.CreatedAt = now
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO planned_sessions (id, plan_id, date, type, created_at) VALUES ($1, $2, $3, $4, $5)`,
			session.ID, session.PlanID, session.Date, session.Type, session.CreatedAt); err != nil {
			return fmt.Errorf("insert planned session: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace plan: %w", err)
	}
	committed = true
	return nil
}

// ListSessions returns the stored calendar for a plan in ascending order.
func (r *SessionRepository) ListSessions(ctx context.Context, planID string) ([]models.PlannedSession, error) {
	query := `SELECT id, plan_id, date, type, created_at FROM planned_sessions
WHERE plan_id = $1
ORDER BY date, CASE type WHEN 'LECTURE' THEN 0 ELSE 1 END`
	var sessions []models.PlannedSession
	if err := r.db.SelectContext(ctx, &sessions, query, planID); err != nil {
		return nil, fmt.Errorf("list planned sessions: %w", err)
	}
	return sessions, nil
}
