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

// SubjectRepository handles persistence for subjects, staff assignments and
// elective groups.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs the repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns subjects matching the filter with course metadata.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error) {
	base := `FROM subjects s JOIN courses c ON c.id = s.course_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.CourseID != "" {
		where = append(where, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Semester != nil {
		where = append(where, fmt.Sprintf("s.semester = $%d", len(args)+1))
		args = append(args, *filter.Semester)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(s.name ILIKE $%d OR s.code ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{"code": "s.code", "name": "s.name", "semester": "s.semester", "created_at": "s.created_at"}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "s.semester"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT s.id, s.course_id, s.code, s.name, s.semester, s.has_labs, s.active, s.created_at, s.updated_at,
        c.code AS course_code, c.name AS course_name
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		base, whereClause, sortColumn, order, size, (page-1)*size)
	var subjects []models.SubjectDetail
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return subjects, total, nil
}

// FindByID loads one subject with course metadata.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	query := `SELECT s.id, s.course_id, s.code, s.name, s.semester, s.has_labs, s.active, s.created_at, s.updated_at,
        c.code AS course_code, c.name AS course_name
        FROM subjects s JOIN courses c ON c.id = s.course_id WHERE s.id = $1 LIMIT 1`
	var subject models.SubjectDetail
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	return &subject, nil
}

// ExistsByCode reports whether another subject of the course uses the code.
func (r *SubjectRepository) ExistsByCode(ctx context.Context, courseID, code string, excludeID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM subjects WHERE course_id = $1 AND code = $2 AND ($3 = '' OR id <> $3))`
	if err := r.db.GetContext(ctx, &exists, query, courseID, code, excludeID); err != nil {
		return false, fmt.Errorf("check subject code: %w", err)
	}
	return exists, nil
}

// Create inserts a subject row.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	now := time.Now().UTC()
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	subject.CreatedAt = now
	subject.UpdatedAt = now
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO subjects (id, course_id, code, name, semester, has_labs, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		subject.ID, subject.CourseID, subject.Code, subject.Name, subject.Semester, subject.HasLabs, subject.Active, subject.CreatedAt, subject.UpdatedAt); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update modifies an existing subject.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE subjects SET code = $1, name = $2, semester = $3, has_labs = $4, active = $5, updated_at = $6 WHERE id = $7`,
		subject.Code, subject.Name, subject.Semester, subject.HasLabs, subject.Active, subject.UpdatedAt, subject.ID)
	if err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate soft-deletes a subject.
func (r *SubjectRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subjects SET active = false, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deactivate subject: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AssignStaff maps a staff member to a subject for one batch.
func (r *SubjectRepository) AssignStaff(ctx context.Context, assignment *models.StaffAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	assignment.CreatedAt = time.Now().UTC()
	query := `INSERT INTO staff_assignments (id, staff_id, subject_id, batch_id, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (staff_id, subject_id, batch_id) DO NOTHING RETURNING id`
	var insertedID string
	err := r.db.QueryRowxContext(ctx, query, assignment.ID, assignment.StaffID, assignment.SubjectID, assignment.BatchID, assignment.CreatedAt).Scan(&insertedID)
	if err == sql.ErrNoRows {
		return sql.ErrNoRows
	}
	if err != nil {
		return fmt.Errorf("assign staff: %w", err)
	}
	return nil
}

// ListAssignments returns assignments for a staff member or subject.
func (r *SubjectRepository) ListAssignments(ctx context.Context, staffID, subjectID string) ([]models.StaffAssignment, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if staffID != "" {
		where = append(where, fmt.Sprintf("staff_id = $%d", len(args)+1))
		args = append(args, staffID)
	}
	if subjectID != "" {
		where = append(where, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, subjectID)
	}
	query := fmt.Sprintf(`SELECT id, staff_id, subject_id, batch_id, created_at FROM staff_assignments WHERE %s ORDER BY created_at`, strings.Join(where, " AND "))
	var assignments []models.StaffAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, fmt.Errorf("list staff assignments: %w", err)
	}
	return assignments, nil
}

// IsAssigned reports whether a staff member teaches the subject for a batch.
func (r *SubjectRepository) IsAssigned(ctx context.Context, staffID, subjectID, batchID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM staff_assignments WHERE staff_id = $1 AND subject_id = $2 AND batch_id = $3)`
	if err := r.db.GetContext(ctx, &exists, query, staffID, subjectID, batchID); err != nil {
		return false, fmt.Errorf("check staff assignment: %w", err)
	}
	return exists, nil
}

// --- Elective groups ---

// CreateElectiveGroup inserts a group and its options atomically.
func (r *SubjectRepository) CreateElectiveGroup(ctx context.Context, group *models.ElectiveGroup, options []models.ElectiveOption) error {
	now := time.Now().UTC()
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	group.CreatedAt = now
	group.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create elective group: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO elective_groups (id, course_id, name, semester, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		group.ID, group.CourseID, group.Name, group.Semester, group.Active, group.CreatedAt, group.UpdatedAt); err != nil {
		return fmt.Errorf("insert elective group: %w", err)
	}

	for i := range options {
		opt := &options[i]
		if opt.ID == "" {
			opt.ID = uuid.NewString()
		}
		opt.GroupID = group.ID
		opt.CreatedAt = now
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO elective_options (id, group_id, subject_id, capacity, created_at)
VALUES ($1, $2, $3, $4, $5)`,
			opt.ID, opt.GroupID, opt.SubjectID, opt.Capacity, opt.CreatedAt); err != nil {
			return fmt.Errorf("insert elective option: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create elective group: %w", err)
	}
	committed = true
	return nil
}

// FindElectiveGroup loads a group by id.
func (r *SubjectRepository) FindElectiveGroup(ctx context.Context, id string) (*models.ElectiveGroup, error) {
	var group models.ElectiveGroup
	query := `SELECT id, course_id, name, semester, active, created_at, updated_at FROM elective_groups WHERE id = $1 LIMIT 1`
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find elective group: %w", err)
	}
	return &group, nil
}

// ListElectiveGroups lists groups for a course, optionally by semester.
func (r *SubjectRepository) ListElectiveGroups(ctx context.Context, courseID string, semester *int) ([]models.ElectiveGroup, error) {
	where := []string{"active = true"}
	args := []interface{}{}
	if courseID != "" {
		where = append(where, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, courseID)
	}
	if semester != nil {
		where = append(where, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, *semester)
	}
	query := fmt.Sprintf(`SELECT id, course_id, name, semester, active, created_at, updated_at
FROM elective_groups WHERE %s ORDER BY semester, name`, strings.Join(where, " AND "))
	var groups []models.ElectiveGroup
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("list elective groups: %w", err)
	}
	return groups, nil
}

// ListElectiveOptions returns a group's options with demand counts.
func (r *SubjectRepository) ListElectiveOptions(ctx context.Context, groupID string) ([]models.ElectiveOptionDetail, error) {
	query := `SELECT o.id, o.group_id, o.subject_id, o.capacity, o.created_at,
        s.code AS subject_code, s.name AS subject_name,
        COUNT(ch.id) AS chosen_count
        FROM elective_options o
        JOIN subjects s ON s.id = o.subject_id
        LEFT JOIN elective_choices ch ON ch.option_id = o.id
        WHERE o.group_id = $1
        GROUP BY o.id, o.group_id, o.subject_id, o.capacity, o.created_at, s.code, s.name
        ORDER BY s.code`
	var options []models.ElectiveOptionDetail
	if err := r.db.SelectContext(ctx, &options, query, groupID); err != nil {
		return nil, fmt.Errorf("list elective options: %w", err)
	}
	return options, nil
}

// FindElectiveOption loads one option.
func (r *SubjectRepository) FindElectiveOption(ctx context.Context, id string) (*models.ElectiveOption, error) {
	var option models.ElectiveOption
	query := `SELECT id, group_id, subject_id, capacity, created_at FROM elective_options WHERE id = $1 LIMIT 1`
	if err := r.db.GetContext(ctx, &option, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find elective option: %w", err)
	}
	return &option, nil
}

// ReplaceElectiveChoice atomically swaps a student's choice within a group.
// The previous choice row, if any, is removed in the same transaction, so a
// student holds at most one option per group. The capacity check runs inside
// the transaction against the current count.
func (r *SubjectRepository) ReplaceElectiveChoice(ctx context.Context, choice *models.ElectiveChoice, capacity int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin elective choice: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM elective_choices WHERE group_id = $1 AND student_id = $2`,
		choice.GroupID, choice.StudentID); err != nil {
		return fmt.Errorf("clear previous elective choice: %w", err)
	}

	if capacity > 0 {
		var taken int
		if err := tx.GetContext(ctx, &taken,
			`SELECT COUNT(*) FROM elective_choices WHERE option_id = $1`, choice.OptionID); err != nil {
			return fmt.Errorf("count elective choices: %w", err)
		}
		if taken >= capacity {
			return sql.ErrNoRows
		}
	}

	if choice.ID == "" {
		choice.ID = uuid.NewString()
	}
	choice.CreatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO elective_choices (id, group_id, option_id, student_id, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		choice.ID, choice.GroupID, choice.OptionID, choice.StudentID, choice.CreatedAt); err != nil {
		return fmt.Errorf("insert elective choice: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit elective choice: %w", err)
	}
	committed = true
	return nil
}

// FindElectiveChoice returns a student's current choice in a group.
func (r *SubjectRepository) FindElectiveChoice(ctx context.Context, groupID, studentID string) (*models.ElectiveChoice, error) {
	var choice models.ElectiveChoice
	query := `SELECT id, group_id, option_id, student_id, created_at
FROM elective_choices WHERE group_id = $1 AND student_id = $2 LIMIT 1`
	if err := r.db.GetContext(ctx, &choice, query, groupID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find elective choice: %w", err)
	}
	return &choice, nil
}
