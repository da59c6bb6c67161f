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

// CourseRepository handles persistence for courses and their batches.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// ListCourses returns courses matching the filter.
func (r *CourseRepository) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{"code": "code", "name": "name", "created_at": "created_at"}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "created_at"
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

	query := fmt.Sprintf(`SELECT id, code, name, duration_years, active, created_at, updated_at
        FROM courses WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		whereClause, sortColumn, order, size, (page-1)*size)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM courses WHERE %s", whereClause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindCourseByID loads a single course.
func (r *CourseRepository) FindCourseByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	query := `SELECT id, code, name, duration_years, active, created_at, updated_at FROM courses WHERE id = $1 LIMIT 1`
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// ExistsCourseByCode reports whether another course uses the code.
func (r *CourseRepository) ExistsCourseByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM courses WHERE code = $1 AND ($2 = '' OR id <> $2))`
	if err := r.db.GetContext(ctx, &exists, query, code, excludeID); err != nil {
		return false, fmt.Errorf("check course code: %w", err)
	}
	return exists, nil
}

// CreateCourse inserts a course row.
func (r *CourseRepository) CreateCourse(ctx context.Context, course *models.Course) error {
	now := time.Now().UTC()
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	course.CreatedAt = now
	course.UpdatedAt = now
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO courses (id, code, name, duration_years, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		course.ID, course.Code, course.Name, course.Duration, course.Active, course.CreatedAt, course.UpdatedAt); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// UpdateCourse modifies an existing course.
func (r *CourseRepository) UpdateCourse(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE courses SET code = $1, name = $2, duration_years = $3, active = $4, updated_at = $5 WHERE id = $6`,
		course.Code, course.Name, course.Duration, course.Active, course.UpdatedAt, course.ID)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeactivateCourse soft-deletes a course.
func (r *CourseRepository) DeactivateCourse(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE courses SET active = false, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deactivate course: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListBatches returns batches with course metadata.
func (r *CourseRepository) ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, int, error) {
	base := `FROM batches b JOIN courses c ON c.id = b.course_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.CourseID != "" {
		where = append(where, fmt.Sprintf("b.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("b.name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("b.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{"name": "b.name", "start_year": "b.start_year", "created_at": "b.created_at"}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "b.start_year"
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

	query := fmt.Sprintf(`SELECT b.id, b.course_id, b.name, b.start_year, b.end_year, b.active, b.created_at, b.updated_at,
        c.code AS course_code, c.name AS course_name
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		base, whereClause, sortColumn, order, size, (page-1)*size)
	var batches []models.BatchDetail
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return batches, total, nil
}

// FindBatchByID loads a batch with its course metadata.
func (r *CourseRepository) FindBatchByID(ctx context.Context, id string) (*models.BatchDetail, error) {
	query := `SELECT b.id, b.course_id, b.name, b.start_year, b.end_year, b.active, b.created_at, b.updated_at,
        c.code AS course_code, c.name AS course_name
        FROM batches b JOIN courses c ON c.id = b.course_id WHERE b.id = $1 LIMIT 1`
	var batch models.BatchDetail
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find batch: %w", err)
	}
	return &batch, nil
}

// ExistsBatchByName reports whether the course already has a batch by name.
func (r *CourseRepository) ExistsBatchByName(ctx context.Context, courseID, name string, excludeID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM batches WHERE course_id = $1 AND name = $2 AND ($3 = '' OR id <> $3))`
	if err := r.db.GetContext(ctx, &exists, query, courseID, name, excludeID); err != nil {
		return false, fmt.Errorf("check batch name: %w", err)
	}
	return exists, nil
}

// CreateBatch inserts a batch row.
func (r *CourseRepository) CreateBatch(ctx context.Context, batch *models.Batch) error {
	now := time.Now().UTC()
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	batch.CreatedAt = now
	batch.UpdatedAt = now
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO batches (id, course_id, name, start_year, end_year, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		batch.ID, batch.CourseID, batch.Name, batch.StartYear, batch.EndYear, batch.Active, batch.CreatedAt, batch.UpdatedAt); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// UpdateBatch modifies an existing batch.
func (r *CourseRepository) UpdateBatch(ctx context.Context, batch *models.Batch) error {
	batch.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE batches SET name = $1, start_year = $2, end_year = $3, active = $4, updated_at = $5 WHERE id = $6`,
		batch.Name, batch.StartYear, batch.EndYear, batch.Active, batch.UpdatedAt, batch.ID)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeactivateBatch soft-deletes a batch.
func (r *CourseRepository) DeactivateBatch(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE batches SET active = false, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deactivate batch: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
