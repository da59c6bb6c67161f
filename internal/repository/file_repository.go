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

// FileRepository stores PDF documents as blobs in Postgres.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository constructs the repository.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create inserts a stored file with its blob content.
func (r *FileRepository) Create(ctx context.Context, file *models.StoredFile) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	file.CreatedAt = time.Now().UTC()
	file.SizeBytes = int64(len(file.Content))
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO stored_files (id, kind, title, batch_id, subject_id, semester, content, size_bytes, uploaded_by, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		file.ID, file.Kind, file.Title, file.BatchID, file.SubjectID, file.Semester, file.Content, file.SizeBytes, file.UploadedBy, file.Active, file.CreatedAt); err != nil {
		return fmt.Errorf("create stored file: %w", err)
	}
	return nil
}

// FindByID loads one file including its blob.
func (r *FileRepository) FindByID(ctx context.Context, id string) (*models.StoredFile, error) {
	query := `SELECT id, kind, title, batch_id, subject_id, semester, content, size_bytes, uploaded_by, active, created_at
FROM stored_files WHERE id = $1 AND active = true LIMIT 1`
	var file models.StoredFile
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find stored file: %w", err)
	}
	return &file, nil
}

// List returns file metadata without blob payloads.
func (r *FileRepository) List(ctx context.Context, kind models.FileKind, batchID, subjectID string) ([]models.StoredFileInfo, error) {
	where := []string{"active = true", "kind = $1"}
	args := []interface{}{kind}
	if batchID != "" {
		where = append(where, fmt.Sprintf("batch_id = $%d", len(args)+1))
		args = append(args, batchID)
	}
	if subjectID != "" {
		where = append(where, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, subjectID)
	}
	query := fmt.Sprintf(`SELECT id, kind, title, batch_id, subject_id, semester, size_bytes, uploaded_by, created_at
FROM stored_files WHERE %s ORDER BY created_at DESC`, strings.Join(where, " AND "))
	var files []models.StoredFileInfo
	if err := r.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, fmt.Errorf("list stored files: %w", err)
	}
	return files, nil
}

// Deactivate soft-deletes a stored file.
func (r *FileRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE stored_files SET active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate stored file: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
