package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academia-portal-api/internal/models"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
)

var pdfMagic = []byte("%PDF-")

type fileRepository interface {
	Create(ctx context.Context, file *models.StoredFile) error
	FindByID(ctx context.Context, id string) (*models.StoredFile, error)
	List(ctx context.Context, kind models.FileKind, batchID, subjectID string) ([]models.StoredFileInfo, error)
	Deactivate(ctx context.Context, id string) error
}

type fileBatchReader interface {
	FindBatchByID(ctx context.Context, id string) (*models.BatchDetail, error)
}

// FileService stores result sheets and timetables as PDF blobs. Payloads
// travel base64-encoded inside JSON.
type FileService struct {
	repo      fileRepository
	batches   fileBatchReader
	maxBytes  int64
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFileService constructs a FileService.
func NewFileService(repo fileRepository, batches fileBatchReader, maxBytes int64, validate *validator.Validate, logger *zap.Logger) *FileService {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{repo: repo, batches: batches, maxBytes: maxBytes, validator: validate, logger: logger}
}

// UploadFileRequest carries a base64-encoded PDF and its placement.
type UploadFileRequest struct {
	Kind      string  `json:"kind" validate:"required"`
	Title     string  `json:"title" validate:"required"`
	BatchID   string  `json:"batch_id" validate:"required"`
	SubjectID *string `json:"subject_id"`
	Semester  *int    `json:"semester" validate:"omitempty,min=1,max=16"`
	Content   string  `json:"content" validate:"required"`
}

// Upload decodes, validates and stores one document.
func (s *FileService) Upload(ctx context.Context, actorID string, req UploadFileRequest) (*models.StoredFileInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid file payload")
	}

	kind := models.FileKind(strings.ToUpper(req.Kind))
	if kind != models.FileKindResult && kind != models.FileKindTimetable {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown file kind %q", req.Kind))
	}
	if kind == models.FileKindResult && req.Semester == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester required for result sheets")
	}

	if _, err := s.batches.FindBatchByID(ctx, req.BatchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "content is not valid base64")
	}
	if int64(len(content)) > s.maxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d byte limit", s.maxBytes))
	}
	if !bytes.HasPrefix(content, pdfMagic) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content is not a PDF document")
	}

	file := &models.StoredFile{
		Kind:       kind,
		Title:      strings.TrimSpace(req.Title),
		BatchID:    req.BatchID,
		SubjectID:  req.SubjectID,
		Semester:   req.Semester,
		Content:    content,
		SizeBytes:  int64(len(content)),
		UploadedBy: actorID,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, file); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	s.logger.Info("file stored",
		zap.String("file_id", file.ID),
		zap.String("kind", string(kind)),
		zap.Int("size_bytes", len(content)))
	return s.info(file), nil
}

// DownloadResponse returns a document with its payload re-encoded.
type DownloadResponse struct {
	models.StoredFileInfo
	Content string `json:"content"`
}

// Download returns one document with base64 content. Students may only pull
// documents for their own batch; that scoping happens at the routing layer
// via the batch parameter check.
func (s *FileService) Download(ctx context.Context, id string) (*DownloadResponse, error) {
	file, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load file")
	}
	return &DownloadResponse{
		StoredFileInfo: *s.info(file),
		Content:        base64.StdEncoding.EncodeToString(file.Content),
	}, nil
}

// List returns document metadata without payloads.
func (s *FileService) List(ctx context.Context, kind models.FileKind, batchID, subjectID string) ([]models.StoredFileInfo, error) {
	if kind != models.FileKindResult && kind != models.FileKindTimetable {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown file kind %q", kind))
	}
	files, err := s.repo.List(ctx, kind, batchID, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list files")
	}
	return files, nil
}

// Remove soft-deletes a document.
func (s *FileService) Remove(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove file")
	}
	return nil
}

func (s *FileService) info(file *models.StoredFile) *models.StoredFileInfo {
	return &models.StoredFileInfo{
		ID:         file.ID,
		Kind:       file.Kind,
		Title:      file.Title,
		BatchID:    file.BatchID,
		SubjectID:  file.SubjectID,
		Semester:   file.Semester,
		SizeBytes:  file.SizeBytes,
		UploadedBy: file.UploadedBy,
		CreatedAt:  file.CreatedAt,
	}
}
