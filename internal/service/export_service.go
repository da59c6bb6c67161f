package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academia-portal-api/internal/models"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
	"github.com/noah-isme/academia-portal-api/pkg/export"
	"github.com/noah-isme/academia-portal-api/pkg/storage"
)

type exportAttendanceReader interface {
	BatchRegister(ctx context.Context, subjectID, batchID string) ([]models.AttendanceRecordDetail, error)
	DistinctHeldDates(ctx context.Context, subjectID, batchID string, sessionType models.SessionType) ([]time.Time, error)
}

type exportSubjectReader interface {
	FindByID(ctx context.Context, id string) (*models.SubjectDetail, error)
}

type exportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string              `json:"-"`
	Token        string              `json:"token"`
	URL          string              `json:"url"`
	Format       models.ExportFormat `json:"format"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

// ExportService renders attendance registers to CSV or PDF, stores the
// artifact on disk and hands back a signed download token.
type ExportService struct {
	records  exportAttendanceReader
	subjects exportSubjectReader
	storage  exportFileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(records exportAttendanceReader, subjects exportSubjectReader, store exportFileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		records:  records,
		subjects: subjects,
		storage:  store,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// GenerateRegister builds the per-student attendance summary for one
// subject-batch pairing and stores the rendered file.
func (s *ExportService) GenerateRegister(ctx context.Context, subjectID, batchID string, format models.ExportFormat) (*ExportResult, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "subject not found")
	}

	dataset, err := s.buildRegisterDataset(ctx, subjectID, batchID)
	if err != nil {
		return nil, err
	}
	if len(dataset.Rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no attendance recorded for this pairing")
	}

	title := fmt.Sprintf("Attendance Register - %s", subject.Name)
	var payload []byte
	switch format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("register_%s_%s_%d.%s", subject.Code, batchID, time.Now().UTC().Unix(), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	exportID := fmt.Sprintf("%s:%s", subjectID, batchID)
	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export token")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("register exported",
		zap.String("subject_id", subjectID),
		zap.String("batch_id", batchID),
		zap.String("format", string(format)),
		zap.String("path", relPath))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token.
func (s *ExportService) ParseToken(token string, allowExpired bool) (exportID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to a stored export file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes expired export artifacts.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildRegisterDataset(ctx context.Context, subjectID, batchID string) (export.Dataset, error) {
	lectureDates, err := s.records.DistinctHeldDates(ctx, subjectID, batchID, models.SessionTypeLecture)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load held lectures")
	}
	labDates, err := s.records.DistinctHeldDates(ctx, subjectID, batchID, models.SessionTypeLab)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load held labs")
	}
	register, err := s.records.BatchRegister(ctx, subjectID, batchID)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load register")
	}

	type studentAgg struct {
		name    string
		records []models.AttendanceRecord
	}
	byEnrollment := make(map[string]*studentAgg)
	var order []string
	for _, row := range register {
		agg, ok := byEnrollment[row.EnrollmentNo]
		if !ok {
			agg = &studentAgg{name: row.StudentName}
			byEnrollment[row.EnrollmentNo] = agg
			order = append(order, row.EnrollmentNo)
		}
		agg.records = append(agg.records, row.AttendanceRecord)
	}
	sort.Strings(order)

	dataset := export.Dataset{
		Headers: []string{"Enrollment No", "Student", "Lectures", "Labs", "Overall %"},
	}
	for _, enrollmentNo := range order {
		agg := byEnrollment[enrollmentNo]
		stats := ComputeSubjectStats("", subjectID, lectureDates, labDates, agg.records)
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Enrollment No": enrollmentNo,
			"Student":       agg.name,
			"Lectures":      fmt.Sprintf("%d/%d", stats.LecturesAttended, stats.TotalLecturesTaken),
			"Labs":          fmt.Sprintf("%d/%d", stats.LabsAttended, stats.TotalLabsTaken),
			"Overall %":     fmt.Sprintf("%.2f", stats.OverallPercentage),
		})
	}
	return dataset, nil
}
