package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academia-portal-api/internal/models"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
	"github.com/noah-isme/academia-portal-api/pkg/jobs"
)

const jobTypeFanout = "notification.fanout"

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	BulkCreateDeliveries(ctx context.Context, notificationID string, userIDs []string) error
	Inbox(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.NotificationInbox, error)
	MarkRead(ctx context.Context, deliveryID, userID string) error
}

type notificationRecipientReader interface {
	ListUserIDsByRole(ctx context.Context, role models.UserRole) ([]string, error)
	ListStudentIDsByBatch(ctx context.Context, batchID string) ([]string, error)
}

type fanoutQueue interface {
	Enqueue(job jobs.Job) error
}

// NotificationService publishes announcements and fans deliveries out to
// each recipient asynchronously through the job queue.
type NotificationService struct {
	repo       notificationRepository
	recipients notificationRecipientReader
	queue      fanoutQueue
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewNotificationService constructs a NotificationService. Wire the
// returned service's FanoutHandler into the queue before starting it.
func NewNotificationService(repo notificationRepository, recipients notificationRecipientReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, recipients: recipients, metrics: metrics, validator: validate, logger: logger}
}

// SetQueue attaches the fan-out queue. Without a queue, Publish falls back
// to synchronous delivery.
func (s *NotificationService) SetQueue(queue fanoutQueue) {
	s.queue = queue
}

// PublishRequest addresses an announcement to a role or a batch.
type PublishRequest struct {
	Title    string `json:"title" validate:"required"`
	Body     string `json:"body" validate:"required"`
	Audience string `json:"audience" validate:"required"`
	Role     string `json:"role"`
	BatchID  string `json:"batch_id"`
}

// Publish stores the announcement and schedules delivery fan-out.
func (s *NotificationService) Publish(ctx context.Context, actorID string, req PublishRequest) (*models.Notification, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}

	audience := models.NotificationAudience(strings.ToUpper(req.Audience))
	notification := &models.Notification{
		Title:     strings.TrimSpace(req.Title),
		Body:      req.Body,
		Audience:  audience,
		CreatedBy: actorID,
		CreatedAt: time.Now().UTC(),
	}

	switch audience {
	case models.AudienceRole:
		role := models.UserRole(strings.ToUpper(req.Role))
		if !role.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown audience role")
		}
		notification.Role = &role
	case models.AudienceBatch:
		if req.BatchID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "batch_id required for batch audience")
		}
		notification.BatchID = &req.BatchID
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown audience %q", req.Audience))
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}

	if s.queue != nil {
		job := jobs.Job{
			ID:       uuid.NewString(),
			Type:     jobTypeFanout,
			Payload:  notification.ID,
			Enqueued: time.Now().UTC(),
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue fan-out, delivering inline", zap.Error(err))
			if err := s.fanout(ctx, notification.ID); err != nil {
				return nil, err
			}
		}
	} else if err := s.fanout(ctx, notification.ID); err != nil {
		return nil, err
	}

	s.logger.Info("notification published",
		zap.String("notification_id", notification.ID),
		zap.String("audience", string(audience)))
	return notification, nil
}

// FanoutHandler is the queue handler resolving recipients and writing
// delivery rows.
func (s *NotificationService) FanoutHandler(ctx context.Context, job jobs.Job) error {
	notificationID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("fanout job %s has unexpected payload type %T", job.ID, job.Payload)
	}
	return s.fanout(ctx, notificationID)
}

func (s *NotificationService) fanout(ctx context.Context, notificationID string) error {
	notification, err := s.repo.FindByID(ctx, notificationID)
	if err != nil {
		return fmt.Errorf("load notification %s: %w", notificationID, err)
	}

	var userIDs []string
	switch notification.Audience {
	case models.AudienceRole:
		userIDs, err = s.recipients.ListUserIDsByRole(ctx, *notification.Role)
	case models.AudienceBatch:
		userIDs, err = s.recipients.ListStudentIDsByBatch(ctx, *notification.BatchID)
	default:
		return fmt.Errorf("notification %s has unknown audience %q", notificationID, notification.Audience)
	}
	if err != nil {
		return fmt.Errorf("resolve recipients for %s: %w", notificationID, err)
	}
	if len(userIDs) == 0 {
		s.logger.Warn("notification has no recipients", zap.String("notification_id", notificationID))
		return nil
	}

	if err := s.repo.BulkCreateDeliveries(ctx, notificationID, userIDs); err != nil {
		return fmt.Errorf("write deliveries for %s: %w", notificationID, err)
	}
	s.metrics.AddDeliveriesQueued(len(userIDs))
	s.logger.Info("notification delivered",
		zap.String("notification_id", notificationID),
		zap.Int("recipients", len(userIDs)))
	return nil
}

// Inbox lists the actor's deliveries, newest first.
func (s *NotificationService) Inbox(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.NotificationInbox, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	inbox, err := s.repo.Inbox(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load inbox")
	}
	return inbox, nil
}

// MarkRead stamps one delivery as read. Already-read deliveries are a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, deliveryID, userID string) error {
	if err := s.repo.MarkRead(ctx, deliveryID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark delivery read")
	}
	return nil
}
