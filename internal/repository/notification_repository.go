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

// NotificationRepository handles persistence for notifications and their
// per-recipient deliveries.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts the notification row itself; deliveries follow async.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, title, body, audience, role, batch_id, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.Title, n.Body, n.Audience, n.Role, n.BatchID, n.CreatedBy, n.CreatedAt); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// FindByID loads a notification.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	query := `SELECT id, title, body, audience, role, batch_id, created_by, created_at FROM notifications WHERE id = $1 LIMIT 1`
	var n models.Notification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find notification: %w", err)
	}
	return &n, nil
}

// BulkCreateDeliveries fans a notification out to recipients in one
// transaction. Re-delivery to the same user is a no-op.
func (r *NotificationRepository) BulkCreateDeliveries(ctx context.Context, notificationID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin deliveries: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	query := `INSERT INTO notification_deliveries (id, notification_id, user_id, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (notification_id, user_id) DO NOTHING`
	now := time.Now().UTC()
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), notificationID, userID, now); err != nil {
			return fmt.Errorf("insert delivery: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit deliveries: %w", err)
	}
	committed = true
	return nil
}

// Inbox returns a user's deliveries newest first.
func (r *NotificationRepository) Inbox(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.NotificationInbox, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT d.id, d.notification_id, d.user_id, d.read_at, d.created_at,
        n.title, n.body, n.created_at AS sent_at
        FROM notification_deliveries d
        JOIN notifications n ON n.id = d.notification_id
        WHERE d.user_id = $1`
	if unreadOnly {
		query += " AND d.read_at IS NULL"
	}
	query += fmt.Sprintf(" ORDER BY n.created_at DESC LIMIT %d", limit)
	var rows []models.NotificationInbox
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("notification inbox: %w", err)
	}
	return rows, nil
}

// MarkRead stamps a delivery as read for its owner.
func (r *NotificationRepository) MarkRead(ctx context.Context, deliveryID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notification_deliveries SET read_at = $1 WHERE id = $2 AND user_id = $3 AND read_at IS NULL`,
		time.Now().UTC(), deliveryID, userID)
	if err != nil {
		return fmt.Errorf("mark delivery read: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
