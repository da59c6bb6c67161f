package models

import "time"

// NotificationAudience addresses either a whole role or a single batch.
type NotificationAudience string

const (
	AudienceRole  NotificationAudience = "ROLE"
	AudienceBatch NotificationAudience = "BATCH"
)

// Notification is an announcement fanned out to individual recipients.
type Notification struct {
	ID        string               `db:"id" json:"id"`
	Title     string               `db:"title" json:"title"`
	Body      string               `db:"body" json:"body"`
	Audience  NotificationAudience `db:"audience" json:"audience"`
	Role      *UserRole            `db:"role" json:"role,omitempty"`
	BatchID   *string              `db:"batch_id" json:"batch_id,omitempty"`
	CreatedBy string               `db:"created_by" json:"created_by"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// NotificationDelivery is one recipient's copy of a notification.
type NotificationDelivery struct {
	ID             string     `db:"id" json:"id"`
	NotificationID string     `db:"notification_id" json:"notification_id"`
	UserID         string     `db:"user_id" json:"user_id"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// NotificationInbox joins a delivery with its notification for listing.
type NotificationInbox struct {
	NotificationDelivery
	Title  string    `db:"title" json:"title"`
	Body   string    `db:"body" json:"body"`
	SentAt time.Time `db:"sent_at" json:"sent_at"`
}
