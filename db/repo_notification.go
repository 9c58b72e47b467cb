package db

import (
	"asset_lending_tool/models"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func (r *Repo) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return errors.Wrap(r.DB.WithContext(ctx).Create(n).Error, "create notification")
}

// ListNotifications returns the recipient's inbox, newest first.
func (r *Repo) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.DB.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var ns []models.Notification
	err := q.Order("created_at DESC").Limit(limit).Find(&ns).Error
	return ns, errors.Wrap(err, "list notifications")
}

// MarkNotificationRead stamps read_at once; a second call is a no-op.
// Another user's notification reads as not found.
func (r *Repo) MarkNotificationRead(ctx context.Context, recipientID, id string, at time.Time) error {
	db := r.DB.WithContext(ctx)
	var n models.Notification
	if err := db.First(&n, "id = ? AND recipient_id = ?", id, recipientID).Error; err != nil {
		return notFound(err, "notification")
	}
	if n.ReadAt != nil {
		return nil
	}
	return errors.Wrap(db.Model(&models.Notification{}).
		Where("id = ?", id).
		Update("read_at", at).Error, "mark notification read")
}

