package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/internal/store"
)

// Notifier reads and acknowledges the notifications produced by replies, votes and moderation
type Notifier struct {
	e *Engine
}

// newNotification addresses an event on post (or one of its comments) to recipient
func newNotification(post *models.Post, commentID sql.NullInt64, recipient, trigger int64, kind models.NotificationType, now time.Time) *models.Notification {
	return &models.Notification{
		SphereID:      post.SphereID,
		SatelliteID:   post.SatelliteID,
		PostID:        post.ID,
		CommentID:     commentID,
		UserID:        recipient,
		TriggerUserID: trigger,
		Type:          kind,
		CreatedAt:     now,
	}
}

// ListNotifications returns a page of the user's notifications, newest first
func (n *Notifier) ListNotifications(ctx context.Context, userID int64, limit, offset int) ([]*models.Notification, error) {
	limit, offset = n.e.clampPage(limit, offset)
	var out []*models.Notification
	err := n.e.read(ctx, "list_notifications", func(tx store.Tx) error {
		if _, err := activeUser(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		out, err = tx.Notifications().ListByUser(ctx, userID, limit, offset)
		return err
	})
	return out, err
}

// MarkRead flags one notification as read. Only its recipient may do it; marking twice is a no-op.
func (n *Notifier) MarkRead(ctx context.Context, userID, notificationID int64) error {
	return n.e.write(ctx, "mark_read", []store.LockKey{store.InboxKey(userID)}, func(tx store.Tx, fx *effects) error {
		note, err := tx.Notifications().GetByID(ctx, notificationID)
		if err != nil {
			return err
		}
		if note == nil {
			return apperr.NotFoundf("notification %d", notificationID)
		}
		if note.UserID != userID {
			return apperr.Unauthorizedf("notification %d is addressed to another user", notificationID)
		}
		if note.IsRead {
			return nil
		}
		note.IsRead = true
		return tx.Notifications().Update(ctx, note)
	})
}

// MarkAllRead flags every unread notification of the user and returns how many changed
func (n *Notifier) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	var changed int64
	err := n.e.write(ctx, "mark_all_read", []store.LockKey{store.InboxKey(userID)}, func(tx store.Tx, fx *effects) error {
		var err error
		changed, err = tx.Notifications().MarkAllRead(ctx, userID)
		return err
	})
	return changed, err
}

// UnreadCount returns the number of unread notifications of the user
func (n *Notifier) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := n.e.read(ctx, "unread_count", func(tx store.Tx) error {
		var err error
		count, err = tx.Notifications().CountUnread(ctx, userID)
		return err
	})
	return count, err
}
