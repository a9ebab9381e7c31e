// Package notify implements the notify.* methods over the caller's inbox.
package notify

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/sharesphere/spherecore/internal/api/auth"
	"github.com/sharesphere/spherecore/internal/api/objects"
	"github.com/sharesphere/spherecore/internal/api/params"
	"github.com/sharesphere/spherecore/internal/engine"
)

// NotifyAPI provides notification methods
type NotifyAPI struct {
	notifier *engine.Notifier
}

// NewNotifyAPI creates a new notify API
func NewNotifyAPI(notifier *engine.Notifier) *NotifyAPI {
	return &NotifyAPI{notifier: notifier}
}

// ListNotifications handles notify.list_notifications, newest first
func (a *NotifyAPI) ListNotifications(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p params.Page
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}

	notes, err := a.notifier.ListNotifications(ctx.Request.Context(), userID, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	result := make([]map[string]interface{}, 0, len(notes))
	for _, n := range notes {
		result = append(result, objects.Notification(n))
	}
	return result, nil
}

// MarkRead handles notify.mark_read
func (a *NotifyAPI) MarkRead(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var p struct {
		NotificationID int64 `json:"notification_id"`
	}
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.NotificationID == 0 {
		return nil, params.Missing("notification_id")
	}

	if err := a.notifier.MarkRead(ctx.Request.Context(), userID, p.NotificationID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"notification_id": p.NotificationID, "is_read": true}, nil
}

// MarkAllRead handles notify.mark_all_read
func (a *NotifyAPI) MarkAllRead(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	changed, err := a.notifier.MarkAllRead(ctx.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"marked": changed}, nil
}

// UnreadCount handles notify.unread_count
func (a *NotifyAPI) UnreadCount(ctx *gin.Context, raw json.RawMessage) (interface{}, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	unread, err := a.notifier.UnreadCount(ctx.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"unread": unread}, nil
}
