package engine

import (
	"testing"
	"time"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
)

func TestNotificationInbox(t *testing.T) {
	f := newFixture(t)
	p := f.post(f.alice.ID)
	reply := f.comment(f.bob.ID, p.ID, 0)
	f.clock.Advance(time.Minute)
	f.vote(f.carol.ID, postTarget(p.ID), models.VoteUp)

	notes, err := f.eng.Notifications.ListNotifications(f.ctx, f.alice.ID, 0, 0)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("got %d notifications, want 2", len(notes))
	}
	if notes[0].Type != models.NotifyVote || notes[0].TriggerUserID != f.carol.ID {
		t.Errorf("newest = %+v, want carol's vote", notes[0])
	}
	if notes[1].Type != models.NotifyReply || notes[1].CommentID.Int64 != reply.ID || notes[1].SphereID != f.sphere.ID {
		t.Errorf("oldest = %+v, want bob's reply", notes[1])
	}

	if err := f.eng.Notifications.MarkRead(f.ctx, f.bob.ID, notes[0].ID); !apperr.IsAuthorization(err) {
		t.Errorf("reading someone else's notification: got %v", err)
	}
	if err := f.eng.Notifications.MarkRead(f.ctx, f.alice.ID, 9999); !apperr.IsNotFound(err) {
		t.Errorf("unknown notification: got %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.eng.Notifications.MarkRead(f.ctx, f.alice.ID, notes[0].ID); err != nil {
			t.Fatalf("MarkRead #%d: %v", i+1, err)
		}
	}
	if unread, _ := f.eng.Notifications.UnreadCount(f.ctx, f.alice.ID); unread != 1 {
		t.Errorf("unread = %d, want 1", unread)
	}

	changed, err := f.eng.Notifications.MarkAllRead(f.ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if changed != 1 {
		t.Errorf("MarkAllRead changed %d, want 1", changed)
	}
	if changed, _ = f.eng.Notifications.MarkAllRead(f.ctx, f.alice.ID); changed != 0 {
		t.Errorf("second MarkAllRead changed %d", changed)
	}

	page, err := f.eng.Notifications.ListNotifications(f.ctx, f.alice.ID, 1, 1)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(page) != 1 || page[0].ID != notes[1].ID || !page[0].IsRead {
		t.Errorf("second page = %+v", page)
	}
}
