package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/models"
)

func TestModerateContent(t *testing.T) {
	f := newFixture(t)
	rule := f.siteRule()
	p := f.post(f.bob.ID)
	c := f.comment(f.carol.ID, p.ID, 0)
	f.grant(f.bob.ID, models.PermissionModerate)

	tests := []struct {
		name    string
		actor   int64
		in      ModerationAction
		want    apperr.Kind
		wantErr bool
	}{
		{"outsider", f.carol.ID, ModerationAction{PostID: p.ID, RuleID: rule.ID}, apperr.KindAuthorization, true},
		{"unknown rule", f.alice.ID, ModerationAction{PostID: p.ID, RuleID: 9999}, apperr.KindNotFound, true},
		{"message too long", f.alice.ID, ModerationAction{PostID: p.ID, RuleID: rule.ID, Message: strings.Repeat("m", models.MaxModeratorMessageLength+1)}, apperr.KindValidation, true},
		{"comment of another post", f.alice.ID, ModerationAction{PostID: f.post(f.alice.ID).ID, CommentID: nullID(c.ID), RuleID: rule.ID}, apperr.KindValidation, true},
		{"moderator flags a comment", f.bob.ID, ModerationAction{PostID: p.ID, CommentID: nullID(c.ID), RuleID: rule.ID, Message: "spam"}, 0, false},
		{"lead flags a post", f.alice.ID, ModerationAction{PostID: p.ID, RuleID: rule.ID}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.eng.Moderation.ModerateContent(f.ctx, tt.actor, tt.in)
			if tt.wantErr {
				assertKind(t, err, tt.want)
				return
			}
			if err != nil {
				t.Fatalf("ModerateContent: %v", err)
			}
			mod := res.Post.Moderation
			if res.Comment != nil {
				mod = res.Comment.Moderation
			}
			if mod.InfringedRuleID.Int64 != rule.ID || mod.ModeratorID.Int64 != tt.actor || !mod.ModeratedAt.Valid {
				t.Errorf("moderation = %+v", mod)
			}
			if res.Ban != nil {
				t.Errorf("unexpected ban %+v", res.Ban)
			}
		})
	}

	if got := f.pub.count(models.NotifyModeration); got != 2 {
		t.Errorf("%d moderation notifications, want 2", got)
	}
	if got := f.reloadComment(c.ID).Moderation.ModeratorMessage.String; got != "spam" {
		t.Errorf("stored message = %q", got)
	}
}

func TestModerateContentWithBan(t *testing.T) {
	f := newFixture(t)
	rule := f.siteRule()
	p := f.post(f.bob.ID)

	res, err := f.eng.Moderation.ModerateContent(f.ctx, f.alice.ID, ModerationAction{
		PostID: p.ID,
		RuleID: rule.ID,
		Ban:    &BanOrder{ExpiresAt: until(t0.Add(72 * time.Hour))},
	})
	if err != nil {
		t.Fatalf("ModerateContent: %v", err)
	}
	if res.Ban == nil || res.Ban.UserID != f.bob.ID || res.Ban.SphereID.Int64 != f.sphere.ID {
		t.Fatalf("ban = %+v", res.Ban)
	}
	status, err := f.eng.Bans.BanStatus(f.ctx, f.bob.ID, f.sphere.ID, time.Time{})
	if err != nil {
		t.Fatalf("BanStatus: %v", err)
	}
	if !status.Banned {
		t.Errorf("author not banned after moderation")
	}

	// a failing ban rolls back the moderation mark
	q := f.post(f.carol.ID)
	_, err = f.eng.Moderation.ModerateContent(f.ctx, f.alice.ID, ModerationAction{
		PostID: q.ID,
		RuleID: rule.ID,
		Ban:    &BanOrder{SiteWide: true},
	})
	assertKind(t, err, apperr.KindAuthorization)
	if f.reloadPost(q.ID).Moderation.ModeratedAt.Valid {
		t.Errorf("moderation persisted although the ban failed")
	}
}

func TestModerateOwnContent(t *testing.T) {
	f := newFixture(t)
	rule := f.siteRule()
	p := f.post(f.alice.ID)
	if _, err := f.eng.Moderation.ModerateContent(f.ctx, f.alice.ID, ModerationAction{PostID: p.ID, RuleID: rule.ID}); err != nil {
		t.Fatalf("ModerateContent: %v", err)
	}
	if got := f.pub.count(models.NotifyModeration); got != 0 {
		t.Errorf("%d notifications for moderating own content", got)
	}
	_, err := f.eng.Moderation.ModerateContent(f.ctx, f.alice.ID, ModerationAction{PostID: p.ID, RuleID: rule.ID, Ban: &BanOrder{}})
	assertKind(t, err, apperr.KindAuthorization)
}
