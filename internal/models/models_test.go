package models

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"
)

func TestVoteDelta(t *testing.T) {
	tests := []struct {
		name      string
		old, new  int16
		wantScore int32
		wantMinus int32
	}{
		{"first upvote", 0, VoteUp, 1, 0},
		{"first downvote", 0, VoteDown, -1, 1},
		{"down to up", VoteDown, VoteUp, 2, -1},
		{"up to down", VoteUp, VoteDown, -2, 1},
		{"same value", VoteUp, VoteUp, 0, 0},
		{"retract up", VoteUp, 0, -1, 0},
		{"retract down", VoteDown, 0, 1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, minus := VoteDelta(tt.old, tt.new)
			if score != tt.wantScore || minus != tt.wantMinus {
				t.Errorf("VoteDelta(%d, %d) = (%d, %d), want (%d, %d)", tt.old, tt.new, score, minus, tt.wantScore, tt.wantMinus)
			}
		})
	}
}

func TestPermissionLevelOrder(t *testing.T) {
	ordered := []PermissionLevel{PermissionNone, PermissionModerate, PermissionBan, PermissionManage, PermissionLead}
	for i := range ordered {
		for j := range ordered {
			if got := ordered[i].AtLeast(ordered[j]); got != (i >= j) {
				t.Errorf("%s.AtLeast(%s) = %v", ordered[i], ordered[j], got)
			}
		}
	}
}

func TestPermissionLevelText(t *testing.T) {
	var level PermissionLevel
	if err := json.Unmarshal([]byte(`"manage"`), &level); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if level != PermissionManage {
		t.Errorf("got %v, want Manage", level)
	}
	if err := json.Unmarshal([]byte(`"owner"`), &level); err == nil {
		t.Error("expected error for unknown level")
	}
	out, _ := json.Marshal(PermissionLead)
	if string(out) != `"Lead"` {
		t.Errorf("marshal Lead = %s", out)
	}
}

func TestAdminRolePermission(t *testing.T) {
	tests := []struct {
		role AdminRole
		want PermissionLevel
	}{
		{AdminRoleNone, PermissionNone},
		{AdminRoleModerator, PermissionBan},
		{AdminRoleAdmin, PermissionLead},
	}
	for _, tt := range tests {
		if got := tt.role.Permission(); got != tt.want {
			t.Errorf("%s.Permission() = %s, want %s", tt.role, got, tt.want)
		}
	}
}

func TestLinkTypeUnknownIsInvalid(t *testing.T) {
	var lt LinkType
	if err := json.Unmarshal([]byte(`"hologram"`), &lt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if lt.Valid() {
		t.Errorf("unknown link type should be invalid, got %v", lt)
	}
	if err := json.Unmarshal([]byte(`"video"`), &lt); err != nil || lt != LinkVideo {
		t.Errorf("video = %v, %v", lt, err)
	}
}

func TestBanActiveAt(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ban  Ban
		want bool
	}{
		{"permanent", Ban{}, true},
		{"future expiry", Ban{ExpiresAt: sql.NullTime{Time: now.Add(time.Hour), Valid: true}}, true},
		{"expiry now is exclusive", Ban{ExpiresAt: sql.NullTime{Time: now, Valid: true}}, false},
		{"past expiry", Ban{ExpiresAt: sql.NullTime{Time: now.Add(-time.Hour), Valid: true}}, false},
		{"revoked", Ban{RevokedAt: sql.NullTime{Time: now.Add(-time.Minute), Valid: true}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ban.ActiveAt(now); got != tt.want {
				t.Errorf("ActiveAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRuleAppliesTo(t *testing.T) {
	site := Rule{Title: BaseRuleNoSpam}
	local := Rule{SphereID: sql.NullInt64{Int64: 4, Valid: true}}
	if !site.AppliesTo(4) || !site.AppliesTo(5) {
		t.Error("site-wide rule should apply everywhere")
	}
	if !local.AppliesTo(4) || local.AppliesTo(5) {
		t.Error("sphere rule should apply only to its sphere")
	}
	if !IsBaseRuleTitle(BaseRuleBeRespectful) || IsBaseRuleTitle("Be nice") {
		t.Error("IsBaseRuleTitle mismatch")
	}
}
